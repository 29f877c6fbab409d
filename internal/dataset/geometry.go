package dataset

import (
	"math"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
)

// measures holds the geometric descriptors derived from a feature outline.
type measures struct {
	area        float64
	compactness float64
	length      float64
}

// measure derives area and compactness from polygons and length from polylines. The first
// part of a polygon is its outer ring; later parts are holes.
func measure(shape shp.Shape) (measures, bool) {
	switch s := shape.(type) {
	case *shp.Polygon:
		poly := toPolygon(s.Parts, s.Points)
		if poly == nil || poly.NumLinearRings() == 0 {
			return measures{}, false
		}
		// Rings may wind either way; only their magnitudes count.
		area := math.Abs(poly.LinearRing(0).Area())
		for i := 1; i < poly.NumLinearRings(); i++ {
			area -= math.Abs(poly.LinearRing(i).Area())
		}
		area = math.Max(area, 0)
		perimeter := poly.LinearRing(0).Length()
		m := measures{area: area}
		if perimeter > 0 {
			// Polsby-Popper: 1 for a circle, towards 0 for elongated outlines.
			m.compactness = 4 * math.Pi * area / (perimeter * perimeter)
		}
		return m, true
	case *shp.PolyLine:
		mls := toMultiLineString(s.Parts, s.Points)
		if mls == nil {
			return measures{}, false
		}
		return measures{length: mls.Length()}, true
	default:
		return measures{}, false
	}
}

// center returns a point shape's position, or the bounding box center of any other shape.
func center(shape shp.Shape) (float64, float64) {
	if p, ok := shape.(*shp.Point); ok {
		return p.X, p.Y
	}
	box := shape.BBox()
	return (box.MinX + box.MaxX) / 2, (box.MinY + box.MaxY) / 2
}

func toPolygon(parts []int32, points []shp.Point) *geom.Polygon {
	flat, ends := flatten(parts, points)
	if len(ends) == 0 {
		return nil
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

func toMultiLineString(parts []int32, points []shp.Point) *geom.MultiLineString {
	flat, ends := flatten(parts, points)
	if len(ends) == 0 {
		return nil
	}
	return geom.NewMultiLineStringFlat(geom.XY, flat, ends)
}

// flatten converts shapefile parts into go-geom flat coordinates and part end offsets.
func flatten(parts []int32, points []shp.Point) ([]float64, []int) {
	if len(parts) == 0 || len(points) == 0 {
		return nil, nil
	}
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	ends := make([]int, 0, len(parts))
	for i := range parts {
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if end <= int(parts[i]) || end > len(points) {
			return nil, nil
		}
		ends = append(ends, end*2)
	}
	return flat, ends
}
