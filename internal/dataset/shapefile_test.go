package dataset

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchmapper/sketchmapper/internal/model"
)

// closeShapefile flushes w and moves its attribute table to the <base>.dbf
// name readers open; the writer creates it as <base>dbf.
func closeShapefile(t *testing.T, w *shp.Writer, path string) {
	t.Helper()
	w.Close()
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
}

func writeAnchors(t *testing.T, path string, anchors map[int]shp.Point) {
	t.Helper()
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{shp.NumberField("id", 10)}))
	for id, p := range anchors {
		p := p
		row := w.Write(&p)
		require.NoError(t, w.WriteAttribute(int(row), 0, id))
	}
	closeShapefile(t, w, path)
}

type featureRecord struct {
	id, anchor int
	category   string
	length     string
	distance   float64
	azimuth    float64
	outline    []shp.Point
}

func writeFeatures(t *testing.T, path string, records []featureRecord) {
	t.Helper()
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{
		shp.NumberField("id", 10),
		shp.NumberField("anchor_id", 10),
		shp.StringField("category", 16),
		shp.StringField("length", 16),
		shp.FloatField("distance", 16, 4),
		shp.FloatField("azimuth", 16, 4),
	}))
	for _, r := range records {
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{r.outline}))
		row := int(w.Write(&poly))
		require.NoError(t, w.WriteAttribute(row, 0, r.id))
		require.NoError(t, w.WriteAttribute(row, 1, r.anchor))
		require.NoError(t, w.WriteAttribute(row, 2, r.category))
		require.NoError(t, w.WriteAttribute(row, 3, r.length))
		require.NoError(t, w.WriteAttribute(row, 4, r.distance))
		require.NoError(t, w.WriteAttribute(row, 5, r.azimuth))
	}
	closeShapefile(t, w, path)
}

func square(side float64) []shp.Point {
	return []shp.Point{{X: 0, Y: 0}, {X: 0, Y: side}, {X: side, Y: side}, {X: side, Y: 0}, {X: 0, Y: 0}}
}

func TestLoadShapefiles(t *testing.T) {
	dir := t.TempDir()
	anchorsPath := filepath.Join(dir, "anchors.shp")
	featuresPath := filepath.Join(dir, "features.shp")

	writeAnchors(t, anchorsPath, map[int]shp.Point{1: {X: 7.5, Y: 51.5}})
	writeFeatures(t, featuresPath, []featureRecord{
		{id: 10, anchor: 1, category: "building", distance: 12, azimuth: 0.5, outline: square(10)},
		{id: 11, anchor: 1, category: "Street", length: "80", distance: 4, azimuth: 1.25, outline: square(1)},
	})

	d, err := LoadShapefiles(anchorsPath, featuresPath)
	require.NoError(t, err)
	require.Len(t, d.Anchors, 1)

	a := d.Anchors[0]
	assert.Equal(t, model.Anchor{ID: 1, X: 7.5, Y: 51.5}, a.Anchor)
	require.Len(t, a.Features, 2)

	b := a.Features[0]
	assert.Equal(t, model.CategoryBuilding, b.Category)
	assert.InDelta(t, 100.0, b.Area, 1e-9)
	assert.InDelta(t, math.Pi/4, b.Compactness, 1e-9)
	assert.InDelta(t, 12.0, b.Distance, 1e-9)

	s := a.Features[1]
	assert.Equal(t, model.CategoryStreet, s.Category)
	assert.InDelta(t, 80.0, s.Length, 1e-9)
	assert.InDelta(t, 1.25, s.Azimuth, 1e-9)
}

func TestLoadShapefiles_MissingAttributeTable(t *testing.T) {
	dir := t.TempDir()
	anchorsPath := filepath.Join(dir, "anchors.shp")
	writeAnchors(t, anchorsPath, map[int]shp.Point{1: {X: 1, Y: 1}})
	require.NoError(t, os.Remove(filepath.Join(dir, "anchors.dbf")))

	_, err := LoadShapefiles(anchorsPath, filepath.Join(dir, "features.shp"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no attribute table")
}

func TestLoadShapefiles_UnknownAnchor(t *testing.T) {
	dir := t.TempDir()
	anchorsPath := filepath.Join(dir, "anchors.shp")
	featuresPath := filepath.Join(dir, "features.shp")

	writeAnchors(t, anchorsPath, map[int]shp.Point{1: {X: 1, Y: 1}})
	writeFeatures(t, featuresPath, []featureRecord{
		{id: 10, anchor: 2, category: "building", distance: 1, azimuth: 1, outline: square(2)},
	})

	_, err := LoadShapefiles(anchorsPath, featuresPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown anchor 2")
}

func TestLoadShapefiles_UnsupportedCodePage(t *testing.T) {
	dir := t.TempDir()
	anchorsPath := filepath.Join(dir, "anchors.shp")
	writeAnchors(t, anchorsPath, map[int]shp.Point{1: {X: 1, Y: 1}})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "anchors.cpg"), []byte("klingon"), 0644))

	_, err := LoadShapefiles(anchorsPath, filepath.Join(dir, "features.shp"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported code page")
}

func TestCodePage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.shp")

	dec, err := codePage(path)
	require.NoError(t, err)
	assert.Nil(t, dec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "features.cpg"), []byte("windows-1252\n"), 0644))
	dec, err = codePage(path)
	require.NoError(t, err)
	require.NotNil(t, dec)

	s, err := dec.String("Stra\xdfe")
	require.NoError(t, err)
	assert.Equal(t, "Straße", s)
}

func TestMeasure_PolyLine(t *testing.T) {
	line := shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 3, Y: 4}}})
	m, ok := measure(line)
	require.True(t, ok)
	assert.InDelta(t, 5.0, m.length, 1e-9)
}

func TestMeasure_Unsupported(t *testing.T) {
	_, ok := measure(&shp.Point{X: 1, Y: 1})
	assert.False(t, ok)
}

func TestMeasure_PolygonOrientation(t *testing.T) {
	cw := square(10)
	ccw := []shp.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0}}

	for name, ring := range map[string][]shp.Point{"clockwise": cw, "counter-clockwise": ccw} {
		t.Run(name, func(t *testing.T) {
			poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))
			m, ok := measure(&poly)
			require.True(t, ok)
			assert.InDelta(t, 100.0, m.area, 1e-9)
			assert.InDelta(t, math.Pi/4, m.compactness, 1e-9)
		})
	}
}

func TestMeasure_PolygonWithHole(t *testing.T) {
	hole := []shp.Point{{X: 4, Y: 4}, {X: 6, Y: 4}, {X: 6, Y: 6}, {X: 4, Y: 6}, {X: 4, Y: 4}}
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{square(10), hole}))

	m, ok := measure(&poly)
	require.True(t, ok)
	assert.InDelta(t, 96.0, m.area, 1e-9)
	assert.InDelta(t, 4*math.Pi*96/(40*40), m.compactness, 1e-9)
}
