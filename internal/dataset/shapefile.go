package dataset

import (
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sketchmapper/sketchmapper/internal/model"
)

// Feature shapefile columns. DBF names are limited to ten characters, so compactness is
// also accepted under its truncated name.
var featureColumns = map[string][]string{
	"id":          {"id"},
	"anchor_id":   {"anchor_id"},
	"category":    {"category", "type"},
	"area":        {"area"},
	"compactness": {"compactness", "compactnes", "compact"},
	"length":      {"length"},
	"distance":    {"distance"},
	"azimuth":     {"azimuth"},
}

// LoadShapefiles builds a dataset from two shapefiles: anchors (one record per anchor, with
// an "id" column; points, or any shape whose bounding box center is used) and features (one
// record per feature and anchor pair). Missing area, compactness or length values are
// derived from the feature geometry.
func LoadShapefiles(anchorsPath, featuresPath string) (*Dataset, error) {
	anchors, err := readAnchors(anchorsPath)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]int, len(anchors))
	d := &Dataset{Anchors: make([]AnchorRecord, len(anchors))}
	for i, a := range anchors {
		d.Anchors[i] = AnchorRecord{Anchor: a}
		byID[a.ID] = i
	}

	err = readFeatures(featuresPath, func(anchorID int64, f model.ReferenceFeature) error {
		i, ok := byID[anchorID]
		if !ok {
			return eris.Errorf("dataset: feature %d references unknown anchor %d", f.ID, anchorID)
		}
		d.Anchors[i].Features = append(d.Anchors[i].Features, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

type table struct {
	reader  *shp.Reader
	index   map[string]int
	decoder *encoding.Decoder
}

func openTable(path string) (*table, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open shapefile %s", path)
	}

	fields := reader.Fields()
	if len(fields) == 0 {
		_ = reader.Close()
		return nil, eris.Errorf("dataset: shapefile %s has no attribute table", path)
	}
	index := make(map[string]int)
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	dec, err := codePage(path)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	return &table{reader: reader, index: index, decoder: dec}, nil
}

// codePage returns a decoder for the DBF text encoding named in the .cpg sidecar file,
// or nil when there is none.
func codePage(shpPath string) (*encoding.Decoder, error) {
	cpg := strings.TrimSuffix(shpPath, ".shp") + ".cpg"
	raw, err := os.ReadFile(cpg)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", cpg)
	}
	name := strings.TrimSpace(string(raw))
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: unsupported code page %q", name)
	}
	return enc.NewDecoder(), nil
}

func (t *table) close() { _ = t.reader.Close() }

// text returns the first present column among names, trimmed and decoded.
func (t *table) text(names ...string) (string, bool) {
	for _, n := range names {
		idx, ok := t.index[n]
		if !ok {
			continue
		}
		v := strings.TrimSpace(strings.TrimRight(t.reader.Attribute(idx), "\x00"))
		if t.decoder != nil {
			if s, err := t.decoder.String(v); err == nil {
				v = s
			}
		}
		return v, v != ""
	}
	return "", false
}

func (t *table) number(names ...string) (float64, bool, error) {
	v, ok := t.text(names...)
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, eris.Wrapf(err, "dataset: column %s", names[0])
	}
	return f, true, nil
}

func (t *table) id(names ...string) (int64, error) {
	v, ok := t.text(names...)
	if !ok {
		return 0, eris.Errorf("dataset: missing column %s", names[0])
	}
	// DBF numeric columns may carry a decimal part.
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "dataset: column %s", names[0])
	}
	return int64(f), nil
}

func readAnchors(path string) ([]model.Anchor, error) {
	t, err := openTable(path)
	if err != nil {
		return nil, err
	}
	defer t.close()

	var out []model.Anchor
	var skipped int
	for t.reader.Next() {
		_, shape := t.reader.Shape()
		if shape == nil {
			skipped++
			continue
		}
		id, err := t.id("id")
		if err != nil {
			return nil, err
		}
		x, y := center(shape)
		out = append(out, model.Anchor{ID: id, X: x, Y: y})
	}
	if err := t.reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("dataset: skipped anchor records without geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

func readFeatures(path string, emit func(anchorID int64, f model.ReferenceFeature) error) error {
	t, err := openTable(path)
	if err != nil {
		return err
	}
	defer t.close()

	for t.reader.Next() {
		_, shape := t.reader.Shape()

		f, anchorID, err := t.feature(shape)
		if err != nil {
			return err
		}
		if err := emit(anchorID, f); err != nil {
			return err
		}
	}
	if err := t.reader.Err(); err != nil {
		return eris.Wrapf(err, "dataset: read %s", path)
	}
	return nil
}

func (t *table) feature(shape shp.Shape) (model.ReferenceFeature, int64, error) {
	var f model.ReferenceFeature

	id, err := t.id(featureColumns["id"]...)
	if err != nil {
		return f, 0, err
	}
	anchorID, err := t.id(featureColumns["anchor_id"]...)
	if err != nil {
		return f, 0, err
	}
	category, _ := t.text(featureColumns["category"]...)
	f.ID = id
	f.Category = model.Category(strings.ToLower(category))

	values := map[string]*float64{
		"area":        &f.Area,
		"compactness": &f.Compactness,
		"length":      &f.Length,
		"distance":    &f.Distance,
		"azimuth":     &f.Azimuth,
	}
	present := make(map[string]bool, len(values))
	for col, dst := range values {
		v, ok, err := t.number(featureColumns[col]...)
		if err != nil {
			return f, 0, err
		}
		*dst = v
		present[col] = ok
	}

	if !present["distance"] || !present["azimuth"] {
		return f, 0, eris.Wrapf(model.ErrMissingAttribute, "dataset: feature %d needs distance and azimuth", id)
	}

	if shape != nil && (!present["area"] || !present["compactness"] || !present["length"]) {
		if m, ok := measure(shape); ok {
			if !present["area"] {
				f.Area = m.area
			}
			if !present["compactness"] {
				f.Compactness = m.compactness
			}
			if !present["length"] {
				f.Length = m.length
			}
		}
	}
	return f, anchorID, nil
}
