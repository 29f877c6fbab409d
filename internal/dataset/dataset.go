// Package dataset reads reference data (anchors and their neighboring features) from
// YAML fixtures or shapefile exports.
package dataset

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sketchmapper/sketchmapper/internal/model"
)

// AnchorRecord is an anchor with the features that neighbor it. Distance and azimuth on
// each feature are relative to this anchor.
type AnchorRecord struct {
	model.Anchor `yaml:",inline"`
	Features     []model.ReferenceFeature `yaml:"features"`
}

// Dataset is a complete set of reference data.
type Dataset struct {
	Anchors []AnchorRecord `yaml:"anchors"`
}

// FeatureRow is one stored feature. A feature may neighbor several anchors.
type FeatureRow struct {
	ID          int64
	Category    model.Category
	Area        float64
	Compactness float64
	Length      float64
}

// NeighborRow links a feature to an anchor.
type NeighborRow struct {
	FeatureID int64
	AnchorID  int64
	Distance  float64
	Azimuth   float64
}

// Tables is the normalized form of a dataset.
type Tables struct {
	Anchors   []model.Anchor
	Features  []FeatureRow
	Neighbors []NeighborRow
}

// Validate checks ids, categories and values. Features shared between anchors must agree
// on their own attributes.
func (d *Dataset) Validate() error {
	_, err := d.Tables()
	return err
}

// Tables normalizes the dataset, ordering every table by id.
func (d *Dataset) Tables() (*Tables, error) {
	t := &Tables{}
	anchors := make(map[int64]bool, len(d.Anchors))
	features := make(map[int64]FeatureRow)
	linked := make(map[[2]int64]bool)

	for _, a := range d.Anchors {
		if anchors[a.ID] {
			return nil, eris.Errorf("dataset: duplicate anchor %d", a.ID)
		}
		if !finite(a.X) || !finite(a.Y) {
			return nil, eris.Errorf("dataset: anchor %d has invalid coordinates", a.ID)
		}
		anchors[a.ID] = true
		t.Anchors = append(t.Anchors, a.Anchor)

		for _, f := range a.Features {
			if !f.Category.Valid() {
				return nil, eris.Wrapf(model.ErrInvalidCategory, "dataset: feature %d: %q", f.ID, f.Category)
			}
			for _, attr := range f.Category.Attributes() {
				if v := f.Value(attr); !finite(v) || v < 0 {
					return nil, eris.Wrapf(model.ErrInvalidAttribute, "dataset: feature %d %s = %v", f.ID, attr, v)
				}
			}

			row := FeatureRow{ID: f.ID, Category: f.Category, Area: f.Area, Compactness: f.Compactness, Length: f.Length}
			if prev, ok := features[f.ID]; ok && prev != row {
				return nil, eris.Errorf("dataset: feature %d differs between anchors", f.ID)
			}
			features[f.ID] = row

			key := [2]int64{f.ID, a.ID}
			if linked[key] {
				return nil, eris.Errorf("dataset: feature %d listed twice for anchor %d", f.ID, a.ID)
			}
			linked[key] = true
			t.Neighbors = append(t.Neighbors, NeighborRow{FeatureID: f.ID, AnchorID: a.ID, Distance: f.Distance, Azimuth: f.Azimuth})
		}
	}

	for _, f := range features {
		t.Features = append(t.Features, f)
	}
	sort.Slice(t.Anchors, func(i, j int) bool { return t.Anchors[i].ID < t.Anchors[j].ID })
	sort.Slice(t.Features, func(i, j int) bool { return t.Features[i].ID < t.Features[j].ID })
	sort.Slice(t.Neighbors, func(i, j int) bool {
		if t.Neighbors[i].AnchorID != t.Neighbors[j].AnchorID {
			return t.Neighbors[i].AnchorID < t.Neighbors[j].AnchorID
		}
		return t.Neighbors[i].FeatureID < t.Neighbors[j].FeatureID
	})
	return t, nil
}

// Locations returns one reference location per anchor, ordered by anchor id.
func (d *Dataset) Locations() []model.ReferenceLocation {
	out := make([]model.ReferenceLocation, 0, len(d.Anchors))
	for _, a := range d.Anchors {
		loc := model.ReferenceLocation{
			Anchor:   a.Anchor,
			Features: make(map[model.Category][]model.ReferenceFeature),
		}
		for _, f := range a.Features {
			loc.Features[f.Category] = append(loc.Features[f.Category], f)
		}
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Anchor.ID < out[j].Anchor.ID })
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
