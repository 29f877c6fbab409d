// Package sketch turns a raw list of sketched shapes into per-category descriptor vectors.
package sketch

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sketchmapper/sketchmapper/internal/model"
)

// Options controls how Extract treats shapes it cannot use.
type Options struct {
	// Strict rejects the whole sketch when a shape has an unknown category.
	// When false such shapes are dropped.
	Strict bool
}

// Descriptors holds the sketched descriptor vectors grouped by category, each group in
// input order.
type Descriptors map[model.Category][]model.Descriptor

// Empty reports whether no category has any descriptor.
func (d Descriptors) Empty() bool {
	for _, v := range d {
		if len(v) > 0 {
			return false
		}
	}
	return true
}

// Count returns the total number of descriptors across categories.
func (d Descriptors) Count() int {
	n := 0
	for _, v := range d {
		n += len(v)
	}
	return n
}

// Extract partitions shapes by category and projects each one onto its category's
// attribute schema. Attributes that do not belong to the category are dropped.
func Extract(shapes []model.Shape, opts Options) (Descriptors, error) {
	out := make(Descriptors)
	for i, s := range shapes {
		if !s.Type.Valid() {
			if opts.Strict {
				return nil, eris.Wrapf(model.ErrInvalidCategory, "sketch: shape %d has category %q", i, s.Type)
			}
			zap.L().Debug("sketch: dropping shape with unknown category",
				zap.Int("index", i),
				zap.String("category", string(s.Type)),
			)
			continue
		}

		d, err := describe(i, s)
		if err != nil {
			return nil, err
		}
		out[s.Type] = append(out[s.Type], d)
	}
	return out, nil
}

func describe(i int, s model.Shape) (model.Descriptor, error) {
	attrs := s.Type.Attributes()
	d := model.Descriptor{
		Category: s.Type,
		Values:   make(map[model.Attribute]float64, len(attrs)),
	}
	for _, attr := range attrs {
		v, ok := s.Value(attr)
		if !ok {
			return model.Descriptor{}, eris.Wrapf(model.ErrMissingAttribute, "sketch: shape %d (%s) has no %s", i, s.Type, attr)
		}
		if err := CheckDivisor(v); err != nil {
			return model.Descriptor{}, eris.Wrapf(err, "sketch: shape %d (%s) %s", i, s.Type, attr)
		}
		d.Values[attr] = v
	}
	return d, nil
}

// CheckDivisor validates a sketched value that will divide a relative error.
func CheckDivisor(v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return eris.Wrapf(model.ErrInvalidAttribute, "value %v is not finite", v)
	case v == 0:
		return model.ErrDivisionByZero
	case v < 0:
		return eris.Wrapf(model.ErrInvalidAttribute, "value %v is negative", v)
	}
	return nil
}
