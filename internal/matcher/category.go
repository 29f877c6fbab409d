package matcher

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sketchmapper/sketchmapper/internal/model"
	"github.com/sketchmapper/sketchmapper/internal/sketch"
)

// CategoryHandler contributes one category to a match: a predicate that a location must
// satisfy and a scoring term computed from the location's features of that category.
type CategoryHandler interface {
	Category() model.Category
	Attributes() []model.Attribute

	// Required marks the anchor category: every candidate location must have a
	// feature of it even when the sketch contains none.
	Required() bool

	// Match returns the location's features of this category, or false if it has none.
	Match(loc *model.ReferenceLocation) ([]model.ReferenceFeature, bool)

	// Score returns the per-category distance between the location's features and the
	// sketched descriptors.
	Score(features []model.ReferenceFeature, sketched []model.Descriptor) (float64, error)
}

type categoryHandler struct {
	category model.Category
	attrs    []model.Attribute
	required bool
}

// NewCategoryHandler returns the schema-driven handler for a known category.
func NewCategoryHandler(c model.Category, required bool) (CategoryHandler, error) {
	if !c.Valid() {
		return nil, eris.Wrapf(model.ErrInvalidCategory, "matcher: no handler for %q", c)
	}
	return &categoryHandler{category: c, attrs: c.Attributes(), required: required}, nil
}

// DefaultHandlers returns the handlers for building, street and vegetation, with building
// as the required anchor category.
func DefaultHandlers() []CategoryHandler {
	handlers := make([]CategoryHandler, 0, len(model.Categories()))
	for _, c := range model.Categories() {
		h, _ := NewCategoryHandler(c, c == model.CategoryBuilding)
		handlers = append(handlers, h)
	}
	return handlers
}

func (h *categoryHandler) Category() model.Category { return h.category }

func (h *categoryHandler) Attributes() []model.Attribute { return h.attrs }

func (h *categoryHandler) Required() bool { return h.required }

func (h *categoryHandler) Match(loc *model.ReferenceLocation) ([]model.ReferenceFeature, bool) {
	if loc == nil {
		return nil, false
	}
	features := loc.Features[h.category]
	return features, len(features) > 0
}

// Score takes, for every attribute independently, the smallest relative error over all
// (sketched, reference) pairs and averages those minima. Different reference features may
// supply the best value for different attributes.
func (h *categoryHandler) Score(features []model.ReferenceFeature, sketched []model.Descriptor) (float64, error) {
	if len(features) == 0 || len(sketched) == 0 {
		return 0, eris.Errorf("matcher: %s: nothing to score", h.category)
	}

	var sum float64
	for _, attr := range h.attrs {
		best := math.Inf(1)
		for _, s := range sketched {
			want, ok := s.Values[attr]
			if !ok {
				return 0, eris.Wrapf(model.ErrMissingAttribute, "matcher: %s descriptor has no %s", h.category, attr)
			}
			for _, f := range features {
				e, err := RelativeError(f.Value(attr), want)
				if err != nil {
					return 0, eris.Wrapf(err, "matcher: %s %s", h.category, attr)
				}
				if e < best {
					best = e
				}
			}
		}
		sum += best
	}
	return sum / float64(len(h.attrs)), nil
}

// RelativeError returns |reference - sketched| / sketched.
func RelativeError(reference, sketched float64) (float64, error) {
	if err := sketch.CheckDivisor(sketched); err != nil {
		return 0, err
	}
	return math.Abs(reference-sketched) / sketched, nil
}
