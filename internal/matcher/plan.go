package matcher

import (
	"github.com/sketchmapper/sketchmapper/internal/model"
	"github.com/sketchmapper/sketchmapper/internal/sketch"
)

// MaxResults is the largest number of matches a single request returns.
const MaxResults = 10

// Term is one category's contribution to a Plan. A term without descriptors only
// constrains which locations are eligible; it adds nothing to the score.
type Term struct {
	Handler     CategoryHandler
	Descriptors []model.Descriptor
}

// Scored reports whether the term contributes a distance to the total.
func (t Term) Scored() bool { return len(t.Descriptors) > 0 }

// Category is shorthand for t.Handler.Category().
func (t Term) Category() model.Category { return t.Handler.Category() }

// Values returns, for attr, the sketched value of every descriptor in order.
func (t Term) Values(attr model.Attribute) []float64 {
	out := make([]float64, len(t.Descriptors))
	for i, d := range t.Descriptors {
		out[i] = d.Values[attr]
	}
	return out
}

// Plan is the per-request composition of category terms. Categories absent from the
// sketch contribute neither a predicate nor a score, unless their handler is required.
type Plan struct {
	Terms []Term
	Limit int
}

// BuildPlan assembles the plan for a set of descriptors, in handler order.
func BuildPlan(d sketch.Descriptors, handlers []CategoryHandler, limit int) Plan {
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}
	p := Plan{Limit: limit}
	for _, h := range handlers {
		descs := d[h.Category()]
		if len(descs) == 0 && !h.Required() {
			continue
		}
		p.Terms = append(p.Terms, Term{Handler: h, Descriptors: descs})
	}
	return p
}

// Empty reports whether no term would contribute to the score.
func (p Plan) Empty() bool {
	return len(p.ScoredTerms()) == 0
}

// ScoredTerms returns the terms that contribute a distance.
func (p Plan) ScoredTerms() []Term {
	var out []Term
	for _, t := range p.Terms {
		if t.Scored() {
			out = append(out, t)
		}
	}
	return out
}

// Categories returns every category the plan constrains on.
func (p Plan) Categories() []model.Category {
	out := make([]model.Category, len(p.Terms))
	for i, t := range p.Terms {
		out[i] = t.Category()
	}
	return out
}
