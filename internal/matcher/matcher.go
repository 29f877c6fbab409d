// Package matcher ranks reference locations by how closely their surrounding features
// resemble a sketch.
//
// A request is turned into a Plan of category terms. The plan is either pushed down to the
// reference store as a single ranking query (Ranker) or evaluated in process over the
// candidate locations the store returns (Catalog). Both paths share the same scoring rules:
// per-attribute minimum relative error, averaged per category, then averaged across the
// categories present in the sketch.
package matcher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sketchmapper/sketchmapper/internal/model"
	"github.com/sketchmapper/sketchmapper/internal/resilience"
	"github.com/sketchmapper/sketchmapper/internal/sketch"
)

// Ranker evaluates a whole plan inside the reference store and returns at most
// plan.Limit matches ordered by ascending score.
type Ranker interface {
	Rank(ctx context.Context, plan Plan) ([]model.Match, error)
}

// Catalog returns the reference locations that have at least one feature in any of the
// given categories, with their features of those categories.
type Catalog interface {
	Locations(ctx context.Context, categories []model.Category) ([]model.ReferenceLocation, error)
}

// Config controls matching behavior.
type Config struct {
	Limit            int
	QueryTimeout     time.Duration
	StrictCategories bool
	ParallelScoring  bool
}

// DefaultConfig returns the standard matching configuration.
func DefaultConfig() Config {
	return Config{
		Limit:           MaxResults,
		QueryTimeout:    10 * time.Second,
		ParallelScoring: true,
	}
}

// Matcher is safe for concurrent use; it holds no per-request state.
type Matcher struct {
	cfg      Config
	ranker   Ranker
	catalog  Catalog
	handlers []CategoryHandler
	breaker  *resilience.Breaker
}

// Option customizes a Matcher.
type Option func(*Matcher)

// WithHandlers replaces the default category handlers.
func WithHandlers(h ...CategoryHandler) Option {
	return func(m *Matcher) { m.handlers = h }
}

// WithBreaker guards store calls with the given circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(m *Matcher) { m.breaker = b }
}

// New creates a Matcher over a reference store. The store must implement Ranker or
// Catalog; Ranker is preferred when both are available.
func New(store any, cfg Config, opts ...Option) (*Matcher, error) {
	m := &Matcher{cfg: cfg, handlers: DefaultHandlers()}
	switch s := store.(type) {
	case Ranker:
		m.ranker = s
	case Catalog:
		m.catalog = s
	default:
		return nil, eris.Errorf("matcher: store %T implements neither Ranker nor Catalog", store)
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.breaker == nil {
		m.breaker = resilience.NewBreaker("store", resilience.DefaultConfig())
	}
	return m, nil
}

// Match ranks reference locations against the sketched shapes. A sketch with no usable
// shapes yields an empty result without touching the store.
func (m *Matcher) Match(ctx context.Context, shapes []model.Shape) ([]model.Match, error) {
	log := zap.L().With(zap.String("request_id", uuid.NewString()))
	start := time.Now()

	desc, err := sketch.Extract(shapes, sketch.Options{Strict: m.cfg.StrictCategories})
	if err != nil {
		return nil, err
	}

	plan := BuildPlan(desc, m.handlers, m.cfg.Limit)
	if plan.Empty() {
		log.Debug("matcher: sketch has no scorable shapes", zap.Int("shapes", len(shapes)))
		return []model.Match{}, nil
	}

	if m.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.QueryTimeout)
		defer cancel()
	}

	var matches []model.Match
	if m.ranker != nil {
		matches, err = m.rank(ctx, plan)
	} else {
		matches, err = m.aggregate(ctx, plan)
	}
	if err != nil {
		return nil, err
	}

	log.Info("matcher: match complete",
		zap.Int("shapes", desc.Count()),
		zap.Strings("categories", categoryNames(plan.ScoredTerms())),
		zap.Int("results", len(matches)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return matches, nil
}

// Circuit reports the state of the store circuit breaker.
func (m *Matcher) Circuit() resilience.Snapshot {
	return m.breaker.Snapshot()
}

func (m *Matcher) rank(ctx context.Context, plan Plan) ([]model.Match, error) {
	matches, err := resilience.Do(ctx, m.breaker, func(ctx context.Context) ([]model.Match, error) {
		return m.ranker.Rank(ctx, plan)
	})
	if err != nil {
		return nil, storeError(err, "rank")
	}
	// The store already sorted; re-ranking enforces the tie-break and rejects bad scores.
	return Rank(matches, plan.Limit)
}

func (m *Matcher) aggregate(ctx context.Context, plan Plan) ([]model.Match, error) {
	locs, err := resilience.Do(ctx, m.breaker, func(ctx context.Context) ([]model.ReferenceLocation, error) {
		return m.catalog.Locations(ctx, plan.Categories())
	})
	if err != nil {
		return nil, storeError(err, "locations")
	}
	return Aggregate(ctx, locs, plan, m.cfg.ParallelScoring)
}

func storeError(err error, op string) error {
	zap.L().Error("matcher: store query failed", zap.String("op", op), zap.Error(err))
	return eris.Wrapf(model.ErrStoreUnavailable, "matcher: %s: %v", op, err)
}

func categoryNames(terms []Term) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = string(t.Category())
	}
	return out
}
