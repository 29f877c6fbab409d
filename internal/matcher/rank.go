package matcher

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sketchmapper/sketchmapper/internal/model"
)

// Eligible returns the locations that have at least one feature for every term in the plan.
func Eligible(locs []model.ReferenceLocation, p Plan) []model.ReferenceLocation {
	var out []model.ReferenceLocation
	for i := range locs {
		ok := true
		for _, t := range p.Terms {
			if _, found := t.Handler.Match(&locs[i]); !found {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, locs[i])
		}
	}
	return out
}

// Aggregate scores every eligible location against the plan and returns the top
// p.Limit matches. When parallel is set each category is scored in its own goroutine.
func Aggregate(ctx context.Context, locs []model.ReferenceLocation, p Plan, parallel bool) ([]model.Match, error) {
	scored := p.ScoredTerms()
	if len(scored) == 0 {
		return []model.Match{}, nil
	}
	eligible := Eligible(locs, p)

	// diffs[i][j] is the distance of term i at eligible location j.
	diffs := make([][]float64, len(scored))

	scoreTerm := func(i int) error {
		t := scored[i]
		row := make([]float64, len(eligible))
		for j := range eligible {
			features, _ := t.Handler.Match(&eligible[j])
			d, err := t.Handler.Score(features, t.Descriptors)
			if err != nil {
				return err
			}
			row[j] = d
		}
		diffs[i] = row
		return nil
	}

	if parallel && len(scored) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i := range scored {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return scoreTerm(i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range scored {
			if err := scoreTerm(i); err != nil {
				return nil, err
			}
		}
	}

	matches := make([]model.Match, len(eligible))
	for j, loc := range eligible {
		var sum float64
		for i := range scored {
			sum += diffs[i][j]
		}
		matches[j] = model.Match{
			AnchorID:    loc.Anchor.ID,
			Coordinates: loc.Anchor.Coordinates(),
			Score:       sum / float64(len(scored)),
		}
	}
	return Rank(matches, p.Limit)
}

// Rank orders matches by ascending score, breaking ties by ascending anchor id, and keeps
// the first limit entries. Non-finite scores are rejected.
func Rank(matches []model.Match, limit int) ([]model.Match, error) {
	for _, m := range matches {
		if math.IsNaN(m.Score) || math.IsInf(m.Score, 0) {
			return nil, eris.Wrapf(model.ErrInvalidScore, "matcher: anchor %d scored %v", m.AnchorID, m.Score)
		}
	}

	out := make([]model.Match, len(matches))
	copy(out, matches)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].AnchorID < out[j].AnchorID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
