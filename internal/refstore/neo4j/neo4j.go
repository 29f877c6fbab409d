// Package neo4j is the graph reference store. Anchors are (:Point) nodes, features are
// (:Building), (:Street) and (:Vegetation) nodes linked to them by [:IS_NEIGHBOR_OF]
// relationships that carry distance and azimuth.
package neo4j

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rotisserie/eris"

	"github.com/sketchmapper/sketchmapper/internal/matcher"
	"github.com/sketchmapper/sketchmapper/internal/model"
)

// Store implements matcher.Ranker over a Neo4j driver. All sessions are opened in read mode.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// Open creates a driver and verifies connectivity.
func Open(ctx context.Context, uri, username, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, eris.Wrap(err, "neo4j: create driver")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, eris.Wrap(err, "neo4j: verify connectivity")
	}
	return &Store{driver: driver, database: database}, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return eris.Wrap(s.driver.VerifyConnectivity(ctx), "neo4j: ping")
}

func (s *Store) Close() error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(context.Background())
}

func (s *Store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: neo4j.AccessModeRead})
}

// Rank runs the plan as a single read transaction.
func (s *Store) Rank(ctx context.Context, plan matcher.Plan) ([]model.Match, error) {
	query, params, err := BuildRankQuery(plan)
	if err != nil {
		return nil, err
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var out []model.Match
		for res.Next(ctx) {
			m, err := recordMatch(res.Record())
			if err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "neo4j: rank")
	}
	return result.([]model.Match), nil
}

func recordMatch(rec *neo4j.Record) (model.Match, error) {
	var m model.Match

	idx, _ := rec.Get("idx")
	id, ok := idx.(int64)
	if !ok {
		return m, eris.Errorf("neo4j: point idx has type %T", idx)
	}
	m.AnchorID = id

	for i, key := range []string{"x", "y"} {
		v, _ := rec.Get(key)
		f, ok := toFloat(v)
		if !ok {
			return m, eris.Errorf("neo4j: point %d centroid %s has type %T", id, key, v)
		}
		m.Coordinates[i] = f
	}

	v, _ := rec.Get("total")
	total, ok := toFloat(v)
	if !ok {
		return m, eris.Errorf("neo4j: point %d total has type %T", id, v)
	}
	m.Score = total
	return m, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
