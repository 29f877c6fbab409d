// Package postgres is the PostGIS reference store. It pushes the whole ranking down into
// a single SQL query built from the match plan.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sketchmapper/sketchmapper/internal/db"
	"github.com/sketchmapper/sketchmapper/internal/matcher"
	"github.com/sketchmapper/sketchmapper/internal/model"
)

const (
	schema         = "sketch"
	anchorsTable   = schema + ".anchors"
	featuresTable  = schema + ".features"
	neighborsTable = schema + ".neighbors"
)

// Store implements matcher.Ranker over a pgx pool. It reads the PostGIS tables
//
//	sketch.anchors   (id, x, y, geom geometry(Point, 4326))
//	sketch.features  (id, category, area, compactness, length)
//	sketch.neighbors (feature_id, anchor_id, distance, azimuth)
//
// and never writes to them.
type Store struct {
	pool db.Pool
}

// New wraps an existing pool.
func New(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to PostgreSQL and returns a store that owns the pool.
func Open(ctx context.Context, connString string, cfg db.PoolConfig) (*Store, error) {
	pool, err := db.NewPool(ctx, connString, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return New(pool), nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Rank runs the plan as a single query and returns the ranked anchors.
func (s *Store) Rank(ctx context.Context, plan matcher.Plan) ([]model.Match, error) {
	query, args, err := BuildRankQuery(plan)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: rank")
	}
	defer rows.Close()

	var out []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: rank iterate")
}

func scanMatch(rows pgx.Rows) (model.Match, error) {
	var (
		m   model.Match
		raw []byte
	)
	if err := rows.Scan(&m.AnchorID, &raw, &m.Score); err != nil {
		return m, eris.Wrap(err, "postgres: scan match")
	}
	x, y, err := decodePoint(raw)
	if err != nil {
		return m, eris.Wrapf(err, "postgres: anchor %d", m.AnchorID)
	}
	m.Coordinates = [2]float64{x, y}
	return m, nil
}

// decodePoint reads an EWKB point.
func decodePoint(raw []byte) (float64, float64, error) {
	g, err := ewkb.Unmarshal(raw)
	if err != nil {
		return 0, 0, eris.Wrap(err, "decode geometry")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("expected point geometry, got %T", g)
	}
	return p.X(), p.Y(), nil
}
