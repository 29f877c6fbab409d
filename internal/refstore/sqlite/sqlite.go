// Package sqlite is a file-backed reference catalog on modernc.org/sqlite. It returns
// candidate locations and leaves scoring to the matcher.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sketchmapper/sketchmapper/internal/model"
)

// Store implements matcher.Catalog over the tables
//
//	anchors   (id, x, y)
//	features  (id, category, area, compactness, length)
//	neighbors (feature_id, anchor_id, distance, azimuth)
//
// Descriptor columns a category does not use may be NULL and read as 0.
type Store struct {
	db *sql.DB
}

// Open opens an existing reference database read-only. The anchors, features and
// neighbors tables must already be populated.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	return &Store{db: db}, nil
}

// dsn applies the connection pragmas to every pooled connection.
func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=query_only(1)&_pragma=foreign_keys(1)"
}

// Ping checks the database handle and that the reference tables exist.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return eris.Wrap(err, "sqlite: ping")
	}
	for _, table := range []string{"anchors", "features", "neighbors"} {
		if _, err := s.db.ExecContext(ctx, `SELECT 1 FROM `+table+` LIMIT 1`); err != nil {
			return eris.Wrapf(err, "sqlite: check table %s", table)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Locations returns every anchor with at least one neighboring feature in the given
// categories, ordered by anchor id.
func (s *Store) Locations(ctx context.Context, categories []model.Category) ([]model.ReferenceLocation, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(categories))
	args := make([]any, len(categories))
	for i, c := range categories {
		placeholders[i] = "?"
		args[i] = string(c)
	}

	query := `SELECT a.id, a.x, a.y, f.id, f.category, COALESCE(f.area, 0), COALESCE(f.compactness, 0), COALESCE(f.length, 0), n.distance, n.azimuth
		FROM neighbors n
		JOIN anchors a ON a.id = n.anchor_id
		JOIN features f ON f.id = n.feature_id
		WHERE f.category IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY a.id, f.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query locations")
	}
	defer rows.Close()

	var out []model.ReferenceLocation
	for rows.Next() {
		var a model.Anchor
		var f model.ReferenceFeature
		var category string
		if err := rows.Scan(&a.ID, &a.X, &a.Y, &f.ID, &category, &f.Area, &f.Compactness, &f.Length, &f.Distance, &f.Azimuth); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		f.Category = model.Category(category)

		if n := len(out); n == 0 || out[n-1].Anchor.ID != a.ID {
			out = append(out, model.ReferenceLocation{
				Anchor:   a,
				Features: make(map[model.Category][]model.ReferenceFeature),
			})
		}
		last := &out[len(out)-1]
		last.Features[f.Category] = append(last.Features[f.Category], f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate locations")
}
