// Package memory is an in-process reference catalog backed by a YAML fixture or a pair of
// shapefile exports.
package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sketchmapper/sketchmapper/internal/dataset"
	"github.com/sketchmapper/sketchmapper/internal/model"
)

// Source reads a complete dataset.
type Source func() (*dataset.Dataset, error)

// YAMLSource reads a YAML fixture.
func YAMLSource(path string) Source {
	return func() (*dataset.Dataset, error) { return dataset.LoadYAML(path) }
}

// ShapefileSource reads an anchor point shapefile and a feature shapefile.
func ShapefileSource(anchorsPath, featuresPath string) Source {
	return func() (*dataset.Dataset, error) { return dataset.LoadShapefiles(anchorsPath, featuresPath) }
}

// Store serves reference locations from memory. It is safe for concurrent use.
type Store struct {
	src Source

	mu   sync.RWMutex
	locs []model.ReferenceLocation
}

// New returns a store over fixed locations.
func New(locs []model.ReferenceLocation) *Store {
	return &Store{locs: locs}
}

// Open reads src into a new store.
func Open(src Source) (*Store, error) {
	s := &Store{src: src}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rereads the source. The served locations are left untouched when the source
// cannot be read or fails validation.
func (s *Store) Reload() error {
	if s.src == nil {
		return nil
	}
	d, err := s.src()
	if err != nil {
		return err
	}
	locs := d.Locations()

	s.mu.Lock()
	s.locs = locs
	s.mu.Unlock()

	zap.L().Info("memory: reference data loaded", zap.Int("anchors", len(locs)))
	return nil
}

// Locations returns every location with at least one feature in one of the categories,
// restricted to the features of those categories.
func (s *Store) Locations(ctx context.Context, categories []model.Category) ([]model.ReferenceLocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ReferenceLocation
	for _, loc := range s.locs {
		sub := model.ReferenceLocation{
			Anchor:   loc.Anchor,
			Features: make(map[model.Category][]model.ReferenceFeature, len(categories)),
		}
		for _, c := range categories {
			if fs := loc.Features[c]; len(fs) > 0 {
				sub.Features[c] = append([]model.ReferenceFeature(nil), fs...)
			}
		}
		if len(sub.Features) > 0 {
			out = append(out, sub)
		}
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
