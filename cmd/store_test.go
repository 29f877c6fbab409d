//go:build !integration

package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchmapper/sketchmapper/internal/config"
	"github.com/sketchmapper/sketchmapper/internal/model"
)

const referenceFixture = `
anchors:
  - id: 1
    x: 7.01
    y: 51.02
    features:
      - {id: 10, category: building, area: 120, compactness: 0.8, distance: 12, azimuth: 0.8}
  - id: 2
    x: 7.05
    y: 51.04
    features:
      - {id: 20, category: building, area: 100, compactness: 0.8, distance: 5, azimuth: 1.5}
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reference.yaml")
	require.NoError(t, os.WriteFile(path, []byte(referenceFixture), 0644))
	return path
}

func testConfig(driver string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: driver},
		Match: config.MatchConfig{
			Limit:            10,
			QueryTimeoutSecs: 5,
			ParallelScoring:  true,
		},
		Circuit: config.CircuitConfig{FailureThreshold: 5, ResetTimeoutSecs: 30},
	}
}

func buildingSketch() []model.Shape {
	area, compactness, distance, azimuth := 100.0, 0.8, 5.0, 1.5
	return []model.Shape{{
		Type: model.CategoryBuilding, Area: &area, Compactness: &compactness,
		Distance: &distance, Azimuth: &azimuth,
	}}
}

func TestInitStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE anchors (id INTEGER PRIMARY KEY, x REAL, y REAL);
CREATE TABLE features (id INTEGER PRIMARY KEY, category TEXT, area REAL, compactness REAL, length REAL);
CREATE TABLE neighbors (feature_id INTEGER, anchor_id INTEGER, distance REAL, azimuth REAL);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg = testConfig(config.DriverSQLite)
	cfg.Store.DatabaseURL = path

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	assert.NoError(t, st.Ping(context.Background()))
	_, ok := st.(reloader)
	assert.False(t, ok)
}

func TestInitStore_SQLiteMissingFile(t *testing.T) {
	cfg = testConfig(config.DriverSQLite)
	cfg.Store.DatabaseURL = filepath.Join(t.TempDir(), "missing.db")

	_, err := initStore(context.Background())
	assert.Error(t, err)
}

func TestInitStore_Memory(t *testing.T) {
	cfg = testConfig(config.DriverMemory)
	cfg.Store.FixturePath = writeFixture(t)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, ok := st.(reloader)
	assert.True(t, ok, "memory store should reload on SIGHUP")

	m, err := initMatcher(st)
	require.NoError(t, err)

	matches, err := m.Match(context.Background(), buildingSketch())
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, [2]float64{7.05, 51.04}, matches[0].Coordinates)
	assert.Equal(t, 0.0, matches[0].Score)
}

func TestInitStore_MemoryMissingFixture(t *testing.T) {
	cfg = testConfig(config.DriverMemory)
	cfg.Store.FixturePath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := initStore(context.Background())
	assert.Error(t, err)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = testConfig("mongo")

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitStore_MemoryShapefilesMissing(t *testing.T) {
	dir := t.TempDir()
	cfg = testConfig(config.DriverMemory)
	cfg.Store.AnchorsShapefile = filepath.Join(dir, "anchors.shp")
	cfg.Store.FeaturesShapefile = filepath.Join(dir, "features.shp")

	_, err := initStore(context.Background())
	assert.Error(t, err)
}

func TestReloadOnHangup_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reloadOnHangup(ctx, reloadFunc(func() error { return nil }))
		close(done)
	}()
	cancel()
	<-done
}

type reloadFunc func() error

func (f reloadFunc) Reload() error { return f() }
