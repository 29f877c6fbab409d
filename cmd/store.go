package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sketchmapper/sketchmapper/internal/config"
	"github.com/sketchmapper/sketchmapper/internal/db"
	"github.com/sketchmapper/sketchmapper/internal/matcher"
	"github.com/sketchmapper/sketchmapper/internal/refstore/memory"
	"github.com/sketchmapper/sketchmapper/internal/refstore/neo4j"
	"github.com/sketchmapper/sketchmapper/internal/refstore/postgres"
	"github.com/sketchmapper/sketchmapper/internal/refstore/sqlite"
	"github.com/sketchmapper/sketchmapper/internal/resilience"
)

// refStore is what every reference store backend offers besides Ranker or Catalog.
type refStore interface {
	Ping(ctx context.Context) error
	Close() error
}

func initStore(ctx context.Context) (refStore, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverNeo4j:
		st, err := neo4j.Open(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverMemory:
		src := memory.YAMLSource(cfg.Store.FixturePath)
		if cfg.Store.FixturePath == "" {
			src = memory.ShapefileSource(cfg.Store.AnchorsShapefile, cfg.Store.FeaturesShapefile)
		}
		st, err := memory.Open(src)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initMatcher(st refStore) (*matcher.Matcher, error) {
	breaker := resilience.NewBreaker(cfg.Store.Driver,
		resilience.ConfigFrom(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs))
	m, err := matcher.New(st, matcher.Config{
		Limit:            cfg.Match.Limit,
		QueryTimeout:     cfg.Match.QueryTimeout(),
		StrictCategories: cfg.Match.StrictCategories,
		ParallelScoring:  cfg.Match.ParallelScoring,
	}, matcher.WithBreaker(breaker))
	if err != nil {
		return nil, err
	}
	zap.L().Debug("matcher ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("limit", cfg.Match.Limit),
	)
	return m, nil
}
