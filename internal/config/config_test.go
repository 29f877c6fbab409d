package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.MinConns)
	assert.Equal(t, "neo4j://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "neo4j", cfg.Neo4j.Database)
	assert.Equal(t, 7006, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 20.0, cfg.Server.RateLimit, 0.001)
	assert.Equal(t, 40, cfg.Server.RateBurst)
	assert.Equal(t, 10, cfg.Match.Limit)
	assert.Equal(t, 10*time.Second, cfg.Match.QueryTimeout())
	assert.False(t, cfg.Match.StrictCategories)
	assert.True(t, cfg.Match.ParallelScoring)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 30, cfg.Circuit.ResetTimeoutSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: /var/lib/sketchmapper/ref.db
log:
  level: debug
  format: console
server:
  port: 9090
  access_token: s3cret
match:
  limit: 5
  strict_categories: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/sketchmapper/ref.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.AccessToken)
	assert.Equal(t, 5, cfg.Match.Limit)
	assert.True(t, cfg.Match.StrictCategories)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Match.QueryTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SKETCHMAPPER_STORE_DRIVER", "neo4j")
	t.Setenv("SKETCHMAPPER_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverNeo4j, cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 1111\n"), 0644))
	path := filepath.Join(dir, "prod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 2222\nstore:\n  driver: memory\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2222, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
}

func TestLoadExplicitPathMissing(t *testing.T) {
	dir := chdirTemp(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SKETCHMAPPER_SERVER_PORT", "3000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("SKETCHMAPPER_NEO4J_PASSWORD=from-dotenv\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("SKETCHMAPPER_NEO4J_PASSWORD") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Neo4j.Password)
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("SKETCHMAPPER_SERVER_ACCESS_TOKEN=from-dotenv\n"), 0600))
	t.Setenv("SKETCHMAPPER_SERVER_ACCESS_TOKEN", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.AccessToken)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = DriverPostgres
	cfg.Store.DatabaseURL = "postgres://localhost/sketchmapper"
	cfg.Store.MaxConns = 10
	cfg.Store.MinConns = 2
	cfg.Server.Port = 7006
	cfg.Server.AccessToken = "s3cret"
	cfg.Server.RateLimit = 20
	cfg.Server.RateBurst = 40
	cfg.Match.Limit = 10
	cfg.Match.QueryTimeoutSecs = 10
	cfg.Circuit.FailureThreshold = 5
	cfg.Circuit.ResetTimeoutSecs = 30
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_AccessTokenRequired(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.AccessToken = ""

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.access_token is required")

	assert.NoError(t, cfg.Validate("match"))
}

func TestValidateServe_RateBurst(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.RateBurst = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate_burst")

	cfg.Server.RateLimit = 0
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateStore_Drivers(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"postgres without url", func(c *Config) { c.Store.DatabaseURL = "" }, "store.database_url is required"},
		{"sqlite without path", func(c *Config) { c.Store.Driver = DriverSQLite; c.Store.DatabaseURL = "" }, "store.database_url is required"},
		{"neo4j without password", func(c *Config) { c.Store.Driver = DriverNeo4j; c.Neo4j.URI = "neo4j://db:7687" }, "neo4j.password is required"},
		{"memory without fixture", func(c *Config) { c.Store.Driver = DriverMemory }, "store.fixture_path or store.anchors_shapefile"},
		{"memory with one shapefile", func(c *Config) {
			c.Store.Driver = DriverMemory
			c.Store.AnchorsShapefile = "anchors.shp"
		}, "required for driver memory"},
		{"memory with shapefiles", func(c *Config) {
			c.Store.Driver = DriverMemory
			c.Store.AnchorsShapefile = "anchors.shp"
			c.Store.FeaturesShapefile = "features.shp"
		}, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver must be one of"},
		{"min above max", func(c *Config) { c.Store.MinConns = 20 }, "min_conns must not exceed"},
		{"neo4j valid", func(c *Config) {
			c.Store.Driver = DriverNeo4j
			c.Neo4j.URI = "neo4j://db:7687"
			c.Neo4j.Password = "pw"
		}, ""},
		{"memory valid", func(c *Config) { c.Store.Driver = DriverMemory; c.Store.FixturePath = "ref.yaml" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("ping")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateMatch_LimitBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Match.Limit = 0
	err := cfg.Validate("match")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "match.limit must be between 1 and 10")

	cfg.Match.Limit = 11
	assert.Error(t, cfg.Validate("match"))

	cfg.Match.Limit = 10
	assert.NoError(t, cfg.Validate("match"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
