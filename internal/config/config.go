package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverNeo4j    = "neo4j"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Neo4j   Neo4jConfig   `yaml:"neo4j" mapstructure:"neo4j"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Match   MatchConfig   `yaml:"match" mapstructure:"match"`
	Circuit CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and configures the reference store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	FixturePath string `yaml:"fixture_path" mapstructure:"fixture_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`

	// Shapefile pair for the memory driver, used when FixturePath is empty.
	AnchorsShapefile  string `yaml:"anchors_shapefile" mapstructure:"anchors_shapefile"`
	FeaturesShapefile string `yaml:"features_shapefile" mapstructure:"features_shapefile"`
}

// Neo4jConfig holds Neo4j connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	AccessToken string   `yaml:"access_token" mapstructure:"access_token"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst   int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MatchConfig configures ranking.
type MatchConfig struct {
	Limit            int  `yaml:"limit" mapstructure:"limit"`
	QueryTimeoutSecs int  `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
	StrictCategories bool `yaml:"strict_categories" mapstructure:"strict_categories"`
	ParallelScoring  bool `yaml:"parallel_scoring" mapstructure:"parallel_scoring"`
}

// QueryTimeout returns the store query timeout as a duration.
func (m MatchConfig) QueryTimeout() time.Duration {
	return time.Duration(m.QueryTimeoutSecs) * time.Second
}

// CircuitConfig configures the circuit breaker around store calls.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, a YAML file and the environment. An
// empty path looks for an optional config.yaml in the working directory; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	// .env is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SKETCHMAPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.fixture_path", "")
	v.SetDefault("store.anchors_shapefile", "")
	v.SetDefault("store.features_shapefile", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("server.port", 7006)
	v.SetDefault("server.access_token", "")
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("match.limit", 10)
	v.SetDefault("match.query_timeout_secs", 10)
	v.SetDefault("match.strict_categories", false)
	v.SetDefault("match.parallel_scoring", true)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Validate checks the settings required by a command. Mode is one of
// "serve", "match" or "ping".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.AccessToken == "" {
			errs = append(errs, "server.access_token is required")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server.rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
			errs = append(errs, "server.rate_burst must be >= 1 when rate limiting")
		}
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateMatch()...)
	case "match":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateMatch()...)
	case "ping":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for driver "+c.Store.Driver)
		}
	case DriverNeo4j:
		if c.Neo4j.URI == "" {
			errs = append(errs, "neo4j.uri is required")
		}
		if c.Neo4j.Password == "" {
			errs = append(errs, "neo4j.password is required")
		}
	case DriverMemory:
		shapefiles := c.Store.AnchorsShapefile != "" && c.Store.FeaturesShapefile != ""
		if c.Store.FixturePath == "" && !shapefiles {
			errs = append(errs, "store.fixture_path or store.anchors_shapefile and store.features_shapefile are required for driver memory")
		}
	default:
		errs = append(errs, "store.driver must be one of postgres, neo4j, sqlite, memory")
	}
	if c.Store.MinConns < 0 || c.Store.MaxConns < 0 {
		errs = append(errs, "store.max_conns and store.min_conns must be >= 0")
	}
	if c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns {
		errs = append(errs, "store.min_conns must not exceed store.max_conns")
	}
	return errs
}

func (c *Config) validateMatch() []string {
	var errs []string
	if c.Match.Limit < 1 || c.Match.Limit > 10 {
		errs = append(errs, "match.limit must be between 1 and 10")
	}
	if c.Match.QueryTimeoutSecs < 0 {
		errs = append(errs, "match.query_timeout_secs must be >= 0")
	}
	if c.Circuit.FailureThreshold < 0 || c.Circuit.ResetTimeoutSecs < 0 {
		errs = append(errs, "circuit settings must be >= 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
