package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/roadmap-backend/internal/data/aggregates"
	"github.com/yungbote/roadmap-backend/internal/data/db"
	"github.com/yungbote/roadmap-backend/internal/platform/envutil"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

const defaultJWTSecret = "defaultsecret"

// Node store backends.
const (
	NodeStoreSQL    = "sql"
	NodeStoreMongo  = "mongo"
	NodeStoreMemory = "memory"
)

type DBConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlite_path"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	RootLockTTL time.Duration `yaml:"root_lock_ttl"`
}

type MutationConfig struct {
	// MaxRetries of 0 disables retries after a version conflict.
	MaxRetries     int    `yaml:"max_retries"`
	EagerRecompute bool   `yaml:"eager_recompute"`
	DeleteMode     string `yaml:"delete_mode"`
}

type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	CollectInterval time.Duration `yaml:"collect_interval"`
}

type OTelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Environment string  `yaml:"environment"`
	Endpoint    string  `yaml:"endpoint"`
	Headers     string  `yaml:"headers"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type Config struct {
	Port           string        `yaml:"port"`
	LogMode        string        `yaml:"log_mode"`
	JWTSecretKey   string        `yaml:"jwt_secret_key"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	NodeStore      string        `yaml:"node_store"`

	DB       DBConfig       `yaml:"db"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Redis    RedisConfig    `yaml:"redis"`
	Mutation MutationConfig `yaml:"mutation"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	OTel     OTelConfig     `yaml:"otel"`
}

func defaultConfig() Config {
	return Config{
		Port:           "8080",
		LogMode:        "development",
		JWTSecretKey:   defaultJWTSecret,
		AccessTokenTTL: 24 * time.Hour,
		RequestTimeout: 30 * time.Second,
		NodeStore:      NodeStoreSQL,
		DB: DBConfig{
			Driver:     "postgres",
			Host:       "localhost",
			Port:       "5432",
			User:       "postgres",
			Name:       "roadmap",
			SSLMode:    "disable",
			SQLitePath: "roadmap.db",
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "roadmap",
		},
		Redis: RedisConfig{RootLockTTL: 10 * time.Second},
		Mutation: MutationConfig{
			MaxRetries: 3,
			DeleteMode: string(aggregates.DeleteSubtree),
		},
		Metrics: MetricsConfig{CollectInterval: 15 * time.Second},
		OTel: OTelConfig{
			ServiceName: "roadmap-backend",
			Environment: "development",
			SampleRatio: 1,
		},
	}
}

// LoadConfig starts from defaults, overlays the YAML file named by
// CONFIG_FILE, then applies environment variables, which always win.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
		log.Info("loaded config file", "path", path)
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecretKey == defaultJWTSecret {
		log.Warn("JWT_SECRET_KEY not set; using the insecure default")
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = envutil.String("PORT", cfg.Port)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.JWTSecretKey = envutil.String("JWT_SECRET_KEY", cfg.JWTSecretKey)
	cfg.AccessTokenTTL = envutil.Duration("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.RequestTimeout = envutil.Duration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.CORSOrigins = envutil.List("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.NodeStore = strings.ToLower(envutil.String("NODE_STORE", cfg.NodeStore))

	cfg.DB.Driver = strings.ToLower(envutil.String("DB_DRIVER", cfg.DB.Driver))
	cfg.DB.Host = envutil.String("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = envutil.String("POSTGRES_PORT", cfg.DB.Port)
	cfg.DB.User = envutil.String("POSTGRES_USER", cfg.DB.User)
	cfg.DB.Password = envutil.String("POSTGRES_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = envutil.String("POSTGRES_NAME", cfg.DB.Name)
	cfg.DB.SSLMode = envutil.String("POSTGRES_SSLMODE", cfg.DB.SSLMode)
	cfg.DB.SQLitePath = envutil.String("SQLITE_PATH", cfg.DB.SQLitePath)

	cfg.Mongo.URI = envutil.String("MONGO_URI", cfg.Mongo.URI)
	cfg.Mongo.Database = envutil.String("MONGO_DATABASE", cfg.Mongo.Database)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.RootLockTTL = envutil.Duration("ROOT_LOCK_TTL", cfg.Redis.RootLockTTL)

	cfg.Mutation.MaxRetries = envutil.Int("MUTATION_MAX_RETRIES", cfg.Mutation.MaxRetries)
	cfg.Mutation.EagerRecompute = envutil.Bool("EAGER_RECOMPUTE", cfg.Mutation.EagerRecompute)
	cfg.Mutation.DeleteMode = strings.ToLower(envutil.String("DELETE_MODE", cfg.Mutation.DeleteMode))

	cfg.Metrics.Enabled = envutil.Bool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.CollectInterval = envutil.Duration("METRICS_COLLECT_INTERVAL", cfg.Metrics.CollectInterval)

	cfg.OTel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.OTel.Enabled)
	cfg.OTel.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.OTel.ServiceName)
	cfg.OTel.Environment = envutil.String("APP_ENV", cfg.OTel.Environment)
	cfg.OTel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTel.Endpoint)
	cfg.OTel.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", cfg.OTel.Headers)
	cfg.OTel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.OTel.Insecure)
	cfg.OTel.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", cfg.OTel.SampleRatio)
}

func (c Config) Validate() error {
	switch c.NodeStore {
	case NodeStoreSQL, NodeStoreMongo, NodeStoreMemory:
	default:
		return fmt.Errorf("NODE_STORE must be one of sql, mongo, memory; got %q", c.NodeStore)
	}
	switch aggregates.DeleteMode(c.Mutation.DeleteMode) {
	case aggregates.DeleteSubtree, aggregates.DeleteLegacy:
	default:
		return fmt.Errorf("DELETE_MODE must be subtree or legacy; got %q", c.Mutation.DeleteMode)
	}
	if c.Mutation.MaxRetries < 0 {
		return fmt.Errorf("MUTATION_MAX_RETRIES must be >= 0; got %d", c.Mutation.MaxRetries)
	}
	if strings.TrimSpace(c.JWTSecretKey) == "" {
		return fmt.Errorf("JWT_SECRET_KEY must not be empty")
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	return nil
}

func (c Config) sqlConfig() db.Config {
	return db.Config{
		Driver:     c.DB.Driver,
		Host:       c.DB.Host,
		Port:       c.DB.Port,
		User:       c.DB.User,
		Password:   c.DB.Password,
		Name:       c.DB.Name,
		SSLMode:    c.DB.SSLMode,
		SQLitePath: c.DB.SQLitePath,
	}
}

// aggregateRetries converts the configured count into TopicAggregateDeps
// terms, where zero means "use the default".
func (c Config) aggregateRetries() int {
	if c.Mutation.MaxRetries == 0 {
		return -1
	}
	return c.Mutation.MaxRetries
}
