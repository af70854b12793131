package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const defaultSecretKey = "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy"

// Store backends
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreSheets   = "sheets"
	StoreDatabase = "database"
)

type (
	ServerConfig struct {
		Host                      string        `mapstructure:"host"`
		DebugHost                 string        `mapstructure:"debug_host"`
		ShutdownTimeout           time.Duration `mapstructure:"shutdown_timeout"`
		JWTExpirationDelta        time.Duration `mapstructure:"jwt_expiration_delta"`
		JWTRefreshExpirationDelta time.Duration `mapstructure:"jwt_refresh_expiration_delta"`
		AuthRateLimit             float64       `mapstructure:"auth_rate_limit"` // requests per second per client
	}

	SheetsConfig struct {
		Provider string `mapstructure:"provider"` // gcs | s3 | memory
		Bucket   string `mapstructure:"bucket"`
		Object   string `mapstructure:"object"`
		Region   string `mapstructure:"region"`
		Endpoint string `mapstructure:"endpoint"`
	}

	DatabaseConfig struct {
		Engine string `mapstructure:"engine"` // postgres | sqlite
		DSN    string `mapstructure:"dsn"`
	}

	StoreConfig struct {
		Backend      string         `mapstructure:"backend"`
		DataFile     string         `mapstructure:"data_file"`
		Timeout      time.Duration  `mapstructure:"timeout"`
		CacheTTL     time.Duration  `mapstructure:"cache_ttl"`
		CacheBackend string         `mapstructure:"cache_backend"` // memory | redis | none
		MaxRetries   int            `mapstructure:"max_retries"`
		Sheets       SheetsConfig   `mapstructure:"sheets"`
		Database     DatabaseConfig `mapstructure:"database"`
	}

	RedisConfig struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	}

	Config struct {
		Env              string `mapstructure:"-"`
		Build            string `mapstructure:"build"`
		Debug            bool   `mapstructure:"debug"`
		TestMode         bool   `mapstructure:"test_mode"`
		AppName          string `mapstructure:"app_name"`
		SecretKey        string `mapstructure:"secret_key"`
		FrontendBaseURL  string `mapstructure:"frontend_base_url"`
		DefaultFromEmail string `mapstructure:"default_from_email"`
		SendgridApiKey   string `mapstructure:"sendgrid_api_key"`
		RollbarToken     string `mapstructure:"rollbar_token"`
		CatalogFile      string `mapstructure:"catalog_file"`

		PasswordResetTimeoutDelta time.Duration `mapstructure:"password_reset_timeout_delta"`
		VerificationTimeoutDelta  time.Duration `mapstructure:"verification_timeout_delta"`

		Server ServerConfig `mapstructure:"server"`
		Store  StoreConfig  `mapstructure:"store"`
		Redis  RedisConfig  `mapstructure:"redis"`
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("test_mode", false)
	v.SetDefault("app_name", "Course Review")
	v.SetDefault("secret_key", defaultSecretKey)
	v.SetDefault("frontend_base_url", "http://localhost:3000")
	v.SetDefault("default_from_email", "noreply@localhost")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("catalog_file", "")
	v.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)
	v.SetDefault("verification_timeout_delta", 2*24*time.Hour)

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debug_host", "0.0.0.0:4000")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.jwt_expiration_delta", 4*time.Hour)
	v.SetDefault("server.jwt_refresh_expiration_delta", 7*24*time.Hour)
	v.SetDefault("server.auth_rate_limit", 1.0)

	v.SetDefault("store.backend", StoreFile)
	v.SetDefault("store.data_file", filepath.Join("data", "data.json"))
	v.SetDefault("store.timeout", 20*time.Second)
	v.SetDefault("store.cache_ttl", 5*time.Second)
	v.SetDefault("store.cache_backend", "memory")
	v.SetDefault("store.max_retries", 3)
	v.SetDefault("store.sheets.provider", "gcs")
	v.SetDefault("store.sheets.bucket", "")
	v.SetDefault("store.sheets.object", "course-reviews.xlsx")
	v.SetDefault("store.sheets.region", "us-east-1")
	v.SetDefault("store.sheets.endpoint", "")
	v.SetDefault("store.database.engine", "sqlite")
	v.SetDefault("store.database.dsn", filepath.Join("data", "reviews.db"))

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// NewConfig reads the configuration for the current environment.
// APP_ENV selects the environment: dev (default), test, qa or prod.
// Variables are read with the environment as prefix, e.g. PROD_SECRET_KEY or DEV_STORE_BACKEND.
func NewConfig() *Config {
	env := strings.ToLower(os.Getenv("APP_ENV"))
	if env == "" {
		env = "dev"
	}

	v := viper.New()
	setDefaults(v)
	if env == "test" {
		v.SetDefault("test_mode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(configDir(), ".env."+env)
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	conf.Env = env
	return conf
}

func configDir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	return "config"
}

// Validate reports configuration problems that no retry can fix.
func (c *Config) Validate() error {
	if c.Env == "prod" && c.SecretKey == defaultSecretKey {
		return errors.New("secret_key must be set in prod")
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreFile:
		if c.Store.DataFile == "" {
			return errors.New("store.data_file is required by the file backend")
		}
	case StoreSheets:
		switch c.Store.Sheets.Provider {
		case "gcs", "s3":
			if c.Store.Sheets.Bucket == "" {
				return errors.Errorf("store.sheets.bucket is required by the %s provider", c.Store.Sheets.Provider)
			}
		case "memory":
		default:
			return errors.Errorf("unknown store.sheets.provider %q", c.Store.Sheets.Provider)
		}
		if c.Store.Sheets.Object == "" {
			return errors.New("store.sheets.object is required")
		}
	case StoreDatabase:
		switch c.Store.Database.Engine {
		case "postgres", "sqlite":
		default:
			return errors.Errorf("unknown store.database.engine %q", c.Store.Database.Engine)
		}
	default:
		return errors.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if c.Store.Timeout <= 0 {
		return errors.New("store.timeout must be positive")
	}
	return nil
}

// NewTestConfig returns the configuration used by tests: in-memory store, no cache delay, test mode.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	conf := new(Config)
	_ = v.Unmarshal(conf)
	conf.Env = "test"
	conf.TestMode = true
	conf.Store.Backend = StoreMemory
	conf.Store.CacheBackend = "none"
	return conf
}
