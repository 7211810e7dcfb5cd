package app

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/apikey-auth/pkg/apikey"
)

// Key store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (APIKEY_ prefix), flags, a .env file or YAML config
// files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Store        StoreConfig
	Cache        CacheConfig
	HeaderScheme SchemeConfig `usage:"Scheme reading the key from a header"`
	QueryScheme  SchemeConfig `usage:"Scheme reading the key from the query string"`
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// StoreConfig selects and configures the key store.
type StoreConfig struct {
	Backend     string `default:"memory" usage:"Key store backend: memory, postgres or redis"`
	KeysFile    string `usage:"YAML key file (optionally .gz) loaded by the memory backend" flag:"keys-file"`
	DatabaseURL string `usage:"PostgreSQL connection URL (APIKEY_STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Migrate     bool   `default:"true" usage:"Apply the embedded schema on start"`
	RedisURL    string `usage:"Redis URL (APIKEY_STORE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	RedisPrefix string `default:"apikey:" usage:"Redis hash name prefix"`
}

// CacheConfig controls the credential cache in front of the store.
type CacheConfig struct {
	Enabled     bool          `default:"true" usage:"Cache validated keys"`
	Size        int           `default:"1024" usage:"Maximum number of cached keys"`
	TTL         time.Duration `default:"1m" usage:"Cache entry lifetime"`
	CacheMisses bool          `default:"false" usage:"Also cache unknown keys"`
}

// SchemeConfig configures one authentication scheme.
type SchemeConfig struct {
	Name                    string `usage:"Scheme name"`
	KeyName                 string `usage:"Header or query parameter carrying the key"`
	Realm                   string `default:"Sample API" usage:"Realm sent in the challenge"`
	SuppressChallengeHeader bool   `default:"false" usage:"Omit WWW-Authenticate on 401"`
	IgnoreAnonymous         bool   `default:"true" usage:"Skip authentication on anonymous endpoints"`
}

// Configure applies c to o.
func (c SchemeConfig) Configure(o *apikey.Options) {
	o.KeyName = c.KeyName
	o.Realm = c.Realm
	o.SuppressChallengeHeader = c.SuppressChallengeHeader
	o.IgnoreIfEndpointAllowsAnonymous = c.IgnoreAnonymous
}

// RateLimitConfig controls the per-principal sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env, then environment variables, flags and YAML config
// files, and validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(aconfig.Config{
		Files: []string{"config.yaml", "/etc/apikey/config.yaml"},
	})
}

func loadConfig(base aconfig.Config) (*Config, error) {
	var cfg Config
	base.EnvPrefix = "APIKEY"
	base.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}
	if err := aconfig.LoaderFor(&cfg, base).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	cfg.applySchemeDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL, REDIS_URL and PORT.
func (c *Config) applyPlatformDefaults() {
	if c.Store.DatabaseURL == "" {
		c.Store.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Store.RedisURL == "" {
		c.Store.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) applySchemeDefaults() {
	if c.HeaderScheme.Name == "" {
		c.HeaderScheme.Name = apikey.DefaultScheme
	}
	if c.HeaderScheme.KeyName == "" {
		c.HeaderScheme.KeyName = "X-API-KEY"
	}
	if c.QueryScheme.Name == "" {
		c.QueryScheme.Name = "ApiKeyQuery"
	}
	if c.QueryScheme.KeyName == "" {
		c.QueryScheme.KeyName = "key"
	}
}

// Validate checks the store selection. Scheme options are validated when the
// schemes are registered.
func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("database URL is required: set APIKEY_STORE_DATABASE_URL or DATABASE_URL")
		}
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return errors.New("redis URL is required: set APIKEY_STORE_REDIS_URL or REDIS_URL")
		}
	default:
		return errors.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.HeaderScheme.Name == c.QueryScheme.Name {
		return errors.Errorf("header and query schemes share the name %q", c.HeaderScheme.Name)
	}
	return nil
}
