package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bimmatch/guard/internal/models"
	"github.com/bimmatch/guard/internal/ratelimit"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Store     StoreConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	Admin     AdminConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
}

type StoreConfig struct {
	Type string
}

// RateLimitConfig carries per-action policy overrides, the coarse IP throttle
// and the in-memory soft gate in front of upload validation
type RateLimitConfig struct {
	Overrides           map[models.Action]models.RateLimitPolicy
	IPRequestsPerMinute int
	UploadSoftGate      models.RateLimitPolicy
}

type SessionConfig struct {
	InactivityTimeout time.Duration
	WarningGrace      time.Duration
	AuthRoutes        []string
	Retention         time.Duration
	SweepInterval     time.Duration
}

type AdminConfig struct {
	Token string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	overrides, err := parsePolicyOverrides()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bimmatch"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "bimmatch:"),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			// whole multipart body: largest file ceiling plus form overhead
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 21<<20)),
		},
		Store: StoreConfig{
			Type: strings.ToLower(getEnv("STORE_TYPE", StoreMemory)),
		},
		RateLimit: RateLimitConfig{
			Overrides:           overrides,
			IPRequestsPerMinute: getEnvAsInt("RATE_LIMIT_IP_REQUESTS_PER_MINUTE", 300),
			UploadSoftGate: models.RateLimitPolicy{
				MaxAttempts: getEnvAsInt("UPLOAD_SOFT_GATE_MAX", 3),
				Window:      getEnvAsDuration("UPLOAD_SOFT_GATE_WINDOW", 10*time.Second),
			},
		},
		Session: SessionConfig{
			InactivityTimeout: getEnvAsDuration("SESSION_INACTIVITY_TIMEOUT", 120*time.Second),
			WarningGrace:      getEnvAsDuration("SESSION_WARNING_GRACE", 30*time.Second),
			AuthRoutes:        getEnvAsList("SESSION_AUTH_ROUTES", []string{"/login", "/register"}),
			Retention:         getEnvAsDuration("SESSION_RETENTION", 10*time.Minute),
			SweepInterval:     getEnvAsDuration("SESSION_SWEEP_INTERVAL", 1*time.Minute),
		},
		Admin: AdminConfig{
			Token: getEnv("ADMIN_TOKEN", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Type {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required when STORE_TYPE=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_TYPE %q", c.Store.Type)
	}

	if c.Server.Env == "production" && c.Store.Type == StoreMemory {
		return fmt.Errorf("STORE_TYPE=memory is not allowed in production")
	}

	if err := ratelimit.ValidatePolicy(c.RateLimit.UploadSoftGate); err != nil {
		return fmt.Errorf("upload soft gate: %w", err)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	if c.Session.InactivityTimeout <= 0 || c.Session.WarningGrace <= 0 {
		return fmt.Errorf("session inactivity timeout and warning grace must be positive")
	}

	// Admin token strength, same rule set as other shared secrets
	if c.Admin.Token != "" {
		minLength := 16
		if c.Server.Env == "production" {
			minLength = 32
		}
		if len(c.Admin.Token) < minLength {
			return fmt.Errorf("ADMIN_TOKEN must be at least %d characters in %s environment (got %d)",
				minLength, c.Server.Env, len(c.Admin.Token))
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// parsePolicyOverrides reads RATE_LIMIT_<ACTION>_MAX, _WINDOW and _BLOCK.
// Unset fields keep the built-in default for that action.
func parsePolicyOverrides() (map[models.Action]models.RateLimitPolicy, error) {
	overrides := make(map[models.Action]models.RateLimitPolicy)

	for _, action := range models.Actions() {
		prefix := "RATE_LIMIT_" + strings.ToUpper(string(action))
		maxRaw := os.Getenv(prefix + "_MAX")
		windowRaw := os.Getenv(prefix + "_WINDOW")
		blockRaw := os.Getenv(prefix + "_BLOCK")
		if maxRaw == "" && windowRaw == "" && blockRaw == "" {
			continue
		}

		policy := ratelimit.DefaultPolicies()[action]
		if maxRaw != "" {
			n, err := strconv.Atoi(maxRaw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s_MAX: %w", prefix, err)
			}
			policy.MaxAttempts = n
		}
		if windowRaw != "" {
			d, err := time.ParseDuration(windowRaw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s_WINDOW: %w", prefix, err)
			}
			policy.Window = d
		}
		if blockRaw != "" {
			d, err := time.ParseDuration(blockRaw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s_BLOCK: %w", prefix, err)
			}
			policy.BlockDuration = d
		}
		overrides[action] = policy
	}

	return overrides, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal
	}
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS", []string{})
	}

	// Development: the web UI dev servers
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
