package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory    = "memory"
	DriverFirestore = "firestore"
	DriverPostgres  = "postgres"
	DriverRedis     = "redis"
	DriverDynamoDB  = "dynamodb"
)

// DefaultUseCases is the allowed use-case set when none is configured.
var DefaultUseCases = []string{
	"scripting",
	"automation",
	"post-processing",
	"optimization",
	"research",
	"education",
	"other",
}

// Config holds all configuration for the waitlist service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Waitlist  WaitlistConfig  `yaml:"waitlist"`
	Firestore FirestoreConfig `yaml:"firestore"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	DynamoDB  DynamoDBConfig  `yaml:"dynamodb"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	ShutdownSecs   int      `yaml:"shutdown_seconds"`
}

// StoreConfig selects the persistence backend and bounds its calls.
type StoreConfig struct {
	Driver        string `yaml:"driver"`
	TimeoutMillis int    `yaml:"timeout_ms"`
	MaxAttempts   int    `yaml:"max_attempts"`
	BackoffMillis int    `yaml:"backoff_ms"`
}

// WaitlistConfig holds validation rules for submissions.
type WaitlistConfig struct {
	UseCases      []string `yaml:"use_cases"`
	NameMaxLength int      `yaml:"name_max_length"`
}

// FirestoreConfig holds Firestore settings.
type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	Collection      string `yaml:"collection"`
}

// PostgresConfig holds Postgres settings.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	Table        string `yaml:"table"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// DynamoDBConfig holds DynamoDB settings.
type DynamoDBConfig struct {
	Table    string `yaml:"table"`
	Region   string `yaml:"region"`
	Profile  string `yaml:"profile"`
	Endpoint string `yaml:"endpoint"`
}

// Timeout bounds a single store call.
func (c StoreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// Backoff is the base delay between store attempts.
func (c StoreConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMillis) * time.Millisecond
}

// ShutdownTimeout bounds graceful shutdown.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSecs) * time.Second
}

// Load reads the YAML file at path and applies defaults. An empty path
// yields the defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads a .env file if present, reads the YAML file at path and
// applies environment overrides on top.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 16 << 10
	}
	if c.Server.ShutdownSecs == 0 {
		c.Server.ShutdownSecs = 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.TimeoutMillis == 0 {
		c.Store.TimeoutMillis = 3000
	}
	if c.Store.MaxAttempts == 0 {
		c.Store.MaxAttempts = 3
	}
	if c.Store.BackoffMillis == 0 {
		c.Store.BackoffMillis = 50
	}
	if len(c.Waitlist.UseCases) == 0 {
		c.Waitlist.UseCases = append([]string(nil), DefaultUseCases...)
	}
	if c.Waitlist.NameMaxLength == 0 {
		c.Waitlist.NameMaxLength = 200
	}
	if c.Firestore.Collection == "" {
		c.Firestore.Collection = "waitlist_signups"
	}
	if c.Postgres.Table == "" {
		c.Postgres.Table = "waitlist_signups"
	}
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 10
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "waitlist:signup:"
	}
	if c.DynamoDB.Table == "" {
		c.DynamoDB.Table = "waitlist_signups"
	}
	if c.DynamoDB.Region == "" {
		c.DynamoDB.Region = "us-east-1"
	}
}

func (c *Config) applyEnv() error {
	var errs []error
	setInt := func(name string, dst *int) {
		v := os.Getenv(name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = n
	}
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	setInt("PORT", &c.Server.Port)
	if v := os.Getenv("WAITLIST_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	setString("WAITLIST_STORE", &c.Store.Driver)
	setInt("WAITLIST_STORE_TIMEOUT_MS", &c.Store.TimeoutMillis)
	setInt("WAITLIST_STORE_MAX_ATTEMPTS", &c.Store.MaxAttempts)
	if v := os.Getenv("WAITLIST_USE_CASES"); v != "" {
		c.Waitlist.UseCases = splitList(v)
	}
	setInt("WAITLIST_NAME_MAX_LENGTH", &c.Waitlist.NameMaxLength)

	setString("FIREBASE_PROJECT_ID", &c.Firestore.ProjectID)
	setString("GOOGLE_APPLICATION_CREDENTIALS", &c.Firestore.CredentialsFile)
	setString("DATABASE_URL", &c.Postgres.DSN)
	setString("REDIS_ADDR", &c.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Redis.Password)
	setInt("REDIS_DB", &c.Redis.DB)
	setString("DYNAMODB_TABLE", &c.DynamoDB.Table)
	setString("AWS_REGION", &c.DynamoDB.Region)
	setString("AWS_PROFILE", &c.DynamoDB.Profile)
	setString("DYNAMODB_ENDPOINT", &c.DynamoDB.Endpoint)

	return errors.Join(errs...)
}

// Validate reports configuration that cannot start a working service.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Store.MaxAttempts < 1 {
		errs = append(errs, errors.New("store.max_attempts must be at least 1"))
	}
	if c.Store.TimeoutMillis < 1 {
		errs = append(errs, errors.New("store.timeout_ms must be positive"))
	}
	if c.Waitlist.NameMaxLength < 1 {
		errs = append(errs, errors.New("waitlist.name_max_length must be positive"))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverFirestore:
		if c.Firestore.ProjectID == "" {
			errs = append(errs, errors.New("firestore.project_id is required for the firestore store"))
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres store"))
		}
	case DriverRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis store"))
		}
	case DriverDynamoDB:
		if c.DynamoDB.Table == "" {
			errs = append(errs, errors.New("dynamodb.table is required for the dynamodb store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
