package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/artifacts"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/credentials"
	"github.com/platinummonkey/warden/pkg/database"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/notify"
	"github.com/platinummonkey/warden/pkg/observability"
)

// FileEnv names the environment variable holding the optional YAML file.
const FileEnv = "WARDEN_CONFIG_FILE"

// Artifact backends.
const (
	BackendFilesystem = "filesystem"
	BackendS3         = "s3"
)

// Mail modes.
const (
	MailLog  = "log"
	MailSMTP = "smtp"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Invitations   InvitationConfig    `yaml:"invitations"`
	Artifacts     ArtifactConfig      `yaml:"artifacts"`
	Mail          MailConfig          `yaml:"mail"`
	Observability ObservabilityConfig `yaml:"observability"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`

	// File is the YAML file the configuration was read from, if any.
	File string `yaml:"-"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// Development relaxes security headers for local use.
	Development    bool     `yaml:"development"`
	AllowedHosts   []string `yaml:"allowed_hosts"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	RunMigrations   bool          `yaml:"run_migrations"`
}

// RedisConfig holds the optional Redis connection. An empty URL disables it.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig holds access token settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	AccessTTL time.Duration `yaml:"access_ttl"`
	// RoleCacheTTL caches role masks in the guard. Zero reads the stored
	// mask on every check; only enable it for a single replica.
	RoleCacheTTL time.Duration `yaml:"role_cache_ttl"`
}

// InvitationConfig holds invitation lifecycle settings.
type InvitationConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
	// PublicURL is the externally reachable base used in emailed links.
	PublicURL          string `yaml:"public_url"`
	TempPasswordLength int    `yaml:"temp_password_length"`
}

// ArtifactConfig selects and configures build storage.
type ArtifactConfig struct {
	Backend        string `yaml:"backend"`
	FilesystemRoot string `yaml:"filesystem_root"`
	PublicBaseURL  string `yaml:"public_base_url"`

	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
	S3CreateBucket bool   `yaml:"s3_create_bucket"`
}

// MailConfig selects how invitation emails are delivered.
type MailConfig struct {
	Mode         string `yaml:"mode"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	From         string `yaml:"from"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// Audit
	AuditBufferSize int `yaml:"audit_buffer_size"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// RateLimitConfig throttles the public invitation endpoints.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	pool := database.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			MaxUploadBytes:  artifacts.DefaultMaxUploadBytes,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    pool.MaxOpenConns,
			MaxIdleConns:    pool.MaxIdleConns,
			ConnMaxLifetime: pool.ConnMaxLifetime,
			ConnMaxIdleTime: pool.ConnMaxIdleTime,
			RunMigrations:   true,
		},
		Auth: AuthConfig{
			Issuer:    auth.DefaultIssuer,
			AccessTTL: auth.DefaultTokenTTL,
		},
		Invitations: InvitationConfig{
			TTL:                invitations.DefaultTTL,
			SweepSchedule:      invitations.DefaultSweepSchedule,
			PublicURL:          "http://localhost:8080",
			TempPasswordLength: 12,
		},
		Artifacts: ArtifactConfig{
			Backend:        BackendFilesystem,
			FilesystemRoot: "./data/builds",
			S3Region:       "us-east-1",
		},
		Mail: MailConfig{
			Mode:     MailLog,
			SMTPPort: 587,
			From:     "warden@localhost",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "json",
			MetricsEnabled:     true,
			AuditBufferSize:    1024,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "warden",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
		RateLimit: RateLimitConfig{
			Requests: 20,
			Window:   time.Minute,
		},
	}
}

// LoadConfig loads defaults, then the YAML file named by WARDEN_CONFIG_FILE
// if set, then environment overrides, and validates the result.
func LoadConfig() (*Config, error) {
	cfg, err := Load(os.Getenv(FileEnv))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Load builds a configuration from defaults, the optional file at path and
// the environment, without validating it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.File = path
	return nil
}

// applyEnv overrides every setting whose variable is set.
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("WARDEN_HOST", s.Host)
	s.Port = getEnv("WARDEN_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("WARDEN_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("WARDEN_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("WARDEN_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("WARDEN_HEALTH_PORT", s.HealthPort)
	s.Development = getEnvBool("WARDEN_DEVELOPMENT", s.Development)
	s.AllowedHosts = getEnvList("WARDEN_ALLOWED_HOSTS", s.AllowedHosts)
	s.MaxUploadBytes = getEnvInt64("WARDEN_MAX_UPLOAD_BYTES", s.MaxUploadBytes)

	d := &c.Database
	d.URL = getEnv("WARDEN_DATABASE_URL", d.URL)
	d.MaxOpenConns = getEnvInt("WARDEN_DATABASE_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvInt("WARDEN_DATABASE_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetime = getEnvDuration("WARDEN_DATABASE_CONN_MAX_LIFETIME", d.ConnMaxLifetime)
	d.ConnMaxIdleTime = getEnvDuration("WARDEN_DATABASE_CONN_MAX_IDLE_TIME", d.ConnMaxIdleTime)
	d.RunMigrations = getEnvBool("WARDEN_RUN_MIGRATIONS", d.RunMigrations)

	r := &c.Redis
	r.URL = getEnv("WARDEN_REDIS_URL", r.URL)
	r.Password = getEnv("WARDEN_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("WARDEN_REDIS_DB", r.DB)

	a := &c.Auth
	a.JWTSecret = getEnv("WARDEN_JWT_SECRET", a.JWTSecret)
	a.Issuer = getEnv("WARDEN_JWT_ISSUER", a.Issuer)
	a.AccessTTL = getEnvDuration("WARDEN_ACCESS_TOKEN_TTL", a.AccessTTL)
	a.RoleCacheTTL = getEnvDuration("WARDEN_ROLE_CACHE_TTL", a.RoleCacheTTL)

	i := &c.Invitations
	i.TTL = getEnvDuration("WARDEN_INVITATION_TTL", i.TTL)
	i.SweepSchedule = getEnv("WARDEN_INVITATION_SWEEP_SCHEDULE", i.SweepSchedule)
	i.PublicURL = getEnv("WARDEN_PUBLIC_URL", i.PublicURL)
	i.TempPasswordLength = getEnvInt("WARDEN_TEMP_PASSWORD_LENGTH", i.TempPasswordLength)

	ar := &c.Artifacts
	ar.Backend = strings.ToLower(getEnv("WARDEN_ARTIFACT_BACKEND", ar.Backend))
	ar.FilesystemRoot = getEnv("WARDEN_ARTIFACT_ROOT", ar.FilesystemRoot)
	ar.PublicBaseURL = getEnv("WARDEN_ARTIFACT_BASE_URL", ar.PublicBaseURL)
	ar.S3Endpoint = getEnv("WARDEN_S3_ENDPOINT", ar.S3Endpoint)
	ar.S3Region = getEnv("WARDEN_S3_REGION", ar.S3Region)
	ar.S3Bucket = getEnv("WARDEN_S3_BUCKET", ar.S3Bucket)
	ar.S3AccessKey = getEnv("WARDEN_S3_ACCESS_KEY", ar.S3AccessKey)
	ar.S3SecretKey = getEnv("WARDEN_S3_SECRET_KEY", ar.S3SecretKey)
	ar.S3UsePathStyle = getEnvBool("WARDEN_S3_USE_PATH_STYLE", ar.S3UsePathStyle)
	ar.S3CreateBucket = getEnvBool("WARDEN_S3_CREATE_BUCKET", ar.S3CreateBucket)

	m := &c.Mail
	m.Mode = strings.ToLower(getEnv("WARDEN_MAIL_MODE", m.Mode))
	m.SMTPHost = getEnv("WARDEN_SMTP_HOST", m.SMTPHost)
	m.SMTPPort = getEnvInt("WARDEN_SMTP_PORT", m.SMTPPort)
	m.SMTPUsername = getEnv("WARDEN_SMTP_USERNAME", m.SMTPUsername)
	m.SMTPPassword = getEnv("WARDEN_SMTP_PASSWORD", m.SMTPPassword)
	m.From = getEnv("WARDEN_MAIL_FROM", m.From)

	o := &c.Observability
	o.LogLevel = getEnv("WARDEN_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("WARDEN_LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("WARDEN_METRICS_ENABLED", o.MetricsEnabled)
	o.AuditBufferSize = getEnvInt("WARDEN_AUDIT_BUFFER_SIZE", o.AuditBufferSize)
	o.OTelEnabled = getEnvBool("WARDEN_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("WARDEN_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("WARDEN_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("WARDEN_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("WARDEN_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("WARDEN_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)

	rl := &c.RateLimit
	rl.Requests = getEnvInt("WARDEN_RATE_LIMIT_REQUESTS", rl.Requests)
	rl.Window = getEnvDuration("WARDEN_RATE_LIMIT_WINDOW", rl.Window)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("JWT secret must be at least %d bytes", auth.MinSecretLength)
	}

	if c.Invitations.TTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}
	if c.Invitations.TempPasswordLength < credentials.MinLength {
		return fmt.Errorf("temporary password length must be at least %d", credentials.MinLength)
	}
	if c.Auth.RoleCacheTTL < 0 {
		return fmt.Errorf("role cache TTL must not be negative")
	}
	if c.Invitations.SweepSchedule == "" {
		return fmt.Errorf("invitation sweep schedule is required")
	}

	switch c.Artifacts.Backend {
	case BackendFilesystem:
		if c.Artifacts.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem artifact storage")
		}
	case BackendS3:
		if c.Artifacts.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 artifact storage")
		}
	default:
		return fmt.Errorf("invalid artifact backend: %s (must be filesystem or s3)", c.Artifacts.Backend)
	}

	switch c.Mail.Mode {
	case MailLog:
	case MailSMTP:
		if c.Mail.SMTPHost == "" {
			return fmt.Errorf("SMTP host is required for smtp mail mode")
		}
	default:
		return fmt.Errorf("invalid mail mode: %s (must be log or smtp)", c.Mail.Mode)
	}

	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Pool returns the database pool settings.
func (d DatabaseConfig) Pool() database.Config {
	cfg := database.DefaultConfig()
	cfg.URL = d.URL
	cfg.MaxOpenConns = d.MaxOpenConns
	cfg.MaxIdleConns = d.MaxIdleConns
	cfg.ConnMaxLifetime = d.ConnMaxLifetime
	cfg.ConnMaxIdleTime = d.ConnMaxIdleTime
	return cfg
}

// S3 returns the S3 storage settings.
func (a ArtifactConfig) S3() artifacts.S3Config {
	return artifacts.S3Config{
		Endpoint:      a.S3Endpoint,
		Region:        a.S3Region,
		Bucket:        a.S3Bucket,
		AccessKey:     a.S3AccessKey,
		SecretKey:     a.S3SecretKey,
		UsePathStyle:  a.S3UsePathStyle,
		PublicBaseURL: a.PublicBaseURL,
		CreateBucket:  a.S3CreateBucket,
	}
}

// SMTP returns the SMTP relay settings.
func (m MailConfig) SMTP() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     m.SMTPHost,
		Port:     m.SMTPPort,
		Username: m.SMTPUsername,
		Password: m.SMTPPassword,
		From:     m.From,
	}
}

// Level returns the configured log level.
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel returns the OpenTelemetry settings.
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Limiter returns the public rate limit.
func (r RateLimitConfig) Limiter() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{Requests: r.Requests, Window: r.Window}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
