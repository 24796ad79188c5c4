package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/observability"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	cfg := Default()
	cfg.Database.URL = "postgres://localhost/warden"
	cfg.Auth.JWTSecret = testSecret
	return cfg
}

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "WARDEN_TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "WARDEN_TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		envValue     string
		defaultValue bool
		want         bool
	}{
		{envValue: "true", want: true},
		{envValue: "TRUE", want: true},
		{envValue: "1", want: true},
		{envValue: "false", defaultValue: true, want: false},
		{envValue: "yes", defaultValue: true, want: false},
		{envValue: "", defaultValue: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv("WARDEN_TEST_BOOL", tt.envValue)
			if got := getEnvBool("WARDEN_TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool(%q) = %v, want %v", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("WARDEN_TEST_INT", "42")
	t.Setenv("WARDEN_TEST_BAD_INT", "forty-two")
	t.Setenv("WARDEN_TEST_INT64", "268435456")
	t.Setenv("WARDEN_TEST_FLOAT", "0.25")
	t.Setenv("WARDEN_TEST_DURATION", "90s")
	t.Setenv("WARDEN_TEST_BAD_DURATION", "ninety")

	assert.Equal(t, 42, getEnvInt("WARDEN_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("WARDEN_TEST_BAD_INT", 1))
	assert.Equal(t, int64(268435456), getEnvInt64("WARDEN_TEST_INT64", 0))
	assert.Equal(t, 0.25, getEnvFloat("WARDEN_TEST_FLOAT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("WARDEN_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("WARDEN_TEST_BAD_DURATION", time.Second))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("WARDEN_TEST_LIST", " a.example.com, ,b.example.com ")
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, getEnvList("WARDEN_TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvList("WARDEN_TEST_LIST_UNSET", []string{"x"}))
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 7*24*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, "@every 15m", cfg.Invitations.SweepSchedule)
	assert.Equal(t, BackendFilesystem, cfg.Artifacts.Backend)
	assert.Zero(t, cfg.Auth.RoleCacheTTL)
	assert.Equal(t, MailLog, cfg.Mail.Mode)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.Level())
	assert.Empty(t, cfg.File)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("WARDEN_PORT", "8000")
	t.Setenv("WARDEN_DATABASE_URL", "postgres://db/warden")
	t.Setenv("WARDEN_JWT_SECRET", testSecret)
	t.Setenv("WARDEN_INVITATION_TTL", "48h")
	t.Setenv("WARDEN_ARTIFACT_BACKEND", "S3")
	t.Setenv("WARDEN_S3_BUCKET", "builds")
	t.Setenv("WARDEN_S3_USE_PATH_STYLE", "true")
	t.Setenv("WARDEN_LOG_LEVEL", "debug")
	t.Setenv("WARDEN_RATE_LIMIT_REQUESTS", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "postgres://db/warden", cfg.Database.Pool().URL)
	assert.Equal(t, 48*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, BackendS3, cfg.Artifacts.Backend)
	assert.Equal(t, "builds", cfg.Artifacts.S3().Bucket)
	assert.True(t, cfg.Artifacts.S3().UsePathStyle)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.Level())
	assert.Equal(t, 5, cfg.RateLimit.Limiter().Requests)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
  read_timeout: 5s
  allowed_hosts: [api.example.com]
database:
  url: postgres://file/warden
auth:
  jwt_secret: `+testSecret+`
invitations:
  ttl: 72h
mail:
  mode: smtp
  smtp_host: smtp.example.com
observability:
  log_level: warn
`), 0o600))

	t.Setenv(FileEnv, path)
	t.Setenv("WARDEN_PORT", "7100")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "7100", cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"api.example.com"}, cfg.Server.AllowedHosts)
	assert.Equal(t, 72*time.Hour, cfg.Invitations.TTL)
	assert.Equal(t, "smtp.example.com", cfg.Mail.SMTP().Host)
	assert.Equal(t, 587, cfg.Mail.SMTP().Port)
	assert.Equal(t, observability.WarnLevel, cfg.Observability.Level())
	assert.Equal(t, "9090", cfg.Server.HealthPort, "unset keys keep their defaults")
}

func TestLoadConfigFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: "server port is required"},
		{name: "missing health port", mutate: func(c *Config) { c.Server.HealthPort = "" }, wantErr: "health port is required"},
		{name: "same ports", mutate: func(c *Config) { c.Server.HealthPort = c.Server.Port }, wantErr: "must be different"},
		{name: "missing database", mutate: func(c *Config) { c.Database.URL = "" }, wantErr: "database URL is required"},
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantErr: "JWT secret"},
		{name: "zero ttl", mutate: func(c *Config) { c.Invitations.TTL = 0 }, wantErr: "invitation TTL"},
		{name: "negative ttl", mutate: func(c *Config) { c.Invitations.TTL = -time.Hour }, wantErr: "invitation TTL"},
		{name: "short temporary password", mutate: func(c *Config) { c.Invitations.TempPasswordLength = 7 }, wantErr: "temporary password length"},
		{name: "negative temporary password", mutate: func(c *Config) { c.Invitations.TempPasswordLength = -1 }, wantErr: "temporary password length"},
		{name: "minimum temporary password", mutate: func(c *Config) { c.Invitations.TempPasswordLength = 8 }},
		{name: "role cache enabled", mutate: func(c *Config) { c.Auth.RoleCacheTTL = 30 * time.Second }},
		{name: "negative role cache ttl", mutate: func(c *Config) { c.Auth.RoleCacheTTL = -time.Second }, wantErr: "role cache TTL"},
		{name: "unknown backend", mutate: func(c *Config) { c.Artifacts.Backend = "ftp" }, wantErr: "invalid artifact backend"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Artifacts.Backend = BackendS3 }, wantErr: "S3 bucket"},
		{name: "filesystem without root", mutate: func(c *Config) { c.Artifacts.FilesystemRoot = "" }, wantErr: "filesystem root"},
		{name: "smtp without host", mutate: func(c *Config) { c.Mail.Mode = MailSMTP }, wantErr: "SMTP host"},
		{name: "unknown mail mode", mutate: func(c *Config) { c.Mail.Mode = "pigeon" }, wantErr: "invalid mail mode"},
		{name: "zero rate limit", mutate: func(c *Config) { c.RateLimit.Requests = 0 }, wantErr: "rate limit"},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			wantErr: "OpenTelemetry endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOTelSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Observability.OTelEnabled = true
	cfg.Observability.OTelSampleRatio = 0.5

	otel := cfg.Observability.OTel()
	assert.True(t, otel.Enabled)
	assert.Equal(t, "warden", otel.ServiceName)
	assert.Equal(t, 0.5, otel.SampleRatio)
}

func configBody(level string) []byte {
	return []byte(strings.Join([]string{
		"database:",
		"  url: postgres://file/warden",
		"auth:",
		"  jwt_secret: " + testSecret,
		"observability:",
		"  log_level: " + level,
		"",
	}, "\n"))
}

func TestWatchAppliesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, configBody("info"), 0o600))

	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	levels := make(chan observability.LogLevel, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, log, func(cfg *Config) {
			levels <- cfg.Observability.Level()
		})
	}()

	// The watcher registers asynchronously; keep rewriting until a reload
	// is observed.
	var got observability.LogLevel
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, configBody("debug"), 0o600)
		select {
		case got = <-levels:
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, observability.DebugLevel, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchSkipsInvalidFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, configBody("info"), 0o600))

	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 8)
	go func() {
		_ = Watch(ctx, path, log, func(cfg *Config) { changes <- cfg })
	}()

	// An invalid TTL never reaches the callback; the valid rewrite does.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("invitations:\n  ttl: -1h\n"), 0o600)
		_ = os.WriteFile(path, configBody("error"), 0o600)
		select {
		case cfg := <-changes:
			return cfg.Observability.Level() == observability.ErrorLevel
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}
