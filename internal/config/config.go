package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendGRPC = "grpc"
	BackendDlib = "dlib"
)

// Config holds the whole service configuration.
type Config struct {
	HTTP    HTTPConfig
	Face    FaceConfig
	Log     LogConfig
	Metrics MetricsConfig
	Audit   AuditConfig
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	GinMode         string
}

// FaceConfig selects and tunes the face model backend.
type FaceConfig struct {
	Backend     string
	ServiceAddr string // grpc backend
	DialTimeout time.Duration
	ModelsDir   string // dlib backend
	PoolSize    int
	// MatchThreshold overrides the backend calibration when positive.
	MatchThreshold float64
	MaxPixels      int
	GRPCListenAddr string
}

// LogConfig configures zap.
type LogConfig struct {
	Level    string
	Encoding string
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// AuditConfig enables outcome recording. Empty DatabaseDSN disables it.
type AuditConfig struct {
	DatabaseDSN string
	RedisAddr   string
	CacheTTL    time.Duration
}

// Enabled reports whether outcomes are persisted.
func (a AuditConfig) Enabled() bool { return a.DatabaseDSN != "" }

// Load reads an optional .env file and then the environment.
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFilePath, err)
		}
	}

	p := &parser{}
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8000"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
			MaxUploadBytes:  p.int64("MAX_UPLOAD_BYTES", 10<<20),
			GinMode:         getEnv("GIN_MODE", "release"),
		},
		Face: FaceConfig{
			Backend:        getEnv("FACE_BACKEND", BackendGRPC),
			ServiceAddr:    getEnv("FACE_SERVICE_ADDR", "face-model:50051"),
			DialTimeout:    p.duration("FACE_DIAL_TIMEOUT", 5*time.Second),
			ModelsDir:      getEnv("FACE_MODELS_DIR", "models"),
			PoolSize:       p.int("FACE_POOL_SIZE", runtime.NumCPU()),
			MatchThreshold: p.float("FACE_MATCH_THRESHOLD", 0),
			MaxPixels:      p.int("FACE_MAX_PIXELS", 40_000_000),
			GRPCListenAddr: getEnv("GRPC_LISTEN_ADDR", ":50051"),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: p.bool("METRICS_ENABLED", true),
		},
		Audit: AuditConfig{
			DatabaseDSN: os.Getenv("DATABASE_DSN"),
			RedisAddr:   os.Getenv("REDIS_ADDR"),
			CacheTTL:    p.duration("OUTCOME_CACHE_TTL", 5*time.Minute),
		},
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	switch c.Face.Backend {
	case BackendGRPC:
		if c.Face.ServiceAddr == "" {
			errs = append(errs, errors.New("FACE_SERVICE_ADDR is required for the grpc backend"))
		}
	case BackendDlib:
		if c.Face.ModelsDir == "" {
			errs = append(errs, errors.New("FACE_MODELS_DIR is required for the dlib backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("FACE_BACKEND must be %q or %q, got %q", BackendGRPC, BackendDlib, c.Face.Backend))
	}
	if c.Face.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("FACE_POOL_SIZE must be at least 1, got %d", c.Face.PoolSize))
	}
	if t := c.Face.MatchThreshold; t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		errs = append(errs, fmt.Errorf("FACE_MATCH_THRESHOLD must be a finite non-negative number, got %g", t))
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.HTTP.MaxUploadBytes))
	}
	if c.Audit.RedisAddr != "" && !c.Audit.Enabled() {
		errs = append(errs, errors.New("REDIS_ADDR requires DATABASE_DSN"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser collects malformed values instead of silently using defaults.
type parser struct {
	errs []error
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("invalid %s=%q: %w", key, value, err))
}

func (p *parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) int64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}
