package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the runtime configuration, read from the environment.
type Config struct {
	HTTP       HTTPConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Landmarker LandmarkerConfig
	Auth       AuthConfig
	Log        LogConfig
	Detection  DetectionConfig
}

type HTTPConfig struct {
	Addr            string        `validate:"required"`
	MaxUploadBytes  int64         `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	AllowedOrigins  []string      `validate:"dive,required"` // browser origins allowed to open the capture stream
}

type DatabaseConfig struct {
	DSN          string `validate:"required"`
	MaxIdleConns int    `validate:"gte=0"`
	MaxOpenConns int    `validate:"gt=0"`
}

type RedisConfig struct {
	Addr string `validate:"required,hostname_port"`
}

type LandmarkerConfig struct {
	Addr         string `validate:"required"`
	TopologyFile string // optional YAML override of the landmark index table
}

type AuthConfig struct {
	JWTSecret   string `validate:"required,min=8"`
	JWTAudience string
}

type LogConfig struct {
	Level string `validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	File  string
}

type DetectionConfig struct {
	FPS                float64       `validate:"gt=0,lte=120"`
	StabilizationDelay time.Duration `validate:"gte=0"`
	StreamMaxFPS       float64       `validate:"gt=0,lte=120"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat is envInt for positive floats.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration accepts Go duration strings ("150ms") or plain milliseconds ("150").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			MaxUploadBytes:  int64(envInt("MAX_UPLOAD_BYTES", 10<<20)),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  envList("ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			DSN:          getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=skindoctor port=5432 sslmode=disable"),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "redis:6379"),
		},
		Landmarker: LandmarkerConfig{
			Addr:         getEnv("LANDMARKER_ADDR", "landmarker:50051"),
			TopologyFile: os.Getenv("LANDMARK_TOPOLOGY_FILE"),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", "dev-secret"),
			JWTAudience: os.Getenv("JWT_AUDIENCE"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
		Detection: DetectionConfig{
			FPS:                envFloat("DETECTION_FPS", 30),
			StabilizationDelay: envDuration("STABILIZATION_DELAY", 100*time.Millisecond),
			StreamMaxFPS:       envFloat("STREAM_MAX_FPS", 15),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
