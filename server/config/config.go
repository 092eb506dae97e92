package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/analysis"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Pose      PoseConfig      `json:"pose"`
	Security  SecurityConfig  `json:"security"`
	Store     StoreConfig     `json:"store"`
	Redis     RedisConfig     `json:"redis"`
	Logging   LoggingConfig   `json:"logging"`
	Analysis  AnalysisConfig  `json:"analysis"`
	Processor ProcessorConfig `json:"processor"`
}

type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
}

// PoseConfig points at the external pose-estimation service that turns videos into
// landmark frames.
type PoseConfig struct {
	BaseURL             string        `json:"base_url"`
	Timeout             time.Duration `json:"timeout"`
	MaxRetries          int           `json:"max_retries"`
	RetryDelay          time.Duration `json:"retry_delay"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
}

type SecurityConfig struct {
	JWTSecretKey   string        `json:"jwt_secret_key"`
	AllowedOrigins []string      `json:"allowed_origins"`
	RateLimitRPS   int           `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
	UploadRPS      int           `json:"upload_rps"`
	UploadBurst    int           `json:"upload_burst"`
	AdminIPs       []string      `json:"admin_ips"`
	MaxRequestSize int64         `json:"max_request_size"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableHTTPS    bool          `json:"enable_https"`
	CertFile       string        `json:"cert_file"`
	KeyFile        string        `json:"key_file"`
}

type StoreConfig struct {
	Path string `json:"path"`
}

type RedisConfig struct {
	Enabled  bool          `json:"enabled"`
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	PoolSize int           `json:"pool_size"`
	TTL      time.Duration `json:"ttl"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
}

type AnalysisConfig struct {
	DominantSide          string  `json:"dominant_side"`
	ReleaseOffset         int     `json:"release_offset"`
	FallbackReleaseOffset int     `json:"fallback_release_offset"`
	MinVisibility         float64 `json:"min_visibility"`
	BackWindow            string  `json:"back_window"`
}

type ProcessorConfig struct {
	Workers      int           `json:"workers"`
	QueueSize    int           `json:"queue_size"`
	Timeout      time.Duration `json:"timeout"`
	BatchLimit   int           `json:"batch_limit"`
	CacheEntries int           `json:"cache_entries"`
}

// LoadDotEnv reads variables from a .env file into the environment. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func LoadConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Pose: PoseConfig{
			BaseURL:             getEnv("POSE_BASE_URL", "http://localhost:5000"),
			Timeout:             getEnvAsDuration("POSE_TIMEOUT", 120*time.Second),
			MaxRetries:          getEnvAsInt("POSE_MAX_RETRIES", 3),
			RetryDelay:          getEnvAsDuration("POSE_RETRY_DELAY", 1*time.Second),
			HealthCheckInterval: getEnvAsDuration("POSE_HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
		Security: SecurityConfig{
			JWTSecretKey:   getEnv("JWT_SECRET_KEY", ""),
			AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 100),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 200),
			UploadRPS:      getEnvAsInt("UPLOAD_RATE_LIMIT_RPS", 1),
			UploadBurst:    getEnvAsInt("UPLOAD_RATE_LIMIT_BURST", 5),
			AdminIPs:       getEnvAsStringSlice("ADMIN_ALLOWED_IPS", []string{"*"}),
			MaxRequestSize: getEnvAsInt64("MAX_REQUEST_SIZE", 100*1024*1024), // 100MB, videos
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			EnableHTTPS:    getEnvAsBool("ENABLE_HTTPS", false),
			CertFile:       getEnv("CERT_FILE", ""),
			KeyFile:        getEnv("KEY_FILE", ""),
		},
		Store: StoreConfig{
			Path: getEnv("STORE_PATH", "probowler.db"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
			TTL:      getEnvAsDuration("REDIS_TTL", 10*time.Minute),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 28),
		},
		Analysis: AnalysisConfig{
			DominantSide:          getEnv("ANALYSIS_DOMINANT_SIDE", string(analysis.SideRight)),
			ReleaseOffset:         getEnvAsInt("ANALYSIS_RELEASE_OFFSET", analysis.DefaultReleaseOffset),
			FallbackReleaseOffset: getEnvAsInt("ANALYSIS_FALLBACK_RELEASE_OFFSET", analysis.DefaultFallbackReleaseOffset),
			MinVisibility:         getEnvAsFloat("ANALYSIS_MIN_VISIBILITY", 0),
			BackWindow:            getEnv("ANALYSIS_BACK_WINDOW", string(analysis.WindowFromFFC)),
		},
		Processor: ProcessorConfig{
			Workers:      getEnvAsInt("PROCESSOR_WORKERS", 4),
			QueueSize:    getEnvAsInt("PROCESSOR_QUEUE_SIZE", 100),
			Timeout:      getEnvAsDuration("PROCESSOR_TIMEOUT", 5*time.Minute),
			BatchLimit:   getEnvAsInt("PROCESSOR_BATCH_LIMIT", 4),
			CacheEntries: getEnvAsInt("PROCESSOR_CACHE_ENTRIES", 1000),
		},
	}

	return config
}

func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	if c.Pose.BaseURL == "" {
		errors = append(errors, "pose service base URL is required")
	}

	if c.Security.JWTSecretKey == "" {
		logger.Warn("JWT secret key not set, admin tokens will not survive restarts")
	}

	if c.Security.RateLimitRPS < 1 || c.Security.UploadRPS < 1 {
		errors = append(errors, "rate limits must be positive")
	}

	if c.Security.MaxRequestSize <= 0 {
		errors = append(errors, "max request size must be positive")
	}

	if c.Store.Path == "" {
		errors = append(errors, "store path is required")
	}

	if c.Redis.Enabled {
		if c.Redis.Host == "" {
			errors = append(errors, "Redis host is required")
		}
		if c.Redis.Port < 1 || c.Redis.Port > 65535 {
			errors = append(errors, "Redis port must be between 1 and 65535")
		}
	}

	if _, err := analysis.ParseSide(c.Analysis.DominantSide); err != nil {
		errors = append(errors, err.Error())
	}

	if c.Analysis.ReleaseOffset < 0 || c.Analysis.FallbackReleaseOffset < 0 {
		errors = append(errors, "release offsets must not be negative")
	}

	if c.Analysis.MinVisibility < 0 || c.Analysis.MinVisibility > 1 {
		errors = append(errors, "min visibility must be between 0 and 1")
	}

	switch analysis.BackWindow(c.Analysis.BackWindow) {
	case analysis.WindowFromFFC, analysis.WindowFromStart:
	default:
		errors = append(errors, fmt.Sprintf("unknown back window %q", c.Analysis.BackWindow))
	}

	if c.Processor.Workers < 1 {
		errors = append(errors, "processor workers must be positive")
	}

	if c.Processor.QueueSize < 1 {
		errors = append(errors, "processor queue size must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

// AnalysisOptions converts the analysis section into options for analysis.Analyze.
// Invalid values fall back to defaults; ValidateConfig reports them.
func (c *Config) AnalysisOptions() analysis.Options {
	opts := analysis.DefaultOptions()
	if side, err := analysis.ParseSide(c.Analysis.DominantSide); err == nil {
		opts.DominantSide = side
	}
	if c.Analysis.ReleaseOffset >= 0 {
		opts.ReleaseOffset = c.Analysis.ReleaseOffset
	}
	if c.Analysis.FallbackReleaseOffset >= 0 {
		opts.FallbackReleaseOffset = c.Analysis.FallbackReleaseOffset
	}
	if c.Analysis.MinVisibility > 0 {
		opts.MinVisibility = c.Analysis.MinVisibility
	}
	if bw := analysis.BackWindow(c.Analysis.BackWindow); bw == analysis.WindowFromStart {
		opts.BackWindow = bw
	}
	return opts
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
