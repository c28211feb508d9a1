package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	Server      ServerConfig
	MySQL       MySQLConfig
	Redis       RedisConfig
	JWT         JWTConfig
	WeChat      WeChatConfig
	Storage     StorageConfig
	Gemini      GeminiConfig
	Pipeline    PipelineConfig
	RateLimit   RateLimitConfig
	Sessions    SessionsConfig
	SwaggerHost string
}

type ServerConfig struct {
	Port            string
	Env             string
	ShutdownTimeout time.Duration
}

// IsProduction reports whether error details must be hidden from clients.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
	ResetOnStart    bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	SessionTTL time.Duration
}

type WeChatConfig struct {
	AppID     string
	AppSecret string
	BaseURL   string
	Timeout   time.Duration
}

// StorageConfig selects and configures the object store. Driver is "s3"
// (any S3 compatible endpoint, Tencent COS included) or "minio".
type StorageConfig struct {
	Driver         string
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	PublicBaseURL  string
	SignedURLTTL   time.Duration
	MaxUploadBytes int64
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type PipelineConfig struct {
	Workers     int
	QueueSize   int
	StepTimeout time.Duration
}

type RateLimitConfig struct {
	LoginRPS        float64
	LoginBurst      int
	TranscribeRPS   float64
	TranscribeBurst int
}

type SessionsConfig struct {
	SweepInterval time.Duration
}

// Load builds Config from the environment (and an optional .env file) with sensible defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			Env:             v.GetString("APP_ENV"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		MySQL: MySQLConfig{
			DSN:             v.GetString("MYSQL_DSN"),
			MaxOpenConns:    v.GetInt("MYSQL_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("MYSQL_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("MYSQL_CONN_MAX_LIFETIME"),
			MigrateOnStart:  v.GetBool("MIGRATE_ON_START"),
			ResetOnStart:    v.GetBool("RESET_DB"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("JWT_SECRET"),
			SessionTTL: v.GetDuration("SESSION_TTL"),
		},
		WeChat: WeChatConfig{
			AppID:     v.GetString("WECHAT_APPID"),
			AppSecret: v.GetString("WECHAT_SECRET"),
			BaseURL:   v.GetString("WECHAT_BASE_URL"),
			Timeout:   v.GetDuration("WECHAT_TIMEOUT"),
		},
		Storage: StorageConfig{
			Driver:         strings.ToLower(v.GetString("STORAGE_DRIVER")),
			Endpoint:       v.GetString("STORAGE_ENDPOINT"),
			Region:         v.GetString("STORAGE_REGION"),
			Bucket:         v.GetString("STORAGE_BUCKET"),
			AccessKey:      v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey:      v.GetString("STORAGE_SECRET_KEY"),
			UseSSL:         v.GetBool("STORAGE_USE_SSL"),
			PublicBaseURL:  v.GetString("STORAGE_PUBLIC_BASE_URL"),
			SignedURLTTL:   v.GetDuration("STORAGE_SIGNED_URL_TTL"),
			MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
		},
		Gemini: GeminiConfig{
			APIKey:  v.GetString("GEMINI_API_KEY"),
			BaseURL: v.GetString("GEMINI_BASE_URL"),
			Model:   v.GetString("GEMINI_MODEL"),
			Timeout: v.GetDuration("GEMINI_TIMEOUT"),
		},
		Pipeline: PipelineConfig{
			Workers:     v.GetInt("PIPELINE_WORKERS"),
			QueueSize:   v.GetInt("PIPELINE_QUEUE_SIZE"),
			StepTimeout: v.GetDuration("PIPELINE_STEP_TIMEOUT"),
		},
		RateLimit: RateLimitConfig{
			LoginRPS:        v.GetFloat64("RATE_LIMIT_LOGIN_RPS"),
			LoginBurst:      v.GetInt("RATE_LIMIT_LOGIN_BURST"),
			TranscribeRPS:   v.GetFloat64("RATE_LIMIT_TRANSCRIBE_RPS"),
			TranscribeBurst: v.GetInt("RATE_LIMIT_TRANSCRIBE_BURST"),
		},
		Sessions: SessionsConfig{
			SweepInterval: v.GetDuration("SESSION_SWEEP_INTERVAL"),
		},
		SwaggerHost: v.GetString("SWAGGER_HOST"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	v.SetDefault("MYSQL_DSN", "user:password@tcp(localhost:3306)/lessonscope?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("MYSQL_MAX_OPEN_CONNS", 10)
	v.SetDefault("MYSQL_MAX_IDLE_CONNS", 5)
	v.SetDefault("MYSQL_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("RESET_DB", false)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("SESSION_TTL", "168h")

	v.SetDefault("WECHAT_BASE_URL", "https://api.weixin.qq.com")
	v.SetDefault("WECHAT_TIMEOUT", "10s")

	v.SetDefault("STORAGE_DRIVER", "s3")
	v.SetDefault("STORAGE_REGION", "ap-guangzhou")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "1h")
	v.SetDefault("MAX_UPLOAD_BYTES", 100*1024*1024)

	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("GEMINI_TIMEOUT", "5m")

	v.SetDefault("PIPELINE_WORKERS", 4)
	v.SetDefault("PIPELINE_QUEUE_SIZE", 64)
	v.SetDefault("PIPELINE_STEP_TIMEOUT", "5m")

	v.SetDefault("RATE_LIMIT_LOGIN_RPS", 5)
	v.SetDefault("RATE_LIMIT_LOGIN_BURST", 10)
	v.SetDefault("RATE_LIMIT_TRANSCRIBE_RPS", 0.2)
	v.SetDefault("RATE_LIMIT_TRANSCRIBE_BURST", 3)

	v.SetDefault("SESSION_SWEEP_INTERVAL", "1h")
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "s3", "minio":
	default:
		return fmt.Errorf("config: unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.JWT.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive")
	}
	if c.Pipeline.Workers <= 0 || c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("config: PIPELINE_WORKERS and PIPELINE_QUEUE_SIZE must be positive")
	}
	if c.Server.IsProduction() && c.JWT.Secret == "change-me" {
		return fmt.Errorf("config: JWT_SECRET must be set in production")
	}
	return nil
}
