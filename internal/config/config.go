package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	Engine    EngineConfig    `mapstructure:"engine"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// EngineConfig 自动保存、离线队列、熔断器和连通性探测的调优参数。
// 缺省值在 applyEngineDefaults 里统一兜底。
type EngineConfig struct {
	AutosaveDelayMS    int `mapstructure:"autosave_delay_ms"`
	SaveTimeoutSec     int `mapstructure:"save_timeout_sec"`
	QueueMaxRetries    int `mapstructure:"queue_max_retries"`
	QueueBackoffBaseMS int `mapstructure:"queue_backoff_base_ms"`
	QueueMaxSize       int `mapstructure:"queue_max_size"`
	QueueMaxErrors     int `mapstructure:"queue_max_errors"`
	QueueDrainSec      int `mapstructure:"queue_drain_sec"`
	BreakerThreshold   int `mapstructure:"breaker_threshold"`
	BreakerResetSec    int `mapstructure:"breaker_reset_sec"`
	BreakerWindowSec   int `mapstructure:"breaker_window_sec"`
	ProbeIntervalSec   int `mapstructure:"probe_interval_sec"`
	ProbeTimeoutSec    int `mapstructure:"probe_timeout_sec"`
}

func (e *EngineConfig) AutosaveDelay() time.Duration {
	return time.Duration(e.AutosaveDelayMS) * time.Millisecond
}

func (e *EngineConfig) SaveTimeout() time.Duration {
	return time.Duration(e.SaveTimeoutSec) * time.Second
}

func (e *EngineConfig) QueueBackoffBase() time.Duration {
	return time.Duration(e.QueueBackoffBaseMS) * time.Millisecond
}

func (e *EngineConfig) QueueDrainInterval() time.Duration {
	return time.Duration(e.QueueDrainSec) * time.Second
}

func (e *EngineConfig) BreakerResetTimeout() time.Duration {
	return time.Duration(e.BreakerResetSec) * time.Second
}

func (e *EngineConfig) BreakerWindow() time.Duration {
	return time.Duration(e.BreakerWindowSec) * time.Second
}

func (e *EngineConfig) ProbeInterval() time.Duration {
	return time.Duration(e.ProbeIntervalSec) * time.Second
}

func (e *EngineConfig) ProbeTimeout() time.Duration {
	return time.Duration(e.ProbeTimeoutSec) * time.Second
}

func applyEngineDefaults(e *EngineConfig) {
	if e.AutosaveDelayMS <= 0 {
		e.AutosaveDelayMS = 2000
	}
	if e.SaveTimeoutSec <= 0 {
		e.SaveTimeoutSec = 15
	}
	if e.QueueMaxRetries <= 0 {
		e.QueueMaxRetries = 3
	}
	if e.QueueBackoffBaseMS <= 0 {
		e.QueueBackoffBaseMS = 1000
	}
	if e.QueueMaxSize <= 0 {
		e.QueueMaxSize = 100
	}
	if e.QueueMaxErrors <= 0 {
		e.QueueMaxErrors = 50
	}
	if e.QueueDrainSec <= 0 {
		e.QueueDrainSec = 30
	}
	if e.BreakerThreshold <= 0 {
		e.BreakerThreshold = 5
	}
	if e.BreakerResetSec <= 0 {
		e.BreakerResetSec = 30
	}
	if e.BreakerWindowSec <= 0 {
		e.BreakerWindowSec = 60
	}
	if e.ProbeIntervalSec <= 0 {
		e.ProbeIntervalSec = 15
	}
	if e.ProbeTimeoutSec <= 0 {
		e.ProbeTimeoutSec = 3
	}
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("VENDOR_AUDIT")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage / OSS
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	viper.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	viper.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	viper.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	applyEngineDefaults(&cfg.Engine)

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}
