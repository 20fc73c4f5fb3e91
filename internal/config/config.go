package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Scaling  ScalingConfig  `mapstructure:"scaling"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"` // sqlite file path
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type OracleConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type BatchConfig struct {
	Workers      int           `mapstructure:"workers"`
	MinBatchSize int           `mapstructure:"min_batch_size"`
	MaxBatchSize int           `mapstructure:"max_batch_size"`
	MaxRows      int           `mapstructure:"max_rows"`
	SoftTimeout  time.Duration `mapstructure:"soft_timeout"`
	HardTimeout  time.Duration `mapstructure:"hard_timeout"`
}

type ScalingConfig struct {
	Enabled                        bool          `mapstructure:"enabled"`
	MinWorkers                     int           `mapstructure:"min_workers"`
	MaxWorkers                     int           `mapstructure:"max_workers"`
	ScaleUpThreshold               int64         `mapstructure:"scale_up_threshold"`
	ScaleDownThreshold             int64         `mapstructure:"scale_down_threshold"`
	EmergencyThreshold             int64         `mapstructure:"emergency_threshold"`
	EmergencyHighPriorityThreshold int64         `mapstructure:"emergency_high_priority_threshold"`
	EmergencyStep                  int           `mapstructure:"emergency_step"`
	ScaleUpCooldown                time.Duration `mapstructure:"scale_up_cooldown"`
	ScaleDownCooldown              time.Duration `mapstructure:"scale_down_cooldown"`
	DecisionInterval               time.Duration `mapstructure:"decision_interval"`
	PerWorkerRate                  float64       `mapstructure:"per_worker_rate"` // jobs per minute per worker
	RowsPerWorkerIncrement         int64         `mapstructure:"rows_per_worker_increment"`
	TargetSLAMinutes               float64       `mapstructure:"target_sla_minutes"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/riskcast.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "riskcast")
	v.SetDefault("database.name", "riskcast")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("oracle.base_url", "http://localhost:9090")
	v.SetDefault("oracle.model", "default-risk-v2")
	v.SetDefault("oracle.timeout", "60s")
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "riskcast-payloads")
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.min_batch_size", 100)
	v.SetDefault("batch.max_batch_size", 500)
	v.SetDefault("batch.max_rows", 10000)
	v.SetDefault("batch.soft_timeout", "25m")
	v.SetDefault("batch.hard_timeout", "30m")
	v.SetDefault("scaling.enabled", true)
	v.SetDefault("scaling.min_workers", 2)
	v.SetDefault("scaling.max_workers", 12)
	v.SetDefault("scaling.scale_up_threshold", 25)
	v.SetDefault("scaling.scale_down_threshold", 5)
	v.SetDefault("scaling.emergency_threshold", 100)
	v.SetDefault("scaling.emergency_high_priority_threshold", 20)
	v.SetDefault("scaling.emergency_step", 3)
	v.SetDefault("scaling.scale_up_cooldown", "3m")
	v.SetDefault("scaling.scale_down_cooldown", "10m")
	v.SetDefault("scaling.decision_interval", "30s")
	v.SetDefault("scaling.per_worker_rate", 2.0)
	v.SetDefault("scaling.rows_per_worker_increment", 10)
	v.SetDefault("scaling.target_sla_minutes", 15.0)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("oracle.base_url", "ORACLE_BASE_URL")
	v.BindEnv("oracle.api_key", "ORACLE_API_KEY")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
