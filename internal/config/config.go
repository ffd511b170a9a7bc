package config

import (
    "fmt"
    "strings"
    "time"

    "github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
    App         AppConfig         `mapstructure:"app"`
    Database    DatabaseConfig    `mapstructure:"database"`
    Redis       RedisConfig       `mapstructure:"redis"`
    Dispatch    DispatchConfig    `mapstructure:"dispatch"`
    Provider    ProviderConfig    `mapstructure:"provider"`
    Billing     BillingConfig     `mapstructure:"billing"`
    Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
    Security    SecurityConfig    `mapstructure:"security"`
    Performance PerformanceConfig `mapstructure:"performance"`
}

// AppConfig holds application-level configuration
type AppConfig struct {
    Name        string `mapstructure:"name"`
    Version     string `mapstructure:"version"`
    Environment string `mapstructure:"environment"`
    Debug       bool   `mapstructure:"debug"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
    Driver          string        `mapstructure:"driver"`
    Host            string        `mapstructure:"host"`
    Port            int           `mapstructure:"port"`
    Username        string        `mapstructure:"username"`
    Password        string        `mapstructure:"password"`
    Database        string        `mapstructure:"database"`
    MaxOpenConns    int           `mapstructure:"max_open_conns"`
    MaxIdleConns    int           `mapstructure:"max_idle_conns"`
    ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
    RetryAttempts   int           `mapstructure:"retry_attempts"`
    RetryDelay      time.Duration `mapstructure:"retry_delay"`
    SSLMode         string        `mapstructure:"ssl_mode"`
    Charset         string        `mapstructure:"charset"`
}

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
    Host         string        `mapstructure:"host"`
    Port         int           `mapstructure:"port"`
    Password     string        `mapstructure:"password"`
    DB           int           `mapstructure:"db"`
    PoolSize     int           `mapstructure:"pool_size"`
    MinIdleConns int           `mapstructure:"min_idle_conns"`
    MaxRetries   int           `mapstructure:"max_retries"`
    DialTimeout  time.Duration `mapstructure:"dial_timeout"`
    ReadTimeout  time.Duration `mapstructure:"read_timeout"`
    WriteTimeout time.Duration `mapstructure:"write_timeout"`
    PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
    IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DispatchConfig holds Job Dispatch Engine tuning.
type DispatchConfig struct {
    PollInterval      time.Duration `mapstructure:"poll_interval"`
    IdleSleepFactor   int           `mapstructure:"idle_sleep_factor"`
    MaxAttempts       int           `mapstructure:"max_attempts"`
    ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
    Once              bool          `mapstructure:"once"`
}

// ProviderConfig holds external business-listing API tuning.
type ProviderConfig struct {
    RequestTimeout    time.Duration `mapstructure:"request_timeout"`
    MaxResultsDefault int           `mapstructure:"max_results_default"`
    DefaultRadiusM    int           `mapstructure:"default_radius_m"`
    MaxRadiusM        int           `mapstructure:"max_radius_m"`
}

// BillingConfig holds rate-card and warning defaults.
type BillingConfig struct {
    BaseFeeEUR          float64       `mapstructure:"base_fee_eur"`
    PerResultStandard   float64       `mapstructure:"per_result_standard"`
    PerResultPremium    float64       `mapstructure:"per_result_premium"`
    PerResultKomplett   float64       `mapstructure:"per_result_komplett"`
    WarningThresholdCents int64       `mapstructure:"warning_threshold_cents"`
    WarningDedupeWindow time.Duration `mapstructure:"warning_dedupe_window"`
}

// MonitoringConfig holds monitoring and observability configuration
type MonitoringConfig struct {
    Metrics MetricsConfig `mapstructure:"metrics"`
    Health  HealthConfig  `mapstructure:"health"`
    Logging LoggingConfig `mapstructure:"logging"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
    Enabled         bool          `mapstructure:"enabled"`
    Port            int           `mapstructure:"port"`
    Path            string        `mapstructure:"path"`
    Namespace       string        `mapstructure:"namespace"`
    Subsystem       string        `mapstructure:"subsystem"`
    CollectInterval time.Duration `mapstructure:"collect_interval"`
}

// HealthConfig holds health check configuration
type HealthConfig struct {
    Enabled       bool          `mapstructure:"enabled"`
    Port          int           `mapstructure:"port"`
    LivenessPath  string        `mapstructure:"liveness_path"`
    ReadinessPath string        `mapstructure:"readiness_path"`
    CheckInterval time.Duration `mapstructure:"check_interval"`
    CheckTimeout  time.Duration `mapstructure:"check_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
    Level  string                 `mapstructure:"level"`
    Format string                 `mapstructure:"format"`
    Output string                 `mapstructure:"output"`
    File   FileLogConfig          `mapstructure:"file"`
    Fields map[string]interface{} `mapstructure:"fields"`
}

// FileLogConfig holds file-based logging configuration
type FileLogConfig struct {
    Enabled    bool   `mapstructure:"enabled"`
    Path       string `mapstructure:"path"`
    MaxSize    int    `mapstructure:"max_size"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAge     int    `mapstructure:"max_age"`
    Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
    TLS       TLSConfig       `mapstructure:"tls"`
    API       APIConfig       `mapstructure:"api"`
    RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
    Enabled            bool     `mapstructure:"enabled"`
    CertFile           string   `mapstructure:"cert_file"`
    KeyFile            string   `mapstructure:"key_file"`
    CAFile             string   `mapstructure:"ca_file"`
    InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
    MinVersion         string   `mapstructure:"min_version"`
    CipherSuites       []string `mapstructure:"cipher_suites"`
}

// APIConfig holds admin API configuration (order intake lives outside this module).
type APIConfig struct {
    Enabled      bool          `mapstructure:"enabled"`
    Port         int           `mapstructure:"port"`
    AuthToken    string        `mapstructure:"auth_token"`
    CORSEnabled  bool          `mapstructure:"cors_enabled"`
    CORSOrigins  []string      `mapstructure:"cors_origins"`
    ReadTimeout  time.Duration `mapstructure:"read_timeout"`
    WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RateLimitConfig holds default per-partner rate-limit ceilings.
type RateLimitConfig struct {
    PerMinute int `mapstructure:"per_minute"`
    PerHour   int `mapstructure:"per_hour"`
    PerDay    int `mapstructure:"per_day"`
}

// PerformanceConfig holds performance tuning configuration
type PerformanceConfig struct {
    WorkerPoolSize  int           `mapstructure:"worker_pool_size"`
    QueueSize       int           `mapstructure:"queue_size"`
    BatchSize       int           `mapstructure:"batch_size"`
    GCInterval      time.Duration `mapstructure:"gc_interval"`
    MaxProcs        int           `mapstructure:"max_procs"`
    EnableProfiling bool          `mapstructure:"enable_profiling"`
    ProfilingPort   int           `mapstructure:"profiling_port"`
}

// Load loads configuration from file and environment
func Load(configFile string) (*Config, error) {
    if configFile != "" {
        viper.SetConfigFile(configFile)
    } else {
        viper.SetConfigName("config")
        viper.SetConfigType("yaml")
        viper.AddConfigPath("./configs")
        viper.AddConfigPath("/etc/recherche-orchestrator")
        viper.AddConfigPath(".")
    }

    // Set environment variable support
    viper.SetEnvPrefix("RECHERCHE_ORCHESTRATOR")
    viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    viper.AutomaticEnv()

    // Set defaults
    setDefaults()

    // Read configuration
    if err := viper.ReadInConfig(); err != nil {
        if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
            return nil, fmt.Errorf("failed to read config file: %w", err)
        }
        // Config file not found; use defaults and environment
    }

    // Unmarshal into config struct
    var config Config
    if err := viper.Unmarshal(&config); err != nil {
        return nil, fmt.Errorf("failed to unmarshal config: %w", err)
    }

    // Validate configuration
    if err := config.Validate(); err != nil {
        return nil, fmt.Errorf("invalid configuration: %w", err)
    }

    return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
    // App defaults
    viper.SetDefault("app.name", "recherche-orchestrator")
    viper.SetDefault("app.version", "1.0.0")
    viper.SetDefault("app.environment", "development")
    viper.SetDefault("app.debug", false)

    // Database defaults
    viper.SetDefault("database.driver", "mysql")
    viper.SetDefault("database.host", "localhost")
    viper.SetDefault("database.port", 3306)
    viper.SetDefault("database.username", "recherche")
    viper.SetDefault("database.password", "recherche")
    viper.SetDefault("database.database", "recherche_orchestrator")
    viper.SetDefault("database.max_open_conns", 25)
    viper.SetDefault("database.max_idle_conns", 5)
    viper.SetDefault("database.conn_max_lifetime", "5m")
    viper.SetDefault("database.retry_attempts", 3)
    viper.SetDefault("database.retry_delay", "1s")
    viper.SetDefault("database.charset", "utf8mb4")

    // Redis defaults
    viper.SetDefault("redis.host", "localhost")
    viper.SetDefault("redis.port", 6379)
    viper.SetDefault("redis.db", 0)
    viper.SetDefault("redis.pool_size", 10)
    viper.SetDefault("redis.min_idle_conns", 5)
    viper.SetDefault("redis.max_retries", 3)
    viper.SetDefault("redis.dial_timeout", "5s")
    viper.SetDefault("redis.read_timeout", "3s")
    viper.SetDefault("redis.write_timeout", "3s")

    // Dispatch defaults
    viper.SetDefault("dispatch.poll_interval", "5s")
    viper.SetDefault("dispatch.idle_sleep_factor", 6)
    viper.SetDefault("dispatch.max_attempts", 3)
    viper.SetDefault("dispatch.shutdown_grace", "30s")
    viper.SetDefault("dispatch.once", false)

    // Provider defaults
    viper.SetDefault("provider.request_timeout", "30s")
    viper.SetDefault("provider.max_results_default", 60)
    viper.SetDefault("provider.default_radius_m", 15000)
    viper.SetDefault("provider.max_radius_m", 50000)

    // Billing defaults (matches the partner rate-card column defaults)
    viper.SetDefault("billing.base_fee_eur", 0.50)
    viper.SetDefault("billing.per_result_standard", 0.05)
    viper.SetDefault("billing.per_result_premium", 0.12)
    viper.SetDefault("billing.per_result_komplett", 0.18)
    viper.SetDefault("billing.warning_threshold_cents", 1000)
    viper.SetDefault("billing.warning_dedupe_window", "24h")

    // Monitoring defaults
    viper.SetDefault("monitoring.metrics.enabled", true)
    viper.SetDefault("monitoring.metrics.port", 9090)
    viper.SetDefault("monitoring.metrics.path", "/metrics")
    viper.SetDefault("monitoring.health.enabled", true)
    viper.SetDefault("monitoring.health.port", 8080)
    viper.SetDefault("monitoring.health.liveness_path", "/health/live")
    viper.SetDefault("monitoring.health.readiness_path", "/health/ready")
    viper.SetDefault("monitoring.logging.level", "info")
    viper.SetDefault("monitoring.logging.format", "json")
    viper.SetDefault("monitoring.logging.output", "stdout")

    // Security defaults
    viper.SetDefault("security.tls.enabled", false)
    viper.SetDefault("security.api.enabled", true)
    viper.SetDefault("security.api.port", 8081)
    viper.SetDefault("security.api.cors_enabled", true)
    viper.SetDefault("security.rate_limit.per_minute", 60)
    viper.SetDefault("security.rate_limit.per_hour", 1000)
    viper.SetDefault("security.rate_limit.per_day", 10000)

    // Performance defaults
    viper.SetDefault("performance.worker_pool_size", 10)
    viper.SetDefault("performance.queue_size", 100)
    viper.SetDefault("performance.batch_size", 1)
    viper.SetDefault("performance.gc_interval", "1m")
}

// Validate validates the configuration
func (c *Config) Validate() error {
    if c.Database.Host == "" {
        return fmt.Errorf("database host is required")
    }
    if c.Database.Port <= 0 || c.Database.Port > 65535 {
        return fmt.Errorf("invalid database port: %d", c.Database.Port)
    }
    if c.Database.Username == "" {
        return fmt.Errorf("database username is required")
    }
    if c.Database.Database == "" {
        return fmt.Errorf("database name is required")
    }

    if c.Dispatch.PollInterval <= 0 {
        return fmt.Errorf("dispatch poll interval must be positive")
    }
    if c.Dispatch.MaxAttempts <= 0 {
        return fmt.Errorf("dispatch max attempts must be positive")
    }
    if c.Dispatch.IdleSleepFactor <= 0 {
        return fmt.Errorf("dispatch idle sleep factor must be positive")
    }

    if c.Provider.MaxRadiusM <= 0 {
        return fmt.Errorf("provider max radius must be positive")
    }

    // Validate Redis configuration if host is provided
    if c.Redis.Host != "" {
        if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
            return fmt.Errorf("invalid Redis port: %d", c.Redis.Port)
        }
    }

    // Validate monitoring ports
    if c.Monitoring.Metrics.Enabled {
        if c.Monitoring.Metrics.Port <= 0 || c.Monitoring.Metrics.Port > 65535 {
            return fmt.Errorf("invalid metrics port: %d", c.Monitoring.Metrics.Port)
        }
    }
    if c.Monitoring.Health.Enabled {
        if c.Monitoring.Health.Port <= 0 || c.Monitoring.Health.Port > 65535 {
            return fmt.Errorf("invalid health port: %d", c.Monitoring.Health.Port)
        }
    }

    // Validate API configuration
    if c.Security.API.Enabled {
        if c.Security.API.Port <= 0 || c.Security.API.Port > 65535 {
            return fmt.Errorf("invalid API port: %d", c.Security.API.Port)
        }
    }

    // Validate performance settings
    if c.Performance.WorkerPoolSize <= 0 {
        return fmt.Errorf("worker pool size must be positive")
    }
    if c.Performance.QueueSize <= 0 {
        return fmt.Errorf("queue size must be positive")
    }

    return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
    charset := c.Charset
    if charset == "" {
        charset = "utf8mb4"
    }

    return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=Local",
        c.Username,
        c.Password,
        c.Host,
        c.Port,
        c.Database,
        charset,
    )
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
    return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
    return strings.ToLower(c.Environment) == "production"
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
    return strings.ToLower(c.Environment) == "development"
}

// IsDebug returns true if debug mode is enabled
func (c *AppConfig) IsDebug() bool {
    return c.Debug
}
