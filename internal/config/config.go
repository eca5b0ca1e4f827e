// Package config loads application configuration with viper: a YAML file
// plus environment variable overrides and defaults for every key.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Sandbox    SandboxConfig    `mapstructure:"sandbox"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Lifecycle  LifecycleConfig  `mapstructure:"lifecycle"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `mapstructure:"port"` // listen port
	Mode string `mapstructure:"mode"` // debug / release
}

// RedisConfig holds the durable store connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// GitHubConfig holds repository metadata provider settings.
type GitHubConfig struct {
	APIBaseURL string `mapstructure:"api_base_url"`
	// Token raises the unauthenticated rate limit; optional.
	Token string `mapstructure:"token"`
}

// SandboxConfig holds the sandbox control API settings.
type SandboxConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
	// Workdir is the workspace root inside a sandbox.
	Workdir string `mapstructure:"workdir"`
	// PreviewDomain is the domain under which exposed ports are published.
	PreviewDomain string `mapstructure:"preview_domain"`
}

// ClassifierConfig holds the AI environment classifier settings.
type ClassifierConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
}

// LimitsConfig holds the rate limiting knobs. Windows are in seconds.
type LimitsConfig struct {
	SessionsPerIP       int `mapstructure:"sessions_per_ip"` // per window
	SessionsPerIPWindow int `mapstructure:"sessions_per_ip_window"`
	SessionsPerRepo     int `mapstructure:"sessions_per_repo"` // concurrently active
	ExecsPerSession     int `mapstructure:"execs_per_session"` // per window
	ExecWindow          int `mapstructure:"exec_window"`
}

// LifecycleConfig holds TTLs and phase timeouts for the session coordinator.
type LifecycleConfig struct {
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockWait       time.Duration `mapstructure:"lock_wait"`
	LockPoll       time.Duration `mapstructure:"lock_poll"`
	CloneTimeout   time.Duration `mapstructure:"clone_timeout"`
	InstallTimeout time.Duration `mapstructure:"install_timeout"`
	BuildTimeout   time.Duration `mapstructure:"build_timeout"`
	StartTimeout   time.Duration `mapstructure:"start_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug/info/warn/error
	Format string `mapstructure:"format"` // text/json
}

// Load reads configuration from configPath, with environment variables
// overriding file values and defaults backfilling everything else.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVariables(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; defaults and env vars cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.username", "REDIS_USERNAME")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	v.BindEnv("github.token", "GITHUB_TOKEN")

	v.BindEnv("sandbox.base_url", "SANDBOX_BASE_URL")
	v.BindEnv("sandbox.token", "SANDBOX_TOKEN")
	v.BindEnv("sandbox.preview_domain", "SANDBOX_PREVIEW_DOMAIN")

	v.BindEnv("classifier.endpoint", "CLASSIFIER_ENDPOINT")
	v.BindEnv("classifier.model", "CLASSIFIER_MODEL")
	v.BindEnv("classifier.api_key", "CLASSIFIER_API_KEY")

	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)

	v.SetDefault("github.api_base_url", "https://api.github.com")

	v.SetDefault("sandbox.base_url", "http://localhost:9090")
	v.SetDefault("sandbox.workdir", "/workspace")
	v.SetDefault("sandbox.preview_domain", "preview.localhost")

	v.SetDefault("classifier.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("classifier.model", "gpt-4o-mini")

	v.SetDefault("limits.sessions_per_ip", 10)
	v.SetDefault("limits.sessions_per_ip_window", 3600)
	v.SetDefault("limits.sessions_per_repo", 1)
	v.SetDefault("limits.execs_per_session", 30)
	v.SetDefault("limits.exec_window", 60)

	v.SetDefault("lifecycle.session_ttl", "4h")
	v.SetDefault("lifecycle.lock_ttl", "30s")
	v.SetDefault("lifecycle.lock_wait", "5s")
	v.SetDefault("lifecycle.lock_poll", "500ms")
	v.SetDefault("lifecycle.clone_timeout", "2m")
	v.SetDefault("lifecycle.install_timeout", "5m")
	v.SetDefault("lifecycle.build_timeout", "5m")
	v.SetDefault("lifecycle.start_timeout", "30s")
	v.SetDefault("lifecycle.settle_delay", "3s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
