package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config: корневая структура конфигурации сервиса.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Permissions PermissionsConfig `mapstructure:"permissions"`
	Jira        JiraConfig        `mapstructure:"jira"`
	Advisory    AdvisoryConfig    `mapstructure:"advisory"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig описывает подключение к PostgreSQL. Пустой URL включает хранилище в памяти.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis для событий жизненного цикла.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

const (
	AuthModeHeaders = "headers"
	AuthModeJWT     = "jwt"
)

// AuthConfig задаёт способ получения личности пользователя на границе.
type AuthConfig struct {
	Mode          string `mapstructure:"mode"` // headers, jwt
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// PermissionsConfig: Enforce=false разрешает оценку и решение любой роли.
type PermissionsConfig struct {
	Enforce bool `mapstructure:"enforce"`
}

// JiraConfig настраивает интеграцию с трекером.
type JiraConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Username      string        `mapstructure:"username"`
	APIToken      string        `mapstructure:"api_token"`
	ProjectKey    string        `mapstructure:"project_key"`
	CanceledLabel string        `mapstructure:"canceled_label"`
	Timeout       time.Duration `mapstructure:"timeout"`

	// Circuit Breaker и лимиты для вызовов Jira
	CBMaxRequests  uint32        `mapstructure:"cb_max_requests"`
	CBInterval     time.Duration `mapstructure:"cb_interval"`
	CBTimeout      time.Duration `mapstructure:"cb_timeout"`
	RetryAttempts  uint          `mapstructure:"retry_attempts"` // только GET и PUT, POST уходит один раз
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// Configured сообщает, заданы ли все реквизиты. Иначе адаптер работает в mock-режиме.
func (j JiraConfig) Configured() bool {
	return j.BaseURL != "" && j.Username != "" && j.APIToken != ""
}

const (
	AdvisoryHeuristic = "heuristic"
	AdvisoryAnthropic = "anthropic"
	AdvisoryNone      = "none"
)

type AdvisoryConfig struct {
	Provider        string        `mapstructure:"provider"` // heuristic, anthropic, none
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
	Model           string        `mapstructure:"model"`
	MaxTokens       int64         `mapstructure:"max_tokens"`
	MockDelay       time.Duration `mapstructure:"mock_delay"`
}

// AuditConfig настраивает журнал событий.
type AuditConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя .env, файл и ENV.
func LoadConfig() (*Config, error) {
	// .env необязателен, уже выставленные переменные не перетираются
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет, работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate отсекает заведомо неработоспособные комбинации.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case AuthModeHeaders:
	case AuthModeJWT:
		if len(c.Auth.PublicKey) == 0 {
			return fmt.Errorf("auth mode %q requires a public key", c.Auth.Mode)
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}

	switch c.Advisory.Provider {
	case AdvisoryHeuristic, AdvisoryAnthropic, AdvisoryNone:
	default:
		return fmt.Errorf("unknown advisory provider %q", c.Advisory.Provider)
	}

	if c.Jira.CanceledLabel == "" {
		return errors.New("jira canceled label must not be empty")
	}
	if c.Audit.BatchSize <= 0 || c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer and batch sizes must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.mode", AuthModeHeaders)
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("permissions.enforce", false)

	v.SetDefault("jira.base_url", "")
	v.SetDefault("jira.username", "")
	v.SetDefault("jira.api_token", "")
	v.SetDefault("jira.project_key", "REQ")
	v.SetDefault("jira.canceled_label", "canceled")
	v.SetDefault("jira.timeout", 10*time.Second)
	v.SetDefault("jira.cb_max_requests", 3)
	v.SetDefault("jira.cb_interval", 5*time.Second)
	v.SetDefault("jira.cb_timeout", 30*time.Second)
	v.SetDefault("jira.retry_attempts", 3)
	v.SetDefault("jira.retry_max_delay", 5*time.Second)
	v.SetDefault("jira.rate_limit_rps", 10)
	v.SetDefault("jira.rate_limit_burst", 5)

	v.SetDefault("advisory.provider", AdvisoryHeuristic)
	v.SetDefault("advisory.anthropic_api_key", "")
	v.SetDefault("advisory.model", "claude-3-5-haiku-latest")
	v.SetDefault("advisory.max_tokens", 1024)
	v.SetDefault("advisory.mock_delay", 100*time.Millisecond)

	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("audit.flush_interval", 1*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource: PEM прямо в ENV имеет приоритет над файлом
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
