package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/viper"
)

// Config holds all configuration for meetflow
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Ingestion   IngestionConfig   `mapstructure:"ingestion"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

func (g GeneralConfig) Normalize() GeneralConfig {
	g.LogLevel = strings.ToLower(strings.TrimSpace(g.LogLevel))
	if g.Debug {
		g.LogLevel = "debug"
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	return g
}

func (g GeneralConfig) Validate() error {
	switch g.LogLevel {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("general.log_level must be one of debug|info|warn|error, got %q", g.LogLevel)
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

func (s ServerConfig) Normalize() ServerConfig {
	s.Address = strings.TrimSpace(s.Address)
	if s.Address != "" && !strings.Contains(s.Address, ":") {
		s.Address = ":" + s.Address
	}
	if s.Address == "" {
		s.Address = ":10001"
	}
	return s
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings. An empty host disables redis.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        string        `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MeetingsTTL time.Duration `mapstructure:"meetings_ttl"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Normalize() RedisConfig {
	if r.Enabled() && strings.TrimSpace(r.Port) == "" {
		r.Port = "6379"
	}
	if r.Timeout <= 0 {
		r.Timeout = 5 * time.Second
	}
	return r
}

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if r.DB < 0 {
		return fmt.Errorf("storage.redis.db cannot be negative")
	}
	if r.MeetingsTTL < 0 {
		return fmt.Errorf("storage.redis.meetings_ttl cannot be negative")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings. Neither url nor host disables
// postgres.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" || !p.Enabled() {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the url, or builds one from the individual fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	if !p.Enabled() {
		return ""
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

func (t TelemetryConfig) Normalize() TelemetryConfig {
	if strings.TrimSpace(t.ServiceName) == "" {
		t.ServiceName = "meetflow"
	}
	return t
}

// SourceConfig describes one upstream of raw meeting payloads.
type SourceConfig struct {
	Name       string        `mapstructure:"name"`
	Kind       string        `mapstructure:"kind"`
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// IngestionConfig controls syncing and normalization.
type IngestionConfig struct {
	Sources           []SourceConfig `mapstructure:"sources"`
	Domains           []string       `mapstructure:"domains"`
	Schedule          string         `mapstructure:"schedule"`
	StableFallbackIDs bool           `mapstructure:"stable_fallback_ids"`
	LockTTL           time.Duration  `mapstructure:"lock_ttl"`
}

func (c IngestionConfig) Normalize() IngestionConfig {
	seen := make(map[string]struct{}, len(c.Domains))
	var domains []string
	for _, d := range c.Domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		domains = append(domains, d)
	}
	c.Domains = domains
	c.Schedule = strings.TrimSpace(c.Schedule)
	if c.Schedule == "" {
		c.Schedule = "@hourly"
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			s.Name = s.Kind
		}
	}
	return c
}

func (c IngestionConfig) Validate() error {
	for i, s := range c.Sources {
		if s.Kind != "webhook" && s.Kind != "proxy" {
			return fmt.Errorf("ingestion.sources[%d].kind must be webhook or proxy, got %q", i, s.Kind)
		}
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("ingestion.sources[%d].url required", i)
		}
		if s.MaxRetries < 0 {
			return fmt.Errorf("ingestion.sources[%d].max_retries cannot be negative", i)
		}
	}
	switch c.Schedule {
	case "@hourly", "@daily":
	default:
		if _, err := cronexpr.Parse(c.Schedule); err != nil {
			return fmt.Errorf("ingestion.schedule: %w", err)
		}
	}
	return nil
}

// AggregationConfig points at the aggregation job API.
type AggregationConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	StartPath      string        `mapstructure:"start_path"`
	StatusPath     string        `mapstructure:"status_path"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func (a AggregationConfig) Enabled() bool { return strings.TrimSpace(a.BaseURL) != "" }

func (a AggregationConfig) Validate() error {
	if a.PollInterval <= 0 {
		return fmt.Errorf("aggregation.poll_interval must be > 0")
	}
	if a.MaxAttempts <= 0 {
		return fmt.Errorf("aggregation.max_attempts must be > 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("storage.redis.timeout", "5s")
	v.SetDefault("storage.redis.meetings_ttl", "24h")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "meetflow")
	v.SetDefault("ingestion.schedule", "@hourly")
	v.SetDefault("ingestion.lock_ttl", "2m")
	v.SetDefault("aggregation.start_path", "/aggregate")
	v.SetDefault("aggregation.status_path", "/aggregate/status")
	v.SetDefault("aggregation.poll_interval", "2s")
	v.SetDefault("aggregation.max_attempts", 30)
	v.SetDefault("aggregation.request_timeout", "10s")
}

// LoadConfig reads configuration from path, or from the usual search paths when path is
// empty. A missing config file is not an error in the second case: defaults and
// MEETFLOW_* environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("MEETFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.General = cfg.General.Normalize()
	cfg.Server = cfg.Server.Normalize()
	cfg.Storage.Redis = cfg.Storage.Redis.Normalize()
	cfg.Telemetry = cfg.Telemetry.Normalize()
	cfg.Ingestion = cfg.Ingestion.Normalize()

	for _, validate := range []func() error{
		cfg.General.Validate,
		cfg.Storage.Redis.Validate,
		cfg.Storage.Postgres.Validate,
		cfg.Ingestion.Validate,
		cfg.Aggregation.Validate,
	} {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
