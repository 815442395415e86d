package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/compounding/growth-backend/internal/growth"
	"github.com/compounding/growth-backend/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is unset. A missing file is not an error.
const DefaultPath = "configs/config.yaml"

// Config holds all configuration for the application
type Config struct {
	Host       string           `yaml:"host"`
	Port       string           `yaml:"port"`
	Log        LogConfig        `yaml:"log"`
	Simulation SimulationConfig `yaml:"simulation"`
	Insight    InsightConfig    `yaml:"insight"`
	Redis      RedisConfig      `yaml:"redis"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// SimulationConfig holds the initial run and its pacing
type SimulationConfig struct {
	TotalDays      int     `yaml:"total_days"`
	DailyRate      float64 `yaml:"daily_rate"`
	StartValue     float64 `yaml:"start_value"`
	TickIntervalMs int     `yaml:"tick_interval_ms"`
}

// InsightConfig holds the text-generation client configuration
type InsightConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// RedisConfig holds Redis connection configuration. An empty Addr selects the
// in-memory insight cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Host: "0.0.0.0",
		Port: "8080",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Simulation: SimulationConfig{
			TotalDays:      growth.DefaultTotalDays,
			DailyRate:      growth.DefaultDailyRate,
			StartValue:     growth.DefaultStartValue,
			TickIntervalMs: 20,
		},
		Insight: InsightConfig{
			TimeoutSeconds:  20,
			CacheTTLSeconds: 86400,
		},
	}
}

// Path returns the config file location from CONFIG_PATH
func Path() string {
	return getEnv("CONFIG_PATH", DefaultPath)
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Host = getEnv("HOST", c.Host)
	c.Port = getEnv("PORT", c.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	var err error
	if c.Simulation.TickIntervalMs, err = getEnvInt("TICK_INTERVAL_MS", c.Simulation.TickIntervalMs); err != nil {
		return err
	}
	if c.Simulation.TotalDays, err = getEnvInt("SIM_TOTAL_DAYS", c.Simulation.TotalDays); err != nil {
		return err
	}
	if c.Simulation.DailyRate, err = getEnvFloat("SIM_DAILY_RATE", c.Simulation.DailyRate); err != nil {
		return err
	}
	if c.Simulation.StartValue, err = getEnvFloat("SIM_START_VALUE", c.Simulation.StartValue); err != nil {
		return err
	}

	// INSIGHT_API_KEY wins over the provider-specific name
	c.Insight.APIKey = getEnv("INSIGHT_API_KEY", getEnv("GEMINI_API_KEY", c.Insight.APIKey))
	c.Insight.Model = getEnv("INSIGHT_MODEL", c.Insight.Model)
	c.Insight.BaseURL = getEnv("INSIGHT_BASE_URL", c.Insight.BaseURL)
	if c.Insight.TimeoutSeconds, err = getEnvInt("INSIGHT_TIMEOUT_SECONDS", c.Insight.TimeoutSeconds); err != nil {
		return err
	}
	if c.Insight.CacheTTLSeconds, err = getEnvInt("INSIGHT_CACHE_TTL_SECONDS", c.Insight.CacheTTLSeconds); err != nil {
		return err
	}

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	return nil
}

// Validate checks that all values are usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	s := c.Simulation
	if s.TotalDays < models.MinTotalDays || s.TotalDays > models.MaxTotalDays {
		return fmt.Errorf("simulation.total_days must be between %d and %d", models.MinTotalDays, models.MaxTotalDays)
	}
	if s.DailyRate < models.MinDailyRate || s.DailyRate > models.MaxDailyRate {
		return fmt.Errorf("simulation.daily_rate must be between %g and %g", models.MinDailyRate, models.MaxDailyRate)
	}
	if err := c.Growth().Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if s.TickIntervalMs <= 0 {
		return fmt.Errorf("simulation.tick_interval_ms must be positive")
	}
	if c.Insight.TimeoutSeconds <= 0 {
		return fmt.Errorf("insight.timeout_seconds must be positive")
	}
	if c.Insight.CacheTTLSeconds < 0 {
		return fmt.Errorf("insight.cache_ttl_seconds must not be negative")
	}
	return nil
}

// Address returns the full address (host:port)
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Growth returns the initial run configuration
func (c *Config) Growth() growth.Config {
	return growth.Config{
		TotalDays:  c.Simulation.TotalDays,
		DailyRate:  c.Simulation.DailyRate,
		StartValue: c.Simulation.StartValue,
	}
}

// TickInterval returns the pacing interval between simulated days
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Simulation.TickIntervalMs) * time.Millisecond
}

// InsightTimeout bounds one insight request
func (c *Config) InsightTimeout() time.Duration {
	return time.Duration(c.Insight.TimeoutSeconds) * time.Second
}

// CacheTTL is how long a generated insight is reused (0 = no expiration)
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Insight.CacheTTLSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return f, nil
}
