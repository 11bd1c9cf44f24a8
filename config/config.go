/*
Package config loads server configuration.

PRIORITY (highest to lowest):
  1. Environment variables with SALON_ prefix (SALON_DATABASE_PATH)
  2. .env file in the working directory (loaded into the environment)
  3. config.toml in the search paths
  4. Built-in defaults

KEYS:
  app.port                    HTTP port (8080)
  database.path               SQLite file, ":memory:" for throwaway runs (salon.db)
  log.level / log.format      info / console
  log.output                  stdout
  commission.default_pay_day  due day for professionals without one (5)
  scheduler.overdue_enabled   background overdue sweep (false)
  scheduler.overdue_interval  sweep interval (1h)
  redis.addr                  enables the Redis approval lock when set
  lock.ttl                    Redis lock TTL (10s)
  http.cors_allow_origins     allowed CORS origins
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Log        LogConfig
	Commission CommissionConfig
	Scheduler  SchedulerConfig
	Redis      RedisConfig
	Lock       LockConfig
	HTTP       HTTPConfig
}

type AppConfig struct {
	Port int
}

type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type CommissionConfig struct {
	DefaultPayDay int
}

type SchedulerConfig struct {
	OverdueEnabled  bool
	OverdueInterval time.Duration
}

// RedisConfig is only used for the distributed approval lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type LockConfig struct {
	TTL time.Duration
}

type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	CORSAllowOrigins []string
}

// Load reads configuration. searchPaths are directories to look for
// config.toml in; "." when none are given.
func Load(searchPaths ...string) (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SALON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Port: v.GetInt("app.port"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Commission: CommissionConfig{
			DefaultPayDay: v.GetInt("commission.default_pay_day"),
		},
		Scheduler: SchedulerConfig{
			OverdueEnabled:  v.GetBool("scheduler.overdue_enabled"),
			OverdueInterval: v.GetDuration("scheduler.overdue_interval"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Lock: LockConfig{
			TTL: v.GetDuration("lock.ttl"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 8080)
	v.SetDefault("database.path", "salon.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("commission.default_pay_day", 5)
	v.SetDefault("scheduler.overdue_enabled", false)
	v.SetDefault("scheduler.overdue_interval", time.Hour)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.cors_allow_origins", []string{"http://localhost:5173", "http://localhost:8080"})
}

func (c *Config) validate() error {
	if c.App.Port < 1 || c.App.Port > 65535 {
		return fmt.Errorf("app.port must be between 1 and 65535, got %d", c.App.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Commission.DefaultPayDay < 1 || c.Commission.DefaultPayDay > 31 {
		return fmt.Errorf("commission.default_pay_day must be between 1 and 31, got %d", c.Commission.DefaultPayDay)
	}
	if c.Scheduler.OverdueEnabled && c.Scheduler.OverdueInterval <= 0 {
		return fmt.Errorf("scheduler.overdue_interval must be positive, got %s", c.Scheduler.OverdueInterval)
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive, got %s", c.Lock.TTL)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.App.Port) }
