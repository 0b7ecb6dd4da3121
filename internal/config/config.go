package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Port      int    `yaml:"port"`
		APIKey    string `yaml:"api_key"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"http"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address           string `yaml:"address"`
		Password          string `yaml:"password"`
		DB                int    `yaml:"db"`
		CatalogTTLSeconds int    `yaml:"catalog_ttl_seconds"`
	} `yaml:"redis"`

	Locking struct {
		Backend     string `yaml:"backend"`
		TTLSeconds  int    `yaml:"ttl_seconds"`
		WaitSeconds int    `yaml:"wait_seconds"`
	} `yaml:"locking"`

	Events struct {
		RabbitMQURL string `yaml:"rabbitmq_url"`
		Queue       string `yaml:"queue"`
	} `yaml:"events"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Catalog struct {
		Path          string `yaml:"path"`
		ReloadSeconds int    `yaml:"reload_seconds"`
	} `yaml:"catalog"`

	Ledger struct {
		MaxRangeDays int `yaml:"max_range_days"`
	} `yaml:"ledger"`
}

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/kartoteka.db"
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "configs/catalog.yaml"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) HTTPPort() int {
	if c.HTTP.Port <= 0 {
		return 8080
	}
	return c.HTTP.Port
}

// RateLimit returns requests per second and burst per client. Zero rps disables limiting.
func (c *Config) RateLimit() (float64, int) {
	burst := c.HTTP.RateLimit.Burst
	if burst <= 0 {
		burst = 20
	}
	return c.HTTP.RateLimit.RPS, burst
}

func (c *Config) CatalogTTL() time.Duration {
	if c.Redis.CatalogTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.CatalogTTLSeconds) * time.Second
}

func (c *Config) LockBackend() string {
	if c.Locking.Backend == LockRedis {
		return LockRedis
	}
	return LockLocal
}

func (c *Config) LockTTL() time.Duration {
	if c.Locking.TTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Locking.TTLSeconds) * time.Second
}

func (c *Config) LockWait() time.Duration {
	if c.Locking.WaitSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Locking.WaitSeconds) * time.Second
}

func (c *Config) EventsQueue() string {
	if c.Events.Queue == "" {
		return "kartoteka.reservations"
	}
	return c.Events.Queue
}

func (c *Config) CatalogReloadInterval() time.Duration {
	if c.Catalog.ReloadSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Catalog.ReloadSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.Backup.RetentionDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

func (c *Config) BackupPath() string {
	if c.Backup.Path == "" {
		return "backups"
	}
	return c.Backup.Path
}
