package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type LedgerConfig struct {
	DatabasePath string `mapstructure:"database_path"`
	EventLogPath string `mapstructure:"event_log_path"`
	AppendQueue  int    `mapstructure:"append_queue"`
}

type DispatchConfig struct {
	QueueCapacity  int `mapstructure:"queue_capacity"`
	NotifyCapacity int `mapstructure:"notify_capacity"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// PositionLimit caps absolute exposure for one (strategy, symbol) pair.
// Limits are enforced at order submission, never at fill time.
type PositionLimit struct {
	Strategy string  `mapstructure:"strategy"`
	Symbol   string  `mapstructure:"symbol"`
	Limit    float64 `mapstructure:"limit"`
}

// MarketConfig describes one exchange connection.
type MarketConfig struct {
	Name       string          `mapstructure:"name"`
	Account    int64           `mapstructure:"account"`
	Strategies []string        `mapstructure:"strategies"`
	Limits     []PositionLimit `mapstructure:"limits"`
}

type Config struct {
	App             AppConfig      `mapstructure:"app"`
	Ledger          LedgerConfig   `mapstructure:"ledger"`
	Dispatch        DispatchConfig `mapstructure:"dispatch"`
	HTTP            HTTPConfig     `mapstructure:"http"`
	InstrumentsPath string         `mapstructure:"instruments_path"`
	Markets         []MarketConfig `mapstructure:"markets"`
}

// Load reads and validates the YAML config file at path.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Ledger.DatabasePath == "" {
		c.Ledger.DatabasePath = "data/ledger.db"
	}
	if c.Ledger.EventLogPath == "" {
		c.Ledger.EventLogPath = "data/recon_log.db"
	}
	if c.Ledger.AppendQueue <= 0 {
		c.Ledger.AppendQueue = 1024
	}
	if c.Dispatch.QueueCapacity <= 0 {
		c.Dispatch.QueueCapacity = 4096
	}
	if c.Dispatch.NotifyCapacity <= 0 {
		c.Dispatch.NotifyCapacity = 1024
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8880"
	}
}

func validate(c *Config) error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("config: at least one market is required")
	}
	seen := make(map[string]bool, len(c.Markets))
	for i, m := range c.Markets {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("config: markets[%d] has no name", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("config: duplicate market %q", m.Name)
		}
		seen[m.Name] = true
		for _, lim := range m.Limits {
			if lim.Limit < 0 {
				return fmt.Errorf("config: market %s has a negative limit for %s/%s", m.Name, lim.Strategy, lim.Symbol)
			}
		}
	}
	return nil
}
