package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/shopspring/decimal"
)

const DefaultConfigPath = "config.yaml"

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SourceConfig describes how the external data source is reached.
type SourceConfig struct {
	// Kind is "external" (subprocess) or "demo" (generated data)
	Kind       string   `yaml:"kind"`
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args"`
	// exported to the subprocess environment when set
	ModulesDir  string `yaml:"modulesDir"`
	DataDir     string `yaml:"dataDir"`
	SourcesList string `yaml:"sourcesList"`
	WorkDir     string `yaml:"workDir"`

	Timeout    string `yaml:"timeout"`
	MinVersion string `yaml:"minVersion"`
	Debug      bool   `yaml:"debug"`
}

// GetTimeout parses and returns the per-invocation timeout
func (c *SourceConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

type PollConfig struct {
	AutoUpdate        bool `yaml:"autoUpdate"`
	AutoMergeAccounts bool `yaml:"autoMergeAccounts"`
	// next run is drawn in [LowHour, HighHour) UTC on the following day
	LowHour  int `yaml:"lowHour"`
	HighHour int `yaml:"highHour"`
	// Schedule is an optional cron expression replacing the random window
	Schedule    string `yaml:"schedule"`
	Concurrency int    `yaml:"concurrency"`
}

type DuplicatesConfig struct {
	ThresholdHours int    `yaml:"thresholdHours"`
	AmountEpsilon  string `yaml:"amountEpsilon"`
}

// GetAmountEpsilon returns the tolerance used when comparing amounts.
func (c *DuplicatesConfig) GetAmountEpsilon() decimal.Decimal {
	d, err := decimal.NewFromString(c.AmountEpsilon)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

type ReportsConfig struct {
	WeeklyDay       string `yaml:"weeklyDay"`
	DefaultCurrency string `yaml:"defaultCurrency"`
	// AlertDebounce bounds how long a crossed threshold stays silent; empty
	// means until the value goes back across the limit
	AlertDebounce string `yaml:"alertDebounce"`
}

// GetWeeklyDay returns the weekday on which weekly reports are sent.
func (c *ReportsConfig) GetWeeklyDay() time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), c.WeeklyDay) {
			return d
		}
	}
	return time.Monday
}

// GetAlertDebounce returns the debounce window, zero meaning no expiry.
func (c *ReportsConfig) GetAlertDebounce() time.Duration {
	d, err := time.ParseDuration(c.AlertDebounce)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Config holds the application configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Source     SourceConfig     `yaml:"source"`
	Poll       PollConfig       `yaml:"poll"`
	Duplicates DuplicatesConfig `yaml:"duplicates"`
	Reports    ReportsConfig    `yaml:"reports"`
}

var (
	// Global configuration instance
	globalConfig *Config
	// Mutex to ensure thread-safe access to the global configuration
	configMutex sync.RWMutex
	// Flag to track if the configuration has been loaded
	configLoaded bool
)

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	dbPath := "bankpoll.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".bankpoll", "bankpoll.db")
	}
	return &Config{
		Database: DatabaseConfig{Path: dbPath},
		Logging:  LoggingConfig{Level: "info"},
		Source: SourceConfig{
			Kind:       "external",
			Executable: "python3",
			Args:       []string{"sources/main.py"},
			Timeout:    "5m",
			MinVersion: "1.5.0",
		},
		Poll: PollConfig{
			AutoUpdate:        true,
			AutoMergeAccounts: true,
			LowHour:           2,
			HighHour:          4,
			Concurrency:       1,
		},
		Duplicates: DuplicatesConfig{
			ThresholdHours: 24,
			AmountEpsilon:  "0",
		},
		Reports: ReportsConfig{
			WeeklyDay:       "monday",
			DefaultCurrency: "EUR",
		},
	}
}

// LoadConfig loads the configuration from the specified YAML file on top of
// the defaults, then applies environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := NewDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Poll.LowHour < 0 || c.Poll.HighHour > 24 || c.Poll.LowHour >= c.Poll.HighHour {
		return fmt.Errorf("invalid poll window [%d, %d)", c.Poll.LowHour, c.Poll.HighHour)
	}
	if c.Duplicates.ThresholdHours < 0 {
		return fmt.Errorf("duplicate threshold must not be negative")
	}
	switch c.Source.Kind {
	case "external", "demo":
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	return nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("BANKPOLL_DB_PATH"); v != "" {
		config.Database.Path = v
	}
	if v := os.Getenv("BANKPOLL_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("BANKPOLL_SOURCE_KIND"); v != "" {
		config.Source.Kind = v
	}
	if v := os.Getenv("BANKPOLL_SOURCE_EXECUTABLE"); v != "" {
		config.Source.Executable = v
	}
	if v := os.Getenv("BANKPOLL_SOURCE_TIMEOUT"); v != "" {
		config.Source.Timeout = v
	}
	if v := os.Getenv("BANKPOLL_DUPLICATE_THRESHOLD"); v != "" {
		if h, err := strconv.Atoi(v); err == nil {
			config.Duplicates.ThresholdHours = h
		}
	}
}

// InitGlobalConfig initializes the global configuration from the specified file
func InitGlobalConfig(configPath string) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	globalConfig = config
	configLoaded = true
	return nil
}

// GetConfig returns the global configuration instance
// If the configuration hasn't been loaded yet, it attempts to load it from
// the default location (./config.yaml) and writes the defaults there when
// the file does not exist.
func GetConfig() (*Config, error) {
	configMutex.RLock()
	if configLoaded {
		defer configMutex.RUnlock()
		return globalConfig, nil
	}
	configMutex.RUnlock()

	if err := InitGlobalConfig(DefaultConfigPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}

		defaultConfig := NewDefaultConfig()
		data, err := yaml.Marshal(defaultConfig)
		if err != nil {
			return nil, fmt.Errorf("error creating default config: %w", err)
		}
		if err := os.WriteFile(DefaultConfigPath, data, 0600); err != nil {
			return nil, fmt.Errorf("error writing default config: %w", err)
		}
		applyEnvOverrides(defaultConfig)

		configMutex.Lock()
		globalConfig = defaultConfig
		configLoaded = true
		configMutex.Unlock()

		return defaultConfig, nil
	}

	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig, nil
}
