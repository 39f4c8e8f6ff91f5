// Package config loads the configuration of the bank model run by the desim
// command.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of the environment variables that override the
// configuration file.
const EnvPrefix = "DESIM_"

// Config represents the entire configuration of a bank model run.
type Config struct {
	Seed uint64 `yaml:"seed"`

	// MaxTime stops the run after the last event at or before it. Zero means
	// the run continues until no event is left.
	MaxTime float64 `yaml:"maxTime"`

	Bank    BankConfig    `yaml:"bank"`
	Record  string        `yaml:"record,omitempty"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// BankConfig describes the bank and its customers.
type BankConfig struct {
	Customers       int     `yaml:"customers"`
	ArrivalInterval float64 `yaml:"arrivalInterval"`
	MinPatience     float64 `yaml:"minPatience"`
	MaxPatience     float64 `yaml:"maxPatience"`
	Counters        int     `yaml:"counters"`
	TimeInBank      float64 `yaml:"timeInBank"`
}

// MonitorConfig controls the monitoring server.
type MonitorConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port,omitempty"`
}

// Default returns the classic bank renege setup.
func Default() Config {
	return Config{
		Seed: 42,
		Bank: BankConfig{
			Customers:       5,
			ArrivalInterval: 10,
			MinPatience:     1,
			MaxPatience:     3,
			Counters:        1,
			TimeInBank:      12,
		},
	}
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadEnv reads the given .env files into the process environment. Without
// arguments it reads ".env" in the working directory if there is one.
// Variables already set are never overwritten.
func LoadEnv(filenames ...string) error {
	if len(filenames) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}

	if err := godotenv.Load(filenames...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields with the DESIM_* environment variables that are
// set, then validates the result.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup("SEED"); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return envError("SEED", err)
		}

		c.Seed = seed
	}

	if v, ok := lookup("MAX_TIME"); ok {
		maxTime, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError("MAX_TIME", err)
		}

		c.MaxTime = maxTime
	}

	if v, ok := lookup("RECORD"); ok {
		c.Record = v
	}

	if v, ok := lookup("MONITOR_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return envError("MONITOR_PORT", err)
		}

		c.Monitor.Enabled = true
		c.Monitor.Port = port
	}

	return c.Validate()
}

func lookup(name string) (string, bool) {
	return os.LookupEnv(EnvPrefix + name)
}

func envError(name string, err error) error {
	return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
}

// Validate checks that the configuration describes a runnable model.
func (c *Config) Validate() error {
	if !finite(c.MaxTime) || c.MaxTime < 0 {
		return fmt.Errorf("maxTime must be a finite number not below 0")
	}

	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		return fmt.Errorf("monitor.port %d is out of range", c.Monitor.Port)
	}

	return c.Bank.validate()
}

func (b *BankConfig) validate() error {
	if b.Customers < 0 {
		return fmt.Errorf("bank.customers must not be negative")
	}

	if b.Counters <= 0 {
		return fmt.Errorf("bank.counters must be greater than 0")
	}

	if !finite(b.ArrivalInterval) || b.ArrivalInterval <= 0 {
		return fmt.Errorf("bank.arrivalInterval must be greater than 0")
	}

	if !finite(b.TimeInBank) || b.TimeInBank <= 0 {
		return fmt.Errorf("bank.timeInBank must be greater than 0")
	}

	if !finite(b.MinPatience) || !finite(b.MaxPatience) ||
		b.MinPatience < 0 || b.MaxPatience < b.MinPatience {
		return fmt.Errorf("bank patience must satisfy 0 <= minPatience <= maxPatience")
	}

	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
