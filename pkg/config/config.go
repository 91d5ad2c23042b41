// ///////////////////////////////////////////////////////////////////////////
//
// # recode - Latin-1 to UTF-8 table repair
//
// Copyright (C) 2023 - 2026, pgEdge (https://www.pgedge.com/)
//
// This software is released under the PostgreSQL License:
// https://opensource.org/license/postgresql
//
// ///////////////////////////////////////////////////////////////////////////

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBatchSize   = 5000
	MaxBatchSize       = 100000
	DefaultCursorName  = "read_cursor"
	DefaultKeyFunction = "get_shortest_unique_key"
)

type Config struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Recode   RecodeConfig   `yaml:"recode"`

	DebugMode bool `yaml:"debug_mode"`
}

type PostgresConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	DBName            string `yaml:"dbname"`
	User              string `yaml:"user"`
	Password          string `yaml:"password"`
	SSLMode           string `yaml:"sslmode"`
	ClientEncoding    string `yaml:"client_encoding"`
	StatementTimeout  int    `yaml:"statement_timeout"`  // ms
	ConnectionTimeout int    `yaml:"connection_timeout"` // s
}

type RecodeConfig struct {
	BatchSize     int    `yaml:"batch_size"`
	CursorName    string `yaml:"cursor_name"`
	KeyFunction   string `yaml:"key_function"`
	LogDir        string `yaml:"log_dir"`
	TaskStorePath string `yaml:"task_store_path"`
}

// Cfg holds the loaded config for the whole app.
var Cfg *Config

var cursorNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Default returns the settings used when no config file is present. They
// match a local server reached over the unix socket.
func Default() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Host:              "/var/run/postgresql",
			Port:              5432,
			DBName:            "app",
			SSLMode:           "disable",
			ClientEncoding:    "SQL_ASCII",
			ConnectionTimeout: 10,
		},
		Recode: RecodeConfig{
			BatchSize:     DefaultBatchSize,
			CursorName:    DefaultCursorName,
			KeyFunction:   DefaultKeyFunction,
			LogDir:        ".",
			TaskStorePath: "recode_tasks.db",
		},
	}
}

// Load reads and parses path into a Config. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// Init loads the config and assigns it to the package variable.
func Init(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	Cfg = c
	return nil
}

// Get returns the loaded config, falling back to defaults.
func Get() *Config {
	if Cfg == nil {
		return Default()
	}
	return Cfg
}

func (c *Config) Validate() error {
	if err := ValidateBatchSize(c.Recode.BatchSize); err != nil {
		return err
	}
	if strings.TrimSpace(c.Postgres.ClientEncoding) == "" {
		return fmt.Errorf("postgres.client_encoding must not be empty")
	}
	if !cursorNameRegex.MatchString(c.Recode.CursorName) {
		return fmt.Errorf("recode.cursor_name %q is not a valid identifier", c.Recode.CursorName)
	}
	if strings.TrimSpace(c.Recode.KeyFunction) == "" {
		return fmt.Errorf("recode.key_function must not be empty")
	}
	if c.Postgres.StatementTimeout < 0 || c.Postgres.ConnectionTimeout < 0 {
		return fmt.Errorf("postgres timeouts must not be negative")
	}
	return nil
}

func ValidateBatchSize(n int) error {
	if n < 1 || n > MaxBatchSize {
		return fmt.Errorf("batch size must be between 1 and %d, got %d", MaxBatchSize, n)
	}
	return nil
}
