/*
Package config loads runtime settings for the ledger CLI.

PRECEDENCE (later wins):
  1. Defaults()
  2. YAML file given by -config
  3. .env file given by -env, then LEDGER_* process environment
  4. Command-line flags that were explicitly set

FLAGS:
  -config        YAML config file (default: none)
  -env           dotenv file (default: .env, ignored if missing)
  -data          ledger data file (default: ledger.json)
  -backend       json | sqlite (default: json)
  -policy        legacy | strict amount validation (default: legacy)
  -flush         coalesce | drop save contention policy (default: coalesce)
  -save-timeout  per-save timeout (default: 10s)
  -log-level     debug | info | warn | error (default: info)
  -log-format    text | json (default: text)

EXAMPLE config.yaml:
  data_file: /var/lib/ledger/ledger.db
  backend: sqlite
  amount_policy: strict
  log_level: debug
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/ledger/flush"
	"github.com/warp/ledger/ledger"
)

// Backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config holds every runtime setting.
type Config struct {
	DataFile     string        `yaml:"data_file"`
	Backend      string        `yaml:"backend"`
	AmountPolicy string        `yaml:"amount_policy"`
	FlushPolicy  string        `yaml:"flush_policy"`
	SaveTimeout  time.Duration `yaml:"save_timeout"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
}

func Defaults() Config {
	return Config{
		DataFile:     "ledger.json",
		Backend:      BackendJSON,
		AmountPolicy: string(ledger.PolicyLegacy),
		FlushPolicy:  string(flush.Coalesce),
		SaveTimeout:  10 * time.Second,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load resolves the configuration from args (without the program name) and
// getenv, usually os.Getenv.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Defaults()

	flags := flag.NewFlagSet("ledger", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	configPath := flags.String("config", "", "YAML config file")
	envPath := flags.String("env", ".env", "dotenv file")
	dataFile := flags.String("data", cfg.DataFile, "ledger data file")
	backend := flags.String("backend", cfg.Backend, "storage backend: json or sqlite")
	policy := flags.String("policy", cfg.AmountPolicy, "amount validation: legacy or strict")
	flushPolicy := flags.String("flush", cfg.FlushPolicy, "save contention policy: coalesce or drop")
	saveTimeout := flags.Duration("save-timeout", cfg.SaveTimeout, "timeout for a single save")
	logLevel := flags.String("log-level", cfg.LogLevel, "debug, info, warn or error")
	logFormat := flags.String("log-format", cfg.LogFormat, "text or json")
	if err := flags.Parse(args); err != nil {
		return Config{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	if *configPath != "" {
		if err := cfg.mergeYAML(*configPath); err != nil {
			return Config{}, err
		}
	}

	dotenv, err := readDotenv(*envPath)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}
	if err := cfg.mergeEnv(lookup); err != nil {
		return Config{}, err
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.DataFile = *dataFile
		case "backend":
			cfg.Backend = *backend
		case "policy":
			cfg.AmountPolicy = *policy
		case "flush":
			cfg.FlushPolicy = *flushPolicy
		case "save-timeout":
			cfg.SaveTimeout = *saveTimeout
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func readDotenv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return env, nil
}

func (c *Config) mergeEnv(lookup func(string) string) error {
	set := func(key string, dst *string) {
		if v := lookup(key); v != "" {
			*dst = v
		}
	}
	set("LEDGER_DATA_FILE", &c.DataFile)
	set("LEDGER_BACKEND", &c.Backend)
	set("LEDGER_AMOUNT_POLICY", &c.AmountPolicy)
	set("LEDGER_FLUSH_POLICY", &c.FlushPolicy)
	set("LEDGER_LOG_LEVEL", &c.LogLevel)
	set("LEDGER_LOG_FORMAT", &c.LogFormat)

	if v := lookup("LEDGER_SAVE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LEDGER_SAVE_TIMEOUT: %w", err)
		}
		c.SaveTimeout = d
	}
	return nil
}

// Validate rejects unknown enum values.
func (c Config) Validate() error {
	if c.DataFile == "" {
		return errors.New("data file is required")
	}
	if c.Backend != BackendJSON && c.Backend != BackendSQLite {
		return fmt.Errorf("unknown backend %q (want json or sqlite)", c.Backend)
	}
	if !ledger.AmountPolicy(c.AmountPolicy).Valid() {
		return fmt.Errorf("unknown amount policy %q (want legacy or strict)", c.AmountPolicy)
	}
	if !flush.Policy(c.FlushPolicy).Valid() {
		return fmt.Errorf("unknown flush policy %q (want coalesce or drop)", c.FlushPolicy)
	}
	if c.SaveTimeout <= 0 {
		return fmt.Errorf("save timeout must be positive, got %s", c.SaveTimeout)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	return nil
}
