// Package config loads run configuration.
//
// Sources are applied in order, each overriding the previous one:
//
//  1. built-in defaults (the reference run);
//  2. a YAML file (JSON is accepted as a fallback);
//  3. RNSE_* environment variables.
//
// The result is validated once, after all sources are applied.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"rnseaudit/internal/core"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RNSE_"

// ErrConfig marks configuration problems (unreadable file, bad syntax, invalid
// values).
var ErrConfig = errors.New("config error")

// Config is the complete run configuration.
type Config struct {
	Run       RunConfig       `yaml:"run" json:"run" envPrefix:"RUN_"`
	Params    core.Params     `yaml:"params" json:"params" envPrefix:"PARAMS_" validate:"-"`
	Commit    CommitConfig    `yaml:"commit" json:"commit" envPrefix:"COMMIT_"`
	Ledger    LedgerConfig    `yaml:"ledger" json:"ledger" envPrefix:"LEDGER_"`
	Log       LogConfig       `yaml:"log" json:"log" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry" envPrefix:"TELEMETRY_"`
}

// RunConfig selects seeds and run length.
type RunConfig struct {
	// BaseSeed derives Streams seeds when Seeds is empty.
	BaseSeed Seed `yaml:"base_seed" json:"base_seed" env:"BASE_SEED"`
	// Seeds lists explicit per-stream seeds and overrides BaseSeed/Streams.
	Seeds   []Seed `yaml:"seeds" json:"seeds" env:"SEEDS" envSeparator:","`
	Streams int    `yaml:"streams" json:"streams" env:"STREAMS" validate:"gte=1"`
	Ticks   int    `yaml:"ticks" json:"ticks" env:"TICKS" validate:"gte=0"`
	// MaxParallel bounds concurrently generating streams; 0 is one per stream.
	MaxParallel int `yaml:"max_parallel" json:"max_parallel" env:"MAX_PARALLEL" validate:"gte=0"`
}

// CommitConfig controls Merkle commitment.
type CommitConfig struct {
	BatchSize int    `yaml:"batch_size" json:"batch_size" env:"BATCH_SIZE" validate:"gte=0"`
	Policy    string `yaml:"policy" json:"policy" env:"POLICY" validate:"oneof=strict pad"`
}

// LedgerConfig selects where runs and commitments are persisted.
type LedgerConfig struct {
	Dir string `yaml:"dir" json:"dir" env:"DIR" validate:"required"`
	// Registry is the commitment registry backend.
	Registry string `yaml:"registry" json:"registry" env:"REGISTRY" validate:"oneof=file badger sqlite"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" env:"FORMAT" validate:"oneof=text json"`
}

// TelemetryConfig controls metric export.
type TelemetryConfig struct {
	// MetricsFile, when set, receives the Prometheus text exposition at exit.
	MetricsFile string `yaml:"metrics_file" json:"metrics_file" env:"METRICS_FILE"`
}

// Default returns the reference configuration: three streams derived from the
// default seed, 10,000 ticks each, default params.
func Default() Config {
	return Config{
		Run: RunConfig{
			BaseSeed: Seed(core.DefaultSeed),
			Streams:  3,
			Ticks:    10000,
		},
		Params: core.DefaultParams(),
		Commit: CommitConfig{BatchSize: 1000, Policy: "strict"},
		Ledger: LedgerConfig{Dir: "rnse-runs", Registry: "file"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load applies defaults, the file at path (if non-empty) and the process
// environment, then validates.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment. A nil environ reads the
// process environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: load config file: %w", ErrConfig, err)
		}
	}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("%w: parse env: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	yerr := dec.Decode(cfg)
	if yerr == nil {
		return nil
	}
	if jerr := json.Unmarshal(data, cfg); jerr != nil {
		return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", yerr, jerr)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section. All violations are reported together.
func (c Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
		for _, fe := range ve {
			errs = append(errs, fmt.Errorf("%s: failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}
	if err := c.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	seeds := c.StreamSeeds()
	for i, s := range seeds {
		if s == 0 {
			errs = append(errs, fmt.Errorf("%w: stream %d has seed 0", core.ErrInvalidSeed, i))
		}
	}
	if i, j, ok := core.DuplicateSeed(seeds); ok {
		errs = append(errs, fmt.Errorf("%w: streams %d and %d share seed %#016x", core.ErrInvalidSeed, i, j, seeds[j]))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
}

// StreamSeeds returns the per-stream seeds: the explicit list when given,
// otherwise Streams seeds derived from BaseSeed.
func (c Config) StreamSeeds() []uint64 {
	if len(c.Run.Seeds) > 0 {
		return Uint64s(c.Run.Seeds)
	}
	return core.DeriveSeeds(uint64(c.Run.BaseSeed), c.Run.Streams)
}
