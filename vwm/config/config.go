// Package config reads handle manager settings from a TOML file.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/handles/vwm"
)

// Config is the contents of a handles.toml file
type Config struct {
	Manager ManagerConfig `toml:"manager"`
	Stress  StressConfig  `toml:"stress"`
}

// ManagerConfig selects the CreateFlags of the manager and language
type ManagerConfig struct {
	KeepHandlesAlive       bool `toml:"keep-handles-alive"`
	RecordStatistics       bool `toml:"record-statistics"`
	ExternallySynchronized bool `toml:"externally-synchronized"`
}

// StressConfig configures the handlestress workload
type StressConfig struct {
	Workers     int  `toml:"workers"`
	Handles     int  `toml:"handles"`
	SharedEvery int  `toml:"shared-every"`
	FreeAll     bool `toml:"free-all"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Manager: ManagerConfig{RecordStatistics: true},
		Stress: StressConfig{
			Workers:     4,
			Handles:     10000,
			SharedEvery: 10,
		},
	}
}

// Load reads the TOML file at path on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse error in %s", path)
	}
	return cfg, nil
}

// Parse decodes TOML data on top of the defaults. Keys that are not part of Config are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("unknown configuration key %q", undecoded[0].String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Stress.Workers < 1 {
		return errors.Errorf("stress.workers must be at least 1, got %d", c.Stress.Workers)
	}
	if c.Stress.Handles < 0 {
		return errors.Errorf("stress.handles must not be negative, got %d", c.Stress.Handles)
	}
	if c.Stress.SharedEvery < 0 {
		return errors.Errorf("stress.shared-every must not be negative, got %d", c.Stress.SharedEvery)
	}
	if c.Manager.ExternallySynchronized && c.Stress.Workers > 1 {
		return errors.New("an externally synchronized manager cannot be driven by more than one worker")
	}
	return nil
}

// CreateFlags converts the manager section into vwm.CreateFlags
func (c *Config) CreateFlags() vwm.CreateFlags {
	var flags vwm.CreateFlags
	if c.Manager.KeepHandlesAlive {
		flags |= vwm.CreateKeepHandlesAlive
	}
	if c.Manager.RecordStatistics {
		flags |= vwm.CreateRecordStatistics
	}
	if c.Manager.ExternallySynchronized {
		flags |= vwm.CreateExternallySynchronized
	}
	return flags
}

// LanguageOptions returns the options for the language the configured managers share
func (c *Config) LanguageOptions(collector vwm.Collector) vwm.LanguageOptions {
	return vwm.LanguageOptions{
		Collector:              collector,
		ExternallySynchronized: c.Manager.ExternallySynchronized,
	}
}
