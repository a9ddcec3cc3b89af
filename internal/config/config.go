// Package config provides configuration loading and management for glimpse.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/metalagman/glimpse/internal/ladder"
	"github.com/metalagman/glimpse/internal/sampler"
)

// Config is the root configuration.
type Config struct {
	Ladder      LadderConfig   `json:"ladder"       mapstructure:"ladder"`
	Debounce    time.Duration  `json:"-"            mapstructure:"debounce"`
	EssenceOnly bool           `json:"essence_only" mapstructure:"essence_only"`
	MaxAttempts int            `json:"max_attempts" mapstructure:"max_attempts"`
	Sampler     sampler.Config `json:"sampler"      mapstructure:"sampler"`
	Journal     JournalConfig  `json:"journal"      mapstructure:"journal"`
}

// LadderConfig holds the four soft latency cues. Durations are given as
// strings in the file ("300ms").
type LadderConfig struct {
	T1 time.Duration `json:"-" mapstructure:"t1"`
	T2 time.Duration `json:"-" mapstructure:"t2"`
	T3 time.Duration `json:"-" mapstructure:"t3"`
	T4 time.Duration `json:"-" mapstructure:"t4"`
}

// JournalConfig locates the commit journal.
type JournalConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Ladder: LadderConfig{
			T1: ladder.DefaultT1,
			T2: ladder.DefaultT2,
			T3: ladder.DefaultT3,
			T4: ladder.DefaultT4,
		},
		Debounce:    300 * time.Millisecond,
		EssenceOnly: false,
		MaxAttempts: 2,
		Sampler:     sampler.Config{Type: "rules"},
		Journal:     JournalConfig{Path: ".glimpse/journal.db"},
	}
}

// Thresholds converts the ladder section.
func (c Config) Thresholds() ladder.Thresholds {
	return ladder.Thresholds{T1: c.Ladder.T1, T2: c.Ladder.T2, T3: c.Ladder.T3, T4: c.Ladder.T4}
}

// Load reads the config file at path over the defaults. A missing file
// is not an error: the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := ValidateSettings(v.AllSettings()); err != nil {
		return Config{}, err
	}

	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) check() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be > 0")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}
	ts := []time.Duration{c.Ladder.T1, c.Ladder.T2, c.Ladder.T3, c.Ladder.T4}
	for i := 1; i < len(ts); i++ {
		if ts[i] <= ts[i-1] {
			return fmt.Errorf("ladder thresholds must be strictly increasing")
		}
	}
	return nil
}
