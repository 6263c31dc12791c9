// Package config loads the food admin configuration from a YAML file, .env
// files and environment variables, in that order of increasing priority.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/poku-e/foodadmin/internal/interference"
	"github.com/poku-e/foodadmin/internal/logger"
)

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      logger.Config      `yaml:"logging"`
	Interference InterferenceConfig `yaml:"interference"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"FOODADMIN_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"FOODADMIN_SHUTDOWN_TIMEOUT"`
}

// StorageConfig points at the food table and the preferences file.
type StorageConfig struct {
	// FoodsPath is a .csv or .xlsx food table.
	FoodsPath string `yaml:"foods_path" env:"FOODADMIN_FOODS"`
	PrefsPath string `yaml:"prefs_path" env:"FOODADMIN_PREFS"`
}

// InterferenceConfig drives the extension noise filter.
type InterferenceConfig struct {
	// Revision selects the built-in denylist revision (v1..v4).
	Revision string `yaml:"revision" env:"FOODADMIN_DENYLIST_REVISION"`
	// DenylistPath optionally points at a YAML denylist file; it replaces Revision.
	DenylistPath string `yaml:"denylist_path" env:"FOODADMIN_DENYLIST"`
	// Extra entries appended to the selected denylist.
	Extra []string `yaml:"extra" env:"FOODADMIN_DENYLIST_EXTRA"`
	// FetchMode is "reject" or "noop".
	FetchMode      string        `yaml:"fetch_mode" env:"FOODADMIN_FETCH_MODE"`
	SweepInterval  time.Duration `yaml:"sweep_interval" env:"FOODADMIN_SWEEP_INTERVAL"`
	StyleHeuristic *bool         `yaml:"style_heuristic"`
	JournalSize    int           `yaml:"journal_size" env:"FOODADMIN_JOURNAL_SIZE"`
}

// Defaults.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultFoodsPath       = "foods.csv"
	DefaultPrefsPath       = "preferences.json"
	DefaultJournalSize     = 100

	minSweepInterval = time.Second
	maxSweepInterval = 5 * time.Second
)

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Storage.FoodsPath == "" {
		c.Storage.FoodsPath = DefaultFoodsPath
	}
	if c.Storage.PrefsPath == "" {
		c.Storage.PrefsPath = DefaultPrefsPath
	}
	c.Logging.SetDefaults()

	ic := &c.Interference
	if ic.Revision == "" {
		ic.Revision = string(interference.DefaultRevision)
	}
	if ic.FetchMode == "" {
		ic.FetchMode = string(interference.FetchReject)
	}
	if ic.SweepInterval == 0 {
		ic.SweepInterval = interference.DefaultSweepInterval
	}
	if ic.StyleHeuristic == nil {
		on := true
		ic.StyleHeuristic = &on
	}
	if ic.JournalSize == 0 {
		ic.JournalSize = DefaultJournalSize
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := interference.ParseRevision(c.Interference.Revision); err != nil {
		return fmt.Errorf("interference.revision: %w", err)
	}
	if _, err := interference.ParseFetchMode(c.Interference.FetchMode); err != nil {
		return fmt.Errorf("interference.fetch_mode: %w", err)
	}
	d := c.Interference.SweepInterval
	if d < minSweepInterval || d > maxSweepInterval {
		return fmt.Errorf("interference.sweep_interval: %s outside [%s, %s]", d, minSweepInterval, maxSweepInterval)
	}
	if c.Interference.JournalSize < 0 {
		return errors.New("interference.journal_size: must not be negative")
	}
	if c.Storage.FoodsPath == "" {
		return errors.New("storage.foods_path: required")
	}
	return nil
}

// Denylist builds the denylist described by the interference settings.
func (ic InterferenceConfig) Denylist() (*interference.Denylist, error) {
	var (
		dl  *interference.Denylist
		err error
	)
	if ic.DenylistPath != "" {
		dl, err = interference.LoadDenylist(ic.DenylistPath)
	} else {
		var rev interference.Revision
		rev, err = interference.ParseRevision(ic.Revision)
		if err == nil {
			dl, err = interference.NewDenylist(rev)
		}
	}
	if err != nil {
		return nil, err
	}
	return dl.Append(ic.Extra...), nil
}
