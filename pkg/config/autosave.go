package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	yml "gopkg.in/yaml.v2"

	"plcmotion/pkg/errors"
	"plcmotion/pkg/log"
)

// Write encodes c as YAML.
func Write(w io.Writer, c *Config) error {
	enc := yml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(c)
}

// KeepBackups is how many timestamped copies Save leaves next to the
// config file.
const KeepBackups = 5

const backupStamp = "20060102_150405"

// AutosaveConfig holds the loaded config, takes operator edits at runtime
// and writes them back to the file they came from.
type AutosaveConfig struct {
	mu    sync.RWMutex
	cfg   *Config
	path  string
	dirty bool // edited since the last Save or reload
	saved time.Time
	log   *log.Logger
}

// NewAutosaveConfig wraps cfg loaded from path. An empty path keeps edits
// in memory only.
func NewAutosaveConfig(cfg *Config, path string) *AutosaveConfig {
	return &AutosaveConfig{cfg: cfg, path: path, log: log.GetLogger("config")}
}

// LoadAutosave loads path with autosave capabilities.
func LoadAutosave(path string) (*AutosaveConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewAutosaveConfig(cfg, path), nil
}

func (c *Config) clone() *Config {
	out := *c
	out.Axes = append([]AxisConfig(nil), c.Axes...)
	return &out
}

// Config returns a copy of the current configuration.
func (c *AutosaveConfig) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.cfg.clone()
}

func (c *AutosaveConfig) Path() string { return c.path }

// IsDirty reports unsaved edits.
func (c *AutosaveConfig) IsDirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// LastSaved returns when Save last succeeded, zero if never.
func (c *AutosaveConfig) LastSaved() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saved
}

// SetRangeLimit replaces the range limits of axis id. The edit is checked
// with Validate and dropped if it fails.
func (c *AutosaveConfig) SetRangeLimit(id int32, rl RangeLimitConfig) error {
	return c.edit(func(cfg *Config) error {
		for i := range cfg.Axes {
			if cfg.Axes[i].ID == id {
				cfg.Axes[i].RangeLimit = rl
				return nil
			}
		}
		return fmt.Errorf("axis %d is not configured", id)
	})
}

// edit applies fn to a copy and keeps it when the result validates.
func (c *AutosaveConfig) edit(fn func(cfg *Config) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.cfg.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg = next
	c.dirty = true
	return nil
}

// Save writes the config back to its file. The file it replaces is kept
// as path-<stamp>.ext and the oldest copies beyond KeepBackups are
// removed. The new file is renamed into place.
func (c *AutosaveConfig) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return errors.New(errors.ErrConfigFile, "no config path to save to")
	}
	mode := os.FileMode(0644)
	if fi, err := os.Stat(c.path); err == nil {
		mode = fi.Mode().Perm()
		if err := backup(c.path, mode); err != nil {
			return errors.ConfigFileError(c.path, err)
		}
	}
	if err := writeAtomic(c.path, c.cfg, mode); err != nil {
		return errors.ConfigFileError(c.path, err)
	}
	if err := pruneBackups(c.path, KeepBackups); err != nil {
		c.log.Warn("config backups: %v", err)
	}
	c.dirty = false
	c.saved = time.Now()
	return nil
}

func writeAtomic(path string, cfg *Config, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".motiond-*.yml")
	if err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err := Write(tmp, cfg); err != nil {
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	done = true
	return nil
}

func backupName(path string, at time.Time) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + at.Format(backupStamp) + ext
}

func backup(path string, mode os.FileMode) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(backupName(path, time.Now()), data, mode)
}

// Backups lists the backups of path, oldest first.
func Backups(path string) ([]string, error) {
	ext := filepath.Ext(path)
	matches, err := filepath.Glob(strings.TrimSuffix(path, ext) + "-*" + ext)
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, m := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(m, strings.TrimSuffix(path, ext)+"-"), ext)
		if _, err := time.Parse(backupStamp, stamp); err == nil {
			out = append(out, m)
		}
	}
	// the stamp sorts lexically in time order
	sort.Strings(out)
	return out, nil
}

func pruneBackups(path string, keep int) error {
	backups, err := Backups(path)
	if err != nil || len(backups) <= keep {
		return err
	}
	for _, b := range backups[:len(backups)-keep] {
		if err := os.Remove(b); err != nil {
			return err
		}
	}
	return nil
}

// ReloadFromDisk reloads the file, discarding unsaved edits.
func (c *AutosaveConfig) ReloadFromDisk() error {
	if c.path == "" {
		return errors.New(errors.ErrConfigFile, "no config path to reload from")
	}
	cfg, err := Load(c.path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.dirty = false
	c.mu.Unlock()
	return nil
}
