package config

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/knadh/koanf/providers/file"

	"plcmotion/pkg/log"
)

// Applier receives the settings that can change while the kernel runs.
type Applier interface {
	ApplyRangeLimit(id int32, rl RangeLimitConfig) error
}

// Change is one difference between two configurations.
type Change struct {
	// Section is the dotted path of the changed block, e.g. axes.2.range_limit
	Section string
	// Axis is the axis id of axis sections
	Axis int32
	// Live is set when the change applies without a restart
	Live bool
}

// ReloadResult represents the result of applying one change.
type ReloadResult struct {
	Change
	Error       error
	WasReloaded bool
}

// ReloadManager handles hot-reloading of configuration.
type ReloadManager struct {
	mu sync.RWMutex

	applier Applier

	// currentConfig is the current loaded configuration
	currentConfig *Config

	// configPath is the path to watch for changes
	configPath string

	// debounceTime is how long to wait after a change before reloading
	debounceTime time.Duration

	// lastReload tracks when we last reloaded
	lastReload time.Time

	onReloadComplete func(results []ReloadResult)

	log *log.Logger
}

// NewReloadManager creates a new reload manager.
func NewReloadManager(applier Applier, cfg *Config, path string) *ReloadManager {
	return &ReloadManager{
		applier:       applier,
		currentConfig: cfg,
		configPath:    path,
		debounceTime:  100 * time.Millisecond,
		log:           log.GetLogger("config"),
	}
}

// SetDebounceTime sets how long to wait after detecting a change before reloading.
func (rm *ReloadManager) SetDebounceTime(d time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debounceTime = d
}

// OnReloadComplete sets the callback run after every reload.
func (rm *ReloadManager) OnReloadComplete(fn func([]ReloadResult)) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.onReloadComplete = fn
}

// DetectChanges compares two configurations. Only axis range limits are
// live; everything else needs a restart.
func DetectChanges(cur, next *Config) []Change {
	var changed []Change
	restart := func(section string) {
		changed = append(changed, Change{Section: section})
	}
	restartAxis := func(id int32) {
		changed = append(changed, Change{Section: fmt.Sprintf("axes.%d", id), Axis: id})
	}

	if cur.Frequency != next.Frequency {
		restart("frequency")
	}
	for _, c := range []struct {
		name      string
		cur, next interface{}
	}{
		{"log", cur.Log, next.Log},
		{"api", cur.API, next.API},
		{"metrics", cur.Metrics, next.Metrics},
		{"monitor", cur.Monitor, next.Monitor},
		{"store", cur.Store, next.Store},
		{"realtime", cur.Realtime, next.Realtime},
		{"watchdog", cur.Watchdog, next.Watchdog},
	} {
		if !reflect.DeepEqual(c.cur, c.next) {
			restart(c.name)
		}
	}

	oldAxes := make(map[int32]AxisConfig, len(cur.Axes))
	for _, a := range cur.Axes {
		oldAxes[a.ID] = a
	}
	newIDs := make(map[int32]bool, len(next.Axes))
	for _, a := range next.Axes {
		newIDs[a.ID] = true
		prev, ok := oldAxes[a.ID]
		if !ok {
			restartAxis(a.ID)
			continue
		}
		if prev.RangeLimit != a.RangeLimit {
			changed = append(changed, Change{
				Section: fmt.Sprintf("axes.%d.range_limit", a.ID),
				Axis:    a.ID,
				Live:    true,
			})
		}
		prev.RangeLimit = a.RangeLimit
		if prev != a {
			restartAxis(a.ID)
		}
	}
	for id := range oldAxes {
		if !newIDs[id] {
			restartAxis(id)
		}
	}

	sort.Slice(changed, func(i, j int) bool { return changed[i].Section < changed[j].Section })
	return changed
}

// NeedsRestart returns the sections among changes that cannot be applied live.
func NeedsRestart(changes []Change) []string {
	var out []string
	for _, c := range changes {
		if !c.Live {
			out = append(out, c.Section)
		}
	}
	return out
}

// ReloadFromFile reloads configuration from the file and applies the live
// changes.
func (rm *ReloadManager) ReloadFromFile() ([]ReloadResult, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if time.Since(rm.lastReload) < rm.debounceTime {
		return nil, nil
	}

	newConfig, err := Load(rm.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return rm.reloadWithConfigLocked(newConfig)
}

// ReloadWithConfig applies a provided config.
func (rm *ReloadManager) ReloadWithConfig(newConfig *Config) ([]ReloadResult, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.reloadWithConfigLocked(newConfig)
}

func (rm *ReloadManager) reloadWithConfigLocked(newConfig *Config) ([]ReloadResult, error) {
	changes := DetectChanges(rm.currentConfig, newConfig)
	if len(changes) == 0 {
		return nil, nil
	}

	results := make([]ReloadResult, 0, len(changes))
	for _, c := range changes {
		result := ReloadResult{Change: c}
		if c.Live && rm.applier != nil {
			ax, _ := newConfig.Axis(c.Axis)
			if err := rm.applier.ApplyRangeLimit(c.Axis, ax.RangeLimit); err != nil {
				result.Error = err
			} else {
				result.WasReloaded = true
			}
		}
		results = append(results, result)
	}

	// Only live changes are taken over.
	merged := *rm.currentConfig
	merged.Axes = append([]AxisConfig(nil), rm.currentConfig.Axes...)
	for i := range merged.Axes {
		if ax, ok := newConfig.Axis(merged.Axes[i].ID); ok {
			merged.Axes[i].RangeLimit = ax.RangeLimit
		}
	}
	rm.currentConfig = &merged
	rm.lastReload = time.Now()

	if rm.onReloadComplete != nil {
		rm.onReloadComplete(results)
	}
	return results, nil
}

// Watch reloads the file whenever it changes. Errors are logged.
func (rm *ReloadManager) Watch() error {
	if rm.configPath == "" {
		return fmt.Errorf("no config path to watch")
	}
	return file.Provider(rm.configPath).Watch(func(event interface{}, err error) {
		if err != nil {
			rm.log.Warn("config watch: %v", err)
			return
		}
		results, err := rm.ReloadFromFile()
		if err != nil {
			rm.log.Error("config reload: %v", err)
			return
		}
		for _, r := range results {
			switch {
			case r.Error != nil:
				rm.log.WithField("section", r.Section).WithError(r.Error).Error("reload failed")
			case r.WasReloaded:
				rm.log.WithField("section", r.Section).Info("reloaded")
			default:
				rm.log.WithField("section", r.Section).Warn("change needs a restart")
			}
		}
	})
}

// GetCurrentConfig returns the current configuration.
func (rm *ReloadManager) GetCurrentConfig() *Config {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.currentConfig
}

// GetConfigPath returns the config file path.
func (rm *ReloadManager) GetConfigPath() string {
	return rm.configPath
}
