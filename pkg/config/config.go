// Package config loads the motion runtime configuration from YAML.
//
// Defaults come from a struct, the file is layered on top through koanf,
// and Validate reports every problem at once.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"go.uber.org/multierr"

	"plcmotion/pkg/axis"
	"plcmotion/pkg/errors"
	"plcmotion/pkg/log"
)

// FileName is the config file used when none is given.
const FileName = "motiond.yml"

// Config is the whole runtime configuration.
type Config struct {
	// Frequency is the scheduler tick rate in Hz
	Frequency float64        `koanf:"frequency" yaml:"frequency"`
	Log       LogConfig      `koanf:"log" yaml:"log"`
	API       APIConfig      `koanf:"api" yaml:"api"`
	Metrics   MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Monitor   MonitorConfig  `koanf:"monitor" yaml:"monitor"`
	Store     StoreConfig    `koanf:"store" yaml:"store"`
	Realtime  RealtimeConfig `koanf:"realtime" yaml:"realtime"`
	Watchdog  WatchdogConfig `koanf:"watchdog" yaml:"watchdog"`
	Axes      []AxisConfig   `koanf:"axes" yaml:"axes"`
}

type LogConfig struct {
	Level      string `koanf:"level" yaml:"level"`
	Format     string `koanf:"format" yaml:"format"`
	Caller     bool   `koanf:"caller" yaml:"caller"`
	File       string `koanf:"file" yaml:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `koanf:"compress" yaml:"compress"`
}

// FileConfig returns the rotation settings of the log file.
func (c LogConfig) FileConfig() log.FileConfig {
	return log.FileConfig{
		Path:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

type APIConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
	// JWTSecret enables bearer token auth when set
	JWTSecret string `koanf:"jwt_secret" yaml:"jwt_secret"`
	// TokenTTL is the lifetime of issued tokens in hours
	TokenTTL float64 `koanf:"token_ttl" yaml:"token_ttl"`
}

type MetricsConfig struct {
	// Addr starts a dedicated scrape listener when set
	Addr     string `koanf:"addr" yaml:"addr"`
	Username string `koanf:"username" yaml:"username"`
	Password string `koanf:"password" yaml:"password"`
	// SampleEvery is the axis sampling decimation in ticks
	SampleEvery uint32 `koanf:"sample_every" yaml:"sample_every"`
}

type MonitorConfig struct {
	// RateHz bounds status broadcasts per second
	RateHz float64 `koanf:"rate_hz" yaml:"rate_hz"`
}

type StoreConfig struct {
	// Path of the sqlite database; empty disables persistence
	Path string `koanf:"path" yaml:"path"`
}

type RealtimeConfig struct {
	LockMemory bool `koanf:"lock_memory" yaml:"lock_memory"`
	// Nice is the process priority, -20 to 19
	Nice int `koanf:"nice" yaml:"nice"`
}

type WatchdogConfig struct {
	// Timeout in seconds; zero disables the watchdog
	Timeout float64 `koanf:"timeout" yaml:"timeout"`
}

// AxisConfig describes one axis.
type AxisConfig struct {
	ID          int32             `koanf:"id" yaml:"id"`
	Name        string            `koanf:"name" yaml:"name"`
	Metric      MetricConfig      `koanf:"metric" yaml:"metric"`
	RangeLimit  RangeLimitConfig  `koanf:"range_limit" yaml:"range_limit"`
	MotionLimit MotionLimitConfig `koanf:"motion_limit" yaml:"motion_limit"`
	Control     ControlConfig     `koanf:"control" yaml:"control"`
	Homing      HomingConfig      `koanf:"homing" yaml:"homing"`
}

type MetricConfig struct {
	DevUnitRatio float64 `koanf:"dev_unit_ratio" yaml:"dev_unit_ratio"`
	Modulo       float64 `koanf:"modulo" yaml:"modulo"`
}

type RangeLimitConfig struct {
	SwLimitPositive bool    `koanf:"sw_limit_positive" yaml:"sw_limit_positive"`
	SwLimitNegative bool    `koanf:"sw_limit_negative" yaml:"sw_limit_negative"`
	LimitPositive   float64 `koanf:"limit_positive" yaml:"limit_positive"`
	LimitNegative   float64 `koanf:"limit_negative" yaml:"limit_negative"`
}

type MotionLimitConfig struct {
	VelLimit    float64 `koanf:"vel_limit" yaml:"vel_limit"`
	AccLimit    float64 `koanf:"acc_limit" yaml:"acc_limit"`
	PosLagLimit float64 `koanf:"pos_lag_limit" yaml:"pos_lag_limit"`
}

type ControlConfig struct {
	// Mode is pos_open_loop, vel_close_loop or vel_open_loop
	Mode        string  `koanf:"mode" yaml:"mode"`
	Kp          float64 `koanf:"kp" yaml:"kp"`
	FeedForward float64 `koanf:"feed_forward" yaml:"feed_forward"`
}

type HomingConfig struct {
	// Mode is 1000 (direct) or 1005 to 1008
	Mode          int     `koanf:"mode" yaml:"mode"`
	VelSearch     float64 `koanf:"vel_search" yaml:"vel_search"`
	VelRegression float64 `koanf:"vel_regression" yaml:"vel_regression"`
	Acc           float64 `koanf:"acc" yaml:"acc"`
	Jerk          float64 `koanf:"jerk" yaml:"jerk"`
	InputBit      uint8   `koanf:"input_bit" yaml:"input_bit"`
	Inverted      bool    `koanf:"inverted" yaml:"inverted"`
	// SimSwitch places a simulated switch at this raw position on
	// simulated drives; zero leaves the input unwired
	SimSwitch int32 `koanf:"sim_switch" yaml:"sim_switch"`
}

// Default returns the built in configuration: one simulated axis at the
// kernel defaults.
func Default() Config {
	return Config{
		Frequency: 1000,
		Log:       LogConfig{Level: "info", Format: "text", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
		API:       APIConfig{Addr: "127.0.0.1:7480", TokenTTL: 24},
		Metrics:   MetricsConfig{SampleEvery: 10},
		Monitor:   MonitorConfig{RateHz: 10},
		Watchdog:  WatchdogConfig{Timeout: 1},
		Axes:      []AxisConfig{DefaultAxis(1)},
	}
}

// DefaultAxis returns an axis entry carrying the kernel defaults.
func DefaultAxis(id int32) AxisConfig {
	d := axis.DefaultConfig()
	return AxisConfig{
		ID:   id,
		Name: fmt.Sprintf("axis%d", id),
		Metric: MetricConfig{
			DevUnitRatio: d.Metric.DevUnitRatio,
		},
		MotionLimit: MotionLimitConfig{
			VelLimit:    d.MotionLimit.VelLimit,
			AccLimit:    d.MotionLimit.AccLimit,
			PosLagLimit: d.MotionLimit.PosLagLimit,
		},
		Control: ControlConfig{Mode: d.Control.Mode.String(), Kp: d.Control.Kp},
		Homing:  HomingConfig{Mode: int(d.Homing.Mode)},
	}
}

// fillAxisDefaults replaces unset fields with the kernel defaults. koanf
// replaces lists wholesale, so axis entries get no struct defaults.
func fillAxisDefaults(a *AxisConfig) {
	d := DefaultAxis(a.ID)
	if a.Name == "" {
		a.Name = d.Name
	}
	if a.Metric.DevUnitRatio == 0 {
		a.Metric.DevUnitRatio = d.Metric.DevUnitRatio
	}
	if a.MotionLimit.VelLimit == 0 {
		a.MotionLimit.VelLimit = d.MotionLimit.VelLimit
	}
	if a.MotionLimit.AccLimit == 0 {
		a.MotionLimit.AccLimit = d.MotionLimit.AccLimit
	}
	if a.MotionLimit.PosLagLimit == 0 {
		a.MotionLimit.PosLagLimit = d.MotionLimit.PosLagLimit
	}
	if a.Control.Mode == "" {
		a.Control.Mode = d.Control.Mode
	}
	if a.Homing.Mode == 0 {
		a.Homing.Mode = d.Homing.Mode
	}
}

// Load reads path over the defaults and validates the result. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.ConfigFileError(path, err)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.ConfigFileError(path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.ConfigFileError(path, err)
		}
	}
	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, errors.ConfigFileError(path, err)
	}
	for i := range c.Axes {
		fillAxisDefaults(&c.Axes[i])
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseControlMode maps a control mode name to its kernel value.
func ParseControlMode(s string) (axis.ControlMode, bool) {
	for _, m := range []axis.ControlMode{axis.PosOpenLoop, axis.VelCloseLoop, axis.VelOpenLoop} {
		if strings.EqualFold(s, m.String()) {
			return m, true
		}
	}
	return 0, false
}

func validHomingMode(m int) bool {
	switch axis.HomingMode(m) {
	case axis.HomingDirect, axis.HomingMode5, axis.HomingMode6, axis.HomingMode7, axis.HomingMode8:
		return true
	}
	return false
}

// Validate checks the values the kernel would reject and returns them all
// combined.
func (c *Config) Validate() error {
	var err error
	bad := func(section, option, reason string) {
		err = multierr.Append(err, errors.ConfigOptionError(section, option, reason))
	}
	reject := func(section, option string, c errors.Code) {
		err = multierr.Append(err, errors.ConfigValidationError(section, option, c))
	}

	if !(c.Frequency > 0) {
		bad("", "frequency", "must be positive")
	}
	if c.Monitor.RateHz < 0 {
		bad("monitor", "rate_hz", "must not be negative")
	}
	if c.Watchdog.Timeout < 0 {
		bad("watchdog", "timeout", "must not be negative")
	}
	if c.Realtime.Nice < -20 || c.Realtime.Nice > 19 {
		bad("realtime", "nice", "must be within -20..19")
	}
	if c.API.JWTSecret != "" && len(c.API.JWTSecret) < 16 {
		bad("api", "jwt_secret", "must be at least 16 characters")
	}
	if len(c.Axes) == 0 {
		bad("axes", "", "at least one axis is required")
	}

	seen := make(map[int32]bool)
	for i, a := range c.Axes {
		sec := fmt.Sprintf("axes[%d]", i)
		if seen[a.ID] {
			bad(sec, "id", fmt.Sprintf("duplicate axis id %d", a.ID))
		}
		seen[a.ID] = true

		if r := math.Abs(a.Metric.DevUnitRatio); r < 1 || r > 1048576 {
			reject(sec+".metric", "dev_unit_ratio", errors.CfgUnitRatioOutOfRange)
		}
		if a.Metric.Modulo < 0 {
			reject(sec+".metric", "modulo", errors.CfgModuloIllegal)
		}
		if a.MotionLimit.VelLimit <= 0 {
			reject(sec+".motion_limit", "vel_limit", errors.CfgVelLimitIllegal)
		}
		if a.MotionLimit.AccLimit <= 0 {
			reject(sec+".motion_limit", "acc_limit", errors.CfgAccLimitIllegal)
		}
		if a.MotionLimit.PosLagLimit <= 0 {
			reject(sec+".motion_limit", "pos_lag_limit", errors.CfgPosLagIllegal)
		}
		rl := a.RangeLimit
		if rl.SwLimitPositive && rl.SwLimitNegative && rl.LimitPositive <= rl.LimitNegative {
			bad(sec+".range_limit", "limit_positive", "must be above limit_negative")
		}
		if _, ok := ParseControlMode(a.Control.Mode); !ok {
			bad(sec+".control", "mode", fmt.Sprintf("unknown mode %q", a.Control.Mode))
		}
		if a.Control.Kp < 0 {
			reject(sec+".control", "kp", errors.CfgPosKpIllegal)
		}
		if a.Control.FeedForward < 0 {
			reject(sec+".control", "feed_forward", errors.CfgFeedForwardIllegal)
		}
		h := a.Homing
		if !validHomingMode(h.Mode) {
			reject(sec+".homing", "mode", errors.HomingModeIllegal)
		} else if axis.HomingMode(h.Mode) != axis.HomingDirect {
			if !(h.VelSearch > 0) || !(h.VelRegression > 0) {
				reject(sec+".homing", "vel_search", errors.HomingVelIllegal)
			}
			if !(h.Acc > 0) {
				reject(sec+".homing", "acc", errors.HomingAccIllegal)
			}
		}
		if h.InputBit > 7 {
			bad(sec+".homing", "input_bit", "must be within 0..7")
		}
	}
	return err
}

// Axis returns the entry for id.
func (c *Config) Axis(id int32) (AxisConfig, bool) {
	for _, a := range c.Axes {
		if a.ID == id {
			return a, true
		}
	}
	return AxisConfig{}, false
}

// RangeLimitInfo converts the range limits to kernel form.
func (a AxisConfig) RangeLimitInfo() axis.RangeLimitInfo {
	return axis.RangeLimitInfo{
		SwLimitPositive: a.RangeLimit.SwLimitPositive,
		SwLimitNegative: a.RangeLimit.SwLimitNegative,
		LimitPositive:   a.RangeLimit.LimitPositive,
		LimitNegative:   a.RangeLimit.LimitNegative,
	}
}

// AxisConfig converts the entry to kernel form. signal is the homing input
// register, or nil.
func (a AxisConfig) AxisConfig(signal axis.Signal) axis.Config {
	mode, _ := ParseControlMode(a.Control.Mode)
	return axis.Config{
		Metric:     axis.MetricInfo{DevUnitRatio: a.Metric.DevUnitRatio, Modulo: a.Metric.Modulo},
		RangeLimit: a.RangeLimitInfo(),
		MotionLimit: axis.MotionLimitInfo{
			VelLimit:    a.MotionLimit.VelLimit,
			AccLimit:    a.MotionLimit.AccLimit,
			PosLagLimit: a.MotionLimit.PosLagLimit,
		},
		Control: axis.ControlInfo{Mode: mode, Kp: a.Control.Kp, FeedForward: a.Control.FeedForward},
		Homing: axis.HomingInfo{
			Signal:        signal,
			SignalBit:     a.Homing.InputBit,
			Mode:          axis.HomingMode(a.Homing.Mode),
			VelSearch:     a.Homing.VelSearch,
			VelRegression: a.Homing.VelRegression,
			Acc:           a.Homing.Acc,
			Jerk:          a.Homing.Jerk,
		},
	}
}
