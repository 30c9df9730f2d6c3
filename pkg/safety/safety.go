// Package safety latches machine level stops for the motion kernel: the
// system emergency stop, the tick watchdog and operator shutdowns.
//
// A trip moves the manager out of running, halts every registered
// Stopper exactly once and stays latched until Reset.
package safety

import (
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"plcmotion/pkg/errors"
	"plcmotion/pkg/log"
)

// ShutdownState is the latch state of the manager.
type ShutdownState int

const (
	StateRunning      ShutdownState = iota // axes may be commanded
	StateShuttingDown                      // stoppers are running
	StateShutdown                          // stopped by request
	StateError                             // stopped by a fault
)

var stateNames = [...]string{
	StateRunning:      "running",
	StateShuttingDown: "shutting_down",
	StateShutdown:     "shutdown",
	StateError:        "error",
}

func (s ShutdownState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// latched reports whether s needs a Reset before axes run again.
func (s ShutdownState) latched() bool {
	return s == StateShutdown || s == StateError
}

// ShutdownReason describes why the machine was stopped.
type ShutdownReason string

const (
	ReasonNone            ShutdownReason = ""
	ReasonEmergencyStop   ShutdownReason = "emergency_stop"
	ReasonWatchdogTimeout ShutdownReason = "watchdog_timeout"
	ReasonUserRequest     ShutdownReason = "user_request"
	ReasonCommunication   ShutdownReason = "communication_error"
)

// Code returns the axis error latched by a trip for reason.
func (r ShutdownReason) Code() errors.Code {
	switch r {
	case ReasonCommunication:
		return errors.Communication
	case ReasonUserRequest:
		return errors.SoftwareEmgs
	default:
		return errors.SystemEmgs
	}
}

// final is the state a trip for r settles in.
func (r ShutdownReason) final() ShutdownState {
	if r == ReasonUserRequest {
		return StateShutdown
	}
	return StateError
}

var (
	ErrShutdown = stderrors.New("safety: machine is shut down")
	errNoReset  = stderrors.New("safety: cannot reset while running or shutting down")
)

// Stopper halts a group of axes. Implementations must be safe to call
// from any goroutine and must not block on the tick loop.
type Stopper interface {
	EmergencyStop(code errors.Code)
}

// StopperFunc adapts a function to Stopper.
type StopperFunc func(code errors.Code)

func (f StopperFunc) EmergencyStop(code errors.Code) { f(code) }

// Trip records one stop.
type Trip struct {
	Reason  ShutdownReason `json:"reason"`
	Message string         `json:"message"`
	Time    time.Time      `json:"time"`
	Cleared time.Time      `json:"cleared"`
}

// maxTrips bounds the trip history.
const maxTrips = 32

// Config holds configuration for the safety manager.
type Config struct {
	WatchdogTimeout time.Duration
}

// Manager owns the stop latch.
type Manager struct {
	mu       sync.RWMutex
	state    ShutdownState
	current  Trip
	history  []Trip
	stoppers []Stopper

	onShutdown    []func(reason ShutdownReason, msg string)
	onStateChange []func(oldState, newState ShutdownState)

	watchdog *Watchdog
	log      *log.Logger
}

// New creates a running manager with a 5s watchdog.
func New() *Manager {
	m := &Manager{log: log.GetLogger("safety")}
	m.watchdog = NewWatchdog(5*time.Second, func(stalled time.Duration) {
		m.trip(ReasonWatchdogTimeout, fmt.Sprintf("tick loop heartbeat timeout after %s", stalled.Round(time.Millisecond)))
	})
	return m
}

// Configure applies cfg. Zero fields keep their current value.
func (m *Manager) Configure(cfg Config) {
	if cfg.WatchdogTimeout > 0 {
		m.watchdog.SetTimeout(cfg.WatchdogTimeout)
	}
}

// RegisterStopper adds axes to halt on a trip.
func (m *Manager) RegisterStopper(s Stopper) {
	m.mu.Lock()
	m.stoppers = append(m.stoppers, s)
	m.mu.Unlock()
}

// OnShutdown registers fn to run after each trip.
func (m *Manager) OnShutdown(fn func(reason ShutdownReason, msg string)) {
	m.mu.Lock()
	m.onShutdown = append(m.onShutdown, fn)
	m.mu.Unlock()
}

// OnStateChange registers fn to run on every settled state change.
func (m *Manager) OnStateChange(fn func(oldState, newState ShutdownState)) {
	m.mu.Lock()
	m.onStateChange = append(m.onStateChange, fn)
	m.mu.Unlock()
}

func (m *Manager) GetState() ShutdownState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// GetShutdownInfo returns the active trip, zero when running.
func (m *Manager) GetShutdownInfo() (ShutdownReason, string, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Reason, m.current.Message, m.current.Time
}

func (m *Manager) IsShutdown() bool { return m.GetState().latched() }

func (m *Manager) IsOperational() bool { return m.GetState() == StateRunning }

// CheckOperational returns ErrShutdown, wrapped with the trip, unless
// running.
func (m *Manager) CheckOperational() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateRunning {
		return fmt.Errorf("%w: %s - %s", ErrShutdown, m.current.Reason, m.current.Message)
	}
	return nil
}

// Trips returns past and active trips, oldest first.
func (m *Manager) Trips() []Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.history)
}

// EmergencyStop latches a system emergency stop on every axis.
func (m *Manager) EmergencyStop(msg string) error {
	return m.trip(ReasonEmergencyStop, msg)
}

// WatchdogTimeout trips as if the tick loop stalled.
func (m *Manager) WatchdogTimeout() error {
	return m.trip(ReasonWatchdogTimeout, "tick loop heartbeat timeout")
}

// CommunicationError trips because a drive link was lost.
func (m *Manager) CommunicationError(device, errMsg string) error {
	return m.trip(ReasonCommunication, fmt.Sprintf("drive %s: %s", device, errMsg))
}

// RequestShutdown stops every axis by operator request.
func (m *Manager) RequestShutdown(msg string) error {
	return m.trip(ReasonUserRequest, msg)
}

// trip runs the stop sequence. A trip while one is active or latched is
// ignored.
func (m *Manager) trip(reason ShutdownReason, msg string) error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return nil
	}
	m.state = StateShuttingDown
	m.current = Trip{Reason: reason, Message: msg, Time: time.Now()}
	stoppers := slices.Clone(m.stoppers)
	m.mu.Unlock()

	m.log.WithFields(log.Fields{"reason": string(reason)}).Warnf("shutdown: %s", msg)
	m.watchdog.Stop()

	code := reason.Code()
	for _, s := range stoppers {
		s.EmergencyStop(code)
	}

	m.mu.Lock()
	m.state = reason.final()
	m.history = append(m.history, m.current)
	if len(m.history) > maxTrips {
		m.history = m.history[len(m.history)-maxTrips:]
	}
	onShutdown := slices.Clone(m.onShutdown)
	m.mu.Unlock()

	m.notify(StateRunning, reason.final())
	for _, fn := range onShutdown {
		fn(reason, msg)
	}
	return nil
}

func (m *Manager) notify(oldState, newState ShutdownState) {
	m.mu.RLock()
	fns := slices.Clone(m.onStateChange)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(oldState, newState)
	}
}

// Reset clears a latched trip. Axis errors are reset separately.
func (m *Manager) Reset() error {
	m.mu.Lock()
	if !m.state.latched() {
		m.mu.Unlock()
		return errNoReset
	}
	oldState := m.state
	m.state = StateRunning
	if n := len(m.history); n > 0 {
		m.history[n-1].Cleared = time.Now()
	}
	m.current = Trip{}
	m.mu.Unlock()

	m.log.Info("safety latch reset")
	m.notify(oldState, StateRunning)
	return nil
}

// StartWatchdog arms the tick watchdog.
func (m *Manager) StartWatchdog() { m.watchdog.Start() }

// StopWatchdog disarms the tick watchdog.
func (m *Manager) StopWatchdog() { m.watchdog.Stop() }

// Heartbeat feeds the watchdog. The reactor calls it once per tick.
func (m *Manager) Heartbeat() { m.watchdog.Beat() }

// Status is the reported form of the manager.
type Status struct {
	State          string    `json:"state"`
	ShutdownReason string    `json:"shutdown_reason,omitempty"`
	ShutdownMsg    string    `json:"shutdown_msg,omitempty"`
	ShutdownTime   time.Time `json:"shutdown_time"`
	IsOperational  bool      `json:"is_operational"`
	Trips          int       `json:"trips"`
}

func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		State:          m.state.String(),
		ShutdownReason: string(m.current.Reason),
		ShutdownMsg:    m.current.Message,
		ShutdownTime:   m.current.Time,
		IsOperational:  m.state == StateRunning,
		Trips:          len(m.history),
	}
}
