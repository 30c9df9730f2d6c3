package safety

import (
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"plcmotion/pkg/errors"
)

// recordingStopper records the codes it was stopped with.
type recordingStopper struct {
	mu    sync.Mutex
	codes []errors.Code
}

func (s *recordingStopper) EmergencyStop(code errors.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
}

func (s *recordingStopper) Codes() []errors.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]errors.Code(nil), s.codes...)
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewIsRunning(t *testing.T) {
	m := New()
	if m.GetState() != StateRunning || m.IsShutdown() || !m.IsOperational() {
		t.Errorf("new manager state %s", m.GetState())
	}
	if err := m.CheckOperational(); err != nil {
		t.Errorf("CheckOperational: %v", err)
	}
	if n := len(m.Trips()); n != 0 {
		t.Errorf("trips = %d", n)
	}
}

func TestShutdownStateString(t *testing.T) {
	tests := []struct {
		state ShutdownState
		want  string
	}{
		{StateRunning, "running"},
		{StateShuttingDown, "shutting_down"},
		{StateShutdown, "shutdown"},
		{StateError, "error"},
		{ShutdownState(99), "unknown"},
		{ShutdownState(-1), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ShutdownState(%d) = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestTripOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		trip   func(m *Manager)
		reason ShutdownReason
		code   errors.Code
		state  ShutdownState
		msg    string
	}{
		{"estop", func(m *Manager) { m.EmergencyStop("door open") },
			ReasonEmergencyStop, errors.SystemEmgs, StateError, "door open"},
		{"watchdog", func(m *Manager) { m.WatchdogTimeout() },
			ReasonWatchdogTimeout, errors.SystemEmgs, StateError, "tick loop heartbeat timeout"},
		{"link", func(m *Manager) { m.CommunicationError("axis1", "link lost") },
			ReasonCommunication, errors.Communication, StateError, "drive axis1: link lost"},
		{"operator", func(m *Manager) { m.RequestShutdown("end of shift") },
			ReasonUserRequest, errors.SoftwareEmgs, StateShutdown, "end of shift"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			a, b := &recordingStopper{}, &recordingStopper{}
			m.RegisterStopper(a)
			m.RegisterStopper(b)

			tt.trip(m)

			if m.GetState() != tt.state {
				t.Errorf("state = %s, want %s", m.GetState(), tt.state)
			}
			for i, s := range []*recordingStopper{a, b} {
				if codes := s.Codes(); len(codes) != 1 || codes[0] != tt.code {
					t.Errorf("stopper %d codes = %v, want [%v]", i, codes, tt.code)
				}
			}
			reason, msg, at := m.GetShutdownInfo()
			if reason != tt.reason || msg != tt.msg || at.IsZero() {
				t.Errorf("shutdown info = %s %q %v", reason, msg, at)
			}
			if err := m.CheckOperational(); !stderrors.Is(err, ErrShutdown) {
				t.Errorf("CheckOperational = %v", err)
			}
		})
	}
}

func TestStopperFunc(t *testing.T) {
	m := New()
	var got errors.Code
	m.RegisterStopper(StopperFunc(func(code errors.Code) { got = code }))
	m.EmergencyStop("test")
	if got != errors.SystemEmgs {
		t.Errorf("stopper got %v", got)
	}
}

func TestSecondTripIgnored(t *testing.T) {
	m := New()
	s := &recordingStopper{}
	m.RegisterStopper(s)

	m.EmergencyStop("first")
	if err := m.RequestShutdown("second"); err != nil {
		t.Errorf("second trip: %v", err)
	}
	if _, msg, _ := m.GetShutdownInfo(); msg != "first" {
		t.Errorf("message = %q, want first", msg)
	}
	if m.GetState() != StateError {
		t.Errorf("state = %s", m.GetState())
	}
	if n := len(s.Codes()); n != 1 {
		t.Errorf("axes stopped %d times", n)
	}
}

func TestCallbacks(t *testing.T) {
	m := New()

	var gotReason ShutdownReason
	var gotMsg string
	var changes []string
	m.OnShutdown(func(reason ShutdownReason, msg string) {
		gotReason, gotMsg = reason, msg
	})
	m.OnStateChange(func(old, new ShutdownState) {
		changes = append(changes, old.String()+">"+new.String())
	})

	m.EmergencyStop("callback test")
	if gotReason != ReasonEmergencyStop || gotMsg != "callback test" {
		t.Errorf("shutdown callback got %s %q", gotReason, gotMsg)
	}
	m.Reset()

	want := "running>error,error>running"
	if got := strings.Join(changes, ","); got != want {
		t.Errorf("state changes = %s, want %s", got, want)
	}
}

func TestReset(t *testing.T) {
	m := New()
	if err := m.Reset(); err == nil {
		t.Error("reset while running succeeded")
	}

	m.RequestShutdown("test")
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !m.IsOperational() {
		t.Error("not operational after reset")
	}
	if reason, msg, _ := m.GetShutdownInfo(); reason != ReasonNone || msg != "" {
		t.Errorf("trip not cleared: %s %q", reason, msg)
	}

	// a reset manager trips again
	m.EmergencyStop("again")
	if m.GetState() != StateError {
		t.Errorf("state = %s", m.GetState())
	}
}

func TestTripHistory(t *testing.T) {
	m := New()
	m.EmergencyStop("one")
	m.Reset()
	m.RequestShutdown("two")

	trips := m.Trips()
	if len(trips) != 2 {
		t.Fatalf("trips = %d", len(trips))
	}
	if trips[0].Message != "one" || trips[0].Cleared.IsZero() {
		t.Errorf("first trip %+v", trips[0])
	}
	if trips[1].Reason != ReasonUserRequest || !trips[1].Cleared.IsZero() {
		t.Errorf("second trip %+v", trips[1])
	}
	if st := m.GetStatus(); st.Trips != 2 {
		t.Errorf("status trips = %d", st.Trips)
	}

	for i := 0; i < maxTrips+5; i++ {
		m.Reset()
		m.EmergencyStop("loop")
	}
	if n := len(m.Trips()); n != maxTrips {
		t.Errorf("history = %d, want %d", n, maxTrips)
	}
}

func TestGetStatus(t *testing.T) {
	m := New()
	st := m.GetStatus()
	if st.State != "running" || !st.IsOperational || st.ShutdownReason != "" {
		t.Errorf("initial status %+v", st)
	}

	m.EmergencyStop("status test")
	st = m.GetStatus()
	if st.State != "error" || st.IsOperational {
		t.Errorf("status after stop %+v", st)
	}
	if st.ShutdownReason != string(ReasonEmergencyStop) || st.ShutdownMsg != "status test" {
		t.Errorf("status trip %+v", st)
	}
}

func TestConfigure(t *testing.T) {
	m := New()
	if d := m.watchdog.Timeout(); d != 5*time.Second {
		t.Errorf("default timeout = %s", d)
	}
	m.Configure(Config{WatchdogTimeout: 10 * time.Second})
	m.Configure(Config{})
	if d := m.watchdog.Timeout(); d != 10*time.Second {
		t.Errorf("timeout = %s, want 10s", d)
	}
}

func TestWatchdogFed(t *testing.T) {
	m := New()
	m.Configure(Config{WatchdogTimeout: 100 * time.Millisecond})
	m.StartWatchdog()
	defer m.StopWatchdog()

	for i := 0; i < 6; i++ {
		m.Heartbeat()
		time.Sleep(25 * time.Millisecond)
	}
	if !m.IsOperational() {
		t.Error("tripped while fed")
	}
}

func TestWatchdogTrips(t *testing.T) {
	m := New()
	s := &recordingStopper{}
	m.RegisterStopper(s)
	m.Configure(Config{WatchdogTimeout: 50 * time.Millisecond})

	m.StartWatchdog()
	waitFor(t, time.Second, func() bool { return m.GetState() == StateError })

	reason, msg, _ := m.GetShutdownInfo()
	if reason != ReasonWatchdogTimeout {
		t.Errorf("reason = %s", reason)
	}
	if !strings.HasPrefix(msg, "tick loop heartbeat timeout after ") {
		t.Errorf("message = %q", msg)
	}
	if codes := s.Codes(); len(codes) != 1 || codes[0] != errors.SystemEmgs {
		t.Errorf("stopper codes = %v", codes)
	}
	if m.watchdog.Armed() {
		t.Error("watchdog still armed after trip")
	}
}

func TestWatchdogStartStop(t *testing.T) {
	var fired atomic.Int32
	w := NewWatchdog(40*time.Millisecond, func(time.Duration) { fired.Add(1) })

	w.Start()
	w.Start()
	if !w.Armed() {
		t.Fatal("not armed")
	}
	w.Stop()
	w.Stop()
	time.Sleep(120 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Errorf("stopped watchdog fired %d times", n)
	}

	w.Start()
	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })
	time.Sleep(100 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Errorf("fired %d times, want once", n)
	}
}
