package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"plcmotion/pkg/config"
	"plcmotion/pkg/errors"
	"plcmotion/pkg/reactor"
	"plcmotion/pkg/safety"
	"plcmotion/pkg/scheduler"
	"plcmotion/pkg/store"
)

type fakeSettings struct {
	limits map[int32]config.RangeLimitConfig
	saves  int
}

func (f *fakeSettings) SetRangeLimit(id int32, rl config.RangeLimitConfig) error {
	if f.limits == nil {
		f.limits = make(map[int32]config.RangeLimitConfig)
	}
	f.limits[id] = rl
	return nil
}

func (f *fakeSettings) Save() error {
	f.saves++
	return nil
}

type testEnv struct {
	srv      *Server
	sched    *scheduler.Scheduler
	safety   *safety.Manager
	store    *store.Store
	settings *fakeSettings
	stop     func()
}

func newTestEnv(t *testing.T, auth *Auth) *testEnv {
	t.Helper()
	sched := scheduler.New()
	sched.NewAxis(1, nil)
	sched.NewAxis(2, nil)
	r := reactor.New(sched, reactor.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	t.Cleanup(stop)

	st, err := store.Open(filepath.Join(t.TempDir(), "motion.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	env := &testEnv{sched: sched, safety: safety.New(), store: st, settings: &fakeSettings{}, stop: stop}
	env.srv = New(Config{
		Reactor:  r,
		Safety:   env.safety,
		Store:    st,
		Settings: env.settings,
		Auth:     auth,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad json %q", method, path, w.Body.String())
		}
	}
	return w.Code, out
}

func (e *testEnv) powerOn(t *testing.T, id int) {
	t.Helper()
	code, body := e.do(t, http.MethodPost, fmt.Sprintf("/axes/%d/power", id), map[string]any{"on": true}, "")
	if code != http.StatusOK || body["powered"] != true {
		t.Fatalf("power on: %d %v", code, body)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, nil)
	code, body := e.do(t, http.MethodGet, "/health", nil, "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", code, body)
	}
}

func TestListAndGetAxis(t *testing.T) {
	e := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/axes", nil)
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	var axes []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &axes); err != nil || len(axes) != 2 {
		t.Fatalf("list axes = %d %s", w.Code, w.Body.String())
	}

	tests := []struct {
		path   string
		status int
		errStr string
	}{
		{"/axes/2", http.StatusOK, ""},
		{"/axes/9", http.StatusNotFound, errors.AxisNotExist.Name()},
		{"/axes/x", http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		code, body := e.do(t, http.MethodGet, tt.path, nil, "")
		if code != tt.status {
			t.Errorf("%s: status %d, want %d", tt.path, code, tt.status)
		}
		if tt.errStr != "" && body["error"] != tt.errStr {
			t.Errorf("%s: error %v, want %s", tt.path, body["error"], tt.errStr)
		}
	}
}

func TestMoveRequiresPower(t *testing.T) {
	e := newTestEnv(t, nil)
	code, body := e.do(t, http.MethodPost, "/axes/1/move",
		map[string]any{"position": 1, "velocity": 1, "acceleration": 10, "deceleration": 10}, "")
	if code != http.StatusConflict || body["error"] != errors.AxisPowerOff.Name() {
		t.Errorf("move unpowered = %d %v", code, body)
	}
}

func TestBadBody(t *testing.T) {
	e := newTestEnv(t, nil)
	code, _ := e.do(t, http.MethodPost, "/axes/1/move", map[string]any{"speed": 3}, "")
	if code != http.StatusBadRequest {
		t.Errorf("unknown field accepted: %d", code)
	}
}

func TestPowerAndMove(t *testing.T) {
	e := newTestEnv(t, nil)
	e.powerOn(t, 1)

	code, body := e.do(t, http.MethodPost, "/axes/1/move?wait=true",
		map[string]any{"position": 0.02, "velocity": 1, "acceleration": 50, "deceleration": 50}, "")
	if code != http.StatusOK || body["result"] != "done" {
		t.Fatalf("move = %d %v", code, body)
	}

	code, body = e.do(t, http.MethodGet, "/axes/1", nil, "")
	if code != http.StatusOK {
		t.Fatal(code)
	}
	if pos := body["position"].(float64); math.Abs(pos-0.02) > 1e-4 {
		t.Errorf("position = %g, want 0.02", pos)
	}
	if body["status"] != "standstill" {
		t.Errorf("status = %v", body["status"])
	}

	code, body = e.do(t, http.MethodPost, "/axes/1/move",
		map[string]any{"position": 0.01, "velocity": 1, "acceleration": 50, "deceleration": 50, "mode": "sideways"}, "")
	if code != http.StatusConflict || body["error"] != errors.ShiftingModeIllegal.Name() {
		t.Errorf("bad mode = %d %v", code, body)
	}
}

func TestStopAndRelease(t *testing.T) {
	e := newTestEnv(t, nil)
	e.powerOn(t, 2)

	code, _ := e.do(t, http.MethodPost, "/axes/2/velocity",
		map[string]any{"velocity": 0.5, "acceleration": 10, "deceleration": 10}, "")
	if code != http.StatusAccepted {
		t.Fatalf("velocity = %d", code)
	}
	code, body := e.do(t, http.MethodPost, "/axes/2/stop?wait=true",
		map[string]any{"deceleration": 20}, "")
	if code != http.StatusOK || body["result"] != "done" {
		t.Fatalf("stop = %d %v", code, body)
	}
	_, body = e.do(t, http.MethodGet, "/axes/2", nil, "")
	if body["status"] != "stopping" {
		t.Errorf("held stop status = %v", body["status"])
	}

	code, _ = e.do(t, http.MethodDelete, "/axes/2/stop", nil, "")
	if code != http.StatusNoContent {
		t.Fatalf("release = %d", code)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, body = e.do(t, http.MethodGet, "/axes/2", nil, "")
		if body["status"] == "standstill" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("status after release = %v", body["status"])
}

func TestRangeLimit(t *testing.T) {
	e := newTestEnv(t, nil)
	rl := map[string]any{"sw_limit_positive": true, "limit_positive": 5.0, "sw_limit_negative": false, "limit_negative": 0.0}
	code, _ := e.do(t, http.MethodPut, "/axes/1/range_limit", rl, "")
	if code != http.StatusOK {
		t.Fatalf("put range limit = %d", code)
	}
	code, body := e.do(t, http.MethodGet, "/axes/1/range_limit", nil, "")
	if code != http.StatusOK || body["sw_limit_positive"] != true || body["limit_positive"] != 5.0 {
		t.Errorf("range limit = %d %v", code, body)
	}
	if e.settings.limits[1].LimitPositive != 5 || e.settings.saves != 1 {
		t.Errorf("settings = %+v", e.settings)
	}
}

func TestHomePositionPersisted(t *testing.T) {
	e := newTestEnv(t, nil)
	code, body := e.do(t, http.MethodPut, "/axes/2/home_position", map[string]any{"position": 3.5}, "")
	if code != http.StatusOK || body["home_position"] != 3.5 {
		t.Fatalf("home position = %d %v", code, body)
	}
	pos, ok, err := e.store.HomePosition(2)
	if err != nil || !ok || pos != 3.5 {
		t.Errorf("stored home = %g %v %v", pos, ok, err)
	}
}

func TestEmergencyStopAndFaults(t *testing.T) {
	e := newTestEnv(t, nil)
	code, body := e.do(t, http.MethodPost, "/estop", map[string]any{"message": "door open"}, "")
	if code != http.StatusOK || body["state"] != "error" {
		t.Fatalf("estop = %d %v", code, body)
	}
	code, body = e.do(t, http.MethodGet, "/safety", nil, "")
	if code != http.StatusOK || body["shutdown_msg"] != "door open" {
		t.Errorf("safety = %d %v", code, body)
	}
	code, body = e.do(t, http.MethodPost, "/safety/reset", nil, "")
	if code != http.StatusOK || body["state"] != "running" {
		t.Errorf("safety reset = %d %v", code, body)
	}

	e.store.RecordFault(1, errors.PosLagOverLimit, "")
	req := httptest.NewRequest(http.MethodGet, "/faults?axis=1", nil)
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	var faults []store.Fault
	if err := json.Unmarshal(w.Body.Bytes(), &faults); err != nil || len(faults) != 1 {
		t.Fatalf("faults = %d %s", w.Code, w.Body.String())
	}
	code, body = e.do(t, http.MethodDelete, "/faults", nil, "")
	if code != http.StatusOK || body["cleared"] != 1.0 {
		t.Errorf("clear = %d %v", code, body)
	}
}

func TestAuthScopes(t *testing.T) {
	auth := NewAuth("0123456789abcdef0123")
	e := newTestEnv(t, auth)

	reader, err := auth.NewToken("viewer", []string{ScopeRead}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	operator, _ := auth.NewToken("operator", []string{ScopeRead, ScopeControl}, time.Hour)
	expired, _ := auth.NewToken("late", []string{ScopeRead}, -time.Minute)
	foreign, _ := NewAuth("another-secret-value").NewToken("x", []string{ScopeRead}, time.Hour)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"no token", http.MethodGet, "/axes/1", "", http.StatusUnauthorized},
		{"expired", http.MethodGet, "/axes/1", expired, http.StatusUnauthorized},
		{"wrong secret", http.MethodGet, "/axes/1", foreign, http.StatusUnauthorized},
		{"reader reads", http.MethodGet, "/axes/1", reader, http.StatusOK},
		{"reader cannot control", http.MethodPost, "/estop", reader, http.StatusForbidden},
		{"operator controls", http.MethodPost, "/estop", operator, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := e.do(t, tt.method, tt.path, nil, tt.token)
			if code != tt.status {
				t.Errorf("status %d, want %d", code, tt.status)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/axes/1?token="+reader, nil)
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("query token = %d", w.Code)
	}

	_, body := e.do(t, http.MethodGet, "/safety", nil, reader)
	if msg, _ := body["shutdown_msg"].(string); msg != "requested over api by operator" {
		t.Errorf("shutdown message = %q", msg)
	}
}

func TestVerify(t *testing.T) {
	auth := NewAuth("0123456789abcdef0123")
	tok, err := auth.NewToken("cli", []string{ScopeControl}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := auth.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "cli" || !claims.HasScope(ScopeControl) || claims.HasScope(ScopeRead) {
		t.Errorf("claims = %+v", claims)
	}
	if _, err := auth.Verify(tok + "x"); err == nil {
		t.Error("tampered token verified")
	}
	if _, err := (&Auth{}).NewToken("x", nil, time.Minute); err == nil {
		t.Error("token issued without a secret")
	}
}

func TestReactorStopped(t *testing.T) {
	e := newTestEnv(t, nil)
	e.stop()

	start := time.Now()
	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/axes", nil},
		{http.MethodPost, "/axes/1/power", map[string]any{"on": true}},
		{http.MethodPost, "/axes/1/move", map[string]any{"position": 10, "velocity": 5}},
	} {
		code, body := e.do(t, tc.method, tc.path, tc.body, "")
		if code != http.StatusServiceUnavailable || body["error"] != "UNAVAILABLE" {
			t.Errorf("%s %s = %d %v, want 503 UNAVAILABLE", tc.method, tc.path, code, body)
		}
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("requests took %v after reactor stopped", d)
	}
}
