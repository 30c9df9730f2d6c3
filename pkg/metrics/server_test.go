// Unit tests for metrics HTTP exposition
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type staticGatherer string

func (s staticGatherer) Gather() string { return string(s) }

// TestHandler tests the /metrics handler methods
func TestHandler(t *testing.T) {
	h := Handler(staticGatherer("motion_ticks_total 3\n"))

	tests := []struct {
		method string
		status int
		body   string
	}{
		{http.MethodGet, http.StatusOK, "motion_ticks_total 3\n"},
		{http.MethodHead, http.StatusOK, ""},
		{http.MethodPost, http.StatusMethodNotAllowed, "Method not allowed\n"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(tt.method, "/metrics", nil))
		resp := w.Result()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != tt.status || string(body) != tt.body {
			t.Errorf("%s: status %d body %q", tt.method, resp.StatusCode, body)
		}
		if tt.status == http.StatusOK && !strings.Contains(resp.Header.Get("Content-Type"), "text/plain") {
			t.Errorf("%s: content type %q", tt.method, resp.Header.Get("Content-Type"))
		}
	}
}

func TestServerHealthAndReady(t *testing.T) {
	ticking := false
	cfg := DefaultServerConfig()
	cfg.Ready = func() bool { return ticking }
	ms := NewServer(staticGatherer(""), cfg)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		ms.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	if w := get("/health"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "OK") {
		t.Errorf("health %d %q", w.Code, w.Body.String())
	}
	if w := get("/ready"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready before Serve = %d, want 503", w.Code)
	}

	ms.serving.Store(true)
	if w := get("/ready"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready while not ticking = %d, want 503", w.Code)
	}
	ticking = true
	if w := get("/ready"); w.Code != http.StatusOK {
		t.Errorf("ready = %d, want 200", w.Code)
	}
	if w := get("/nope"); w.Code != http.StatusNotFound {
		t.Errorf("unknown path = %d", w.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Username, cfg.Password = "admin", "secret123"
	ms := NewServer(staticGatherer("x 1\n"), cfg)

	tests := []struct {
		user, pass string
		auth       bool
		status     int
	}{
		{"", "", false, http.StatusUnauthorized},
		{"admin", "wrong", true, http.StatusUnauthorized},
		{"root", "secret123", true, http.StatusUnauthorized},
		{"admin", "secret123", true, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		if tt.auth {
			req.SetBasicAuth(tt.user, tt.pass)
		}
		w := httptest.NewRecorder()
		ms.ServeHTTP(w, req)
		if w.Code != tt.status {
			t.Errorf("%s/%s: status %d, want %d", tt.user, tt.pass, w.Code, tt.status)
		}
		if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
			t.Error("should set WWW-Authenticate header")
		}
	}
}

func TestServeAndShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ms := NewServer(staticGatherer("motion_up 1\n"), DefaultServerConfig())
	errCh := make(chan error, 1)
	go func() { errCh <- ms.Serve(l) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + l.Addr().String() + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "motion_up 1\n" {
		t.Errorf("body %q", body)
	}
	if !ms.IsRunning() {
		t.Error("server should be running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ms.Shutdown(ctx); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Serve returned %v", err)
	}
	if ms.IsRunning() {
		t.Error("server should not be running after Shutdown")
	}
}
