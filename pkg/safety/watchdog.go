package safety

import (
	"sync"
	"time"
)

// Watchdog calls expire once when Beat is not called for longer than
// its timeout while armed.
type Watchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	last    time.Time
	stop    chan struct{}
	expire  func(stalled time.Duration)
}

// NewWatchdog creates a disarmed watchdog.
func NewWatchdog(timeout time.Duration, expire func(stalled time.Duration)) *Watchdog {
	return &Watchdog{timeout: timeout, expire: expire}
}

func (w *Watchdog) SetTimeout(d time.Duration) {
	w.mu.Lock()
	w.timeout = d
	w.mu.Unlock()
}

func (w *Watchdog) Timeout() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timeout
}

// Armed reports whether the watchdog is checking beats.
func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stop != nil
}

// Start arms the watchdog. Starting an armed watchdog does nothing.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		return
	}
	w.stop = make(chan struct{})
	w.last = time.Now()
	interval := min(w.timeout/4, 500*time.Millisecond)
	go w.loop(w.stop, interval)
}

// Stop disarms the watchdog.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
}

func (w *Watchdog) Beat() {
	w.mu.Lock()
	w.last = time.Now()
	w.mu.Unlock()
}

func (w *Watchdog) loop(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		w.mu.Lock()
		stalled := time.Since(w.last)
		expired := w.stop == stop && stalled > w.timeout
		if expired {
			w.stop = nil
		}
		w.mu.Unlock()
		if expired {
			w.expire(stalled)
			return
		}
	}
}
