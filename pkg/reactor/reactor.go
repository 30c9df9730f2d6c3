// Package reactor drives a motion scheduler at its tick frequency.
//
// The reactor goroutine is the only one that touches the axes. Other
// goroutines hand work to it with Submit; submissions run between ticks,
// in order.
package reactor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"plcmotion/pkg/log"
	"plcmotion/pkg/scheduler"
)

// Common errors
var (
	ErrReactorClosed = errors.New("reactor: reactor closed")
	ErrRunning       = errors.New("reactor: already running")
	ErrQueueFull     = errors.New("reactor: submission queue full")
)

// Heartbeater is refreshed once per tick. The safety watchdog implements
// it.
type Heartbeater interface {
	Heartbeat()
}

// TickObserver is told how long each tick took.
type TickObserver interface {
	ObserveTick(d time.Duration, overrun bool)
}

// TickHook runs on the reactor goroutine after every scheduler cycle.
type TickHook func(tick uint32)

// Completion represents a submitted closure that completes with its error.
type Completion struct {
	err  error
	done chan struct{}
	once sync.Once
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Test returns true if the completion has a result.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Complete sets the completion result and wakes any waiters.
func (c *Completion) Complete(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Wait blocks until the closure ran or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the completion has a result.
func (c *Completion) Done() <-chan struct{} { return c.done }

type submission struct {
	fn func() error
	c  *Completion
}

// Config holds reactor settings.
type Config struct {
	// QueueSize bounds pending submissions.
	QueueSize int
	Heartbeat Heartbeater
	Observer  TickObserver
}

// Reactor owns the tick loop of one scheduler.
type Reactor struct {
	sched  *scheduler.Scheduler
	period time.Duration
	queue  chan submission
	beat   Heartbeater
	obs    TickObserver
	log    *log.Logger

	hooksMu sync.Mutex
	hooks   []TickHook

	// submitMu orders Submit against the close at Run exit, so nothing
	// is queued after the final drain.
	submitMu sync.RWMutex
	closed   bool

	running  atomic.Bool
	ticks    atomic.Uint64
	overruns atomic.Uint64

	startTime time.Time
}

// New creates a reactor for sched. The tick period follows the scheduler
// frequency at creation.
func New(sched *scheduler.Scheduler, cfg Config) *Reactor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	return &Reactor{
		sched:     sched,
		period:    time.Duration(float64(time.Second) / sched.Frequency()),
		queue:     make(chan submission, cfg.QueueSize),
		beat:      cfg.Heartbeat,
		obs:       cfg.Observer,
		log:       log.GetLogger("reactor"),
		startTime: time.Now(),
	}
}

// Scheduler returns the driven scheduler. Only use it on the reactor
// goroutine, inside a submission or a hook.
func (r *Reactor) Scheduler() *scheduler.Scheduler { return r.sched }

// Period returns the tick period.
func (r *Reactor) Period() time.Duration { return r.period }

// Monotonic returns the seconds since the reactor was created.
func (r *Reactor) Monotonic() float64 {
	return time.Since(r.startTime).Seconds()
}

// Ticks returns the number of ticks run.
func (r *Reactor) Ticks() uint64 { return r.ticks.Load() }

// Overruns returns the number of ticks that took longer than a period.
func (r *Reactor) Overruns() uint64 { return r.overruns.Load() }

// Running reports whether Run is active.
func (r *Reactor) Running() bool { return r.running.Load() }

// Closed reports whether Run has returned. A closed reactor completes
// every submission with ErrReactorClosed.
func (r *Reactor) Closed() bool {
	r.submitMu.RLock()
	defer r.submitMu.RUnlock()
	return r.closed
}

// OnTick registers a hook. Hooks run in registration order.
func (r *Reactor) OnTick(h TickHook) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, h)
}

// Submit queues fn to run on the reactor goroutine before the next tick.
// It never blocks; a full queue completes with ErrQueueFull and a closed
// reactor with ErrReactorClosed.
func (r *Reactor) Submit(fn func() error) *Completion {
	c := newCompletion()
	r.submitMu.RLock()
	defer r.submitMu.RUnlock()
	if r.closed {
		c.Complete(ErrReactorClosed)
		return c
	}
	select {
	case r.queue <- submission{fn: fn, c: c}:
	default:
		c.Complete(ErrQueueFull)
	}
	return c
}

// Call submits fn and waits for its result.
func (r *Reactor) Call(ctx context.Context, fn func() error) error {
	return r.Submit(fn).Wait(ctx)
}

// processSubmissions runs every pending submission.
func (r *Reactor) processSubmissions() {
	for {
		select {
		case s := <-r.queue:
			s.c.Complete(r.safeCall(s.fn))
		default:
			return
		}
	}
}

func (r *Reactor) safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("submission panicked: %v", p)
			err = errors.New("reactor: submission panicked")
		}
	}()
	return fn()
}

func (r *Reactor) tick() {
	start := time.Now()
	r.sched.RunCycle()
	tick := r.sched.Tick()

	r.hooksMu.Lock()
	hooks := r.hooks
	r.hooksMu.Unlock()
	for _, h := range hooks {
		h(tick)
	}

	if r.beat != nil {
		r.beat.Heartbeat()
	}
	r.ticks.Add(1)

	d := time.Since(start)
	overrun := d > r.period
	if overrun {
		r.overruns.Add(1)
	}
	if r.obs != nil {
		r.obs.ObserveTick(d, overrun)
	}
}

// Step runs pending submissions and n ticks on the calling goroutine. It
// must not be used while Run is active.
func (r *Reactor) Step(n int) {
	for i := 0; i < n; i++ {
		r.processSubmissions()
		r.tick()
	}
	r.processSubmissions()
}

// Run ticks until ctx is done, then closes the reactor. Submissions still
// pending at exit, and any made later, complete with ErrReactorClosed.
func (r *Reactor) Run(ctx context.Context) error {
	if r.Closed() {
		return ErrReactorClosed
	}
	if r.running.Swap(true) {
		return ErrRunning
	}
	defer r.running.Store(false)

	r.log.Info("tick loop started, period %v", r.period)
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.close()
			r.log.Info("tick loop stopped after %d ticks, %d overruns", r.Ticks(), r.Overruns())
			return ctx.Err()
		case <-ticker.C:
			r.processSubmissions()
			r.tick()
		}
	}
}

func (r *Reactor) close() {
	r.submitMu.Lock()
	r.closed = true
	r.submitMu.Unlock()
	for {
		select {
		case s := <-r.queue:
			s.c.Complete(ErrReactorClosed)
		default:
			return
		}
	}
}
