package execq

import (
	"fmt"
	"testing"

	"plcmotion/pkg/errors"
)

// recorder is the owner context shared by all fake nodes.
type recorder struct {
	events []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

type fakeNode struct {
	id        int
	ticks     int // Execute calls before reporting done
	result    Result
	hold      bool
	activeErr error
	execErr   error
	polls     int
}

func (n *fakeNode) Activate(r *recorder) error {
	r.add("active %d", n.id)
	return n.activeErr
}

func (n *fakeNode) Execute(r *recorder) (Result, error) {
	n.polls++
	r.add("exec %d", n.id)
	if n.execErr != nil {
		return Busy, n.execErr
	}
	if n.polls >= n.ticks {
		return n.result, nil
	}
	return Busy, nil
}

func (n *fakeNode) Complete(r *recorder) bool {
	r.add("done %d", n.id)
	return n.hold
}

func (n *fakeNode) Abort(r *recorder) { r.add("abort %d", n.id) }

func (n *fakeNode) Fail(r *recorder, err error) { r.add("fail %d %v", n.id, err) }

type testQueue = Queue[*recorder, fakeNode, *fakeNode]

func newTestQueue() *testQueue {
	return New[*recorder, fakeNode, *fakeNode](DefaultCapacity)
}

func push(t *testing.T, q *testQueue, r *recorder, n fakeNode, abort bool) {
	t.Helper()
	if err := q.Enqueue(r, abort, func(p *fakeNode) { *p = n }); err != nil {
		t.Fatalf("Enqueue %d: %v", n.id, err)
	}
}

func equalEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %q, want %q", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("events = %q, want %q", got, want)
		}
	}
}

func TestSequentialNodes(t *testing.T) {
	r := &recorder{}
	q := newTestQueue()
	push(t, q, r, fakeNode{id: 1, ticks: 2, result: Done}, false)
	push(t, q, r, fakeNode{id: 2, ticks: 1, result: Done}, false)

	for i := 0; i < 4; i++ {
		q.Step(r)
	}
	equalEvents(t, r.events, []string{
		"active 1", "exec 1", "exec 1", "done 1",
		"active 2", "exec 2", "done 2",
	})
	if q.Busy() {
		t.Error("queue should be idle")
	}
}

func TestFastDoneRunsSuccessorSameTick(t *testing.T) {
	r := &recorder{}
	q := newTestQueue()
	push(t, q, r, fakeNode{id: 1, ticks: 1, result: FastDone}, false)
	push(t, q, r, fakeNode{id: 2, ticks: 5, result: Done}, false)

	q.Step(r)
	equalEvents(t, r.events, []string{
		"active 1", "exec 1", "done 1", "active 2", "exec 2",
	})
	if q.Remaining() != 1 {
		t.Errorf("Remaining = %d, want 1", q.Remaining())
	}
}

func TestHeldNodeKeepsRunningUntilSuccessor(t *testing.T) {
	r := &recorder{}
	q := newTestQueue()
	push(t, q, r, fakeNode{id: 1, ticks: 1, result: Done, hold: true}, false)

	q.Step(r)
	if q.Held() == nil || q.Remaining() != 0 {
		t.Fatalf("node 1 should be held, remaining %d", q.Remaining())
	}
	if !q.Busy() {
		t.Error("held node must keep the queue busy")
	}
	q.Step(r)
	q.Step(r)

	push(t, q, r, fakeNode{id: 2, ticks: 1, result: Done}, false)
	q.Step(r)
	equalEvents(t, r.events, []string{
		"active 1", "exec 1", "done 1",
		"exec 1", "exec 1",
		"abort 1", "active 2", "exec 2", "done 2",
	})
	if q.Busy() {
		t.Error("queue should be idle")
	}
}

func TestAbortingEnqueue(t *testing.T) {
	r := &recorder{}
	q := newTestQueue()
	push(t, q, r, fakeNode{id: 1, ticks: 10, result: Done}, false)
	push(t, q, r, fakeNode{id: 2, ticks: 10, result: Done}, false)
	q.Step(r)
	r.events = nil

	aborted := 0
	q.OnAllAborted(func(r *recorder) {
		aborted++
		r.add("all aborted")
	})
	push(t, q, r, fakeNode{id: 3, ticks: 10, result: Done}, true)
	equalEvents(t, r.events, []string{"abort 1", "abort 2", "all aborted"})
	if q.Remaining() != 1 || q.Front().id != 3 {
		t.Fatalf("queue should hold only node 3")
	}

	q.AbortAll(r)
	q.AbortAll(r)
	if aborted != 2 {
		t.Errorf("all-aborted hook ran %d times, want 2", aborted)
	}
}

func TestQueueFull(t *testing.T) {
	r := &recorder{}
	q := newTestQueue()
	for i := 0; i < DefaultCapacity; i++ {
		push(t, q, r, fakeNode{id: i, ticks: 1, result: Done}, false)
	}
	err := q.Enqueue(r, false, func(p *fakeNode) {})
	if err != errors.QueueFull {
		t.Fatalf("Enqueue on full queue = %v, want QueueFull", err)
	}
	if q.Remaining() != DefaultCapacity {
		t.Errorf("Remaining = %d", q.Remaining())
	}
}

func TestActivationErrorFailsAll(t *testing.T) {
	r := &recorder{}
	q := newTestQueue()
	push(t, q, r, fakeNode{id: 1, ticks: 1, result: Done, activeErr: errors.AxisErrorStop}, false)
	push(t, q, r, fakeNode{id: 2, ticks: 1, result: Done}, false)

	q.Step(r)
	equalEvents(t, r.events, []string{
		"active 1",
		fmt.Sprintf("fail 1 %v", errors.AxisErrorStop),
		fmt.Sprintf("fail 2 %v", errors.AxisErrorStop),
	})
	if q.Busy() {
		t.Error("queue should be flushed")
	}
}

func TestHeldExecuteErrorFailsAll(t *testing.T) {
	r := &recorder{}
	q := newTestQueue()
	push(t, q, r, fakeNode{id: 1, ticks: 1, result: Done, hold: true}, false)
	q.Step(r)
	q.Held().execErr = errors.AxisPowerOff
	r.events = nil

	q.Step(r)
	equalEvents(t, r.events, []string{
		"exec 1",
		fmt.Sprintf("fail 1 %v", errors.AxisPowerOff),
	})
	if q.Busy() {
		t.Error("queue should be flushed")
	}
}

func TestWalk(t *testing.T) {
	r := &recorder{}
	q := newTestQueue()
	for i := 1; i <= 3; i++ {
		push(t, q, r, fakeNode{id: i, ticks: 1, result: Done}, false)
	}
	if q.Back().id != 3 {
		t.Errorf("Back = %d", q.Back().id)
	}
	n := q.Next(q.Front())
	if n == nil || n.id != 2 {
		t.Fatalf("Next(front) = %v", n)
	}
	if p := q.Prev(n); p == nil || p.id != 1 {
		t.Errorf("Prev = %v", p)
	}
	if q.Next(q.Back()) != nil {
		t.Error("Next(back) should be nil")
	}
	sum := 0
	q.Each(func(n *fakeNode) { sum += n.id })
	if sum != 6 {
		t.Errorf("Each sum = %d", sum)
	}
}
