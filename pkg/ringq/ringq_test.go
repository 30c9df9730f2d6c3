package ringq

import "testing"

func TestPushPopOrder(t *testing.T) {
	q := New[int](3)
	if q.Cap() != 3 || !q.Empty() {
		t.Fatalf("new queue: cap %d empty %v", q.Cap(), q.Empty())
	}
	for i := 1; i <= 3; i++ {
		p := q.PushBack()
		if p == nil {
			t.Fatalf("PushBack %d returned nil", i)
		}
		*p = i
	}
	if !q.Full() {
		t.Error("queue should be full")
	}
	if q.PushBack() != nil {
		t.Error("PushBack on full queue should return nil")
	}
	if q.Len() != 3 {
		t.Errorf("Len = %d, want 3", q.Len())
	}
	for want := 1; want <= 3; want++ {
		if got := *q.Front(); got != want {
			t.Errorf("Front = %d, want %d", got, want)
		}
		q.PopFront()
	}
	if !q.Empty() || q.Front() != nil || q.Back() != nil {
		t.Error("queue should be empty")
	}
}

func TestPushBackZeroesReusedSlot(t *testing.T) {
	type node struct {
		a, b int
	}
	q := New[node](1)
	*q.PushBack() = node{a: 7, b: 9}
	q.PopFront()
	p := q.PushBack()
	if p.a != 0 || p.b != 0 {
		t.Errorf("reused slot not zeroed: %+v", *p)
	}
}

func TestWrapAroundWalk(t *testing.T) {
	q := New[int](3)
	for i := 0; i < 10; i++ {
		*q.PushBack() = i
		if q.Len() > 2 {
			q.PopFront()
		}
	}
	// holds 8, 9
	var got []int
	for p := q.Front(); p != nil; p = q.Next(p) {
		got = append(got, *p)
	}
	if len(got) != 2 || got[0] != 8 || got[1] != 9 {
		t.Fatalf("walk = %v, want [8 9]", got)
	}
	if *q.Back() != 9 {
		t.Errorf("Back = %d", *q.Back())
	}
	if q.Prev(q.Front()) != nil {
		t.Error("Prev of front should be nil")
	}
	if p := q.Prev(q.Back()); p == nil || *p != 8 {
		t.Errorf("Prev of back = %v", p)
	}
	if p := q.At(1); p == nil || *p != 9 {
		t.Errorf("At(1) = %v", p)
	}
	if q.At(2) != nil {
		t.Error("At past end should be nil")
	}
}

func TestPopBackAndClear(t *testing.T) {
	q := New[int](4)
	for i := 0; i < 4; i++ {
		*q.PushBack() = i
	}
	q.PopBack()
	if *q.Back() != 2 {
		t.Errorf("Back after PopBack = %d", *q.Back())
	}
	q.Clear()
	if !q.Empty() {
		t.Error("Clear left elements")
	}
	q.PopFront()
	q.PopBack()
	if q.Len() != 0 {
		t.Error("pop on empty queue changed length")
	}
}
