package queue

import "testing"

type countingCounter struct{ n int }

func (c *countingCounter) IncDropped(name string) { c.n++ }

func TestPushPopFIFOOrder(t *testing.T) {
	q := New[int]("test", 4, nil)
	for i := 0; i < 3; i++ {
		if !q.Push(i) {
			t.Fatalf("push %d should have succeeded", i)
		}
	}
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		v, ok := q.Pop(done)
		if !ok || v != i {
			t.Fatalf("expected %d, got %d ok=%v", i, v, ok)
		}
	}
}

func TestPushDropsWhenFull(t *testing.T) {
	c := &countingCounter{}
	q := New[int]("test", 2, c)
	q.Push(1)
	q.Push(2)
	if q.Push(3) {
		t.Fatal("expected third push to be dropped")
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected dropped count 1, got %d", q.Dropped())
	}
	if c.n != 1 {
		t.Fatalf("expected counter notified once, got %d", c.n)
	}
}

func TestTryPopEmpty(t *testing.T) {
	q := New[string]("test", 2, nil)
	if _, ok := q.TryPop(); ok {
		t.Fatal("expected TryPop on empty queue to fail")
	}
}

func TestDrainRemovesAll(t *testing.T) {
	q := New[int]("test", 4, nil)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	if n := q.Drain(); n != 3 {
		t.Fatalf("expected to drain 3 items, got %d", n)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after drain, got len %d", q.Len())
	}
}

func TestPopUnblocksOnDone(t *testing.T) {
	q := New[int]("test", 1, nil)
	done := make(chan struct{})
	close(done)
	if _, ok := q.Pop(done); ok {
		t.Fatal("expected Pop to report !ok once done is closed")
	}
}
