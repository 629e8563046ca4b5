package buffer

import (
	"reflect"
	"sync"
	"testing"
)

func TestNewRingBuffer(t *testing.T) {
	// Test with valid capacity
	rb := NewRingBuffer[int](100)
	if rb.Cap() != 100 {
		t.Errorf("expected capacity 100, got %d", rb.Cap())
	}
	if rb.Len() != 0 {
		t.Errorf("expected length 0, got %d", rb.Len())
	}

	// Test with zero capacity (should default to 1)
	rb = NewRingBuffer[int](0)
	if rb.Cap() != 1 {
		t.Errorf("expected capacity 1 for zero input, got %d", rb.Cap())
	}

	// Test with negative capacity (should default to 1)
	rb = NewRingBuffer[int](-5)
	if rb.Cap() != 1 {
		t.Errorf("expected capacity 1 for negative input, got %d", rb.Cap())
	}
}

func TestRingBuffer_Push(t *testing.T) {
	rb := NewRingBuffer[string](3)

	for _, s := range []string{"a", "b", "c"} {
		if rb.Push(s) {
			t.Errorf("unexpected drop while pushing %q", s)
		}
	}
	if rb.Len() != 3 {
		t.Errorf("expected length 3, got %d", rb.Len())
	}

	got := rb.Items()
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("expected [a b c], got %v", got)
	}
}

func TestRingBuffer_PushOverflow(t *testing.T) {
	rb := NewRingBuffer[int](3)

	for i := 1; i <= 3; i++ {
		rb.Push(i)
	}

	// Pushing into a full buffer discards the oldest
	if !rb.Push(4) {
		t.Error("expected push into full buffer to report a drop")
	}
	rb.Push(5)

	got := rb.Items()
	if !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("expected [3 4 5], got %v", got)
	}
	if rb.Len() != 3 {
		t.Errorf("expected length 3, got %d", rb.Len())
	}
	if rb.Dropped() != 2 {
		t.Errorf("expected 2 dropped, got %d", rb.Dropped())
	}
}

func TestRingBuffer_Items(t *testing.T) {
	rb := NewRingBuffer[int](4)

	// Items on empty buffer
	if items := rb.Items(); items != nil {
		t.Errorf("expected nil for empty buffer, got %v", items)
	}

	rb.Push(1)
	rb.Push(2)
	items := rb.Items()

	// Items returns a copy
	items[0] = 99
	if got := rb.Items(); got[0] != 1 {
		t.Errorf("Items should return a copy, got %v", got)
	}
}

func TestRingBuffer_Drain(t *testing.T) {
	rb := NewRingBuffer[int](2)
	rb.Push(1)
	rb.Push(2)
	rb.Push(3)

	got := rb.Drain()
	if !reflect.DeepEqual(got, []int{2, 3}) {
		t.Errorf("expected [2 3], got %v", got)
	}
	if rb.Len() != 0 {
		t.Errorf("expected empty buffer after drain, got %d", rb.Len())
	}

	// Order is kept after the head has wrapped
	rb.Push(4)
	rb.Push(5)
	if got := rb.Drain(); !reflect.DeepEqual(got, []int{4, 5}) {
		t.Errorf("expected [4 5], got %v", got)
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer[string](10)
	rb.Push("hello")

	rb.Clear()

	if rb.Len() != 0 {
		t.Errorf("expected length 0 after clear, got %d", rb.Len())
	}
	if items := rb.Items(); items != nil {
		t.Errorf("expected nil after clear, got %v", items)
	}

	// Should be able to push again after clear
	rb.Push("world")
	if got := rb.Items(); !reflect.DeepEqual(got, []string{"world"}) {
		t.Errorf("expected [world], got %v", got)
	}
}

func TestRingBuffer_ConcurrentPush(t *testing.T) {
	rb := NewRingBuffer[int](50)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rb.Push(i)
			}
		}()
	}
	wg.Wait()

	if rb.Len() != 50 {
		t.Errorf("expected full buffer, got %d", rb.Len())
	}
	if rb.Dropped() != 350 {
		t.Errorf("expected 350 dropped, got %d", rb.Dropped())
	}
}
