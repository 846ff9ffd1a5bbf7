package loop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoop_Post_runs_in_order(t *testing.T) {
	l := New(8, nil)
	defer l.Close()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		if err := l.Post(func() { got = append(got, i) }); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}
	if err := l.Call(func() {}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v", got)
		}
	}
	if len(got) != 5 {
		t.Errorf("len = %d, want 5", len(got))
	}
}

func TestLoop_afterEach(t *testing.T) {
	var n atomic.Int32
	l := New(1, func() { n.Add(1) })
	defer l.Close()

	_ = l.Post(func() {})
	_ = l.Call(func() {})
	// afterEach for the second message may still be running once Call returns.
	_ = l.Call(func() {})
	if got := n.Load(); got < 2 {
		t.Errorf("afterEach ran %d times, want at least 2", got)
	}
}

func TestLoop_Go_continuation_on_loop(t *testing.T) {
	l := New(4, nil)
	defer l.Close()

	state := 0
	applied := make(chan struct{})
	l.Go(func(ctx context.Context) func() {
		return func() {
			state = 42
			close(applied)
		}
	})
	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("continuation never applied")
	}
	var seen int
	_ = l.Call(func() { seen = state })
	if seen != 42 {
		t.Errorf("state = %d, want 42", seen)
	}
}

func TestLoop_Close(t *testing.T) {
	l := New(0, nil)
	blocked := make(chan struct{})
	l.Go(func(ctx context.Context) func() {
		<-ctx.Done()
		close(blocked)
		return func() { t.Error("continuation after close must not run") }
	})
	l.Close()
	l.Wait()
	<-blocked

	if err := l.Post(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Post after Close = %v, want ErrClosed", err)
	}
	if err := l.Call(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Call after Close = %v, want ErrClosed", err)
	}
	l.Close()
}

func TestStepper(t *testing.T) {
	var s Stepper
	var order []string
	s.Go(func(ctx context.Context) func() {
		order = append(order, "work1")
		s.Go(func(ctx context.Context) func() {
			order = append(order, "work2")
			return nil
		})
		return func() { order = append(order, "cont1") }
	})

	if s.Len() != 1 {
		t.Fatalf("Len = %d", s.Len())
	}
	if n := s.Drain(); n != 2 {
		t.Errorf("Drain = %d, want 2", n)
	}
	want := []string{"work1", "cont1", "work2"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if s.Step() {
		t.Error("Step on empty stepper should report false")
	}
}
