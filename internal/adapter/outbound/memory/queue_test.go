package memory

import (
	"context"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()

	for _, p := range []string{"a", "b", "c"} {
		if err := q.Push(ctx, "k", p); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := q.Length(ctx, "k"); n != 3 {
		t.Fatalf("length = %d, want 3", n)
	}
	for _, want := range []string{"a", "b", "c"} {
		got, ok, err := q.Pop(ctx, "k", time.Second)
		if err != nil || !ok {
			t.Fatalf("Pop: ok=%v err=%v", ok, err)
		}
		if got != want {
			t.Errorf("Pop = %q, want %q", got, want)
		}
	}
}

func TestQueuePopTimesOutWhenEmpty(t *testing.T) {
	q := NewQueue()
	start := time.Now()
	_, ok, err := q.Pop(context.Background(), "k", 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Pop on an empty list should report no element")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Pop returned after %v, should block near the timeout", elapsed)
	}
}

func TestQueuePushWakesBlockedPop(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()

	got := make(chan string, 1)
	go func() {
		payload, ok, err := q.Pop(ctx, "k", 2*time.Second)
		if err != nil || !ok {
			got <- ""
			return
		}
		got <- payload
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Push(ctx, "k", "wake"); err != nil {
		t.Fatal(err)
	}

	select {
	case payload := <-got:
		if payload != "wake" {
			t.Errorf("Pop = %q, want wake", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Pop was never woken by Push")
	}
}

func TestQueuePopHonorsContextCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 1)
	go func() {
		_, _, err := q.Pop(ctx, "k", 10*time.Second)
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("cancelled Pop should return the context error")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after cancellation")
	}
}

func TestQueueClear(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()
	_ = q.Push(ctx, "k", "a")
	_ = q.Push(ctx, "k", "b")
	_ = q.Push(ctx, "other", "c")

	n, err := q.Clear(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Clear removed %d, want 2", n)
	}
	if l, _ := q.Length(ctx, "k"); l != 0 {
		t.Errorf("length after clear = %d, want 0", l)
	}
	if l, _ := q.Length(ctx, "other"); l != 1 {
		t.Errorf("other key should be untouched, length = %d", l)
	}
}
