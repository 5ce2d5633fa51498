package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	hooked := 0
	err := Do(context.Background(), "metadata.save", fastPolicy(4), nil, func(string, int, error) { hooked++ }, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: unexpected err=%v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: want=3 got=%d", calls)
	}
	if hooked != 2 {
		t.Fatalf("hook: want=2 got=%d", hooked)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	sentinel := errors.New("down")
	calls := 0
	err := Do(context.Background(), "index.delete", fastPolicy(2), nil, nil, func(context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err: want wrapped sentinel got=%v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	sentinel := errors.New("not found")
	calls := 0
	err := Do(context.Background(), "metadata.get", fastPolicy(5), nil, nil, func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	if err != sentinel {
		t.Fatalf("err: want=%v got=%v", sentinel, err)
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, "index.add", Policy{MaxAttempts: 5, InitialDelay: time.Second}, nil, nil, func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	if err == nil || calls != 1 {
		t.Fatalf("cancelled: want one call and error got calls=%d err=%v", calls, err)
	}
}

func TestDelayCapped(t *testing.T) {
	p := Policy{MaxAttempts: 10, InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	if d := Delay(8, p); d != 300*time.Millisecond {
		t.Fatalf("Delay cap: want=300ms got=%v", d)
	}
}
