package resilience

import (
	"errors"
	"testing"
	"time"
)

var errFetch = errors.New("fetch failed")

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		b.Execute(func() (interface{}, error) { return nil, errFetch })
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("fetch", Settings{
		Trip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
	})

	failN(b, 2)
	if b.State() != StateClosed {
		t.Fatalf("state = %s before trip threshold", b.State())
	}

	failN(b, 1)
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	if _, err := b.Execute(func() (interface{}, error) { return "x", nil }); err != ErrOpen {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
}

func TestHalfOpenRecovers(t *testing.T) {
	b := New("fetch", Settings{
		Probes:   2,
		Cooldown: 10 * time.Millisecond,
		Trip:     func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	failN(b, 1)
	time.Sleep(20 * time.Millisecond)

	if b.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open after cooldown", b.State())
	}

	for i := 0; i < 2; i++ {
		if _, err := b.Execute(func() (interface{}, error) { return "ok", nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed after successful probes", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New("fetch", Settings{
		Cooldown: 10 * time.Millisecond,
		Trip:     func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	failN(b, 1)
	time.Sleep(20 * time.Millisecond)
	failN(b, 1)

	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open after failed probe", b.State())
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	b := New("fetch", Settings{
		Trip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
	})

	failN(b, 2)
	b.Execute(func() (interface{}, error) { return "ok", nil })
	failN(b, 2)

	if b.State() != StateClosed {
		t.Fatalf("state = %s, interleaved successes must keep the breaker closed", b.State())
	}
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []State
	b := New("fetch", Settings{
		Trip:          func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		OnStateChange: func(name string, from, to State) { transitions = append(transitions, to) },
	})

	failN(b, 1)
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Fatalf("transitions = %v, want [open]", transitions)
	}
}
