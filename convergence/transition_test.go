package convergence

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances instantly and records every sleep.
type fakeClock struct {
	now     time.Time
	sleeps  []time.Duration
	onSleep func(n int)
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if c.onSleep != nil {
		c.onSleep(len(c.sleeps))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

type state struct {
	label string
}

func TestTransition_MutateExactlyOnce(t *testing.T) {
	var mutates, fetches int
	spec := TransitionSpec[state]{
		Fetch: func(context.Context) (state, bool, error) {
			fetches++
			if fetches < 5 {
				return state{"UPDATING"}, true, nil
			}
			return state{"IDLE"}, true, nil
		},
		Mutate:    func(context.Context) error { mutates++; return nil },
		Converged: func(s state) bool { return s.label == "IDLE" },
		Interval:  time.Second,
		Clock:     &fakeClock{},
	}

	if err := Transition(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	if mutates != 1 {
		t.Errorf("mutate called %d times, want 1", mutates)
	}
	if fetches != 5 {
		t.Errorf("fetch called %d times, want 5", fetches)
	}
}

func TestTransition_ConvergesOnFirstPoll(t *testing.T) {
	var fetches int
	spec := TransitionSpec[state]{
		Fetch: func(context.Context) (state, bool, error) {
			fetches++
			return state{"IDLE"}, true, nil
		},
		Mutate:    func(context.Context) error { return nil },
		Converged: func(s state) bool { return s.label == "IDLE" },
		Interval:  time.Second,
		Clock:     &fakeClock{},
	}

	if err := Transition(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	if fetches != 1 {
		t.Errorf("fetch called %d times, want 1", fetches)
	}
}

func TestTransition_NotFoundIsSuccess(t *testing.T) {
	var fetches int
	spec := TransitionSpec[state]{
		Fetch: func(context.Context) (state, bool, error) {
			fetches++
			return state{}, false, nil
		},
		Mutate:            func(context.Context) error { return nil },
		Converged:         func(state) bool { return false },
		Interval:          time.Second,
		NotFoundIsSuccess: true,
		Clock:             &fakeClock{},
	}

	if err := Transition(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	if fetches != 1 {
		t.Errorf("fetch called %d times, want 1", fetches)
	}
}

func TestTransition_NotFoundPendingByDefault(t *testing.T) {
	var fetches int
	spec := TransitionSpec[state]{
		Fetch: func(context.Context) (state, bool, error) {
			fetches++
			if fetches < 4 {
				return state{}, false, nil
			}
			return state{"AVAILABLE"}, true, nil
		},
		Converged: func(s state) bool { return s.label == "AVAILABLE" },
		Interval:  time.Second,
		Clock:     &fakeClock{},
	}

	if err := Transition(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	if fetches != 4 {
		t.Errorf("fetch called %d times, want 4", fetches)
	}
}

func TestTransition_AbortsOnFetchError(t *testing.T) {
	boom := errors.New("bad gateway")
	var fetches int
	spec := TransitionSpec[state]{
		Fetch: func(context.Context) (state, bool, error) {
			fetches++
			if fetches == 3 {
				return state{}, false, boom
			}
			return state{"UPDATING"}, true, nil
		},
		Converged: func(state) bool { return false },
		Interval:  time.Second,
		Clock:     &fakeClock{},
	}

	err := Transition(context.Background(), spec)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if fetches != 3 {
		t.Errorf("fetch called %d times, want 3 (abort at failing tick)", fetches)
	}
}

func TestTransition_MutateErrorAborts(t *testing.T) {
	boom := errors.New("update rejected")
	var fetches int
	spec := TransitionSpec[state]{
		Fetch: func(context.Context) (state, bool, error) {
			fetches++
			return state{}, true, nil
		},
		Mutate:    func(context.Context) error { return boom },
		Converged: func(state) bool { return true },
		Interval:  time.Second,
		Clock:     &fakeClock{},
	}

	err := Transition(context.Background(), spec)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if fetches != 0 {
		t.Errorf("fetch called %d times after mutate failure, want 0", fetches)
	}
}

func TestTransition_Timeout(t *testing.T) {
	var fetches int
	spec := TransitionSpec[state]{
		Fetch: func(context.Context) (state, bool, error) {
			fetches++
			return state{"UPDATING"}, true, nil
		},
		Converged: func(state) bool { return false },
		Interval:  time.Second,
		Timeout:   5 * time.Second,
		Clock:     &fakeClock{},
	}

	err := Transition(context.Background(), spec)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if fetches != 5 {
		t.Errorf("fetch called %d times, want 5", fetches)
	}
}

func TestTransition_RequiresPositiveInterval(t *testing.T) {
	spec := TransitionSpec[state]{
		Fetch:     func(context.Context) (state, bool, error) { return state{}, true, nil },
		Converged: func(state) bool { return true },
	}
	if err := Transition(context.Background(), spec); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestTransition_CancelDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{}
	clock.onSleep = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	spec := TransitionSpec[state]{
		Fetch: func(context.Context) (state, bool, error) {
			return state{"UPDATING"}, true, nil
		},
		Converged: func(state) bool { return false },
		Interval:  time.Second,
		Clock:     clock,
	}

	err := Transition(ctx, spec)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTransition_PollObserverSeesEveryFetch(t *testing.T) {
	var seen []string
	var fetches int
	spec := TransitionSpec[state]{
		Fetch: func(context.Context) (state, bool, error) {
			fetches++
			if fetches < 3 {
				return state{"UPDATING"}, true, nil
			}
			return state{"IDLE"}, true, nil
		},
		Converged: func(s state) bool { return s.label == "IDLE" },
		Interval:  time.Second,
		Clock:     &fakeClock{},
		OnPoll: func(s state, found bool) {
			seen = append(seen, s.label)
		},
	}

	if err := Transition(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	want := []string{"UPDATING", "UPDATING", "IDLE"}
	if len(seen) != len(want) {
		t.Fatalf("observed %d polls, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("poll %d = %q, want %q", i, seen[i], want[i])
		}
	}
}
