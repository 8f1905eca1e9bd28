package scaler

import (
	"context"
	"errors"
	"testing"
	"time"

	"atlasops"
	"atlasops/atlas"
	"atlasops/convergence"
	"atlasops/history"
)

// fakeAtlas serves a scripted sequence of cluster states.
type fakeAtlas struct {
	size    string
	states  []string // consumed one per GetCluster after the first
	updates []string
	gets    int
}

func (f *fakeAtlas) GetCluster(context.Context, string) (atlas.ClusterDescription, error) {
	f.gets++
	state := "IDLE"
	if len(f.states) > 0 {
		state = f.states[0]
		f.states = f.states[1:]
	}
	return atlas.ClusterDescription{
		Name:      "prod",
		StateName: state,
		ReplicationSpecs: []atlas.ReplicationSpec{{
			RegionConfigs: []atlas.RegionConfig{{
				ElectableSpecs: &atlas.HardwareSpec{InstanceSize: f.size},
			}},
		}},
	}, nil
}

func (f *fakeAtlas) UpdateInstanceSize(_ context.Context, _, size string) error {
	f.updates = append(f.updates, size)
	f.size = size
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return ctx.Err()
}

type fakeRecorder struct {
	entries []history.Entry
}

func (r *fakeRecorder) Record(_ context.Context, e history.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestTargetTogglesBothWays(t *testing.T) {
	pair := atlasops.SizePair{A: "M10", B: "M20"}

	for current, want := range map[string]string{"M10": "M20", "M20": "M10"} {
		got, err := Target(current, pair)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Target(%s) = %s, want %s", current, got, want)
		}
	}
}

func TestTargetRejectsUnknownSize(t *testing.T) {
	_, err := Target("M30", atlasops.SizePair{A: "M10", B: "M20"})
	if !errors.Is(err, ErrUnexpectedSize) {
		t.Errorf("err = %v, want ErrUnexpectedSize", err)
	}
}

func TestRunOnceScalesAndWaitsForIdle(t *testing.T) {
	api := &fakeAtlas{
		size: "M10",
		// First get reads the current size; then the update is issued
		// and polls see UPDATING until the cluster settles.
		states: []string{"IDLE", "UPDATING", "UPDATING", "IDLE"},
	}
	recorder := &fakeRecorder{}

	s := &Scaler{
		Cluster:  "prod",
		Sizes:    atlasops.SizePair{A: "M10", B: "M20"},
		Atlas:    api,
		Interval: time.Minute,
		Clock:    &fakeClock{},
		History:  recorder,
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(api.updates) != 1 {
		t.Fatalf("update called %d times, want 1", len(api.updates))
	}
	if api.updates[0] != "M20" {
		t.Errorf("scaled to %q, want M20", api.updates[0])
	}
	// Initial read + three polls.
	if api.gets != 4 {
		t.Errorf("GetCluster called %d times, want 4", api.gets)
	}

	if len(recorder.entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(recorder.entries))
	}
	if recorder.entries[0].Detail != "M10 -> M20" {
		t.Errorf("Detail = %q", recorder.entries[0].Detail)
	}
}

func TestRunOnceTogglesBack(t *testing.T) {
	api := &fakeAtlas{size: "M20", states: []string{"IDLE", "IDLE"}}

	s := &Scaler{
		Cluster:  "prod",
		Sizes:    atlasops.SizePair{A: "M10", B: "M20"},
		Atlas:    api,
		Interval: time.Minute,
		Clock:    &fakeClock{},
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(api.updates) != 1 || api.updates[0] != "M10" {
		t.Errorf("updates = %v, want [M10]", api.updates)
	}
}

func TestRunOnceFailsFastOnUnexpectedSize(t *testing.T) {
	api := &fakeAtlas{size: "M30", states: []string{"IDLE"}}

	s := &Scaler{
		Cluster:  "prod",
		Sizes:    atlasops.SizePair{A: "M10", B: "M20"},
		Atlas:    api,
		Interval: time.Minute,
		Clock:    &fakeClock{},
	}

	err := s.RunOnce(context.Background())
	if !errors.Is(err, ErrUnexpectedSize) {
		t.Fatalf("err = %v, want ErrUnexpectedSize", err)
	}
	if len(api.updates) != 0 {
		t.Errorf("update issued despite unexpected size: %v", api.updates)
	}
}

func TestRunOnceTimeout(t *testing.T) {
	api := &fakeAtlas{
		size:   "M10",
		states: []string{"IDLE", "UPDATING", "UPDATING", "UPDATING", "UPDATING", "UPDATING"},
	}

	s := &Scaler{
		Cluster:  "prod",
		Sizes:    atlasops.SizePair{A: "M10", B: "M20"},
		Atlas:    api,
		Interval: time.Minute,
		Timeout:  3 * time.Minute,
		Clock:    &fakeClock{},
	}

	err := s.RunOnce(context.Background())
	if !errors.Is(err, convergence.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}
