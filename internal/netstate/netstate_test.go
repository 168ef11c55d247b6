package netstate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storysync/internal/config"
	"storysync/internal/story"
)

type scriptedProbe struct {
	mu  sync.Mutex
	err error
}

func (p *scriptedProbe) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *scriptedProbe) probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func TestStatic(t *testing.T) {
	if Static(false).Online() {
		t.Error("Static(false).Online() = true")
	}
	if !Static(true).Online() {
		t.Error("Static(true).Online() = false")
	}
}

func TestMonitor_Transitions(t *testing.T) {
	p := &scriptedProbe{}
	m := NewMonitor(p.probe, time.Hour, time.Second, story.NewNopLogger())
	ctx := context.Background()

	if !m.Online() {
		t.Fatal("new monitor should start online")
	}

	p.set(story.ErrRemoteUnreachable)
	if m.Check(ctx) || m.Online() {
		t.Error("monitor still online after failed probe")
	}
	select {
	case <-m.Regained():
		t.Error("regained fired on going offline")
	default:
	}

	p.set(nil)
	m.Check(ctx)
	m.Check(ctx)
	if !m.Online() {
		t.Error("monitor offline after successful probe")
	}
	select {
	case <-m.Regained():
	default:
		t.Fatal("regained did not fire")
	}
	select {
	case <-m.Regained():
		t.Error("regained fired twice for one transition")
	default:
	}
}

func TestMonitor_MergesSignals(t *testing.T) {
	p := &scriptedProbe{}
	m := NewMonitor(p.probe, time.Hour, time.Second, story.NewNopLogger())
	ctx := context.Background()

	for range 3 {
		p.set(errors.New("down"))
		m.Check(ctx)
		p.set(nil)
		m.Check(ctx)
	}

	if got := len(m.regained); got != 1 {
		t.Errorf("pending signals = %d, want 1", got)
	}
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	m := NewMonitor(slow, time.Hour, 10*time.Millisecond, story.NewNopLogger())

	if m.Check(context.Background()) {
		t.Error("Check() = true for a probe that never answers")
	}
}

func TestMonitor_Run(t *testing.T) {
	p := &scriptedProbe{err: errors.New("down")}
	m := NewMonitor(p.probe, 5*time.Millisecond, time.Second, story.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for m.Online() {
		select {
		case <-deadline:
			t.Fatal("monitor never noticed the outage")
		case <-time.After(time.Millisecond):
		}
	}

	p.set(nil)
	select {
	case <-m.Regained():
	case <-deadline:
		t.Fatal("monitor never noticed the recovery")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	probe := func(context.Context) error { return nil }

	conn := NewFromConfig(config.ConnectivityConfig{Type: "static", Online: false}, probe, story.NewNopLogger())
	if _, ok := conn.(Static); !ok || conn.Online() {
		t.Errorf("static config gave %T online=%v", conn, conn.Online())
	}

	conn = NewFromConfig(config.ConnectivityConfig{Type: "probe"}, probe, story.NewNopLogger())
	if _, ok := conn.(*Monitor); !ok {
		t.Errorf("probe config gave %T, want *Monitor", conn)
	}
}
