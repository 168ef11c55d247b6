// Package netstate tracks whether the story service is reachable.
package netstate

import (
	"context"
	"sync"
	"time"

	"storysync/internal/config"
	"storysync/internal/story"
)

// Static is a fixed connectivity answer, used for --offline and tests.
type Static bool

func (s Static) Online() bool { return bool(s) }

var _ story.Connectivity = Static(false)

// ProbeFunc checks reachability once. A nil error means online.
type ProbeFunc func(ctx context.Context) error

// Monitor polls a probe and reports the last observed state. Until the
// first Check it reports online. Callers that read before probing will
// try the network and wait out the freshness timeout when it is down, so
// the app runs one Check right after construction.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration
	timeout  time.Duration
	logger   story.Logger

	mu     sync.Mutex
	online bool

	regained chan struct{}
}

var _ story.Connectivity = (*Monitor)(nil)

func NewMonitor(probe ProbeFunc, interval, timeout time.Duration, logger story.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		online:   true,
		regained: make(chan struct{}, 1),
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Regained fires after each offline to online transition. Signals that
// arrive while one is already pending are merged.
func (m *Monitor) Regained() <-chan struct{} {
	return m.regained
}

// Check probes once and records the result.
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.probe(probeCtx)
	m.set(err == nil)
	if err != nil {
		m.logger.Debug("connectivity probe failed", "error", err)
	}
	return err == nil
}

func (m *Monitor) set(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	switch {
	case online && !was:
		m.logger.Info("back online")
		select {
		case m.regained <- struct{}{}:
		default:
		}
	case !online && was:
		m.logger.Info("gone offline")
	}
}

// Run probes on every interval tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// NewFromConfig returns a Static for the "static" type and a Monitor
// driven by probe otherwise.
func NewFromConfig(cfg config.ConnectivityConfig, probe ProbeFunc, logger story.Logger) story.Connectivity {
	if cfg.Type == "static" {
		return Static(cfg.Online)
	}
	return NewMonitor(probe, cfg.ProbeInterval(), cfg.ProbeTimeout(), logger)
}
