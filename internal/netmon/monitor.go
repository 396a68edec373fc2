// Package netmon tracks backend reachability so the terminal can show its
// online/offline status and pre-announce that scans will be judged locally.
// Reachability is only a display hint: the validator always tries the server
// first and falls back on its own.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/nubewired/scangate/internal/logging"
)

const probeTimeout = 3 * time.Second

// Monitor probes the backend health endpoint on a fixed interval and reports
// transitions between online and offline.
type Monitor struct {
	url      string
	interval time.Duration
	http     *http.Client
	log      logging.Logger

	mu       sync.Mutex
	online   bool
	probed   bool
	onChange func(online bool)
}

// NewMonitor returns a Monitor probing baseURL's health endpoint every
// interval. onChange, when non-nil, is invoked on every state transition
// (and once after the first probe) from the monitor's goroutine.
func NewMonitor(baseURL string, interval time.Duration, log logging.Logger, onChange func(online bool)) *Monitor {
	return &Monitor{
		url:      baseURL + "/api/v1/health",
		interval: interval,
		http:     &http.Client{Timeout: probeTimeout},
		log:      log,
		onChange: onChange,
	}
}

// Run probes until ctx is cancelled. The first probe happens immediately.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// Online reports the last observed reachability. Before the first probe
// completes the terminal is assumed offline.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) probe(ctx context.Context) {
	online := m.check(ctx)

	m.mu.Lock()
	changed := !m.probed || online != m.online
	m.online = online
	m.probed = true
	cb := m.onChange
	m.mu.Unlock()

	if !changed {
		return
	}
	if online {
		m.log.Info(ctx, "backend reachable")
	} else {
		m.log.Warn(ctx, "backend unreachable, offline validation in effect")
	}
	if cb != nil {
		cb(online)
	}
}

// check treats any HTTP response, even an error status, as reachable: a
// server answering 500 is still a server we can talk to.
func (m *Monitor) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return false
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
