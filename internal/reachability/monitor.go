// Package reachability tracks whether the origin network is reachable.
//
// A Monitor holds a single online/offline flag fed from two sources: explicit
// Set calls (clients forwarding platform connectivity events, or the edge
// worker reporting fetch outcomes) and an optional periodic Probe. Consumers
// read the flag with Online or receive edge-triggered changes from Subscribe;
// the flag is only a hint for deciding when to replay queued actions.
package reachability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var onlineGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "reachability_online",
		Help: "1 when the origin is considered reachable, 0 otherwise.",
	},
)

func init() {
	prometheus.MustRegister(onlineGauge)
}

// Checker probes the network once.
type Checker func(ctx context.Context) bool

// Monitor is safe for concurrent use. The zero value is not usable; call New.
type Monitor struct {
	mu     sync.RWMutex
	online bool
	since  time.Time
	subs   map[chan bool]struct{}
}

// New returns a Monitor starting in the given state.
func New(online bool) *Monitor {
	m := &Monitor{online: online, since: time.Now().UTC(), subs: map[chan bool]struct{}{}}
	onlineGauge.Set(b2f(online))
	return m
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Since returns when the current state was entered.
func (m *Monitor) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Set records an observation. Subscribers are notified only on change.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	m.since = time.Now().UTC()
	onlineGauge.Set(b2f(online))
	log.Info().Bool("online", online).Msg("reachability changed")

	for ch := range m.subs {
		// Keep only the newest value for slow readers.
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
}

// Subscribe returns a channel receiving every state change until ctx is
// done. A slow reader only sees the latest state.
func (m *Monitor) Subscribe(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

// Probe runs check every interval and records the result until ctx is done.
// A check cut short by cancellation is not recorded.
func (m *Monitor) Probe(ctx context.Context, interval time.Duration, check Checker) {
	if interval <= 0 || check == nil {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		online := check(ctx)
		if ctx.Err() != nil {
			return
		}
		m.Set(online)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// HTTPChecker returns a Checker that sends HEAD to target. Any response
// counts as reachable; transport errors count as unreachable.
func HTTPChecker(client *http.Client, target string) Checker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
