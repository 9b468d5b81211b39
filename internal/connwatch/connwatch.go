// Package connwatch keeps track of whether the external services this
// daemon leans on — the Ollama backend, a SearXNG instance, the A1111
// image server — are actually reachable. One Watcher per service probes
// it on a schedule: tight exponential retries while the process starts
// up, then a slow steady poll for as long as it runs.
//
// An unreachable service never stops the server. Requests that need it
// fail individually, and the health endpoint reports the per-service
// picture from Manager.Status. Transport-level blips are httpkit's
// problem; connwatch is for outages measured in seconds to minutes.
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeFunc checks one service. nil means reachable. Probes must honor
// the context deadline; the watcher imposes one per call.
type ProbeFunc func(ctx context.Context) error

// BackoffConfig is the probe schedule for one watcher.
type BackoffConfig struct {
	// InitialDelay seeds the startup retry spacing.
	InitialDelay time.Duration
	// MaxDelay caps the spacing as it grows.
	MaxDelay time.Duration
	// Multiplier grows the spacing after each failed startup probe.
	Multiplier float64
	// MaxRetries bounds the startup phase. After this many probes the
	// watcher settles into steady polling whatever the outcome.
	MaxRetries int
	// PollInterval is the steady-state spacing once startup is over.
	PollInterval time.Duration
	// ProbeTimeout bounds each individual probe call.
	ProbeTimeout time.Duration
}

// DefaultBackoffConfig is the schedule the server uses for every
// dependency: 2s, 4s, 8s, ... capped at 60s for up to 10 startup
// probes, then one probe a minute.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   10,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultBackoffConfig.
func (b BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoffConfig()
	if b.InitialDelay <= 0 {
		b.InitialDelay = d.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = d.MaxDelay
	}
	if b.Multiplier <= 0 {
		b.Multiplier = d.Multiplier
	}
	if b.MaxRetries <= 0 {
		b.MaxRetries = d.MaxRetries
	}
	if b.PollInterval <= 0 {
		b.PollInterval = d.PollInterval
	}
	if b.ProbeTimeout <= 0 {
		b.ProbeTimeout = d.ProbeTimeout
	}
	return b
}

// WatcherConfig describes one watched service.
type WatcherConfig struct {
	// Name identifies the service in logs and status maps ("ollama").
	Name string
	// Probe checks the service. Required; must be concurrency-safe.
	Probe ProbeFunc
	// Backoff is the probe schedule; zero fields take defaults.
	Backoff BackoffConfig
	// OnReady fires on the down-to-ready transition, on its own
	// goroutine. Optional.
	OnReady func()
	// OnDown fires on the ready-to-down transition, on its own
	// goroutine. Optional.
	OnDown func(err error)
	// Logger defaults to the manager's.
	Logger *slog.Logger
}

// ServiceStatus is one service's health snapshot, shaped for the
// health endpoint's dependencies map.
type ServiceStatus struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher probes a single service until its context ends.
type Watcher struct {
	cfg    WatcherConfig
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	ready   bool
	lastErr error
	checked time.Time
}

// IsReady reports the service's last observed state.
func (w *Watcher) IsReady() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// LastError returns the most recent probe error, nil when healthy.
func (w *Watcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Status snapshots the watcher for the health endpoint.
func (w *Watcher) Status() ServiceStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := ServiceStatus{Name: w.cfg.Name, Ready: w.ready, LastCheck: w.checked}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Wait blocks until the watcher goroutine has exited.
func (w *Watcher) Wait() { <-w.done }

// Stop ends the watcher and waits for its goroutine.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

// loop probes on the schedule: probe immediately, then wait the current
// spacing and probe again. The spacing doubles (capped) through the
// startup phase and then pins to the poll interval.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	b := w.cfg.Backoff
	delay := b.InitialDelay
	for attempt := 1; ; attempt++ {
		w.observe(w.probeOnce(ctx), attempt)
		if ctx.Err() != nil {
			return
		}

		var next time.Duration
		if attempt < b.MaxRetries && !w.IsReady() {
			next = delay
			delay = time.Duration(float64(delay) * b.Multiplier)
			if delay > b.MaxDelay {
				delay = b.MaxDelay
			}
		} else {
			if attempt == b.MaxRetries && !w.IsReady() {
				w.cfg.Logger.Info("startup connection failed, entering background polling",
					"service", w.cfg.Name, "attempts", attempt)
			}
			next = b.PollInterval
		}

		t := time.NewTimer(next)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// probeOnce runs the probe under its timeout.
func (w *Watcher) probeOnce(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, w.cfg.Backoff.ProbeTimeout)
	defer cancel()
	return w.cfg.Probe(pctx)
}

// observe records a probe outcome and fires the transition callback
// when the state flipped. Repeated failures while already down (the
// startup phase, a long outage) stay quiet.
func (w *Watcher) observe(err error, attempt int) {
	w.mu.Lock()
	wasReady := w.ready
	w.ready = err == nil
	w.lastErr = err
	w.checked = time.Now()
	nowReady := w.ready
	w.mu.Unlock()

	switch {
	case nowReady && !wasReady:
		w.cfg.Logger.Info("service connected",
			"service", w.cfg.Name, "after_attempts", attempt)
		if w.cfg.OnReady != nil {
			go w.cfg.OnReady()
		}
	case !nowReady && wasReady:
		w.cfg.Logger.Info("service became unreachable",
			"service", w.cfg.Name, "error", err)
		if w.cfg.OnDown != nil {
			go w.cfg.OnDown(err)
		}
	case !nowReady:
		w.cfg.Logger.Debug("service unreachable",
			"service", w.cfg.Name, "attempt", attempt, "error", err)
	}
}

// Manager owns the watchers for all external services.
type Manager struct {
	mu       sync.RWMutex
	watchers map[string]*Watcher
	logger   *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{watchers: make(map[string]*Watcher), logger: logger}
}

// Watch starts a watcher for one service and registers it under its
// name. The watcher runs until ctx ends or Stop is called. An empty
// name or nil probe is a wiring bug and panics.
func (m *Manager) Watch(ctx context.Context, cfg WatcherConfig) *Watcher {
	if cfg.Name == "" {
		panic("connwatch: WatcherConfig.Name must not be empty")
	}
	if cfg.Probe == nil {
		panic("connwatch: WatcherConfig.Probe must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = m.logger
	}
	cfg.Backoff = cfg.Backoff.withDefaults()

	wctx, cancel := context.WithCancel(ctx)
	w := &Watcher{cfg: cfg, cancel: cancel, done: make(chan struct{})}
	go w.loop(wctx)

	m.mu.Lock()
	m.watchers[cfg.Name] = w
	m.mu.Unlock()
	return w
}

// Status snapshots every watched service by name.
func (m *Manager) Status() map[string]ServiceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ServiceStatus, len(m.watchers))
	for name, w := range m.watchers {
		out[name] = w.Status()
	}
	return out
}

// Stop ends every watcher and waits for them.
func (m *Manager) Stop() {
	m.mu.RLock()
	all := make([]*Watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		all = append(all, w)
	}
	m.mu.RUnlock()
	for _, w := range all {
		w.Stop()
	}
}
