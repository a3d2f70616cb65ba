package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pandeptwidyaop/macrosync/internal/remote"
)

// MonitorOptions configures the liveness probe.
type MonitorOptions struct {
	Interval           time.Duration
	ProbeTimeout       time.Duration
	ProbeCommand       string
	ConnectedMarker    string
	DisconnectedMarker string
}

// ConnectionMonitor polls the device and reports edge-triggered changes of
// the ssh link and of the keyboard subsystem behind it.
type ConnectionMonitor struct {
	runner remote.Runner
	opts   MonitorOptions
	logger *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	secondary bool

	listenersMu        sync.RWMutex
	connListeners      []func(bool)
	secondaryListeners []func(bool)
}

// NewConnectionMonitor creates a monitor; both states start disconnected.
func NewConnectionMonitor(runner remote.Runner, opts MonitorOptions, logger *zap.Logger) *ConnectionMonitor {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.ProbeTimeout <= 0 || opts.ProbeTimeout >= opts.Interval {
		opts.ProbeTimeout = opts.Interval * 9 / 10
	}
	if opts.ProbeCommand == "" {
		opts.ProbeCommand = "echo ok"
	}
	if opts.ConnectedMarker == "" {
		opts.ConnectedMarker = "connected"
	}
	if opts.DisconnectedMarker == "" {
		opts.DisconnectedMarker = "disconnected"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionMonitor{
		runner: runner,
		opts:   opts,
		logger: logger.Named("monitor"),
	}
}

// OnConnectionChanged registers a listener for link transitions. Listeners
// run on the monitor goroutine.
func (m *ConnectionMonitor) OnConnectionChanged(fn func(connected bool)) {
	m.listenersMu.Lock()
	m.connListeners = append(m.connListeners, fn)
	m.listenersMu.Unlock()
}

// OnSecondaryChanged registers a listener for keyboard subsystem transitions.
func (m *ConnectionMonitor) OnSecondaryChanged(fn func(connected bool)) {
	m.listenersMu.Lock()
	m.secondaryListeners = append(m.secondaryListeners, fn)
	m.listenersMu.Unlock()
}

// Connected reports the current link state.
func (m *ConnectionMonitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SecondaryConnected reports the current keyboard subsystem state.
func (m *ConnectionMonitor) SecondaryConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.secondary
}

// Running reports whether the poll loop is active.
func (m *ConnectionMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Start begins polling: one probe immediately, then one per interval.
// Calling Start while running does nothing.
func (m *ConnectionMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	m.logger.Info("starting connection monitor",
		zap.Duration("interval", m.opts.Interval),
		zap.Duration("probe_timeout", m.opts.ProbeTimeout))

	go m.pollLoop(ctx, m.done)
}

// Stop requests the poll loop to end without waiting for it.
func (m *ConnectionMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		m.logger.Info("stopping connection monitor")
	}
}

// Close stops the loop and waits briefly for it to exit.
func (m *ConnectionMonitor) Close() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	m.Stop()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		m.logger.Warn("connection monitor did not stop in time")
	}
}

func (m *ConnectionMonitor) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.CheckOnce(ctx)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce runs a single probe and fires listeners for any transition.
// A probe cut short by cancellation changes nothing.
func (m *ConnectionMonitor) CheckOnce(ctx context.Context) {
	res := m.runner.Run(ctx, m.opts.ProbeCommand, m.opts.ProbeTimeout)
	if ctx.Err() != nil {
		return
	}

	var secondary *bool
	if res.Success {
		v := m.parseSecondary(res.Stdout)
		secondary = &v
	}

	m.mu.Lock()
	connChanged := m.connected != res.Success
	m.connected = res.Success
	secChanged := false
	if secondary != nil {
		secChanged = m.secondary != *secondary
		m.secondary = *secondary
	}
	m.mu.Unlock()

	if connChanged {
		m.logger.Info("connection changed", zap.Bool("connected", res.Success), zap.Int("exit_code", res.ExitCode))
		m.notify(m.connectionListeners(), res.Success)
	}
	if secChanged {
		m.logger.Info("keyboard connection changed", zap.Bool("connected", *secondary))
		m.notify(m.secondaryChangeListeners(), *secondary)
	}
}

func (m *ConnectionMonitor) parseSecondary(stdout string) bool {
	text := strings.ToLower(stdout)
	if strings.Contains(text, strings.ToLower(m.opts.DisconnectedMarker)) {
		return false
	}
	return strings.Contains(text, strings.ToLower(m.opts.ConnectedMarker))
}

func (m *ConnectionMonitor) connectionListeners() []func(bool) {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	return m.connListeners
}

func (m *ConnectionMonitor) secondaryChangeListeners() []func(bool) {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	return m.secondaryListeners
}

func (m *ConnectionMonitor) notify(listeners []func(bool), value bool) {
	for _, fn := range listeners {
		fn(value)
	}
}
