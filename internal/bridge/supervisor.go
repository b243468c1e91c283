package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/logger"
	"github.com/tphakala/rf2bridge/internal/mapped"
	"github.com/tphakala/rf2bridge/internal/observability/metrics"
	"github.com/tphakala/rf2bridge/internal/publish"
	"github.com/tphakala/rf2bridge/internal/rf2"
)

// State is the supervisor's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// probeEvery limits how often the process table is scanned while waiting.
const probeEvery = 10 * time.Second

// Status is a point-in-time view of the supervisor.
type Status struct {
	State     string    `json:"state"`
	SessionID string    `json:"session_id,omitempty"`
	Since     time.Time `json:"since"`
	Sessions  int64     `json:"sessions"`
}

// Supervisor owns both readers and moves between Disconnected, Connecting
// and Connected. Each successful connect starts a new session with its own
// id and driver; when the driver stops on a read failure the supervisor
// waits ReconnectInterval and tries again.
type Supervisor struct {
	telemetry *rf2.TelemetryReader
	scoring   *rf2.ScoringReader
	publisher publish.Publisher
	config    Config
	metrics   *metrics.BridgeMetrics
	probe     ProcessProbe
	probeRate *rate.Limiter

	state    atomic.Int32
	sessions atomic.Int64

	mu        sync.RWMutex
	sessionID string
	since     time.Time
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithBridgeMetrics records ticks, sessions and state transitions.
func WithBridgeMetrics(m *metrics.BridgeMetrics) SupervisorOption {
	return func(s *Supervisor) { s.metrics = m }
}

// WithProcessProbe replaces the process table scan; nil disables probing.
func WithProcessProbe(p ProcessProbe) SupervisorOption {
	return func(s *Supervisor) { s.probe = p }
}

// NewSupervisor returns a supervisor in the Disconnected state.
func NewSupervisor(tel *rf2.TelemetryReader, sc *rf2.ScoringReader, pub publish.Publisher, cfg Config, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		telemetry: tel,
		scoring:   sc,
		publisher: pub,
		config:    cfg,
		probe:     ProcessRunning,
		probeRate: rate.NewLimiter(rate.Every(probeEvery), 1),
		since:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// SessionID returns the id of the running session, or "" when not connected.
func (s *Supervisor) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Status returns a snapshot of state, session and counters.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		State:     s.State().String(),
		SessionID: s.sessionID,
		Since:     s.since,
		Sessions:  s.sessions.Load(),
	}
}

// Run supervises sessions until ctx is cancelled, then returns nil with
// both channels disconnected.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.transition(StateDisconnected, "")

	for ctx.Err() == nil {
		s.transition(StateConnecting, "")
		s.metrics.IncrementConnectAttempts()

		if err := s.connect(); err != nil {
			s.transition(StateDisconnected, "")
			s.waiting(ctx, err)
			if !sleep(ctx, s.config.ReconnectInterval) {
				return nil
			}
			continue
		}

		sessionID := uuid.NewString()
		s.sessions.Add(1)
		s.metrics.IncrementSessions()
		s.metrics.SetProcessRunning(true)
		s.transition(StateConnected, sessionID)
		getLogger().Info("connected to simulator shared memory",
			logger.String("session_id", sessionID),
			logger.String("policy", s.config.Policy.String()),
			logger.Duration("interval", s.config.Interval))

		err := NewDriver(s.telemetry, s.scoring, s.publisher, s.config, sessionID, s.metrics).Run(ctx)
		s.transition(StateDisconnected, "")
		if err != nil {
			getLogger().Warn("session ended",
				logger.String("session_id", sessionID),
				logger.Error(err))
			if !sleep(ctx, s.config.ReconnectInterval) {
				return nil
			}
		}
	}
	return nil
}

// connect attaches both channels or neither.
func (s *Supervisor) connect() error {
	if err := s.telemetry.Connect(); err != nil {
		return err
	}
	if err := s.scoring.Connect(); err != nil {
		disconnectAll(s.telemetry, s.scoring)
		return err
	}
	return nil
}

// waiting logs a failed connect, naming whether the simulator runs at all.
func (s *Supervisor) waiting(ctx context.Context, err error) {
	if s.probe == nil || !s.probeRate.Allow() {
		return
	}

	running, probeErr := s.probe(ctx, s.config.ProcessName)
	if probeErr != nil {
		getLogger().Debug("process probe failed", logger.Error(probeErr))
		return
	}
	s.metrics.SetProcessRunning(running)

	fields := []logger.Field{
		logger.String("process", s.config.ProcessName),
		logger.Bool("process_running", running),
		logger.Duration("retry_in", s.config.ReconnectInterval),
	}
	if errors.Is(err, mapped.ErrResourceNotFound) {
		getLogger().Info("waiting for simulator shared memory", fields...)
		return
	}
	getLogger().Warn("failed to connect to shared memory", append(fields, logger.Error(err))...)
}

func (s *Supervisor) transition(to State, sessionID string) {
	from := State(s.state.Swap(int32(to)))
	s.metrics.SetState(int(to))
	if from == to {
		return
	}

	s.mu.Lock()
	s.sessionID = sessionID
	s.since = time.Now()
	s.mu.Unlock()

	getLogger().Debug("supervisor state changed",
		logger.String("from", from.String()),
		logger.String("to", to.String()))
}

// sleep waits d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
