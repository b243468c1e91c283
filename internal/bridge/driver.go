// Package bridge runs the polling loop that turns shared memory reads into
// published tire messages, and the supervisor that reconnects to the
// simulator whenever a session ends.
package bridge

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/rf2bridge/internal/conf"
	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/logger"
	"github.com/tphakala/rf2bridge/internal/mapped"
	"github.com/tphakala/rf2bridge/internal/observability/metrics"
	"github.com/tphakala/rf2bridge/internal/publish"
	"github.com/tphakala/rf2bridge/internal/rf2"
	"github.com/tphakala/rf2bridge/internal/snapshot"
)

// warnEvery limits repeated lock-timeout and publish warnings.
const warnEvery = 10 * time.Second

// Config holds the loop timings. All values are fixed at startup.
type Config struct {
	Interval          time.Duration
	ReconnectInterval time.Duration
	Policy            mapped.Policy
	ProcessName       string
}

// ConfigFromSettings converts validated bridge settings.
func ConfigFromSettings(s *conf.BridgeSettings) (Config, error) {
	policy, err := mapped.ParsePolicy(s.ReadPolicy)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Interval:          s.Interval,
		ReconnectInterval: s.ReconnectInterval,
		Policy:            policy,
		ProcessName:       s.ProcessName,
	}, nil
}

// Driver polls both channels once per interval for one connected session.
type Driver struct {
	telemetry *rf2.TelemetryReader
	scoring   *rf2.ScoringReader
	publisher publish.Publisher
	config    Config
	sessionID string
	metrics   *metrics.BridgeMetrics
	lockWarn  *rate.Limiter
	pubWarn   *rate.Limiter
	now       func() time.Time

	tel *rf2.Telemetry
	sc  *rf2.Scoring
}

// NewDriver returns a driver for already connected readers.
func NewDriver(tel *rf2.TelemetryReader, sc *rf2.ScoringReader, pub publish.Publisher, cfg Config, sessionID string, m *metrics.BridgeMetrics) *Driver {
	return &Driver{
		telemetry: tel,
		scoring:   sc,
		publisher: pub,
		config:    cfg,
		sessionID: sessionID,
		metrics:   m,
		lockWarn:  rate.NewLimiter(rate.Every(warnEvery), 1),
		pubWarn:   rate.NewLimiter(rate.Every(warnEvery), 1),
		now:       time.Now,
		tel:       new(rf2.Telemetry),
		sc:        new(rf2.Scoring),
	}
}

// Run ticks until ctx is cancelled or a read fails. Both channels are
// disconnected when it returns. Cancellation returns nil; a read failure
// is returned as is.
func (d *Driver) Run(ctx context.Context) error {
	defer d.disconnect()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := d.Tick(ctx); err != nil {
			return err
		}
	}
}

// Tick performs one read-gate-correlate-publish pass and returns its outcome,
// one of the metrics.Outcome* values. Only session-ending read failures are
// returned as errors.
func (d *Driver) Tick(ctx context.Context) (string, error) {
	start := time.Now()
	outcome, err := d.tick(ctx)
	if err != nil {
		return "", err
	}
	d.metrics.RecordTick(outcome, time.Since(start))
	return outcome, nil
}

func (d *Driver) tick(ctx context.Context) (string, error) {
	if _, err := d.scoring.Read(d.config.Policy, d.sc); err != nil {
		return d.readFailed(err)
	}
	if _, err := d.telemetry.Read(d.config.Policy, d.tel); err != nil {
		return d.readFailed(err)
	}

	if !Gate(d.tel, d.sc) {
		return metrics.OutcomeGateClosed, nil
	}

	snap, outcome := snapshot.Correlate(d.tel, d.sc)
	switch outcome {
	case snapshot.NoPlayer:
		return metrics.OutcomeNoPlayer, nil
	case snapshot.NoTelemetry:
		return metrics.OutcomeNoTelemetry, nil
	}

	msg := snapshot.NewMessage(&snap, d.sessionID, d.now())
	if err := d.publisher.Publish(ctx, msg); err != nil && d.pubWarn.Allow() {
		getLogger().Warn("failed to publish tire message",
			logger.String("session_id", d.sessionID),
			logger.Error(err))
	}
	return metrics.OutcomeEmitted, nil
}

// readFailed turns a lock timeout into a skipped tick and passes anything
// else through as the end of the session.
func (d *Driver) readFailed(err error) (string, error) {
	if errors.Is(err, mapped.ErrLockTimeout) {
		if d.lockWarn.Allow() {
			getLogger().Warn("shared memory lock busy, skipping tick", logger.Error(err))
		}
		return metrics.OutcomeLockTimeout, nil
	}
	return "", err
}

func (d *Driver) disconnect() {
	disconnectAll(d.telemetry, d.scoring)
}

// Gate reports whether a tick may emit: both arrays populated and the
// session under green flag.
func Gate(tel *rf2.Telemetry, sc *rf2.Scoring) bool {
	return len(tel.ActiveVehicles()) > 0 &&
		len(sc.ActiveVehicles()) > 0 &&
		sc.Phase() == rf2.PhaseGreenFlag
}

type channel interface {
	Name() string
	Disconnect() error
}

func disconnectAll(channels ...channel) {
	for _, ch := range channels {
		if err := ch.Disconnect(); err != nil {
			getLogger().Warn("failed to disconnect channel",
				logger.String("channel", ch.Name()),
				logger.Error(err))
		}
	}
}
