// Package publish defines how emitted tire messages leave the bridge.
package publish

import (
	"context"
	"fmt"

	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/observability/metrics"
	"github.com/tphakala/rf2bridge/internal/snapshot"
)

// Publisher delivers one message. Implementations must not retain msg.
type Publisher interface {
	Publish(ctx context.Context, msg *snapshot.Message) error
}

// Named is implemented by publishers that report a transport name for
// logs and metrics.
type Named interface {
	Name() string
}

// Func adapts a function to Publisher.
type Func func(ctx context.Context, msg *snapshot.Message) error

// Publish implements Publisher
func (f Func) Publish(ctx context.Context, msg *snapshot.Message) error { return f(ctx, msg) }

// Multi publishes to every configured transport. A failing transport does
// not stop delivery to the others.
type Multi struct {
	publishers []Publisher
	metrics    *metrics.TransportMetrics
}

// NewMulti fans out to publishers; nil entries are skipped.
func NewMulti(m *metrics.TransportMetrics, publishers ...Publisher) *Multi {
	multi := &Multi{metrics: m}
	for _, p := range publishers {
		if p != nil {
			multi.publishers = append(multi.publishers, p)
		}
	}
	return multi
}

// Len returns the number of transports.
func (m *Multi) Len() int { return len(m.publishers) }

// Publish implements Publisher. The returned error joins every transport failure.
func (m *Multi) Publish(ctx context.Context, msg *snapshot.Message) error {
	var errs []error
	for _, p := range m.publishers {
		name := NameOf(p)
		err := p.Publish(ctx, msg)
		m.metrics.RecordPublish(name, err)
		if err != nil {
			errs = append(errs, errors.New(fmt.Errorf("%s: %w", name, err)).
				Component("publish").
				Category(errors.CategoryTransport).
				Context("transport", name).
				Build())
		}
	}
	return errors.Join(errs...)
}

// NameOf returns p's transport name, or "unnamed".
func NameOf(p Publisher) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return "unnamed"
}
