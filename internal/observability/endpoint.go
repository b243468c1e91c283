package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/rf2bridge/internal/logger"
	metricspkg "github.com/tphakala/rf2bridge/internal/observability/metrics"
)

const readHeaderTimeout = 5 * time.Second

// Endpoint serves /metrics on a dedicated listener.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates an endpoint for metrics on listenAddress (host:port).
func NewEndpoint(listenAddress string, metrics *Metrics) *Endpoint {
	return &Endpoint{listenAddress: listenAddress, metrics: metrics}
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return err
	}
	return e.serve(ctx, ln)
}

func (e *Endpoint) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log().Info("Metrics endpoint starting", logger.String("address", ln.Addr().String()))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log().Info("Stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log().Error("Metrics server shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
