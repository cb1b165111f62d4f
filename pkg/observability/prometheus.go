package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const metricsReadHeaderTimeout = 5 * time.Second

// ServeMetrics serves handler on addr at /metrics until ctx is done. It
// returns once the listener is bound so callers can carry on with their
// work; serve errors are logged.
func ServeMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) (net.Addr, error) {
	if handler == nil {
		return nil, errors.New("metrics handler is nil")
	}

	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	go func() {
		serveErr := srv.Serve(ln)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("metrics server", "error", serveErr)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	return ln.Addr(), nil
}
