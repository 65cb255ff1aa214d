package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Timeouts shared by the API and metrics listeners. WriteTimeout covers the key
// service round trips an envelope request may make.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
)

func newHTTPServer(host string, port int) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// listenAndServe blocks until srv stops. Request contexts derive from ctx, so a
// cancelled ctx aborts in-flight key service calls during shutdown.
func listenAndServe(ctx context.Context, srv *http.Server, logger *slog.Logger, name string) error {
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	logger.Info("starting "+name, slog.String("addr", srv.Addr))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	return nil
}
