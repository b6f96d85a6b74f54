// Package keepalive serves the liveness endpoint hosting platforms poll to
// keep the process alive.
package keepalive

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const body = "TestBook Pro Bot is running."

type Server struct {
	addr   string
	logger *slog.Logger
}

func New(addr string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = ":10000"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, logger: logger}
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("keepalive listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
