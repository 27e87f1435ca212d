package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type httpServer struct {
	http   *http.Server
	logger zerolog.Logger
}

func newHTTPServer(name, addr string, handler http.Handler, read, write time.Duration, logger zerolog.Logger) *httpServer {
	return &httpServer{
		http: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  read,
			WriteTimeout: write,
		},
		logger: logger.With().Str("system", name).Logger(),
	}
}

// serve blocks until the server stops. A graceful Shutdown is not an error.
func (s *httpServer) serve() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *httpServer) shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("server shutdown error")
		return
	}
	s.logger.Info().Msg("server shutdown complete")
}
