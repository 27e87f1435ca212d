// Command server runs the customer-service workflow API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/deepakparameswar/csflow/internal/config"
	"github.com/deepakparameswar/csflow/pkg/logx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed: ", err)
	}

	logx.Init(logx.LoggerOpts{Environment: cfg.Environment})
	logx.Info().
		Str("addr", cfg.Server.Addr).
		Str("env", string(cfg.Environment)).
		Str("store", cfg.Store.Driver).
		Str("llm", cfg.LLM.Provider).
		Msg("csflow starting")

	srv, err := NewServer(cfg)
	if err != nil {
		logx.Fatal().Err(err).Msg("server init failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logx.Error().Err(err).Msg("server stopped with error")
	}
	if err := srv.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		logx.Error().Err(err).Msg("shutdown incomplete")
	}
	logx.Info().Msg("csflow stopped")
}
