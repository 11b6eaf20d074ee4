package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Parlor/internal/adapters/http"
	"github.com/dkeye/Parlor/internal/adapters/ws"
	"github.com/dkeye/Parlor/internal/app"
	"github.com/dkeye/Parlor/internal/app/orch"
	"github.com/dkeye/Parlor/internal/config"
	"github.com/dkeye/Parlor/internal/domain"
	"github.com/dkeye/Parlor/internal/protocol"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	registry := app.NewRegistry(cfg.MaxConnections)
	presence := app.NewPresence(registry)
	presence.AnnounceRenames = cfg.RenameBroadcast
	typing := app.NewTyping(registry)
	fanout := app.NewFanout(app.GracePolicy{Grace: cfg.SlowGrace}, func(id domain.ConnID) {
		registry.Cancel(id)
	})

	o := &orch.Orchestrator{
		Registry:      registry,
		Presence:      presence,
		Typing:        typing,
		Fanout:        fanout,
		Codec:         protocol.NewCodec(cfg.MaxMessageLen),
		TypingTTL:     cfg.TypingTTL,
		SweepInterval: cfg.TypingSweepInterval,
	}

	go o.RunTypingSweeper(ctx)

	ctl := ws.NewController(o, cfg)
	r := router.SetupRouter(ctx, cfg, registry, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Parlor server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
