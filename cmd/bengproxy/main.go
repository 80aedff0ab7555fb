// Package main is the bengproxy worker process entry point: it parses
// configuration, wires one orchestrator.Instance to an httpengine.Engine
// and an internal/control listener, and runs until a shutdown signal
// arrives.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/netresearch/bengproxy/internal/config"
	"github.com/netresearch/bengproxy/internal/control"
	"github.com/netresearch/bengproxy/internal/httpengine"
	"github.com/netresearch/bengproxy/internal/orchestrator"
	"github.com/netresearch/bengproxy/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Str("version", version.FormatVersion()).Msg("bengproxy starting...")

	cfg, err := config.Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration")
	}

	log.Logger = log.Logger.Level(cfg.LogLevel)

	inst, err := orchestrator.NewInstance(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize orchestrator")
	}
	defer inst.Close()

	engine := httpengine.New(httpengine.Config{
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		IdleTimeout:   cfg.IdleTimeout,
		HeaderTimeout: cfg.HeaderTimeout,
	}, inst)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go inst.Run(ctx)

	var ctrl *control.Listener

	if cfg.ControlListenAddr != "" {
		ctrl, err = control.Listen(cfg.ControlListenAddr, inst.Cache)
		if err != nil {
			log.Fatal().Err(err).Msg("could not bind control listener")
		}

		go func() {
			if err := ctrl.Run(ctx); err != nil {
				log.Error().Err(err).Msg("control listener stopped")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	serverErr := make(chan error, 1)
	go func() {
		if err := engine.ListenAndServe(cfg.ListenAddr); err != nil {
			serverErr <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := engine.CloseGraceful(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
		shutdownCancel()
		os.Exit(1) //nolint:gocritic // Exit is intentional after shutdown error
	}

	log.Info().Msg("graceful shutdown complete")
}
