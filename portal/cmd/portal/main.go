package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/app"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/config"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/rpc"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

func main() {
	configPath := flag.String("config", "./portal-config.toml", "config file for the portal server")
	requireWallet := flag.Bool("require-wallet", false, "refuse to start without an operator wallet")
	skipFetch := flag.Bool("skip-fetch", false, "use the local data directory without fetching data_source")
	certFile := flag.String("tls-cert", "", "TLS certificate file, serves plain http when empty")
	keyFile := flag.String("tls-key", "", "TLS key file")
	flag.Parse()

	log.Info().Str("config", *configPath).Msg("Starting Spectra Index Portal")

	cfg, err := config.NewDefaultLoader().Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load portal config")
	}

	result := config.NewValidator(config.WithRequireWallet(*requireWallet)).Validate(cfg)
	for _, w := range result.Warnings {
		log.Warn().Msg(w)
	}
	if err := result.Err(); err != nil {
		log.Fatal().Err(err).Msg("Invalid portal config")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	portal, err := app.Build(ctx, cfg, app.Options{SkipFetch: *skipFetch})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire portal services")
	}
	defer portal.Close()

	server, err := rpc.NewServer(ctx, buildServerConfig(cfg), rpc.NewPortalServer(portal.Services))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RPC server")
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var err error
		if *certFile != "" {
			err = server.StartTLS(*certFile, *keyFile)
		} else {
			err = server.Start()
		}
		if err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// buildServerConfig converts the loaded PortalConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.PortalConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.UsePrometheus,
	}

	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.Burst > 0 {
		serverConfig.Burst = &cfg.Burst
	}

	if cfg.EnableTracing || cfg.EnableMetrics || cfg.EnableLogs || cfg.UsePrometheus {
		serverConfig.OTelConfig = rpc.OTelConfigFrom(cfg)
	}
	return serverConfig
}
