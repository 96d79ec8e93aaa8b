// Command pulsenet-server runs a pulsenet UDP server against the demogame
// state store, the example binary spec.md's server-side demultiplexer is
// built for. Grounded on the teacher's core/main.go startup sequence
// (banner, config load, signal-driven graceful shutdown), generalized from
// its SA-MP RakNet server to pulsenet's Server/StateStore wiring and from
// its os/signal select loop to one built around context cancellation.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulsenet/internal/demogame"
	"pulsenet/pkg/config"
	"pulsenet/pkg/logger"
	"pulsenet/pkg/metrics"
	"pulsenet/pkg/netcore"
)

const version = "1.0.0"

func main() {
	logger.Banner("pulsenet server", version)

	cfg, err := config.Load(os.Getenv("PULSENET_CONFIG"), os.Args[1:])
	if err != nil {
		logger.Fatal("failed to load configuration: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.Success("configuration loaded: %s:%d", cfg.Host, cfg.Port)

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, registry)
	}

	store := demogame.NewStore()
	handler := &demogame.Handler{
		OnChat: func(playerID uint16, message string) {
			logger.Info("player %d: %s", playerID, message)
		},
		OnMove: func(playerID uint16, pos demogame.Vector3) {
			update := demogame.NewUpdate(nextTimeOrder(store))
			update.Players[playerID] = demogame.PlayerState{Position: pos}
			store.Push(update)
		},
	}

	addr := &net.UDPAddr{IP: net.ParseIP(cfg.Host), Port: cfg.Port}
	srv, err := netcore.Listen(addr, handler, nil, store, logger.Base(), collector, cfg.Tunables())
	if err != nil {
		logger.Fatal("failed to bind %s:%d: %v", cfg.Host, cfg.Port, err)
	}
	logger.Success("listening on %s", srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Run(ctx) }()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Fatal("server stopped with error: %v", err)
		}
		logger.Success("server stopped")
	case sig := <-sigChan:
		logger.Warn("received signal: %v", sig)
		logger.Info("shutting down gracefully...")
		cancel()
		<-errChan
		logger.Success("server stopped")
	}
}

func nextTimeOrder(store *demogame.Store) uint16 {
	return store.CurrentStateUpdate().TimeOrder() + 1
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Info("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped: %v", err)
	}
}
