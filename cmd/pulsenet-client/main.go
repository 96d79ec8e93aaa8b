// Command pulsenet-client connects to a pulsenet server, reports a
// scripted stream of move events, and logs the chat and move events it
// receives. Generalized from the teacher's core/main.go startup sequence to
// a client dial instead of a server bind.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pulsenet/internal/demogame"
	"pulsenet/pkg/config"
	"pulsenet/pkg/logger"
	"pulsenet/pkg/metrics"
	"pulsenet/pkg/netcore"
)

const version = "1.0.0"

func main() {
	logger.Banner("pulsenet client", version)

	cfg, err := config.Load(os.Getenv("PULSENET_CONFIG"), os.Args[1:])
	if err != nil {
		logger.Fatal("failed to load configuration: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	collector := metrics.New(prometheus.NewRegistry())
	handler := &demogame.Handler{
		OnChat: func(playerID uint16, message string) { logger.Info("player %d: %s", playerID, message) },
		OnMove: func(playerID uint16, pos demogame.Vector3) {
			logger.Debug("player %d moved to %+v", playerID, pos)
		},
	}

	addr := &net.UDPAddr{IP: net.ParseIP(cfg.Host), Port: cfg.Port}
	conn, err := netcore.DialClient(addr, handler, nil, demogame.NewUpdate(0), demogame.DecodeUpdate, logger.Base(), collector, cfg.Tunables())
	if err != nil {
		logger.Fatal("failed to dial %s: %v", addr, err)
	}
	logger.Success("connected to %s", addr)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() { errChan <- conn.Run(ctx) }()
	go scriptedMoves(conn)

	select {
	case err := <-errChan:
		if err != nil {
			logger.Fatal("connection stopped with error: %v", err)
		}
	case sig := <-sigChan:
		logger.Warn("received signal: %v", sig)
		conn.Shutdown(false)
		<-errChan
	}
	cancel()
	logger.Success("disconnected")
}

// scriptedMoves dispatches a simple walking pattern, standing in for a real
// client's input loop.
func scriptedMoves(conn *netcore.ClientConnection) {
	var x float32
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if conn.Status() == netcore.StatusDisconnected {
			return
		}
		x++
		conn.DispatchEvent(demogame.EncodeMoveEvent(1, demogame.Vector3{X: x}), netcore.Callback{}, netcore.Callback{})
	}
}
