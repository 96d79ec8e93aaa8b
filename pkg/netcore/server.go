package netcore

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pulsenet/pkg/metrics"
	"pulsenet/pkg/sqn"
	"pulsenet/pkg/wire"
)

// Server is the server-side UDP demultiplexer: one shared socket, one
// receive loop that routes each datagram to the ServerConnection for its
// remote address (spawning one the first time a client is seen), and the
// two shutdown datagrams that each tear the whole server down
// (spec.md §4.11, §7). Grounded on original_source/pygase's
// ServerConnection.loop classmethod and the teacher's server accept loop
// (source/server/server.go), generalized from a single shared RakNet
// listener socket to pulsenet's per-client ServerConnection objects.
type Server struct {
	socket  *net.UDPConn
	handler EventHandler
	sink    EventSink
	store   StateStore
	log      zerolog.Logger
	metrics  *metrics.Collector
	tunables Tunables

	mu          sync.Mutex
	connections map[string]*ServerConnection
	hostClient  string
}

// Listen binds addr and returns a Server ready to Run. tunables overrides
// the package-default packet/connection timeouts and latency threshold
// (spec.md §6); pass the zero Tunables{} to use the defaults.
func Listen(addr *net.UDPAddr, handler EventHandler, sink EventSink, store StateStore, log zerolog.Logger, m *metrics.Collector, tunables Tunables) (*Server, error) {
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		socket:      sock,
		handler:     handler,
		sink:        sink,
		store:       store,
		log:         log,
		metrics:     m,
		tunables:    tunables.withDefaults(),
		connections: make(map[string]*ServerConnection),
	}, nil
}

// Addr returns the server's bound local address.
func (s *Server) Addr() net.Addr {
	return s.socket.LocalAddr()
}

// Run drives the receive loop until the host client sends "shutdown", any
// client sends "shut_me_down", or ctx is cancelled. It returns once every
// spawned per-connection task has been cancelled and has returned.
func (s *Server) Run(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(loopCtx)

	buf := make([]byte, wire.MaxDatagramSize)
	for {
		select {
		case <-loopCtx.Done():
			cancel()
			return g.Wait()
		default:
		}
		s.socket.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, remote, err := s.socket.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			cancel()
			return g.Wait()
		}
		raw := append([]byte(nil), buf[:n]...)

		if handleShutdownDatagram(s, remote, raw) {
			cancel()
			return g.Wait()
		}

		pkt, err := wire.DecodeClientPacket(raw)
		if err != nil {
			s.log.Debug().Err(err).Str("remote", remote.String()).Msg("ignoring non-pulsenet datagram")
			continue
		}

		conn, spawn := s.connectionFor(remote, pkt.TimeOrder)
		switch spawn {
		case spawnNew:
			s.metrics.SetActiveConnections(s.connectionCount())
			g.Go(func() error { return conn.SendLoop(gCtx) })
			g.Go(func() error { return conn.EventLoop(gCtx) })
		case spawnRevived:
			// Only the send loop restarts on revival: the connection's
			// original EventLoop (spec.md §4.8 "respawn its send loop",
			// singular) is still running from the connection's first life
			// and must not be duplicated.
			g.Go(func() error { return conn.SendLoop(gCtx) })
		}
		s.metrics.IncPacketsReceived(remote.String())
		if err := conn.Recv(gCtx, pkt); err != nil {
			s.log.Debug().Err(err).Str("remote", remote.String()).Msg("dropping client packet")
			s.metrics.IncPacketsDropped(remote.String())
		}
	}
}

// spawnAction tells Run which per-connection tasks to spawn for the
// connection connectionFor just resolved.
type spawnAction int

const (
	spawnNone    spawnAction = iota // already-running connection, nothing to do
	spawnNew                        // brand-new connection: spawn SendLoop + EventLoop
	spawnRevived                    // previously-disconnected connection: spawn SendLoop only
)

// connectionFor returns the ServerConnection for remote, creating (and
// registering as host client if none exists yet) one if this is the first
// datagram seen from that address. The revival case — a previously
// disconnected client reappearing — restarts only its send loop (spec.md
// §4.8): its EventLoop from the connection's first life is still running
// and must not be spawned a second time.
func (s *Server) connectionFor(remote *net.UDPAddr, firstTimeOrder uint16) (*ServerConnection, spawnAction) {
	key := remote.String()
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connections[key]
	if !ok {
		conn = newServerConnection(remote, s.socket, s.handler, s.sink, s.store, sqn.SQN(firstTimeOrder), s.log, s.metrics, s.tunables)
		s.connections[key] = conn
		if s.hostClient == "" {
			s.hostClient = key
		}
		return conn, spawnNew
	}
	if conn.Status() == StatusDisconnected {
		conn.mu.Lock()
		conn.lastRecvTime = time.Now()
		conn.status = StatusConnecting
		conn.mu.Unlock()
		return conn, spawnRevived
	}
	return conn, spawnNone
}

func (s *Server) connectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// handleShutdownDatagram checks for the two literal shutdown commands
// (spec.md §7): "shutdown" from the host client tears the whole server
// down, "shut_me_down" from anyone is accepted but only terminates the
// receive loop the same way — per-connection teardown already happens via
// the connection's own inactivity timeout.
func handleShutdownDatagram(s *Server, remote *net.UDPAddr, raw []byte) bool {
	text := string(raw)
	switch text {
	case "shutdown":
		s.mu.Lock()
		isHost := remote.String() == s.hostClient
		s.mu.Unlock()
		if isHost {
			s.log.Info().Str("remote", remote.String()).Msg("host client requested server shutdown")
			return true
		}
		return false
	case "shut_me_down":
		s.log.Info().Str("remote", remote.String()).Msg("client requested shutdown")
		return true
	default:
		return false
	}
}
