package netcore

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pulsenet/pkg/metrics"
	"pulsenet/pkg/wire"
)

// ClientConnection is the client side of a pulsenet connection: it owns its
// own UDP socket dialed to the server, composes ClientPacket datagrams
// carrying its local state's time order, and folds incoming ServerPacket
// state updates into a lock-guarded game-state container (spec.md §4.10).
// Grounded on original_source/pygase's ClientConnection, adapted from
// curio's TaskGroup/command-queue shutdown protocol to context.CancelFunc
// plus errgroup.
type ClientConnection struct {
	*Connection

	stateMu       sync.Mutex
	state         Update
	decodeUpdate  func([]byte) (Update, error)

	shutdownCommands chan string
}

// DialClient opens a local UDP socket that sends to serverAddr and returns a ClientConnection
// ready to Run. initialState seeds the local game-state container before any
// ServerPacket has been received (time order 0, per spec.md §4.11 "a client
// with no state yet requests a full snapshot"). decodeUpdate parses a raw
// state-update payload into an Update the client can fold into its state.
// tunables overrides the package-default packet/connection timeouts and
// latency threshold (spec.md §6); pass the zero Tunables{} to use the
// defaults.
func DialClient(serverAddr *net.UDPAddr, handler EventHandler, sink EventSink, initialState Update, decodeUpdate func([]byte) (Update, error), log zerolog.Logger, m *metrics.Collector, tunables Tunables) (*ClientConnection, error) {
	sock, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("netcore: dial client socket: %w", err)
	}
	cc := &ClientConnection{
		Connection:       newConnection(serverAddr, sock, handler, sink, log, m, tunables),
		state:            initialState,
		decodeUpdate:     decodeUpdate,
		shutdownCommands: make(chan string, 1),
	}
	cc.buildPacket = func(h wire.Header) wirePacket {
		cc.stateMu.Lock()
		timeOrder := uint16(0)
		if cc.state != nil {
			timeOrder = cc.state.TimeOrder()
		}
		cc.stateMu.Unlock()
		return wire.NewClientPacket(h, timeOrder)
	}
	return cc, nil
}

// State returns the client's current merged game-state snapshot.
func (cc *ClientConnection) State() Update {
	cc.stateMu.Lock()
	defer cc.stateMu.Unlock()
	return cc.state
}

// Shutdown requests the connection loop stop. When shutdownServer is true
// the literal "shutdown" datagram is sent so the server's host-client check
// tears the whole server down with it; otherwise "shut_me_down" only drops
// this client's connection (spec.md §4.10, §7 "Shutdown datagrams").
func (cc *ClientConnection) Shutdown(shutdownServer bool) {
	if shutdownServer {
		cc.shutdownCommands <- "shutdown"
	} else {
		cc.shutdownCommands <- "shut_me_down"
	}
}

// Run drives the send loop, receive loop, and event loop until Shutdown is
// called, the context is cancelled, or the connection times out.
func (cc *ClientConnection) Run(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		defer cancel()
		return cc.SendLoop(gCtx)
	})
	g.Go(func() error { return cc.recvLoop(gCtx) })
	g.Go(func() error { return cc.EventLoop(gCtx) })

	select {
	case cmd := <-cc.shutdownCommands:
		if cmd == "shutdown" {
			if _, err := cc.socket.WriteTo([]byte("shutdown"), cc.RemoteAddr); err != nil {
				cc.log.Warn().Err(err).Msg("failed to send shutdown datagram")
			}
		}
	case <-loopCtx.Done():
	}
	cc.setStatus(StatusDisconnected)
	cancel()
	cc.Close()
	return g.Wait()
}

// recvLoop reads ServerPackets from the dialed socket and folds them into
// the shared bookkeeping and game state. It withholds reading until the
// first outbound packet has been sent, mirroring the original's "don't
// listen before you've spoken" ordering (spec.md §4.8).
func (cc *ClientConnection) recvLoop(ctx context.Context) error {
	for !cc.hasSentFirstPacket() {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Millisecond):
		}
	}

	buf := make([]byte, wire.MaxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		cc.socket.(*net.UDPConn).SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := cc.socket.(*net.UDPConn).Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return nil
		}
		pkt, err := wire.DecodeServerPacket(buf[:n])
		if err != nil {
			cc.log.Warn().Err(err).Msg("dropping malformed server packet")
			cc.metrics.IncPacketsDropped(cc.RemoteAddr.String())
			continue
		}
		cc.metrics.IncPacketsReceived(cc.RemoteAddr.String())
		if err := cc.recvCommon(ctx, pkt.Header, pkt.Events()); err != nil {
			cc.log.Debug().Err(err).Msg("dropping server packet")
			cc.metrics.IncPacketsDropped(cc.RemoteAddr.String())
			continue
		}
		if pkt.StateUpdate != nil {
			cc.mergeStateUpdate(pkt.StateUpdate)
		}
	}
}

func (cc *ClientConnection) hasSentFirstPacket() bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.localSequence != 0
}

// mergeStateUpdate decodes and folds a raw server state-update payload into
// the client's game-state container. The wire bytes are opaque to netcore
// (spec.md §6 "state update bytes"); decoding into an Update is delegated
// to the decodeUpdate function passed to DialClient.
func (cc *ClientConnection) mergeStateUpdate(raw []byte) {
	if cc.decodeUpdate == nil {
		return
	}
	update, err := cc.decodeUpdate(raw)
	if err != nil {
		cc.log.Warn().Err(err).Msg("failed to decode state update")
		return
	}
	cc.stateMu.Lock()
	if cc.state == nil {
		cc.state = update
	} else {
		cc.state = cc.state.Merge(update)
	}
	cc.stateMu.Unlock()
}
