package netcore

import (
	"context"
	"net"

	"github.com/rs/zerolog"

	"pulsenet/pkg/metrics"
	"pulsenet/pkg/sqn"
	"pulsenet/pkg/wire"
)

// ServerConnection is the server's per-client connection: it composes
// ServerPacket datagrams whose state-update payload is the sum of every
// cached update newer than the client's last known time order (or a full
// snapshot if the client has none yet), and tracks that time order as
// ClientPackets arrive (spec.md §4.11). Grounded on original_source/
// pygase's ServerConnection, generalized from its GameStateStore coupling
// to the StateStore interface.
type ServerConnection struct {
	*Connection

	store                StateStore
	lastClientTimeOrder  sqn.SQN
}

// newServerConnection constructs a ServerConnection bound to socket, the
// server's single shared UDP listener. firstTimeOrder is the time order
// carried by the ClientPacket that brought this client to the server's
// attention.
func newServerConnection(remoteAddr *net.UDPAddr, socket net.PacketConn, handler EventHandler, sink EventSink, store StateStore, firstTimeOrder sqn.SQN, log zerolog.Logger, m *metrics.Collector, tunables Tunables) *ServerConnection {
	sc := &ServerConnection{
		Connection:          newConnection(remoteAddr, socket, handler, sink, log, m, tunables),
		store:               store,
		lastClientTimeOrder: firstTimeOrder,
	}
	sc.buildPacket = func(h wire.Header) wirePacket {
		return wire.NewServerPacket(h, sc.stateUpdatePayload())
	}
	return sc
}

// stateUpdatePayload folds every cached update newer than the client's last
// known time order into one payload, or serializes the full current state
// if the client hasn't received anything yet (time order 0).
func (sc *ServerConnection) stateUpdatePayload() []byte {
	sc.mu.Lock()
	lastKnown := sc.lastClientTimeOrder
	sc.mu.Unlock()

	if lastKnown == sqn.None {
		current := sc.store.CurrentStateUpdate()
		if current == nil {
			return nil
		}
		return current.Bytes()
	}

	var merged Update
	for _, u := range sc.store.UpdateCache() {
		if sqn.SQN(u.TimeOrder()).Sub(lastKnown) <= 0 {
			continue
		}
		if merged == nil {
			merged = u
		} else {
			merged = merged.Merge(u)
		}
	}
	if merged == nil {
		return nil
	}
	return merged.Bytes()
}

// Recv takes a ClientPacket already decoded by the server demultiplexer,
// folds its bookkeeping into the connection, and records the client's
// newly reported time order.
func (sc *ServerConnection) Recv(ctx context.Context, pkt *wire.ClientPacket) error {
	if err := sc.recvCommon(ctx, pkt.Header, pkt.Events()); err != nil {
		return err
	}
	sc.mu.Lock()
	sc.lastClientTimeOrder = sqn.SQN(pkt.TimeOrder)
	sc.mu.Unlock()
	return nil
}
