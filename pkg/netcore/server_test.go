package netcore

import (
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
	s, err := Listen(addr, nil, nil, nil, zerolog.Nop(), nil, Tunables{})
	require.NoError(t, err)
	t.Cleanup(func() { s.socket.Close() })
	return s
}

func udpAddr(t *testing.T, port int) *net.UDPAddr {
	t.Helper()
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestConnectionForFirstClientBecomesHost(t *testing.T) {
	s := newTestServer(t)
	a1 := udpAddr(t, 40001)
	a2 := udpAddr(t, 40002)

	conn1, spawn1 := s.connectionFor(a1, 0)
	assert.Equal(t, spawnNew, spawn1)
	assert.NotNil(t, conn1)
	assert.Equal(t, a1.String(), s.hostClient)

	conn2, spawn2 := s.connectionFor(a2, 0)
	assert.Equal(t, spawnNew, spawn2)
	assert.NotSame(t, conn1, conn2)
	assert.Equal(t, a1.String(), s.hostClient, "host client must not change once set")
}

func TestConnectionForReusesExistingConnectedClient(t *testing.T) {
	s := newTestServer(t)
	a1 := udpAddr(t, 40003)

	conn1, _ := s.connectionFor(a1, 0)
	conn1.setStatus(StatusConnected)

	conn2, spawn := s.connectionFor(a1, 0)
	assert.Equal(t, spawnNone, spawn)
	assert.Same(t, conn1, conn2)
}

func TestConnectionForRevivesDisconnectedClient(t *testing.T) {
	s := newTestServer(t)
	a1 := udpAddr(t, 40004)

	conn1, _ := s.connectionFor(a1, 0)
	conn1.setStatus(StatusDisconnected)

	conn2, spawn := s.connectionFor(a1, 0)
	assert.Equal(t, spawnRevived, spawn, "a disconnected client reappearing must only respawn its send loop")
	assert.Same(t, conn1, conn2)
}

func TestHandleShutdownDatagramOnlyHostCanShutdownServer(t *testing.T) {
	s := newTestServer(t)
	host := udpAddr(t, 50001)
	guest := udpAddr(t, 50002)
	s.connectionFor(host, 0)

	assert.False(t, handleShutdownDatagram(s, guest, []byte("shutdown")))
	assert.True(t, handleShutdownDatagram(s, host, []byte("shutdown")))
}

func TestHandleShutdownDatagramShutMeDownFromAnyone(t *testing.T) {
	s := newTestServer(t)
	host := udpAddr(t, 50003)
	guest := udpAddr(t, 50004)
	s.connectionFor(host, 0)

	assert.True(t, handleShutdownDatagram(s, guest, []byte("shut_me_down")))
}

func TestHandleShutdownDatagramIgnoresOrdinaryPayload(t *testing.T) {
	s := newTestServer(t)
	addr := udpAddr(t, 50005)
	assert.False(t, handleShutdownDatagram(s, addr, []byte{0xFF, 0xD0, 0xFA, 0xB9, 0, 1}))
}
