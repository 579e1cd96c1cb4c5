package net

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/echoarena/server/internal/metrics"
	"github.com/echoarena/server/internal/net/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		BindAddress:      "127.0.0.1:0",
		MaxClients:       8,
		InQueueSize:      64,
		OutQueueSize:     64,
		ReadTimeout:      2 * time.Second,
		WriteTimeout:     2 * time.Second,
		AckTimeout:       100 * time.Millisecond,
		AckMaxRetries:    2,
		AckSweepInterval: 20 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg, metrics.New(), zaptest.NewLogger(t))
	require.NoError(t, err)
	go s.AcceptLoop()
	go s.SweepLoop()
	t.Cleanup(s.Shutdown)
	return s
}

func dialServer(t *testing.T, s *Server) net.Conn {
	t.Helper()
	before := s.ClientCount()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return s.ClientCount() > before }, time.Second, 5*time.Millisecond)
	return conn
}

func writeEnv(t *testing.T, conn net.Conn, env protocol.Envelope) {
	t.Helper()
	frame, err := env.Marshal()
	require.NoError(t, err)
	require.NoError(t, WriteFrame(conn, frame))
}

func readEnv(t *testing.T, conn net.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	payload, err := ReadFrame(conn)
	require.NoError(t, err)
	env, err := protocol.Unmarshal(payload)
	require.NoError(t, err)
	return env
}

func TestPingPongStaysOutOfInbound(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialServer(t, s)

	env, err := protocol.Encode(protocol.KindPing, protocol.Ping{Timestamp: 1234})
	require.NoError(t, err)
	env.SequenceID = 9
	writeEnv(t, conn, env)

	reply := readEnv(t, conn)
	assert.Equal(t, protocol.KindPong, reply.Type)
	pong, err := protocol.Decode[protocol.Pong](reply)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), pong.OriginalTimestamp)

	select {
	case in := <-s.Inbound():
		t.Fatalf("ping must not reach the orchestrator, got %v", in.Env.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInboundReliableIsAcked(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialServer(t, s)

	writeEnv(t, conn, protocol.Envelope{
		Type:        protocol.KindReadyUp,
		PayloadJSON: "{}",
		SequenceID:  55,
		RequiresAck: true,
	})

	reply := readEnv(t, conn)
	assert.Equal(t, protocol.KindAck, reply.Type)
	ack, err := protocol.Decode[protocol.Ack](reply)
	require.NoError(t, err)
	assert.Equal(t, uint32(55), ack.AcknowledgedSequenceID)

	select {
	case in := <-s.Inbound():
		assert.Equal(t, protocol.KindReadyUp, in.Env.Type)
		assert.Equal(t, int32(1), in.ClientID)
	case <-time.After(time.Second):
		t.Fatal("inbound message never delivered")
	}
}

func TestReliableRetransmitThenResolve(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialServer(t, s)

	require.NoError(t, s.SendTo(1, protocol.KindPhaseChanged, protocol.PhaseChanged{}, true))
	s.FlushAll()

	first := readEnv(t, conn)
	assert.Equal(t, protocol.KindPhaseChanged, first.Type)
	assert.True(t, first.RequiresAck)

	// Withhold the ack; the sweeper resends the same sequence id.
	second := readEnv(t, conn)
	assert.Equal(t, first.SequenceID, second.SequenceID)
	assert.Equal(t, first.PayloadJSON, second.PayloadJSON)

	env, err := protocol.Encode(protocol.KindAck, protocol.Ack{AcknowledgedSequenceID: first.SequenceID})
	require.NoError(t, err)
	writeEnv(t, conn, env)

	require.Eventually(t, func() bool { return s.Acks().Pending() == 0 }, time.Second, 10*time.Millisecond)
}

func TestReliableAbandonedAfterRetries(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialServer(t, s)

	require.NoError(t, s.SendTo(1, protocol.KindPhaseChanged, protocol.PhaseChanged{}, true))
	s.FlushAll()
	require.Equal(t, 1, s.Acks().Pending())

	// Never ack: original send plus AckMaxRetries retransmissions, then drop.
	for i := 0; i < 3; i++ {
		readEnv(t, conn)
	}
	require.Eventually(t, func() bool { return s.Acks().Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastClonesGetDistinctSequenceIDs(t *testing.T) {
	s := newTestServer(t, nil)
	c1 := dialServer(t, s)
	c2 := dialServer(t, s)

	require.NoError(t, s.Broadcast(protocol.KindLobbyState, protocol.LobbyState{}, true))
	s.FlushAll()

	e1 := readEnv(t, c1)
	e2 := readEnv(t, c2)
	assert.NotEqual(t, e1.SequenceID, e2.SequenceID)
	assert.GreaterOrEqual(t, e1.SequenceID, uint32(1)<<31)
	assert.GreaterOrEqual(t, e2.SequenceID, uint32(1)<<31)
	assert.Equal(t, 2, s.Acks().Pending())
}

func TestDisconnectSurfacesAndPurgesAcks(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialServer(t, s)

	require.NoError(t, s.SendTo(1, protocol.KindPhaseChanged, protocol.PhaseChanged{}, true))
	conn.Close()

	select {
	case id := <-s.DeadClients():
		assert.Equal(t, int32(1), id)
	case <-time.After(time.Second):
		t.Fatal("disconnect never surfaced")
	}
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, s.Acks().Pending())
}

func TestMaxClientsRejectsExtraConnections(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.MaxClients = 1 })
	dialServer(t, s)

	extra, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer extra.Close()

	require.NoError(t, extra.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = ReadFrame(extra)
	assert.Error(t, err, "rejected connection is closed without a frame")
	assert.Equal(t, 1, s.ClientCount())
}

func TestMalformedEnvelopeDropsClient(t *testing.T) {
	s := newTestServer(t, nil)
	conn := dialServer(t, s)

	require.NoError(t, WriteFrame(conn, []byte("not json")))
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
