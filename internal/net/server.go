package net

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/echoarena/server/internal/metrics"
	"github.com/echoarena/server/internal/net/protocol"
)

// Config carries the transport tunables. Values come from the
// configuration layer at boot.
type Config struct {
	BindAddress       string
	MaxClients        int
	InQueueSize       int
	OutQueueSize      int
	MessagesPerSecond float64
	MessageBurst      int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration

	AckTimeout       time.Duration
	AckMaxRetries    int
	AckSweepInterval time.Duration
}

// Server accepts connections and owns the client table, the sequence
// counter, and the reliable-delivery tracker. Sends are buffered per client
// and flushed once per orchestrator tick.
type Server struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	listener net.Listener
	nextID   atomic.Int32
	seq      *protocol.Sequencer
	acks     *AckTracker

	inbound chan Inbound
	deadCh  chan int32

	mu      sync.RWMutex
	clients map[int32]*Client

	closeCh chan struct{}
}

func NewServer(cfg Config, m *metrics.Metrics, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.BindAddress)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.BindAddress, err)
	}
	return &Server{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		listener: ln,
		seq:      &protocol.Sequencer{},
		acks:     NewAckTracker(cfg.AckTimeout, cfg.AckMaxRetries, m, log),
		inbound:  make(chan Inbound, cfg.InQueueSize),
		deadCh:   make(chan int32, 64),
		clients:  make(map[int32]*Client),
		closeCh:  make(chan struct{}),
	}, nil
}

// AcceptLoop runs in its own goroutine until Shutdown.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}

		s.mu.Lock()
		if len(s.clients) >= s.cfg.MaxClients {
			s.mu.Unlock()
			s.log.Warn("client table full, rejecting connection",
				zap.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}
		id := s.nextID.Add(1)
		c := newClient(conn, id, s)
		s.clients[id] = c
		n := len(s.clients)
		s.mu.Unlock()

		s.metrics.Clients.Set(float64(n))
		s.log.Info("client connected", zap.Int32("client", id), zap.String("remote", c.IP))
		c.start()
	}
}

// SweepLoop drives the ack retransmission track. Runs in its own goroutine
// until Shutdown.
func (s *Server) SweepLoop() {
	ticker := time.NewTicker(s.cfg.AckSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.acks.Sweep(now, func(clientID int32, frame []byte) bool {
				s.mu.RLock()
				c, ok := s.clients[clientID]
				s.mu.RUnlock()
				if !ok || c.IsClosed() {
					return false
				}
				c.enqueueDirect(frame)
				return true
			})
		case <-s.closeCh:
			return
		}
	}
}

// Inbound is the fan-in of decoded client messages, in per-client order.
func (s *Server) Inbound() <-chan Inbound { return s.inbound }

// DeadClients reports ids of connections that have gone away.
func (s *Server) DeadClients() <-chan int32 { return s.deadCh }

// notifyDead removes the client, purges its pending acks, and surfaces the
// disconnect to the orchestrator. Called from the client's read loop.
func (s *Server) notifyDead(id int32) {
	s.mu.Lock()
	_, ok := s.clients[id]
	delete(s.clients, id)
	n := len(s.clients)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.metrics.Clients.Set(float64(n))
	s.acks.DropClient(id)
	select {
	case s.deadCh <- id:
	default:
	}
}

// SendTo queues one message for a single client, stamping a fresh sequence
// id. Reliable messages enter the ack track. Orchestrator goroutine only.
func (s *Server) SendTo(id int32, kind protocol.Kind, payload any, reliable bool) error {
	s.mu.RLock()
	c, ok := s.clients[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("client %d not connected", id)
	}

	env, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}
	env.SequenceID = s.seq.Next()
	env.RequiresAck = reliable
	frame, err := env.Marshal()
	if err != nil {
		return err
	}
	if reliable {
		s.acks.Track(id, env.SequenceID, frame)
	}
	c.Queue(frame)
	return nil
}

// Broadcast queues one message for every connected client. Reliable
// broadcasts are cloned per recipient with ids from the disjoint broadcast
// sequence space, so each copy is tracked independently.
func (s *Server) Broadcast(kind protocol.Kind, payload any, reliable bool, exclude ...int32) error {
	env, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}
	env.RequiresAck = reliable

	skip := make(map[int32]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	for _, c := range s.clientList() {
		if skip[c.ID] || c.IsClosed() {
			continue
		}
		clone := env
		clone.SequenceID = s.seq.NextBroadcast()
		frame, err := clone.Marshal()
		if err != nil {
			return err
		}
		if reliable {
			s.acks.Track(c.ID, clone.SequenceID, frame)
		}
		c.Queue(frame)
	}
	return nil
}

// FlushAll pushes every client's buffered frames to its write loop. Called
// once per orchestrator tick, after all sends for the tick are queued.
func (s *Server) FlushAll() {
	for _, c := range s.clientList() {
		c.Flush()
	}
}

// Disconnect force-closes one client.
func (s *Server) Disconnect(id int32) {
	s.mu.RLock()
	c, ok := s.clients[id]
	s.mu.RUnlock()
	if ok {
		c.Close()
	}
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Acks exposes the pending table (tests and stats).
func (s *Server) Acks() *AckTracker { return s.acks }

func (s *Server) clientList() []*Client {
	s.mu.RLock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Shutdown stops accepting, stops the sweeper, and closes every client.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
	for _, c := range s.clientList() {
		c.Close()
	}
}
