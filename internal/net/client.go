package net

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/echoarena/server/internal/net/protocol"
)

// Inbound is one decoded client message handed to the orchestrator.
type Inbound struct {
	ClientID int32
	Env      protocol.Envelope
}

// Client is a single connection. Network I/O runs in dedicated goroutines;
// game state is accessed only from the orchestrator loop. Ping, Ack, and
// ack replies for inbound reliable messages are resolved inside the read
// path and never reach the orchestrator.
type Client struct {
	ID int32
	IP string

	conn   net.Conn
	server *Server

	OutQueue chan []byte

	outBuf [][]byte // buffered frames, flushed once per tick (orchestrator only)

	limiter *rate.Limiter

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	log *zap.Logger
}

func newClient(conn net.Conn, id int32, srv *Server) *Client {
	c := &Client{
		ID:       id,
		IP:       conn.RemoteAddr().String(),
		conn:     conn,
		server:   srv,
		OutQueue: make(chan []byte, srv.cfg.OutQueueSize),
		closeCh:  make(chan struct{}),
		log:      srv.log.With(zap.Int32("client", id)),
	}
	if srv.cfg.MessagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(srv.cfg.MessagesPerSecond), srv.cfg.MessageBurst)
	}
	return c
}

func (c *Client) start() {
	go c.readLoop()
	go c.writeLoop()
}

// Queue buffers a frame for sending. Nothing hits the socket until Flush.
// Called only from the orchestrator goroutine.
func (c *Client) Queue(frame []byte) {
	if c.closed.Load() {
		return
	}
	c.outBuf = append(c.outBuf, frame)
}

// Flush drains the buffered frames to OutQueue for the writeLoop. Called
// once per tick. Non-blocking: a full OutQueue means the consumer cannot
// keep up and the connection is dropped.
func (c *Client) Flush() {
	for _, frame := range c.outBuf {
		select {
		case c.OutQueue <- frame:
		default:
			c.log.Warn("out queue full, dropping slow client")
			c.Close()
			c.outBuf = c.outBuf[:0]
			return
		}
	}
	c.outBuf = c.outBuf[:0]
}

// enqueueDirect hands a frame straight to the writeLoop, bypassing the
// per-tick buffer. Safe from any goroutine; used for pong/ack replies and
// ack retransmissions.
func (c *Client) enqueueDirect(frame []byte) {
	if c.closed.Load() {
		return
	}
	select {
	case c.OutQueue <- frame:
	default:
		c.log.Warn("out queue full, dropping slow client")
		c.Close()
	}
}

// Close shuts the connection down once; the read loop's exit notifies the
// server, which surfaces the disconnect to the orchestrator.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closeCh)
		c.conn.Close()
	})
}

func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// readLoop reads frames, decodes envelopes, and routes them. Any framing or
// parse error closes the connection without notice.
func (c *Client) readLoop() {
	defer func() {
		c.Close()
		c.server.notifyDead(c.ID)
	}()

	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		if c.server.cfg.ReadTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.ReadTimeout))
		}
		payload, err := ReadFrame(c.conn)
		if err != nil {
			if !c.closed.Load() {
				c.log.Debug("read error", zap.Error(err))
			}
			return
		}
		c.server.metrics.FramesIn.Inc()
		c.server.metrics.BytesIn.Add(float64(len(payload)))

		env, err := protocol.Unmarshal(payload)
		if err != nil {
			c.log.Debug("bad envelope", zap.Error(err))
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.log.Warn("message rate exceeded, dropping client")
			return
		}

		switch env.Type {
		case protocol.KindPing:
			c.handlePing(env)
			continue
		case protocol.KindAck:
			if ack, err := protocol.Decode[protocol.Ack](env); err == nil {
				c.server.acks.Resolve(ack.AcknowledgedSequenceID)
			}
			continue
		}

		if env.RequiresAck {
			c.sendAck(env.SequenceID)
		}

		// Block until the orchestrator queue has space or the connection
		// closes. The goroutine is per-client, so only this client stalls.
		select {
		case c.server.inbound <- Inbound{ClientID: c.ID, Env: env}:
		case <-c.closeCh:
			return
		}
	}
}

func (c *Client) handlePing(env protocol.Envelope) {
	ping, err := protocol.Decode[protocol.Ping](env)
	if err != nil {
		return
	}
	pong, err := protocol.Encode(protocol.KindPong, protocol.Pong{
		OriginalTimestamp: ping.Timestamp,
		ServerReceivedAt:  time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	pong.SequenceID = c.server.seq.Next()
	if frame, err := pong.Marshal(); err == nil {
		c.enqueueDirect(frame)
	}
}

func (c *Client) sendAck(seq uint32) {
	env, err := protocol.Encode(protocol.KindAck, protocol.Ack{AcknowledgedSequenceID: seq})
	if err != nil {
		return
	}
	env.SequenceID = c.server.seq.Next()
	if frame, err := env.Marshal(); err == nil {
		c.enqueueDirect(frame)
	}
}

// writeLoop serializes all socket writes for this connection.
func (c *Client) writeLoop() {
	defer c.Close()

	for {
		select {
		case frame := <-c.OutQueue:
			if !c.writeOne(frame) {
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *Client) writeOne(frame []byte) bool {
	if c.server.cfg.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
	}
	if err := WriteFrame(c.conn, frame); err != nil {
		if !c.closed.Load() {
			c.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	c.server.metrics.FramesOut.Inc()
	c.server.metrics.BytesOut.Add(float64(len(frame)))
	return true
}
