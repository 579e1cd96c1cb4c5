package net

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/echoarena/server/internal/metrics"
)

// pendingAck is one reliable message awaiting acknowledgement.
type pendingAck struct {
	clientID int32
	frame    []byte
	sentAt   time.Time
	retries  int
}

// AckTracker is the pending table for reliable sends. It is mutated from
// the send path (orchestrator), the read loops (resolve), and the sweeper
// goroutine, so every operation takes the lock.
type AckTracker struct {
	timeout    time.Duration
	maxRetries int
	log        *zap.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	pending map[uint32]*pendingAck
}

func NewAckTracker(timeout time.Duration, maxRetries int, m *metrics.Metrics, log *zap.Logger) *AckTracker {
	return &AckTracker{
		timeout:    timeout,
		maxRetries: maxRetries,
		log:        log,
		metrics:    m,
		pending:    make(map[uint32]*pendingAck),
	}
}

// Track records a sent reliable frame under its sequence id.
func (t *AckTracker) Track(clientID int32, seq uint32, frame []byte) {
	t.mu.Lock()
	t.pending[seq] = &pendingAck{clientID: clientID, frame: frame, sentAt: time.Now()}
	n := len(t.pending)
	t.mu.Unlock()
	t.metrics.PendingAcks.Set(float64(n))
}

// Resolve removes the entry for an acknowledged sequence id.
func (t *AckTracker) Resolve(seq uint32) {
	t.mu.Lock()
	delete(t.pending, seq)
	n := len(t.pending)
	t.mu.Unlock()
	t.metrics.PendingAcks.Set(float64(n))
}

// DropClient discards every outstanding entry for a disconnected client.
func (t *AckTracker) DropClient(clientID int32) {
	t.mu.Lock()
	for seq, p := range t.pending {
		if p.clientID == clientID {
			delete(t.pending, seq)
		}
	}
	n := len(t.pending)
	t.mu.Unlock()
	t.metrics.PendingAcks.Set(float64(n))
}

// Pending reports the number of outstanding entries.
func (t *AckTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Sweep retransmits timed-out entries and drops the ones that exhausted
// their retries. resend must be safe to call from the sweeper goroutine;
// returning false (client gone) drops the entry immediately.
func (t *AckTracker) Sweep(now time.Time, resend func(clientID int32, frame []byte) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for seq, p := range t.pending {
		if now.Sub(p.sentAt) <= t.timeout {
			continue
		}
		if p.retries >= t.maxRetries {
			t.log.Warn("reliable message abandoned",
				zap.Int32("client", p.clientID),
				zap.Uint32("sequence", seq),
				zap.Int("retries", p.retries),
			)
			t.metrics.AckDrops.Inc()
			delete(t.pending, seq)
			continue
		}
		if !resend(p.clientID, p.frame) {
			delete(t.pending, seq)
			continue
		}
		p.retries++
		p.sentAt = now
		t.metrics.AckRetries.Inc()
	}
	t.metrics.PendingAcks.Set(float64(len(t.pending)))
}
