package protocol

import "sync/atomic"

// broadcastBase splits the 32-bit sequence space in two so that per-recipient
// clones of a broadcast can never collide with directly addressed sends.
const broadcastBase uint32 = 1 << 31

// Sequencer hands out process-wide message sequence ids.
type Sequencer struct {
	direct    atomic.Uint32
	broadcast atomic.Uint32
}

// Next returns the next direct-send sequence id, starting at 1.
func (s *Sequencer) Next() uint32 {
	return s.direct.Add(1)
}

// NextBroadcast returns the next id from the broadcast-clone space.
func (s *Sequencer) NextBroadcast() uint32 {
	return broadcastBase + s.broadcast.Add(1)
}
