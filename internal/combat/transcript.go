package combat

import "encoding/json"

// Transcript records a combat's snapshot stream as marshaled frames, the
// exact bytes sent to spectating clients. Two identically seeded combats
// must produce byte-equal transcripts.
type Transcript struct {
	frames [][]byte
}

// Append marshals and stores a snapshot frame.
func (t *Transcript) Append(snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	t.frames = append(t.frames, raw)
	return nil
}

// Frames exposes the recorded stream.
func (t *Transcript) Frames() [][]byte { return t.frames }

// Size reports the frame count.
func (t *Transcript) Size() int { return len(t.frames) }

// Equal compares two transcripts byte for byte.
func (t *Transcript) Equal(o *Transcript) bool {
	if len(t.frames) != len(o.frames) {
		return false
	}
	for i := range t.frames {
		if string(t.frames[i]) != string(o.frames[i]) {
			return false
		}
	}
	return true
}
