package net

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"Type":25,"PayloadJson":"{}","SequenceId":7,"RequiresAck":false}`)

	require.NoError(t, WriteFrame(&buf, payload))
	assert.Equal(t, 4+len(payload), buf.Len())

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFrameLengthLimits(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteFrame(&buf, nil))
	assert.Error(t, WriteFrame(&buf, make([]byte, MaxFrameSize+1)))

	// Header declaring a zero-length payload.
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}))
	assert.Error(t, err)

	// Header declaring an oversized payload.
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], MaxFrameSize+1)
	_, err = ReadFrame(bytes.NewReader(header[:]))
	assert.Error(t, err)
}

func TestFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))

	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := ReadFrame(bytes.NewReader(truncated))
	assert.Error(t, err)
}
