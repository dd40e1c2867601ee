package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferWrittenAndShift(t *testing.T) {
	b := NewBuffer()
	assert.Zero(t, b.Size())

	region := b.Allocate(4)
	require.GreaterOrEqual(t, len(region), 4)
	copy(region, "abcd")
	b.Written(4)
	assert.Equal(t, []byte("abcd"), b.Data())

	region = b.Allocate(2)
	copy(region, "ef")
	b.Written(2)
	assert.Equal(t, []byte("abcdef"), b.Data())
	assert.Equal(t, 6, b.Size())

	b.Shift(4)
	assert.Equal(t, []byte("ef"), b.Data())

	b.Shift(10)
	assert.Zero(t, b.Size())
}

func TestBufferGrowsPastChunkSize(t *testing.T) {
	b := NewBuffer()
	payload := make([]byte, defaultChunkSize+100)
	for i := range payload {
		payload[i] = byte(i)
	}
	region := b.Allocate(len(payload))
	require.GreaterOrEqual(t, len(region), len(payload))
	copy(region, payload)
	b.Written(len(payload))
	assert.Equal(t, payload, b.Data())

	b.Shift(50)
	assert.Equal(t, payload[50:], b.Data())
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer()
	copy(b.Allocate(3), "xyz")
	b.Written(3)
	b.Clear()
	assert.Zero(t, b.Size())
	assert.Empty(t, b.Data())
}

func TestFrameLayout(t *testing.T) {
	out, err := frame(7, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 0, 0, 0, 2, 0, 0, 0, 'h', 'i'}, out)

	id, bodyLen := frameHeader(out)
	assert.Equal(t, uint32(7), id)
	assert.Equal(t, uint32(2), bodyLen)
}

func TestHandshakeLayout(t *testing.T) {
	assert.Equal(t, []byte{5, 0, 0, 0, 'q', 'u', 'e', 'r', 'y'}, handshake("query"))
}
