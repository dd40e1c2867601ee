// Package rpc implements a length-prefixed binary request/response
// protocol. A connection opens with a service-name handshake; every
// request and response carries a little-endian request id and body
// length ahead of the body bytes.
package rpc

// defaultChunkSize is the growth step of the framing buffer.
const defaultChunkSize = 4096

// Buffer accumulates raw stream bytes until whole frames can be cut off
// the front. Data()[0:Size()] always holds the bytes written so far minus
// the shifted prefixes.
type Buffer struct {
	data []byte
	have int
}

// NewBuffer returns an empty framing buffer with one chunk preallocated.
func NewBuffer() *Buffer {
	return &Buffer{data: make([]byte, defaultChunkSize)}
}

// Allocate returns a writable region of at least n free bytes past the
// buffered data. The caller commits what it filled via Written.
func (b *Buffer) Allocate(n int) []byte {
	b.Resize(b.have + n)
	return b.data[b.have:]
}

// Written commits n bytes previously filled into an Allocate region.
func (b *Buffer) Written(n int) {
	b.have += n
}

// Shift drops the first n buffered bytes, moving the remainder down.
func (b *Buffer) Shift(n int) {
	if n > b.have {
		n = b.have
	}
	copy(b.data, b.data[n:b.have])
	b.have -= n
}

// Resize grows the underlying storage to hold at least total bytes,
// in whole chunks. Buffered data survives.
func (b *Buffer) Resize(total int) {
	if total <= len(b.data) {
		return
	}
	chunks := (total + defaultChunkSize - 1) / defaultChunkSize
	grown := make([]byte, chunks*defaultChunkSize)
	copy(grown, b.data[:b.have])
	b.data = grown
}

// Clear drops all buffered bytes.
func (b *Buffer) Clear() {
	b.have = 0
}

// Data returns the buffered bytes.
func (b *Buffer) Data() []byte {
	return b.data[:b.have]
}

// Size reports the number of buffered bytes.
func (b *Buffer) Size() int {
	return b.have
}
