package rpc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"
)

// Codec serializes call bodies. Implementations must produce a
// self-contained byte slice per message.
type Codec interface {
	Encode(msg any) ([]byte, error)
	Decode(data []byte, msg any) error
}

// GobCodec encodes bodies with encoding/gob. Each body is a standalone
// gob stream so frames stay independent across reconnects.
type GobCodec struct{}

func (GobCodec) Encode(msg any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobCodec) Decode(data []byte, msg any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(msg); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// frameHeaderSize covers the request id and body length words.
const frameHeaderSize = 8

// putFrameHeader writes the id and body-length words.
func putFrameHeader(dst []byte, id uint32, bodyLen uint32) {
	binary.LittleEndian.PutUint32(dst[0:4], id)
	binary.LittleEndian.PutUint32(dst[4:8], bodyLen)
}

// frameHeader reads the id and body-length words.
func frameHeader(src []byte) (id uint32, bodyLen uint32) {
	return binary.LittleEndian.Uint32(src[0:4]), binary.LittleEndian.Uint32(src[4:8])
}

// frame assembles a full wire frame for one message.
func frame(id uint32, body []byte) ([]byte, error) {
	if uint64(len(body)) > math.MaxUint32 {
		return nil, fmt.Errorf("message body of %d bytes exceeds frame limit", len(body))
	}
	out := make([]byte, frameHeaderSize+len(body))
	putFrameHeader(out, id, uint32(len(body)))
	copy(out[frameHeaderSize:], body)
	return out, nil
}

// handshake assembles the once-per-connection service-name preamble.
func handshake(service string) []byte {
	out := make([]byte, 4+len(service))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(service)))
	copy(out[4:], service)
	return out
}
