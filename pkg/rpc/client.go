package rpc

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNoResponse is returned whenever the transport fails mid-call. The
// socket has been dropped; the caller decides whether to retry.
var ErrNoResponse = errors.New("no response")

// Dialer opens the transport stream. The default dials TCP.
type Dialer func(addr string) (net.Conn, error)

// Client issues calls to one service over one connection. A single mutex
// serializes calls, so at most one request is outstanding at any time.
type Client struct {
	addr    string
	service string
	codec   Codec
	dial    Dialer

	mu      sync.Mutex
	buffer  *Buffer
	counter uint32

	// connMu guards conn so Abort can reach it from another goroutine
	// while a call blocks holding mu.
	connMu sync.Mutex
	conn   net.Conn
}

// NewClient returns a client for service at addr. No connection is made
// until the first call.
func NewClient(addr, service string) *Client {
	return &Client{
		addr:    addr,
		service: service,
		codec:   GobCodec{},
		dial:    func(addr string) (net.Conn, error) { return net.Dial("tcp", addr) },
		buffer:  NewBuffer(),
	}
}

// NewClientWith returns a client using a custom dialer and codec.
func NewClientWith(addr, service string, dial Dialer, codec Codec) *Client {
	return &Client{addr: addr, service: service, codec: codec, dial: dial, buffer: NewBuffer()}
}

// Call sends req and decodes the matching response into resp. Responses
// carrying a stale request id are read off the stream and discarded. Any
// transport failure drops the socket and reports ErrNoResponse.
func (c *Client) Call(req, resp any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(); err != nil {
			return fmt.Errorf("%w: %v", ErrNoResponse, err)
		}
	}

	c.counter++
	id := c.counter

	body, err := c.codec.Encode(req)
	if err != nil {
		return c.drop(err)
	}
	out, err := frame(id, body)
	if err != nil {
		return c.drop(err)
	}
	if _, err := c.conn.Write(out); err != nil {
		return c.drop(err)
	}

	for {
		for c.buffer.Size() >= frameHeaderSize {
			respID, bodyLen := frameHeader(c.buffer.Data())
			if c.buffer.Size() < frameHeaderSize+int(bodyLen) {
				break
			}
			respBody := c.buffer.Data()[frameHeaderSize : frameHeaderSize+int(bodyLen)]
			if respID != id {
				// Stale leftover from an abandoned call.
				logrus.WithFields(logrus.Fields{
					"got":  respID,
					"want": id,
				}).Debug("discarding stale rpc response")
				c.buffer.Shift(frameHeaderSize + int(bodyLen))
				continue
			}
			err := c.codec.Decode(respBody, resp)
			c.buffer.Shift(frameHeaderSize + int(bodyLen))
			if err != nil {
				return c.drop(err)
			}
			return nil
		}
		chunk := c.buffer.Allocate(defaultChunkSize)
		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buffer.Written(n)
		}
		if err != nil {
			return c.drop(err)
		}
	}
}

// Abort shuts the socket down to wake a blocked call, which then fails
// with ErrNoResponse and drops the connection.
func (c *Client) Abort() {
	// Deliberately not taking c.mu; the blocked caller holds it.
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Close releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// connect dials and replays the service handshake.
func (c *Client) connect() error {
	conn, err := c.dial(c.addr)
	if err != nil {
		return err
	}
	if _, err := conn.Write(handshake(c.service)); err != nil {
		conn.Close()
		return err
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.buffer.Clear()
	return nil
}

// drop closes and forgets the socket after a transport failure.
func (c *Client) drop(cause error) error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.buffer.Clear()
	return fmt.Errorf("%w: %v", ErrNoResponse, cause)
}
