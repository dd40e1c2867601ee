package rpc

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Handler processes one decoded request body and returns the response
// body. Returning an error tears the connection down.
type Handler func(body []byte) ([]byte, error)

// Server accepts connections, reads the service-name handshake once per
// connection and routes every subsequent request to the handler
// registered for that service, echoing request ids in responses.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	listener net.Listener
	closed   atomic.Bool
}

// NewServer returns a server with no services registered.
func NewServer() *Server {
	return &Server{handlers: make(map[string]Handler)}
}

// Register installs the handler for a service name.
func (s *Server) Register(service string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[service] = h
}

// ListenAndServe listens on addr and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections from listener until Close.
func (s *Server) Serve(listener net.Listener) error {
	s.listener = listener
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			return err
		}
		go s.ServeConn(conn)
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.closed.Store(true)
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// ServeConn runs the request loop for one established connection.
func (s *Server) ServeConn(conn net.Conn) {
	defer conn.Close()

	service, err := readHandshake(conn)
	if err != nil {
		logrus.WithError(err).Debug("rpc handshake failed")
		return
	}
	s.mu.RLock()
	handler, ok := s.handlers[service]
	s.mu.RUnlock()
	if !ok {
		logrus.WithField("service", service).Warn("rpc request for unknown service")
		return
	}

	for {
		id, body, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				logrus.WithError(err).Debug("rpc read failed")
			}
			return
		}
		respBody, err := handler(body)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"service": service,
				"id":      id,
			}).WithError(err).Warn("rpc handler failed")
			return
		}
		out, err := frame(id, respBody)
		if err != nil {
			logrus.WithError(err).Warn("rpc response too large")
			return
		}
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

// readHandshake consumes the once-per-connection service-name preamble.
func readHandshake(conn net.Conn) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return "", fmt.Errorf("read service name length: %w", err)
	}
	nameLen := binary.LittleEndian.Uint32(lenBuf[:])
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(conn, name); err != nil {
		return "", fmt.Errorf("read service name: %w", err)
	}
	return string(name), nil
}

// readFrame consumes one request frame.
func readFrame(conn net.Conn) (uint32, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return 0, nil, err
	}
	id, bodyLen := frameHeader(header[:])
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		return 0, nil, err
	}
	return id, body, nil
}
