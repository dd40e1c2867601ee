// Package streams keeps the declarative state behind the stream
// administration statements: which streams exist, what they consume and
// whether they are running. The actual broker connector is an external
// collaborator; the registry only tracks specs and lifecycle.
package streams

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/runegraph/pkg/query/plan"
)

var (
	ErrStreamExists   = errors.New("stream already exists")
	ErrStreamNotFound = errors.New("stream not found")
)

type stream struct {
	name      string
	topic     string
	transform string
	batchSize int64
	running   bool
}

// Registry is an in-memory stream catalog. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*stream
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*stream)}
}

// CreateStream declares a stream. Created streams start stopped.
func (r *Registry) CreateStream(name, topic, transform string, batchSize int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.streams[name]; exists {
		return fmt.Errorf("%w: %s", ErrStreamExists, name)
	}
	r.streams[name] = &stream{name: name, topic: topic, transform: transform, batchSize: batchSize}
	logrus.WithFields(logrus.Fields{
		"stream": name,
		"topic":  topic,
	}).Info("stream created")
	return nil
}

// DropStream removes a stream, running or not.
func (r *Registry) DropStream(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.streams[name]; !exists {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, name)
	}
	delete(r.streams, name)
	return nil
}

// ShowStreams lists all streams ordered by name.
func (r *Registry) ShowStreams() []plan.StreamInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]plan.StreamInfo, 0, len(r.streams))
	for _, s := range r.streams {
		infos = append(infos, plan.StreamInfo{
			Name:      s.name,
			Topic:     s.topic,
			Transform: s.transform,
			BatchSize: s.batchSize,
			Running:   s.running,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// StartStream marks a stream running.
func (r *Registry) StartStream(name string) error {
	return r.setRunning(name, true)
}

// StopStream marks a stream stopped.
func (r *Registry) StopStream(name string) error {
	return r.setRunning(name, false)
}

// StartAllStreams marks every stream running.
func (r *Registry) StartAllStreams() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.streams {
		s.running = true
	}
	return nil
}

// StopAllStreams marks every stream stopped.
func (r *Registry) StopAllStreams() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.streams {
		s.running = false
	}
	return nil
}

// TestStream reports the declared source of a stream without starting
// it, so operators can check a spec before going live.
func (r *Registry) TestStream(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.streams[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, name)
	}
	return []string{
		fmt.Sprintf("topic %s", s.topic),
		fmt.Sprintf("transform %s", s.transform),
		fmt.Sprintf("batch size %d", s.batchSize),
	}, nil
}

func (r *Registry) setRunning(name string, running bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, exists := r.streams[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, name)
	}
	s.running = running
	return nil
}
