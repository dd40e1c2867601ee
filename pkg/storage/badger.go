package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes organizing the Badger keyspace. Single-byte prefixes keep
// keys short.
const (
	prefixNode          = byte(0x01) // node ID -> gob(Node)
	prefixEdge          = byte(0x02) // edge ID -> gob(Edge)
	prefixLabelIndex    = byte(0x03) // label 0x00 nodeID -> empty
	prefixOutgoingIndex = byte(0x04) // nodeID 0x00 edgeID -> empty
	prefixIncomingIndex = byte(0x05) // nodeID 0x00 edgeID -> empty
)

// Property values travel through gob as interface values and must be
// registered up front.
func init() {
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register("")
	gob.Register(false)
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// BadgerEngine is a persistent Engine backed by BadgerDB. All operations
// run inside Badger transactions; secondary indexes for labels and edge
// adjacency are maintained alongside the records.
type BadgerEngine struct {
	db *badger.DB
}

// NewBadgerEngine opens (or creates) a Badger database at dir.
func NewBadgerEngine(dir string) (*BadgerEngine, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &BadgerEngine{db: db}, nil
}

// NewBadgerEngineInMemory opens a memory-only Badger database, used by
// tests that exercise the persistent codepath without disk I/O.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &BadgerEngine{db: db}, nil
}

func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, id...)
}

func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, id...)
}

func labelKey(label string, id NodeID) []byte {
	k := append([]byte{prefixLabelIndex}, label...)
	k = append(k, 0x00)
	return append(k, id...)
}

func adjacencyKey(prefix byte, node NodeID, edge EdgeID) []byte {
	k := append([]byte{prefix}, node...)
	k = append(k, 0x00)
	return append(k, edge...)
}

func encodeNode(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(n); err != nil {
		return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
	}
	return buf.Bytes(), nil
}

func decodeNode(data []byte) (*Node, error) {
	var n Node
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&n); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	return &n, nil
}

func encodeEdge(e *Edge) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("encode edge %s: %w", e.ID, err)
	}
	return buf.Bytes(), nil
}

func decodeEdge(data []byte) (*Edge, error) {
	var e Edge
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return nil, fmt.Errorf("decode edge: %w", err)
	}
	return &e, nil
}

// CreateNode stores a new node.
func (b *BadgerEngine) CreateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}
	return b.db.Update(func(txn *badger.Txn) error {
		key := nodeKey(node.ID)
		if _, err := txn.Get(key); err == nil {
			return ErrAlreadyExists
		}
		data, err := encodeNode(node)
		if err != nil {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		for _, label := range node.Labels {
			if err := txn.Set(labelKey(label, node.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetNode retrieves a node by ID.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	var node *Node
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			node, err = decodeNode(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// UpdateNode replaces an existing node and refreshes its label index.
func (b *BadgerEngine) UpdateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}
	return b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(node.ID))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var existing *Node
		if err := item.Value(func(val []byte) error {
			existing, err = decodeNode(val)
			return err
		}); err != nil {
			return err
		}
		for _, label := range existing.Labels {
			if err := txn.Delete(labelKey(label, node.ID)); err != nil {
				return err
			}
		}
		data, err := encodeNode(node)
		if err != nil {
			return err
		}
		if err := txn.Set(nodeKey(node.ID), data); err != nil {
			return err
		}
		for _, label := range node.Labels {
			if err := txn.Set(labelKey(label, node.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteNode removes a node and every edge incident to it.
func (b *BadgerEngine) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}
	return b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var node *Node
		if err := item.Value(func(val []byte) error {
			node, err = decodeNode(val)
			return err
		}); err != nil {
			return err
		}
		for _, label := range node.Labels {
			if err := txn.Delete(labelKey(label, id)); err != nil {
				return err
			}
		}
		for _, prefix := range []byte{prefixOutgoingIndex, prefixIncomingIndex} {
			edgeIDs, err := collectAdjacent(txn, prefix, id)
			if err != nil {
				return err
			}
			for _, edgeID := range edgeIDs {
				if err := deleteEdgeInTxn(txn, edgeID); err != nil && err != ErrNotFound {
					return err
				}
			}
		}
		return txn.Delete(nodeKey(id))
	})
}

// CreateEdge stores a new edge. Both endpoints must exist.
func (b *BadgerEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(edgeKey(edge.ID)); err == nil {
			return ErrAlreadyExists
		}
		if _, err := txn.Get(nodeKey(edge.StartNode)); err != nil {
			return ErrNotFound
		}
		if _, err := txn.Get(nodeKey(edge.EndNode)); err != nil {
			return ErrNotFound
		}
		data, err := encodeEdge(edge)
		if err != nil {
			return err
		}
		if err := txn.Set(edgeKey(edge.ID), data); err != nil {
			return err
		}
		if err := txn.Set(adjacencyKey(prefixOutgoingIndex, edge.StartNode, edge.ID), nil); err != nil {
			return err
		}
		return txn.Set(adjacencyKey(prefixIncomingIndex, edge.EndNode, edge.ID), nil)
	})
}

// GetEdge retrieves an edge by ID.
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	var edge *Edge
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(edgeKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			edge, err = decodeEdge(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// UpdateEdge replaces an existing edge and refreshes adjacency indexes
// when the endpoints changed.
func (b *BadgerEngine) UpdateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}
	return b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(edgeKey(edge.ID))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var existing *Edge
		if err := item.Value(func(val []byte) error {
			existing, err = decodeEdge(val)
			return err
		}); err != nil {
			return err
		}
		if existing.StartNode != edge.StartNode || existing.EndNode != edge.EndNode {
			if err := txn.Delete(adjacencyKey(prefixOutgoingIndex, existing.StartNode, edge.ID)); err != nil {
				return err
			}
			if err := txn.Delete(adjacencyKey(prefixIncomingIndex, existing.EndNode, edge.ID)); err != nil {
				return err
			}
			if _, err := txn.Get(nodeKey(edge.StartNode)); err != nil {
				return ErrNotFound
			}
			if _, err := txn.Get(nodeKey(edge.EndNode)); err != nil {
				return ErrNotFound
			}
			if err := txn.Set(adjacencyKey(prefixOutgoingIndex, edge.StartNode, edge.ID), nil); err != nil {
				return err
			}
			if err := txn.Set(adjacencyKey(prefixIncomingIndex, edge.EndNode, edge.ID), nil); err != nil {
				return err
			}
		}
		data, err := encodeEdge(edge)
		if err != nil {
			return err
		}
		return txn.Set(edgeKey(edge.ID), data)
	})
}

// DeleteEdge removes an edge.
func (b *BadgerEngine) DeleteEdge(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return deleteEdgeInTxn(txn, id)
	})
}

func deleteEdgeInTxn(txn *badger.Txn, id EdgeID) error {
	item, err := txn.Get(edgeKey(id))
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var edge *Edge
	if err := item.Value(func(val []byte) error {
		edge, err = decodeEdge(val)
		return err
	}); err != nil {
		return err
	}
	if err := txn.Delete(adjacencyKey(prefixOutgoingIndex, edge.StartNode, id)); err != nil {
		return err
	}
	if err := txn.Delete(adjacencyKey(prefixIncomingIndex, edge.EndNode, id)); err != nil {
		return err
	}
	return txn.Delete(edgeKey(id))
}

func collectAdjacent(txn *badger.Txn, prefix byte, node NodeID) ([]EdgeID, error) {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: adjacencyPrefix(prefix, node)})
	defer it.Close()
	var ids []EdgeID
	scan := adjacencyPrefix(prefix, node)
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		ids = append(ids, EdgeID(key[len(scan):]))
	}
	return ids, nil
}

func adjacencyPrefix(prefix byte, node NodeID) []byte {
	k := append([]byte{prefix}, node...)
	return append(k, 0x00)
}

// GetAllNodes returns every stored node.
func (b *BadgerEngine) GetAllNodes() ([]*Node, error) {
	var nodes []*Node
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{prefixNode}})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				n, err := decodeNode(val)
				if err != nil {
					return err
				}
				nodes = append(nodes, n)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// GetAllEdges returns every stored edge.
func (b *BadgerEngine) GetAllEdges() ([]*Edge, error) {
	var edges []*Edge
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte{prefixEdge}})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				e, err := decodeEdge(val)
				if err != nil {
					return err
				}
				edges = append(edges, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// GetNodesByLabel returns all nodes carrying the given label, via the
// label index.
func (b *BadgerEngine) GetNodesByLabel(label string) ([]*Node, error) {
	var nodes []*Node
	err := b.db.View(func(txn *badger.Txn) error {
		scan := append([]byte{prefixLabelIndex}, label...)
		scan = append(scan, 0x00)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: scan})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			id := NodeID(it.Item().Key()[len(scan):])
			item, err := txn.Get(nodeKey(id))
			if err != nil {
				continue
			}
			err = item.Value(func(val []byte) error {
				n, err := decodeNode(val)
				if err != nil {
					return err
				}
				nodes = append(nodes, n)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (b *BadgerEngine) edgesByAdjacency(prefix byte, nodeID NodeID) ([]*Edge, error) {
	if nodeID == "" {
		return nil, ErrInvalidID
	}
	var edges []*Edge
	err := b.db.View(func(txn *badger.Txn) error {
		ids, err := collectAdjacent(txn, prefix, nodeID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			item, err := txn.Get(edgeKey(id))
			if err != nil {
				continue
			}
			err = item.Value(func(val []byte) error {
				e, err := decodeEdge(val)
				if err != nil {
					return err
				}
				edges = append(edges, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// GetOutgoingEdges returns all edges starting at the node.
func (b *BadgerEngine) GetOutgoingEdges(nodeID NodeID) ([]*Edge, error) {
	return b.edgesByAdjacency(prefixOutgoingIndex, nodeID)
}

// GetIncomingEdges returns all edges ending at the node.
func (b *BadgerEngine) GetIncomingEdges(nodeID NodeID) ([]*Edge, error) {
	return b.edgesByAdjacency(prefixIncomingIndex, nodeID)
}

// NodeCount returns the number of stored nodes.
func (b *BadgerEngine) NodeCount() (int64, error) {
	return b.countPrefix(prefixNode)
}

// EdgeCount returns the number of stored edges.
func (b *BadgerEngine) EdgeCount() (int64, error) {
	return b.countPrefix(prefixEdge)
}

func (b *BadgerEngine) countPrefix(prefix byte) (int64, error) {
	var n int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.IteratorOptions{Prefix: []byte{prefix}, PrefetchValues: false}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (b *BadgerEngine) Close() error {
	return b.db.Close()
}

var _ Engine = (*BadgerEngine)(nil)
