package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skobkin/meshbridge/internal/bus"
	"github.com/skobkin/meshbridge/internal/connectors"
)

// NodeStore keeps the latest known identity of every node heard through the
// bridge.
type NodeStore struct {
	mu    sync.RWMutex
	nodes map[string]Node
}

func NewNodeStore() *NodeStore {
	return &NodeStore{nodes: make(map[string]Node)}
}

// Restore seeds the store from the journal and reports how many nodes it
// loaded. Nodes already in memory are replaced.
func (s *NodeStore) Restore(ctx context.Context, repo NodeRepository) (int, error) {
	items, err := repo.ListSortedByLastHeard(ctx)
	if err != nil {
		return 0, fmt.Errorf("load nodes from journal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, node := range items {
		s.nodes[node.NodeID] = node
	}

	return len(items), nil
}

// Start follows node info reports and inbound message senders until ctx ends.
func (s *NodeStore) Start(ctx context.Context, b bus.MessageBus) {
	bus.Consume(ctx, b, func(raw any) {
		switch v := raw.(type) {
		case connectors.NodeSeen:
			s.Upsert(NodeFromSeen(v))
		case connectors.BridgeEvent:
			if NormalizeNodeID(v.From) != "" {
				s.Upsert(Node{NodeID: v.From, LastHeardAt: v.At})
			}
		}
	}, connectors.TopicNodeInfo, connectors.TopicMessage)
}

// NodeFromSeen converts a node info report into a directory entry.
func NodeFromSeen(seen connectors.NodeSeen) Node {
	return Node{
		NodeID:      seen.NodeID,
		LongName:    seen.LongName,
		ShortName:   seen.ShortName,
		Local:       seen.Local,
		LastHeardAt: seen.At,
		UpdatedAt:   seen.At,
	}
}

func (s *NodeStore) Upsert(node Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nodes[node.NodeID]; ok {
		node = MergeNode(existing, node)
	}
	if node.UpdatedAt.IsZero() {
		node.UpdatedAt = time.Now()
	}
	s.nodes[node.NodeID] = node
}

// MergeNode applies a sparse update without wiping cached names.
func MergeNode(existing, update Node) Node {
	if update.LongName == "" {
		update.LongName = existing.LongName
	}
	if update.ShortName == "" {
		update.ShortName = existing.ShortName
	}
	update.Local = update.Local || existing.Local
	if update.LastHeardAt.IsZero() || existing.LastHeardAt.After(update.LastHeardAt) {
		update.LastHeardAt = existing.LastHeardAt
	}
	if existing.UpdatedAt.After(update.UpdatedAt) {
		update.UpdatedAt = existing.UpdatedAt
	}

	return update
}

func (s *NodeStore) SnapshotSorted() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastHeardAt.Equal(out[j].LastHeardAt) {
			return out[i].NodeID < out[j].NodeID
		}
		return out[i].LastHeardAt.After(out[j].LastHeardAt)
	})

	return out
}

// DisplayName resolves a node id to a human name; unknown nodes and the
// broadcast address are returned as given.
func (s *NodeStore) DisplayName(nodeID string) string {
	nodeID = strings.TrimSpace(nodeID)
	if node, ok := s.Get(nodeID); ok {
		return node.DisplayName()
	}
	return nodeID
}

func (s *NodeStore) Get(nodeID string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[nodeID]

	return node, ok
}
