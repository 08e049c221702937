package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/skobkin/meshbridge/internal/bus"
	"github.com/skobkin/meshbridge/internal/connectors"
)

func TestNodeStoreUpsert_PreservesNamesOnSparseUpdates(t *testing.T) {
	store := NewNodeStore()
	heard := time.Unix(1_700_000_000, 0)

	store.Upsert(Node{NodeID: "!11111111", LongName: "Alpha", ShortName: "ALPH", LastHeardAt: heard})
	store.Upsert(Node{NodeID: "!11111111", LastHeardAt: heard.Add(-time.Minute)})

	node, ok := store.Get("!11111111")
	if !ok {
		t.Fatalf("expected node in store")
	}
	if node.LongName != "Alpha" || node.ShortName != "ALPH" {
		t.Fatalf("expected names preserved, got %+v", node)
	}
	if !node.LastHeardAt.Equal(heard) {
		t.Fatalf("older sighting must not move last heard back, got %v", node.LastHeardAt)
	}
}

func TestNodeStoreSnapshotSorted(t *testing.T) {
	store := NewNodeStore()
	base := time.Unix(1_700_000_000, 0)
	n, err := store.Restore(context.Background(), sliceNodeRepo{
		{NodeID: "!00000001", LastHeardAt: base},
		{NodeID: "!00000002", LastHeardAt: base.Add(time.Minute)},
		{NodeID: "!00000003", LastHeardAt: base},
	})
	if err != nil || n != 3 {
		t.Fatalf("restore: n=%d err=%v", n, err)
	}

	got := store.SnapshotSorted()
	want := []string{"!00000002", "!00000001", "!00000003"}
	for i, id := range want {
		if got[i].NodeID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].NodeID)
		}
	}
}

func TestNodeStoreFollowsBus(t *testing.T) {
	b := bus.New(discardLogger())
	t.Cleanup(b.Close)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := NewNodeStore()
	store.Start(ctx, b)

	at := time.Unix(1_700_000_000, 0)
	b.Publish(connectors.TopicNodeInfo, connectors.NodeSeen{NodeID: "!0a0b0c0d", LongName: "Relay", At: at})
	b.Publish(connectors.TopicMessage, connectors.BridgeEvent{Kind: "message", From: "!0a0b0c0d", At: at.Add(time.Second)})
	b.Publish(connectors.TopicMessage, connectors.BridgeEvent{Kind: "message", From: "!0000beef", At: at})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		relay, okRelay := store.Get("!0a0b0c0d")
		_, okOther := store.Get("!0000beef")
		if okRelay && okOther && relay.LastHeardAt.Equal(at.Add(time.Second)) {
			if relay.LongName != "Relay" {
				t.Fatalf("expected name kept, got %+v", relay)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("store did not follow bus updates: %+v", store.SnapshotSorted())
}

func TestNodeStoreDisplayName(t *testing.T) {
	store := NewNodeStore()
	store.Upsert(Node{NodeID: "!0a0b0c0d", ShortName: "RL"})
	store.Upsert(Node{NodeID: "!0000beef", LongName: " Gate ", ShortName: "GT"})

	tests := map[string]string{
		"!0a0b0c0d": "RL",
		"!0000beef": "Gate",
		"!ffff0000": "!ffff0000",
		"^all":      "^all",
	}
	for id, want := range tests {
		if got := store.DisplayName(id); got != want {
			t.Fatalf("DisplayName(%q) = %q, want %q", id, got, want)
		}
	}
	if (Node{}).DisplayName() != "" {
		t.Fatalf("empty node should have empty display name")
	}
}

type sliceNodeRepo []Node

func (sliceNodeRepo) Upsert(context.Context, Node) error { return nil }

func (r sliceNodeRepo) ListSortedByLastHeard(context.Context) ([]Node, error) {
	return r, nil
}

type failingNodeRepo struct{ sliceNodeRepo }

func (failingNodeRepo) ListSortedByLastHeard(context.Context) ([]Node, error) {
	return nil, errors.New("disk gone")
}

func TestNodeStoreRestoreFailure(t *testing.T) {
	store := NewNodeStore()
	if _, err := store.Restore(context.Background(), failingNodeRepo{}); err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("expected wrapped repo error, got %v", err)
	}
	if len(store.SnapshotSorted()) != 0 {
		t.Fatalf("failed restore must leave the store empty")
	}
}
