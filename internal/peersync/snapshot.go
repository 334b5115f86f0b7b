// Package peersync replicates game snapshots between peers sharing a room.
//
// Replication is last-writer-wins: an inbound snapshot overwrites local state
// directly and bypasses the commit step. There is no conflict resolution or
// desync detection.
package peersync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/dicecrawl/internal/game/character"
)

// Snapshot is the replicated state of one room.
type Snapshot struct {
	Room    string              `json:"room"`
	Origin  string              `json:"origin"`
	Version int64               `json:"version"`
	Mode    string              `json:"mode"`
	Hero    character.Character `json:"hero"`
	Enemy   character.Character `json:"enemy"`
	Party   []string            `json:"party,omitempty"`
	SentAt  time.Time           `json:"sentAt"`
}

// Transport moves snapshots between peers.
type Transport interface {
	// Publish sends snap to every peer reachable through the transport.
	Publish(ctx context.Context, snap Snapshot) error
	// Subscribe returns a channel of inbound snapshots that is closed when
	// ctx is done or the transport fails.
	Subscribe(ctx context.Context) (<-chan Snapshot, error)
	Close() error
}

// Encode serializes snap as JSON.
func Encode(snap Snapshot) ([]byte, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return b, nil
}

// Decode parses a JSON snapshot.
func Decode(b []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Room == "" || snap.Origin == "" {
		return Snapshot{}, fmt.Errorf("decoding snapshot: room and origin are required")
	}
	return snap, nil
}

// ToStruct converts snap into a protobuf Struct for the gRPC transport.
func ToStruct(snap Snapshot) (*structpb.Struct, error) {
	b, err := Encode(snap)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("flattening snapshot: %w", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("building snapshot struct: %w", err)
	}
	return st, nil
}

// FromStruct is the inverse of ToStruct.
func FromStruct(st *structpb.Struct) (Snapshot, error) {
	b, err := json.Marshal(st.AsMap())
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot struct: %w", err)
	}
	return Decode(b)
}
