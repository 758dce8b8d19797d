package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the current snapshot format version.
// Increment when making breaking changes to the snapshot structure.
const Version = 1

// Snapshot is the persisted form of a flow's memory, used by every backend
// that stores bytes.
type Snapshot struct {
	Version int            `json:"version"`
	FlowID  string         `json:"flow_id"`
	SavedAt time.Time      `json:"saved_at"`
	Memory  map[string]any `json:"memory"`
}

// NewSnapshot creates a snapshot of data for flowID.
func NewSnapshot(flowID string, data map[string]any) *Snapshot {
	if data == nil {
		data = map[string]any{}
	}
	return &Snapshot{
		Version: Version,
		FlowID:  flowID,
		SavedAt: time.Now().UTC(),
		Memory:  data,
	}
}

// Marshal serializes a snapshot to JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal memory snapshot for %s: %w", s.FlowID, err)
	}
	return data, nil
}

// Unmarshal deserializes a snapshot, rejecting unknown versions.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal memory snapshot: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, s.Version, Version)
	}
	if s.Memory == nil {
		s.Memory = map[string]any{}
	}
	return &s, nil
}

// encode and decode are shared by the byte-oriented backends.
func encode(flowID string, data map[string]any) ([]byte, error) {
	return NewSnapshot(flowID, data).Marshal()
}

func decode(data []byte) (map[string]any, error) {
	s, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return s.Memory, nil
}
