package core

import (
	"context"
	"time"
)

// Content is the payload of a Memory: the text plus whatever structured
// data the source attached. Actions lists the action names a message is
// requesting or, on responses, the actions that produced it.
type Content struct {
	Text      string         `json:"text,omitempty"`
	Source    string         `json:"source,omitempty"`
	Actions   []string       `json:"actions,omitempty"`
	InReplyTo *ID            `json:"in_reply_to,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Memory is a conversational or derived record. The persistence collaborator
// owns it; the runtime only holds transient references during a cycle.
type Memory struct {
	ID        ID             `json:"id"`
	EntityID  ID             `json:"entity_id"`
	AgentID   ID             `json:"agent_id,omitempty"`
	RoomID    ID             `json:"room_id"`
	Content   Content        `json:"content"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMemory builds an unsaved record; the store assigns the id on save.
func NewMemory(entityID, roomID ID, content Content) Memory {
	return Memory{
		EntityID:  entityID,
		RoomID:    roomID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// MemoryQuery selects records newest-first. Zero fields are ignored.
type MemoryQuery struct {
	RoomID   ID
	EntityID ID
	Limit    int
	Before   time.Time
}

// SearchFilter bounds a vector similarity search.
type SearchFilter struct {
	RoomID   ID
	Limit    int
	MinScore float32
}

// MemoryMatch is a search hit with its similarity score.
type MemoryMatch struct {
	Memory Memory
	Score  float32
}

// Store is the persistence collaborator contract. Implementations must be
// safe for concurrent use and must keep memory ids immutable once assigned.
type Store interface {
	// SaveMemory persists a record, assigning an id when none is set.
	// Saving an id that already exists is a conflict, not an upsert.
	SaveMemory(ctx context.Context, m Memory) (ID, error)
	GetMemory(ctx context.Context, id ID) (*Memory, error)
	GetMemories(ctx context.Context, q MemoryQuery) ([]Memory, error)
	SearchMemories(ctx context.Context, embedding []float32, f SearchFilter) ([]MemoryMatch, error)
	CountMemories(ctx context.Context, roomID ID) (int, error)
	DeleteMemory(ctx context.Context, id ID) error
	// DeleteMemoriesBefore prunes records older than the cutoff, optionally
	// scoped to one room, and reports how many were removed.
	DeleteMemoriesBefore(ctx context.Context, roomID ID, before time.Time) (int, error)
}
