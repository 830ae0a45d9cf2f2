package llm

import (
	"sync"
)

// Turn is one (role, content) pair in a conversation window.
type Turn struct {
	Role    string
	Content string
}

// Conversation roles stored in memory.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Memory holds per-user conversation windows keyed by external id. Each
// window keeps the last N exchange pairs; older turns are dropped on
// overflow.
type Memory struct {
	mu       sync.Mutex
	capacity int // exchange pairs
	sessions map[string][]Turn
}

// DefaultMemoryCapacity is the number of retained exchange pairs.
const DefaultMemoryCapacity = 10

// NewMemory creates a memory store. capacity <= 0 uses the default.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{
		capacity: capacity,
		sessions: make(map[string][]Turn),
	}
}

// Append records a turn for externalID, trimming the window to the last
// capacity exchange pairs.
func (m *Memory) Append(externalID, role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := append(m.sessions[externalID], Turn{Role: role, Content: content})
	if max := m.capacity * 2; len(window) > max {
		window = window[len(window)-max:]
	}
	m.sessions[externalID] = window
}

// History returns a copy of the conversation window for externalID.
func (m *Memory) History(externalID string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := m.sessions[externalID]
	out := make([]Turn, len(window))
	copy(out, window)
	return out
}

// Clear drops the conversation window for externalID.
func (m *Memory) Clear(externalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, externalID)
}
