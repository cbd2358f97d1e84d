package agent

import (
	"strings"
	"sync"
)

const defaultMemoryLimit = 10

// Message is one conversation turn.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Memory is a bounded ordered record of conversation turns. The oldest
// turns are dropped once the limit is reached.
type Memory struct {
	mu       sync.Mutex
	limit    int
	messages []Message
}

// NewMemory creates a Memory holding at most limit messages. A
// non-positive limit selects the default.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	return &Memory{limit: limit}
}

// Add appends a turn, evicting the oldest when full.
func (m *Memory) Add(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Role: role, Content: content})
	if len(m.messages) > m.limit {
		m.messages = m.messages[len(m.messages)-m.limit:]
	}
}

// All returns a copy of the recorded turns.
func (m *Memory) All() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Len returns the number of recorded turns.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Clear drops all turns.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// Render formats the conversation for inclusion in a prompt. Returns the
// empty string when there is no history.
func (m *Memory) Render() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, msg := range m.messages {
		switch msg.Role {
		case "user":
			sb.WriteString("User: ")
		default:
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
