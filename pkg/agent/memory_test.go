package agent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryEvictsOldestBeyondLimit(t *testing.T) {
	m := NewMemory(3)
	for i := 0; i < 5; i++ {
		m.Add("user", fmt.Sprintf("message %d", i))
	}

	msgs := m.All()
	require.Len(t, msgs, 3)
	require.Equal(t, "message 2", msgs[0].Content)
	require.Equal(t, "message 4", msgs[2].Content)
}

func TestMemoryRender(t *testing.T) {
	m := NewMemory(0)
	require.Empty(t, m.Render())

	m.Add("user", "how many users?")
	m.Add("assistant", "42")

	rendered := m.Render()
	require.Equal(t, "User: how many users?\nAssistant: 42", rendered)
}

func TestMemoryClear(t *testing.T) {
	m := NewMemory(0)
	m.Add("user", "hello")
	require.Equal(t, 1, m.Len())

	m.Clear()
	require.Equal(t, 0, m.Len())
	require.Empty(t, m.All())
}
