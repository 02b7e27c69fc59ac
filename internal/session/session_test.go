package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBindAndLookup(t *testing.T) {
	s := NewStore(8, time.Minute)
	_, ok := s.Document("a")
	require.False(t, ok)

	s.Bind("a", "h1")
	s.Bind("b", "h1")
	s.Bind("c", "h2")
	hash, ok := s.Document("a")
	require.True(t, ok)
	require.Equal(t, "h1", hash)

	s.Bind("a", "h2")
	hash, _ = s.Document("a")
	require.Equal(t, "h2", hash)

	require.Equal(t, 2, s.ForgetDocument("h2"))
	_, ok = s.Document("c")
	require.False(t, ok)
	hash, ok = s.Document("b")
	require.True(t, ok)
	require.Equal(t, "h1", hash)

	s.Forget("b")
	_, ok = s.Document("b")
	require.False(t, ok)
}

func TestSessionsAreIsolated(t *testing.T) {
	s := NewStore(8, time.Minute)
	s.Bind(NewID(), "h1")
	other := NewID()
	_, ok := s.Document(other)
	require.False(t, ok)
}

func TestEviction(t *testing.T) {
	s := NewStore(1, time.Minute)
	s.Bind("a", "h1")
	s.Bind("b", "h2")
	_, ok := s.Document("a")
	require.False(t, ok)
}

func TestContextID(t *testing.T) {
	_, ok := IDFromContext(context.Background())
	require.False(t, ok)
	id, ok := IDFromContext(WithID(context.Background(), "sid"))
	require.True(t, ok)
	require.Equal(t, "sid", id)
}
