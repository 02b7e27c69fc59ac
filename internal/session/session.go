package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store maps a chat session to the content hash of the document it indexed
// last. Entries expire after ttl and the oldest are evicted past size.
type Store struct {
	docs *expirable.LRU[string, string]
}

func NewStore(size int, ttl time.Duration) *Store {
	return &Store{docs: expirable.NewLRU[string, string](size, nil, ttl)}
}

func NewID() string {
	return uuid.NewString()
}

func (s *Store) Bind(sessionID, hash string) {
	s.docs.Add(sessionID, hash)
}

func (s *Store) Document(sessionID string) (string, bool) {
	return s.docs.Get(sessionID)
}

func (s *Store) Forget(sessionID string) {
	s.docs.Remove(sessionID)
}

// ForgetDocument drops every session bound to hash.
func (s *Store) ForgetDocument(hash string) int {
	n := 0
	for _, key := range s.docs.Keys() {
		if v, ok := s.docs.Peek(key); ok && v == hash {
			s.docs.Remove(key)
			n++
		}
	}
	return n
}

type ctxKey struct{}

func WithID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, sessionID)
}

func IDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	return v, ok && v != ""
}
