package router

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Example struct {
	ID     string `json:"id"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// exampleStore keeps few-shot examples in insertion order.
type exampleStore struct {
	mu    sync.RWMutex
	order []string
	items map[string]Example
}

func newExampleStore() *exampleStore {
	return &exampleStore{items: make(map[string]Example)}
}

func (s *exampleStore) add(input, output string) Example {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex := Example{ID: uuid.NewString(), Input: input, Output: output}
	s.items[ex.ID] = ex
	s.order = append(s.order, ex.ID)
	return ex
}

func (s *exampleStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *exampleStore) get(id string) (Example, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.items[id]
	return ex, ok
}

func (s *exampleStore) list() []Example {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Example, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

func (s *exampleStore) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	s.items = make(map[string]Example)
	s.order = nil
	return n
}

func (s *exampleStore) primeText() string {
	sb := strings.Builder{}
	for _, ex := range s.list() {
		sb.WriteString(fmt.Sprintf("Q:%s\nA:%s\n\n", ex.Input, ex.Output))
	}
	return sb.String()
}
