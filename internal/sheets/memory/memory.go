package memory

import (
	"context"
	"fmt"
	"sync"

	"gumball/internal/core"
	ports "gumball/internal/sheets"
)

var _ ports.EventWriter = (*Store)(nil)

// Store is an in-process stand-in for the ledger sheet.
type Store struct {
	mu     sync.Mutex
	events []core.Event
}

func New() *Store {
	return &Store{}
}

// AppendEvent stores the event and returns a synthetic row reference.
func (s *Store) AppendEvent(_ context.Context, e core.Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return fmt.Sprintf("mem:%d", len(s.events)), nil
}

// Events returns a copy of everything appended so far.
func (s *Store) Events() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Event(nil), s.events...)
}
