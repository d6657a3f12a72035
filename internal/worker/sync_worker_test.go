package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gumball/internal/amqp"
	"gumball/internal/core"
	"gumball/internal/sheets/memory"
	"gumball/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	events  map[int64]core.Event
	synced  map[int64]bool
	claimed map[int64]bool
	errored map[int64]int
	getErr  error
}

func newFakeStore(events ...core.Event) *fakeStore {
	s := &fakeStore{events: map[int64]core.Event{}, synced: map[int64]bool{}, claimed: map[int64]bool{}, errored: map[int64]int{}}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *fakeStore) GetEvent(_ context.Context, id int64) (core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return core.Event{}, s.getErr
	}
	e, ok := s.events[id]
	if !ok {
		return core.Event{}, storage.ErrEventNotFound
	}
	return e, nil
}

func (s *fakeStore) GetPendingSyncEvents(_ context.Context, limit int) ([]storage.PendingSyncEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.PendingSyncEvent
	for id := int64(1); id <= int64(len(s.events)) && len(out) < limit; id++ {
		if !s.synced[id] && !s.claimed[id] && s.errored[id] < storage.MaxSyncAttempts {
			out = append(out, storage.PendingSyncEvent{ID: id, Attempts: int64(s.errored[id])})
		}
	}
	return out, nil
}

func (s *fakeStore) ClaimSync(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return false, storage.ErrEventNotFound
	}
	if s.synced[id] || s.claimed[id] || s.errored[id] >= storage.MaxSyncAttempts {
		return false, nil
	}
	s.claimed[id] = true
	return true, nil
}

func (s *fakeStore) MarkSynced(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced[id] = true
	delete(s.claimed, id)
	return nil
}

func (s *fakeStore) MarkSyncError(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errored[id]++
	delete(s.claimed, id)
	return nil
}

// countingWriter counts appends and holds each one for delay.
type countingWriter struct {
	mu      sync.Mutex
	appends map[int64]int
	delay   time.Duration
	err     error
}

func newCountingWriter(delay time.Duration, err error) *countingWriter {
	return &countingWriter{appends: map[int64]int{}, delay: delay, err: err}
}

func (w *countingWriter) AppendEvent(_ context.Context, e core.Event) (string, error) {
	time.Sleep(w.delay)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.appends[e.ID]++
	if w.err != nil {
		return "", w.err
	}
	return "test!A1", nil
}

func (w *countingWriter) count(id int64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appends[id]
}

func newLedger(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "gumball.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

type failingWriter struct{}

func (failingWriter) AppendEvent(context.Context, core.Event) (string, error) {
	return "", errors.New("quota exceeded")
}

func ledger(n int) []core.Event {
	out := make([]core.Event, n)
	for i := range out {
		out[i] = core.Event{ID: int64(i + 1), Kind: core.EventCoinAccepted, Item: "nickel", Amount: 5, Balance: core.Cents(5 * (i + 1))}
	}
	return out
}

func TestHandleSyncMessage(t *testing.T) {
	store := newFakeStore(ledger(1)...)
	sheet := memory.New()
	w := NewSyncWorker(store, sheet, 10)
	ctx := context.Background()

	msg := amqp.NewEventSyncMessage(1, core.EventCoinAccepted)
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("HandleSyncMessage: %v", err)
	}
	if !store.synced[1] {
		t.Fatal("event should be marked synced")
	}

	// Redelivery must not append twice.
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("second HandleSyncMessage: %v", err)
	}
	if got := len(sheet.Events()); got != 1 {
		t.Fatalf("sheet has %d rows, want 1", got)
	}
}

func TestHandleSyncMessageMissingEvent(t *testing.T) {
	store := newFakeStore()
	w := NewSyncWorker(store, memory.New(), 10)

	err := w.HandleSyncMessage(context.Background(), amqp.NewEventSyncMessage(42, core.EventChangeReturned))
	if !errors.Is(err, storage.ErrEventNotFound) {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}
	if store.errored[42] != 0 {
		t.Fatal("missing rows should not be marked as errored")
	}
}

func TestHandleSyncMessageWriterFailure(t *testing.T) {
	store := newFakeStore(ledger(1)...)
	w := NewSyncWorker(store, failingWriter{}, 10)

	if err := w.HandleSyncMessage(context.Background(), amqp.NewEventSyncMessage(1, core.EventCoinAccepted)); err == nil {
		t.Fatal("expected error from failing writer")
	}
	if store.synced[1] {
		t.Fatal("event must not be marked synced")
	}
	if store.errored[1] != 1 {
		t.Fatalf("errored = %d, want 1", store.errored[1])
	}
}

func TestProcessPendingEventsRespectsBatchSize(t *testing.T) {
	store := newFakeStore(ledger(5)...)
	sheet := memory.New()
	w := NewSyncWorker(store, sheet, 2)
	ctx := context.Background()

	if err := w.ProcessPendingEvents(ctx); err != nil {
		t.Fatalf("ProcessPendingEvents: %v", err)
	}
	if got := len(sheet.Events()); got != 2 {
		t.Fatalf("first sweep synced %d, want 2", got)
	}

	for i := 0; i < 3; i++ {
		if err := w.ProcessPendingEvents(ctx); err != nil {
			t.Fatalf("ProcessPendingEvents: %v", err)
		}
	}
	if got := len(sheet.Events()); got != 5 {
		t.Fatalf("synced %d, want 5", got)
	}
	if ids := sheet.Events(); ids[0].ID != 1 || ids[4].ID != 5 {
		t.Fatalf("events out of order: %+v", ids)
	}
}

func TestProcessPendingEventsContinuesPastFailures(t *testing.T) {
	store := newFakeStore(ledger(3)...)
	w := NewSyncWorker(store, failingWriter{}, 10)

	if err := w.ProcessPendingEvents(context.Background()); err != nil {
		t.Fatalf("ProcessPendingEvents: %v", err)
	}
	for id := int64(1); id <= 3; id++ {
		if store.errored[id] != 1 {
			t.Fatalf("event %d errored = %d, want 1", id, store.errored[id])
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newFakeStore(ledger(2)...)
	sheet := memory.New()
	w := NewSyncWorker(store, sheet, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, time.Hour) }()

	deadline := time.After(2 * time.Second)
	for len(sheet.Events()) < 2 {
		select {
		case <-deadline:
			t.Fatal("initial sweep did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestConsumerAndSweepExportOnce(t *testing.T) {
	repo := newLedger(t)
	ctx := context.Background()
	id, err := repo.RecordEvent(ctx, core.NewMachine().AcceptCoin("quarter").Event())
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	sheet := newCountingWriter(50*time.Millisecond, nil)
	w := NewSyncWorker(repo, sheet, 10)

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		errs <- w.HandleSyncMessage(ctx, amqp.NewEventSyncMessage(id, core.EventCoinAccepted))
	}()
	go func() {
		defer wg.Done()
		<-start
		errs <- w.ProcessPendingEvents(ctx)
	}()
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("sync path failed: %v", err)
		}
	}
	if got := sheet.count(id); got != 1 {
		t.Fatalf("event appended %d times, want 1", got)
	}
	pending, err := repo.GetPendingSyncEvents(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSyncEvents: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("event still pending: %+v", pending)
	}
}

func TestHandleSyncMessageStopsAtMaxAttempts(t *testing.T) {
	repo := newLedger(t)
	ctx := context.Background()
	id, err := repo.RecordEvent(ctx, core.NewMachine().AcceptCoin("dime").Event())
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	sheet := newCountingWriter(0, errors.New("quota exceeded"))
	w := NewSyncWorker(repo, sheet, 10)
	msg := amqp.NewEventSyncMessage(id, core.EventCoinAccepted)

	for i := 0; i < storage.MaxSyncAttempts; i++ {
		if err := w.HandleSyncMessage(ctx, msg); err == nil {
			t.Fatalf("attempt %d: expected error from failing writer", i+1)
		}
	}
	// Redeliveries past the limit are acknowledged without another append.
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("HandleSyncMessage after limit: %v", err)
	}
	if got := sheet.count(id); got != storage.MaxSyncAttempts {
		t.Fatalf("appends = %d, want %d", got, storage.MaxSyncAttempts)
	}
}
