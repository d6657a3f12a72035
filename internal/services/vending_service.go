package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"gumball/internal/core"
	"gumball/internal/log"
)

// EventRecorder persists a ledger event and returns its database ID.
type EventRecorder interface {
	RecordEvent(ctx context.Context, e core.Event) (int64, error)
}

// EventPublisher announces a recorded ledger event to the sync worker.
type EventPublisher interface {
	PublishEventSync(ctx context.Context, id int64, kind core.EventKind) error
}

// VendingService serializes access to one gumball machine and fans every
// outcome out to the ledger and the message bus.
//
// Ledger and bus failures are logged and never change the machine outcome.
type VendingService struct {
	mu        sync.Mutex
	machine   *core.Machine
	recorder  EventRecorder
	publisher EventPublisher
	logger    *log.Logger
	sl        *log.StructuredLogger
}

// NewVendingService returns a service around a fresh, empty machine.
// recorder and publisher may be nil. A publisher without a recorder is never
// called since it has no event ID to announce.
func NewVendingService(recorder EventRecorder, publisher EventPublisher, logger *log.Logger) *VendingService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentMachine)
	return &VendingService{
		machine:   core.NewMachine(),
		recorder:  recorder,
		publisher: publisher,
		logger:    logger,
		sl:        log.NewStructuredLogger(logger),
	}
}

// InsertCoin drops one coin into the machine.
func (s *VendingService) InsertCoin(ctx context.Context, coin string) core.CoinResult {
	s.mu.Lock()
	res := s.machine.AcceptCoin(coin)
	id, ev := s.record(ctx, res.Event())
	s.mu.Unlock()

	s.sl.LogMachineEvent(ctx, log.OpInsertCoin, string(ev.Kind), ev.Item, int64(ev.Amount), int64(ev.Balance), ev.Reason)
	s.publish(ctx, id, ev.Kind)
	return res
}

// Dispense pulls the lever for one gumball of the given color.
func (s *VendingService) Dispense(ctx context.Context, color string) core.DispenseResult {
	s.mu.Lock()
	res := s.machine.Dispense(color)
	ev := res.Event()
	if !res.Dispensed && ev.Item == "" {
		ev.Item = core.NormalizeName(color)
	}
	id, ev := s.record(ctx, ev)
	s.mu.Unlock()

	s.sl.LogMachineEvent(ctx, log.OpDispense, string(ev.Kind), ev.Item, int64(ev.Amount), int64(ev.Balance), ev.Reason)
	s.publish(ctx, id, ev.Kind)
	return res
}

// ReturnChange empties the machine.
func (s *VendingService) ReturnChange(ctx context.Context) core.ChangeResult {
	s.mu.Lock()
	res := s.machine.ReturnChange()
	id, ev := s.record(ctx, res.Event())
	s.mu.Unlock()

	s.sl.LogMachineEvent(ctx, log.OpReturnChange, string(ev.Kind), ev.Item, int64(ev.Amount), int64(ev.Balance), ev.Reason)
	s.publish(ctx, id, ev.Kind)
	return res
}

// Balance reports the current balance.
func (s *VendingService) Balance() core.Cents {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Balance()
}

// record must be called with s.mu held so ledger order matches machine order.
// It returns zero when nothing was recorded.
func (s *VendingService) record(ctx context.Context, ev core.Event) (int64, core.Event) {
	if s.recorder == nil {
		return 0, ev
	}
	// A client hanging up must not lose the ledger line for an outcome that already happened.
	id, err := s.recorder.RecordEvent(context.WithoutCancel(ctx), ev)
	if err != nil {
		s.sl.LogError(ctx, "Failed to record ledger event", err, log.OpRecord,
			log.NewFields().WithMachineEvent(string(ev.Kind), ev.Item, int64(ev.Amount), int64(ev.Balance)))
		return 0, ev
	}
	ev.ID = id
	return id, ev
}

func (s *VendingService) publish(ctx context.Context, id int64, kind core.EventKind) {
	if s.publisher == nil || id == 0 {
		return
	}
	if err := s.publisher.PublishEventSync(context.WithoutCancel(ctx), id, kind); err != nil {
		s.sl.LogError(ctx, "Failed to publish sync message", err, log.OpPublish,
			log.LogFields{log.FieldEventID: id, log.FieldEventKind: string(kind)})
		return
	}
	s.logger.DebugContext(ctx, "Published sync message", log.FieldEventID, id, log.FieldEventKind, kind)
}

// Close closes the recorder and publisher when they hold resources.
func (s *VendingService) Close() error {
	var errs []error

	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if c, ok := s.recorder.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close vending service: %w", errors.Join(errs...))
	}

	return nil
}
