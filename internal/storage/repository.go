package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gumball/internal/core"

	_ "modernc.org/sqlite"
)

const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
	SyncClaimed = "syncing"

	// MaxSyncAttempts bounds how often a failing event is retried by the sweeper.
	MaxSyncAttempts = 5

	// SyncClaimTimeout is how long a claimed event stays reserved before
	// another export may take it over.
	SyncClaimTimeout = 5 * time.Minute
)

var ErrEventNotFound = errors.New("ledger event not found")

// PendingSyncEvent identifies a ledger row that still has to be exported.
type PendingSyncEvent struct {
	ID        int64
	Attempts  int64
	CreatedAt time.Time
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RecordEvent appends a machine event to the ledger and returns its row ID.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, e core.Event) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, fmt.Errorf("validate event: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_events (uuid, kind, item, amount_cents, balance_cents, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UUID, string(e.Kind), e.Item, int64(e.Amount), int64(e.Balance), e.Reason,
		e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert ledger event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	slog.DebugContext(ctx, "Ledger event recorded",
		"id", id,
		"kind", e.Kind,
		"item", e.Item,
		"amount_cents", int64(e.Amount))

	return id, nil
}

const eventColumns = `id, uuid, kind, item, amount_cents, balance_cents, reason, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (core.Event, error) {
	var (
		e         core.Event
		kind      string
		amount    int64
		balance   int64
		createdAt string
	)
	if err := s.Scan(&e.ID, &e.UUID, &kind, &e.Item, &amount, &balance, &e.Reason, &createdAt); err != nil {
		return core.Event{}, err
	}
	e.Kind = core.EventKind(kind)
	e.Amount = core.Cents(amount)
	e.Balance = core.Cents(balance)
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return core.Event{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}

// GetEvent retrieves a single ledger event by ID
func (r *SQLiteRepository) GetEvent(ctx context.Context, id int64) (core.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM ledger_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Event{}, fmt.Errorf("%w: %d", ErrEventNotFound, id)
	}
	if err != nil {
		return core.Event{}, fmt.Errorf("get ledger event %d: %w", id, err)
	}
	return e, nil
}

// ListEvents returns the most recent ledger events, newest first.
func (r *SQLiteRepository) ListEvents(ctx context.Context, limit int) ([]core.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM ledger_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger events: %w", err)
	}
	defer rows.Close()

	events := []core.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return events, nil
}

// SalesSummary aggregates the whole ledger.
func (r *SQLiteRepository) SalesSummary(ctx context.Context) (core.SalesSummary, error) {
	summary := core.SalesSummary{ByColor: []core.ProductSales{}}

	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, COUNT(*), COALESCE(SUM(amount_cents), 0)
		FROM ledger_events
		GROUP BY kind`)
	if err != nil {
		return summary, fmt.Errorf("get kind totals: %w", err)
	}
	for rows.Next() {
		var (
			kind         string
			count, total int64
		)
		if err := rows.Scan(&kind, &count, &total); err != nil {
			rows.Close()
			return summary, fmt.Errorf("scan kind totals: %w", err)
		}
		switch core.EventKind(kind) {
		case core.EventGumballDispensed:
			summary.Dispensed = count
			summary.Revenue = core.Cents(total)
		case core.EventCoinAccepted:
			summary.CoinsAccepted = count
		case core.EventCoinRejected:
			summary.CoinsRejected = count
		case core.EventChangeReturned:
			summary.ChangeReturned = core.Cents(total)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return summary, fmt.Errorf("iterate kind totals: %w", err)
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `
		SELECT item, COUNT(*), COALESCE(SUM(amount_cents), 0)
		FROM ledger_events
		WHERE kind = ?
		GROUP BY item
		ORDER BY item`, string(core.EventGumballDispensed))
	if err != nil {
		return summary, fmt.Errorf("get color totals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ps core.ProductSales
		var revenue int64
		if err := rows.Scan(&ps.Color, &ps.Count, &revenue); err != nil {
			return summary, fmt.Errorf("scan color totals: %w", err)
		}
		ps.Revenue = core.Cents(revenue)
		summary.ByColor = append(summary.ByColor, ps)
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("iterate color totals: %w", err)
	}

	return summary, nil
}

// GetPendingSyncEvents returns events that still need to be exported, oldest first.
// Events claimed by an export that has not timed out are left out.
func (r *SQLiteRepository) GetPendingSyncEvents(ctx context.Context, limit int) ([]PendingSyncEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sync_attempts, created_at
		FROM ledger_events
		WHERE (sync_status IN (?, ?) OR (sync_status = ? AND claimed_at < ?))
		  AND sync_attempts < ?
		ORDER BY id
		LIMIT ?`, SyncPending, SyncError, SyncClaimed, r.claimDeadline(), MaxSyncAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync events: %w", err)
	}
	defer rows.Close()

	var pending []PendingSyncEvent
	for rows.Next() {
		var (
			p         PendingSyncEvent
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending sync event: %w", err)
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending sync events: %w", err)
	}
	return pending, nil
}

// ClaimSync reserves an event for export. Only one caller gets true for a
// given attempt; it must finish with MarkSynced or MarkSyncError.
// It returns false when the event is already synced, out of retries, or
// claimed by an export that has not timed out.
func (r *SQLiteRepository) ClaimSync(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ledger_events
		SET sync_status = ?, claimed_at = ?
		WHERE id = ?
		  AND sync_attempts < ?
		  AND (sync_status IN (?, ?) OR (sync_status = ? AND claimed_at < ?))`,
		SyncClaimed, r.now().UnixNano(), id,
		MaxSyncAttempts,
		SyncPending, SyncError, SyncClaimed, r.claimDeadline())
	if err != nil {
		return false, fmt.Errorf("claim event for sync: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim event for sync: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM ledger_events WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %d", ErrEventNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("get sync status: %w", err)
	}
	return false, nil
}

// claimDeadline is the claimed_at value below which a claim has timed out.
func (r *SQLiteRepository) claimDeadline() int64 {
	return r.now().Add(-SyncClaimTimeout).UnixNano()
}

// MarkSynced marks an event as successfully exported
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if err := r.updateSync(ctx, `
		UPDATE ledger_events
		SET sync_status = ?, synced_at = ?, claimed_at = NULL
		WHERE id = ?`, SyncDone, r.now().UTC().Format(time.RFC3339Nano), id); err != nil {
		return fmt.Errorf("mark event synced: %w", err)
	}

	slog.InfoContext(ctx, "Ledger event marked as synced", "id", id)
	return nil
}

// MarkSyncError records a failed export attempt
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if err := r.updateSync(ctx, `
		UPDATE ledger_events
		SET sync_status = ?, sync_attempts = sync_attempts + 1, claimed_at = NULL
		WHERE id = ?`, SyncError, id); err != nil {
		return fmt.Errorf("mark event sync error: %w", err)
	}

	slog.WarnContext(ctx, "Ledger event marked with sync error", "id", id)
	return nil
}

func (r *SQLiteRepository) updateSync(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}
