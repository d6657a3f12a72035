package sheets

import (
	"context"

	"gumball/internal/core"
)

// Ports for outbound ledger export adapters.
type (
	// EventWriter appends one ledger event to an external sheet.
	EventWriter interface {
		AppendEvent(ctx context.Context, e core.Event) (rowRef string, err error)
	}

	// HeaderWriter is implemented by writers that keep a header row.
	HeaderWriter interface {
		EnsureHeader(ctx context.Context) error
	}
)
