package backend

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"gumball/internal/config"
	"gumball/internal/log"
)

func quietFactory() Factory {
	return NewFactory(log.New(log.Config{Output: &bytes.Buffer{}}))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"memory with amqp", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost"}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "ledger.db", AMQPExchange: "gumball"})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "ledger.db" || cfg.AMQPExchange != "gumball" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	ctx := context.Background()
	res, err := quietFactory().CreateBackend(ctx, Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Close()

	if res.Ledger != nil {
		t.Fatal("memory backend must not keep a ledger")
	}
	if r := res.Vending.InsertCoin(ctx, "dime"); !r.Accepted {
		t.Fatalf("InsertCoin = %+v", r)
	}
}

func TestCreateSQLiteBackendRecordsEvents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	res, err := quietFactory().CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Close()

	res.Vending.InsertCoin(ctx, "quarter")
	res.Vending.Dispense(ctx, "red")
	res.Vending.ReturnChange(ctx)

	events, err := res.Ledger.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("recorded %d events, want 3", len(events))
	}

	summary, err := res.Ledger.SalesSummary(ctx)
	if err != nil {
		t.Fatalf("SalesSummary: %v", err)
	}
	if summary.Dispensed != 1 || summary.Revenue != 5 || summary.ChangeReturned != 20 {
		t.Fatalf("summary = %+v", summary)
	}
}
