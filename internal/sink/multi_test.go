package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

func TestMulti_WritesEverySink(t *testing.T) {
	warehouse := NewMemory()
	lake := NewMemory()
	multi, err := NewMulti(warehouse, lake)
	if err != nil {
		t.Fatalf("NewMulti: %v", err)
	}

	rec, err := domain.NewRecord("lst-1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	batch := []OutputRecord{{Record: rec.Set("price", domain.Number(1))}}

	if err := multi.Write(context.Background(), batch); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if warehouse.Len() != 1 || lake.Len() != 1 {
		t.Fatalf("warehouse=%d lake=%d, want 1 each", warehouse.Len(), lake.Len())
	}
}

func TestMulti_StopsOnFirstFailure(t *testing.T) {
	failing := NewMemory()
	failing.FailWrites(errors.New("warehouse down"))
	lake := NewMemory()
	multi, err := NewMulti(failing, lake)
	if err != nil {
		t.Fatalf("NewMulti: %v", err)
	}

	rec, err := domain.NewRecord("lst-1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	err = multi.Write(context.Background(), []OutputRecord{{Record: rec}})
	if err == nil || err.Error() != "warehouse down" {
		t.Fatalf("err=%v, want warehouse down", err)
	}
	if lake.Len() != 0 {
		t.Fatalf("lake received %d records after earlier sink failed", lake.Len())
	}
}

func TestNewMulti_RequiresSinks(t *testing.T) {
	if _, err := NewMulti(); err == nil {
		t.Fatalf("expected error for empty sink list")
	}
	if _, err := NewMulti(NewMemory(), nil); err == nil {
		t.Fatalf("expected error for nil sink")
	}
}
