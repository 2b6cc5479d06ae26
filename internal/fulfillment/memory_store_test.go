package fulfillment

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"lockstep/internal/journal"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestMemoryStore_CreateIfAbsent(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(nil)
	ctx := context.Background()
	orderID := uuid.New()

	inst, created, err := store.CreateIfAbsent(ctx, orderID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("expected fresh instance")
	}
	if inst.OrderID != orderID || inst.Status != StatusActive {
		t.Fatalf("unexpected new instance: %+v", inst)
	}
	if !inst.HasAssociation(AssocOrderID, orderID.String()) {
		t.Fatal("new instance must carry its orderId association")
	}

	again, created, err := store.CreateIfAbsent(ctx, orderID)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("second create must return the existing instance")
	}
	if again.OrderID != orderID {
		t.Fatalf("unexpected instance: %+v", again)
	}
}

func TestMemoryStore_LoadByAssociation(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(nil)
	ctx := context.Background()
	orderID := uuid.New()

	if _, _, err := store.CreateIfAbsent(ctx, orderID); err != nil {
		t.Fatalf("create: %v", err)
	}
	invoiceID := uuid.New()
	if err := store.Associate(ctx, orderID, AssocInvoiceID, invoiceID.String()); err != nil {
		t.Fatalf("associate: %v", err)
	}

	inst, err := store.Load(ctx, AssocInvoiceID, invoiceID.String())
	if err != nil {
		t.Fatalf("load by invoice: %v", err)
	}
	if inst.OrderID != orderID {
		t.Fatalf("invoice association resolved wrong instance: %+v", inst)
	}

	if _, err := store.Load(ctx, AssocInvoiceID, uuid.NewString()); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestMemoryStore_AssociateUnknownOrder(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(nil)
	err := store.Associate(context.Background(), uuid.New(), AssocInvoiceID, uuid.NewString())
	if !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestMemoryStore_LoadReturnsSnapshots(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(nil)
	ctx := context.Background()
	orderID := uuid.New()

	if _, _, err := store.CreateIfAbsent(ctx, orderID); err != nil {
		t.Fatalf("create: %v", err)
	}

	inst, err := store.Load(ctx, AssocOrderID, orderID.String())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	inst.Paid = true
	inst.ProductItems = map[uuid.UUID]int64{uuid.New(): 9}

	fresh, err := store.Load(ctx, AssocOrderID, orderID.String())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if fresh.Paid || fresh.ProductItems != nil {
		t.Fatal("mutating a loaded snapshot must not leak into the store")
	}
}

func TestMemoryStore_SavePersistsState(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(nil)
	ctx := context.Background()
	orderID := uuid.New()

	inst, _, err := store.CreateIfAbsent(ctx, orderID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inst.ProductItems = map[uuid.UUID]int64{uuid.New(): 2}
	inst.TotalPrice = decimal.RequireFromString("33.33")
	inst.Paid = true
	if err := store.Save(ctx, inst); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, AssocOrderID, orderID.String())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Paid || !loaded.TotalPrice.Equal(inst.TotalPrice) || len(loaded.ProductItems) != 1 {
		t.Fatalf("saved state not visible: %+v", loaded)
	}
}

func TestMemoryStore_MarkTerminal(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(nil)
	ctx := context.Background()
	orderID := uuid.New()

	if _, _, err := store.CreateIfAbsent(ctx, orderID); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.MarkTerminal(ctx, orderID, StatusDenied); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}

	inst, err := store.Load(ctx, AssocOrderID, orderID.String())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if inst.Status != StatusDenied {
		t.Fatalf("expected denied, got %s", inst.Status)
	}
}

func TestMemoryStore_JournalRecovery(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "saga.journal")
	ctx := context.Background()

	wal, err := journal.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	store := NewMemoryStore(wal)

	orderID := uuid.New()
	invoiceID := uuid.New()
	inst, _, err := store.CreateIfAbsent(ctx, orderID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inst.ProductItems = map[uuid.UUID]int64{uuid.New(): 5}
	inst.TotalPrice = decimal.RequireFromString("75.25")
	inst.Paid = true
	if err := store.Save(ctx, inst); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Associate(ctx, orderID, AssocInvoiceID, invoiceID.String()); err != nil {
		t.Fatalf("associate: %v", err)
	}
	if err := wal.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer reopened.Close()

	recovered, err := NewMemoryStoreWithRecovery(reopened)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}

	loaded, err := recovered.Load(ctx, AssocInvoiceID, invoiceID.String())
	if err != nil {
		t.Fatalf("load recovered by invoice: %v", err)
	}
	if loaded.OrderID != orderID || !loaded.Paid || !loaded.TotalPrice.Equal(inst.TotalPrice) {
		t.Fatalf("recovered state mismatch: %+v", loaded)
	}
	if len(loaded.ProductItems) != 1 {
		t.Fatalf("recovered items mismatch: %+v", loaded.ProductItems)
	}
}

func TestMemoryStore_JournalRejectsGarbage(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "saga.journal")
	wal, err := journal.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if err := wal.Append(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("append: %v", err)
	}
	defer wal.Close()

	if _, err := NewMemoryStoreWithRecovery(wal); err == nil {
		t.Fatal("expected recovery to fail on a corrupt entry")
	}
}
