package wallet

import (
	"errors"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	src := newTestDB(t)
	addr := Address{0x51}

	w, err := New(src, addr, []Address{ownerA, ownerB, ownerC}, 2, 750, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	id, err := w.Propose(ownerA, payee, 100, opaque)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	frame, err := Export(src, addr)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := newTestDB(t)
	if err := Import(dst, frame); err != nil {
		t.Fatalf("import: %v", err)
	}

	restored, err := Open(dst, addr, nil)
	if err != nil {
		t.Fatalf("open restored wallet: %v", err)
	}

	if got := restored.Required(); got != 2 {
		t.Errorf("required not restored: %d", got)
	}
	if got := len(restored.Owners()); got != 3 {
		t.Errorf("owners not restored: %d", got)
	}
	if got := restored.DailyLimit(); got != 750 {
		t.Errorf("daily limit not restored: %d", got)
	}

	rec, err := restored.Action(id)
	if err != nil {
		t.Fatalf("load restored action: %v", err)
	}
	if rec.Value != 100 || rec.Executed {
		t.Errorf("action record mangled: value %d executed %v", rec.Value, rec.Executed)
	}

	count, err := restored.ConfirmationCount(id)
	if err != nil || count != 1 {
		t.Errorf("confirmations not restored: %d, %v", count, err)
	}
}

func TestExportUnknownWallet(t *testing.T) {
	_, err := Export(newTestDB(t), Address{0x13})
	if !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	db := newTestDB(t)

	if err := Import(db, []byte("not a snapshot")); err == nil {
		t.Error("garbage frame accepted")
	}
}
