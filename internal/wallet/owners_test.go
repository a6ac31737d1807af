package wallet

import (
	"errors"
	"testing"
)

func TestOwnerSetRemoveShiftsPositions(t *testing.T) {
	os, err := newOwnerSet([]Address{ownerA, ownerB, ownerC, ownerD})
	if err != nil {
		t.Fatalf("new owner set: %v", err)
	}

	if err := os.remove(ownerB); err != nil {
		t.Fatalf("remove: %v", err)
	}

	want := []Address{ownerA, ownerC, ownerD}
	got := os.owners()
	if len(got) != len(want) {
		t.Fatalf("expected %d owners, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %x, want %x", i, got[i][:1], want[i][:1])
		}
	}

	// The index must follow the shift so lookups stay correct.
	if !os.contains(ownerD) || os.contains(ownerB) {
		t.Error("index out of sync after remove")
	}
}

func TestOwnerSetAddCap(t *testing.T) {
	addrs := make([]Address, MaxOwners)
	for i := range addrs {
		addrs[i] = Address{byte(i + 1), 0x01}
	}

	os, err := newOwnerSet(addrs)
	if err != nil {
		t.Fatalf("new owner set: %v", err)
	}

	if err := os.add(Address{0xff, 0xff}); !errors.Is(err, ErrOwnerLimit) {
		t.Errorf("expected ErrOwnerLimit, got %v", err)
	}
}

func TestOwnerSetCodecRoundTrip(t *testing.T) {
	os, err := newOwnerSet([]Address{ownerC, ownerA, ownerB})
	if err != nil {
		t.Fatalf("new owner set: %v", err)
	}

	decoded, err := decodeOwnerSet(os.encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	got := decoded.owners()
	want := []Address{ownerC, ownerA, ownerB}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order not preserved: got %x, want %x", got, want)
		}
	}
}

func TestDecodeOwnerSetMalformed(t *testing.T) {
	if _, err := decodeOwnerSet(nil); err == nil {
		t.Error("empty owner list accepted")
	}
	if _, err := decodeOwnerSet(make([]byte, 33)); err == nil {
		t.Error("ragged owner list accepted")
	}
}

func TestAddressFromBytes(t *testing.T) {
	raw := make([]byte, 32)
	raw[0] = 0x42

	addr, err := AddressFromBytes(raw)
	if err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}
	if addr[0] != 0x42 {
		t.Error("address bytes not copied")
	}

	if _, err := AddressFromBytes(raw[:31]); err == nil {
		t.Error("short address accepted")
	}
}
