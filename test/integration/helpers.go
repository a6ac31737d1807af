package integration

import (
	"net/http/httptest"
	"strings"
	"testing"

	"CoVault/client"
	"CoVault/internal/api"
	"CoVault/internal/ledger"
	"CoVault/internal/registry"
	"CoVault/internal/storage"
	"CoVault/internal/wallet"
)

// startNode brings up a full in-process node: pebble-backed storage, the
// native ledger, the wallet registry, and the HTTP API on a real listener.
// Returns a client pointed at it.
func startNode(t *testing.T) *client.Client {
	t.Helper()

	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	ldg := ledger.New(db)
	reg := registry.New(db, ldg, nil)
	server := api.New("127.0.0.1:0", reg, ldg)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		ts.Close()
		server.Stop()
	})

	return client.New(strings.TrimPrefix(ts.URL, "http://"))
}

// mustPropose proposes through the client and fails the test on error.
func mustPropose(t *testing.T, cli *client.Client, caller *client.Keyholder, walletAddr, destination wallet.Address, value uint64, payload []byte) *client.ActionResult {
	t.Helper()

	result, err := cli.Propose(caller, walletAddr, destination, value, payload)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	return result
}

// mustConfirm confirms through the client and fails the test on error.
func mustConfirm(t *testing.T, cli *client.Client, caller *client.Keyholder, walletAddr wallet.Address, id uint64) *client.ActionResult {
	t.Helper()

	result, err := cli.Confirm(caller, walletAddr, id)
	if err != nil {
		t.Fatalf("confirm action %d: %v", id, err)
	}

	return result
}

// addresses converts keyholders to their addresses.
func addresses(keys ...*client.Keyholder) []wallet.Address {
	addrs := make([]wallet.Address, len(keys))
	for i, k := range keys {
		addrs[i] = k.Address()
	}

	return addrs
}
