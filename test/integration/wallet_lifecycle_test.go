package integration

import (
	"strings"
	"testing"

	"CoVault/client"
	"CoVault/internal/wallet"
)

// TestWalletLifecycle walks the full flow over HTTP: create a wallet, fund
// it, move money under quorum, govern the wallet through its own pipeline,
// and spend under the daily allowance.
func TestWalletLifecycle(t *testing.T) {
	cli := startNode(t)

	if err := cli.Health(); err != nil {
		t.Fatalf("health: %v", err)
	}

	alice := client.NewKeyholder()
	bob := client.NewKeyholder()
	carol := client.NewKeyholder()
	payee := client.NewKeyholder()

	// Create: owners {alice, bob}, two approvals needed, allowance 300
	walletAddr, err := cli.CreateWallet(alice, addresses(alice, bob), 2, 300)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	if _, err := cli.Deposit(walletAddr, 10_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	info, err := cli.WalletInfo(walletAddr)
	if err != nil {
		t.Fatalf("wallet info: %v", err)
	}
	if info.Required != 2 || len(info.Owners) != 2 || info.Balance != 10_000 {
		t.Fatalf("unexpected wallet state: %+v", info)
	}

	// Quorum transfer: alice proposes, bob's confirmation executes it
	proposal := mustPropose(t, cli, alice, walletAddr, payee.Address(), 2_000, []byte{0x01})
	if proposal.Executed {
		t.Fatal("transfer executed before quorum")
	}

	result := mustConfirm(t, cli, bob, walletAddr, proposal.ID)
	if !result.Executed || result.EffectError != "" {
		t.Fatalf("transfer not settled: %+v", result)
	}

	balance, err := cli.Balance(payee.Address())
	if err != nil || balance != 2_000 {
		t.Fatalf("payee balance: %d, %v", balance, err)
	}

	// Governance: add carol through the same pipeline
	proposal = mustPropose(t, cli, alice, walletAddr, walletAddr, 0, wallet.EncodeAddOwner(carol.Address()))
	result = mustConfirm(t, cli, bob, walletAddr, proposal.ID)
	if !result.Executed || result.EffectError != "" {
		t.Fatalf("governance action not applied: %+v", result)
	}

	info, err = cli.WalletInfo(walletAddr)
	if err != nil {
		t.Fatalf("wallet info after governance: %v", err)
	}
	if len(info.Owners) != 3 || info.Owners[2] != carol.Address() {
		t.Fatalf("carol not appended: %x", info.Owners)
	}

	// Carol can act as an owner now
	proposal = mustPropose(t, cli, carol, walletAddr, payee.Address(), 1_000, []byte{0x01})
	result = mustConfirm(t, cli, alice, walletAddr, proposal.ID)
	if !result.Executed {
		t.Fatalf("transfer with new owner not executed: %+v", result)
	}

	// Daily allowance: a payload-free transfer under 300 skips quorum
	proposal = mustPropose(t, cli, alice, walletAddr, payee.Address(), 250, nil)
	if !proposal.Executed {
		t.Fatal("allowance transfer did not execute immediately")
	}

	info, err = cli.WalletInfo(walletAddr)
	if err != nil {
		t.Fatalf("wallet info after allowance spend: %v", err)
	}
	if info.MaxWithdraw != 50 {
		t.Errorf("max withdraw: got %d, want 50", info.MaxWithdraw)
	}

	// The next payload-free transfer exceeds what is left and pends
	proposal = mustPropose(t, cli, alice, walletAddr, payee.Address(), 100, nil)
	if proposal.Executed {
		t.Fatal("transfer beyond allowance bypassed quorum")
	}

	balance, err = cli.Balance(payee.Address())
	if err != nil || balance != 3_250 {
		t.Fatalf("payee balance after allowance spend: %d, %v", balance, err)
	}

	status, err := cli.Status()
	if err != nil || status.Wallets != 1 {
		t.Fatalf("status: %+v, %v", status, err)
	}
}

// TestRevokeOverHTTP checks that a revoked approval stops counting.
func TestRevokeOverHTTP(t *testing.T) {
	cli := startNode(t)

	alice := client.NewKeyholder()
	bob := client.NewKeyholder()
	payee := client.NewKeyholder()

	walletAddr, err := cli.CreateWallet(alice, addresses(alice, bob), 2, 0)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if _, err := cli.Deposit(walletAddr, 1_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	proposal := mustPropose(t, cli, alice, walletAddr, payee.Address(), 500, []byte{0x01})

	if _, err := cli.Revoke(alice, walletAddr, proposal.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	action, err := cli.Action(walletAddr, proposal.ID)
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if len(action.Confirmations) != 0 {
		t.Fatalf("confirmations after revoke: %x", action.Confirmations)
	}

	// bob's confirmation alone is 1 of 2: the action stays pending
	result := mustConfirm(t, cli, bob, walletAddr, proposal.ID)
	if result.Executed {
		t.Fatal("action executed with a revoked approval")
	}

	// Explicit execute without quorum is rejected
	if _, err := cli.Execute(bob, walletAddr, proposal.ID); err == nil {
		t.Fatal("execute succeeded below quorum")
	} else if !strings.Contains(err.Error(), "quorum") {
		t.Fatalf("unexpected execute error: %v", err)
	}
}

// TestFailedEffectConsumesAction funds nothing and lets a quorum-approved
// transfer fail at settlement: the action is spent, the money stays put.
func TestFailedEffectConsumesAction(t *testing.T) {
	cli := startNode(t)

	alice := client.NewKeyholder()
	bob := client.NewKeyholder()
	payee := client.NewKeyholder()

	walletAddr, err := cli.CreateWallet(alice, addresses(alice, bob), 2, 0)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	proposal := mustPropose(t, cli, alice, walletAddr, payee.Address(), 500, []byte{0x01})

	result := mustConfirm(t, cli, bob, walletAddr, proposal.ID)
	if !result.Executed || result.EffectError == "" {
		t.Fatalf("expected executed action with effect error, got %+v", result)
	}

	// The action is spent; no retry
	if _, err := cli.Execute(alice, walletAddr, proposal.ID); err == nil {
		t.Fatal("executed action accepted a retry")
	}

	balance, err := cli.Balance(payee.Address())
	if err != nil || balance != 0 {
		t.Fatalf("payee balance after failed effect: %d, %v", balance, err)
	}
}

// TestEnumerationOverHTTP drives the enumeration filters end to end.
func TestEnumerationOverHTTP(t *testing.T) {
	cli := startNode(t)

	alice := client.NewKeyholder()
	bob := client.NewKeyholder()
	payee := client.NewKeyholder()

	walletAddr, err := cli.CreateWallet(alice, addresses(alice, bob), 2, 0)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if _, err := cli.Deposit(walletAddr, 10_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	var ids []uint64
	for i := 0; i < 4; i++ {
		proposal := mustPropose(t, cli, alice, walletAddr, payee.Address(), uint64(100+i), []byte{0x01})
		ids = append(ids, proposal.ID)
	}

	mustConfirm(t, cli, bob, walletAddr, ids[1])
	mustConfirm(t, cli, bob, walletAddr, ids[3])

	pending, err := cli.Actions(walletAddr, 0, 10, true, false)
	if err != nil {
		t.Fatalf("enumerate pending: %v", err)
	}
	if len(pending) != 2 || pending[0] != ids[0] || pending[1] != ids[2] {
		t.Errorf("pending ids: %v", pending)
	}

	executed, err := cli.Actions(walletAddr, 0, 10, false, true)
	if err != nil {
		t.Fatalf("enumerate executed: %v", err)
	}
	if len(executed) != 2 || executed[0] != ids[1] || executed[1] != ids[3] {
		t.Errorf("executed ids: %v", executed)
	}

	none, err := cli.Actions(walletAddr, 0, 10, false, false)
	if err != nil {
		t.Fatalf("enumerate none: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected empty result with both filters off, got %v", none)
	}
}
