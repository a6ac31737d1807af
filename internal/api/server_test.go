package api

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"CoVault/internal/ledger"
	"CoVault/internal/registry"
	"CoVault/internal/storage"
	"CoVault/internal/wallet"
)

// keyholder is a signing identity for tests.
type keyholder struct {
	addr wallet.Address
	priv ed25519.PrivateKey
}

func newKeyholder(t *testing.T) *keyholder {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	k := &keyholder{priv: priv}
	copy(k.addr[:], pub)

	return k
}

func (k *keyholder) hex() string {
	return hex.EncodeToString(k.addr[:])
}

type apiEnv struct {
	t       *testing.T
	handler http.Handler
	ledger  *ledger.Ledger
	nonce   uint64
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	ldg := ledger.New(db)
	server := New("127.0.0.1:0", registry.New(db, ldg, nil), ldg)

	t.Cleanup(func() {
		server.Stop()
	})

	return &apiEnv{t: t, handler: server.Handler(), ledger: ldg}
}

// nextNonce hands out unique nonces so envelopes never collide by accident.
func (e *apiEnv) nextNonce() uint64 {
	e.nonce++
	return e.nonce
}

// do runs one request through the handler and decodes the JSON response.
func (e *apiEnv) do(method, path string, body any) (int, map[string]any) {
	e.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		e.t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}

	return rec.Code, decoded
}

// createWallet drives POST /wallets and returns the new wallet's address.
func (e *apiEnv) createWallet(creator *keyholder, owners []*keyholder, required, dailyLimit uint64) string {
	e.t.Helper()

	ownerAddrs := make([]wallet.Address, len(owners))
	ownersHex := make([]string, len(owners))
	for i, o := range owners {
		ownerAddrs[i] = o.addr
		ownersHex[i] = o.hex()
	}

	nonce := e.nextNonce()
	digest := CreateDigest(creator.addr, nonce, ownerAddrs, required, dailyLimit)

	code, resp := e.do("POST", "/wallets", map[string]any{
		"creator":    creator.hex(),
		"nonce":      nonce,
		"owners":     ownersHex,
		"required":   required,
		"dailyLimit": dailyLimit,
		"sig":        Sign(creator.priv, digest),
	})
	if code != http.StatusCreated {
		e.t.Fatalf("create wallet: status %d, %v", code, resp)
	}

	return resp["address"].(string)
}

// propose drives POST /wallets/{addr}/actions.
func (e *apiEnv) propose(walletHex string, caller *keyholder, destination wallet.Address, value uint64, payload []byte) (int, map[string]any) {
	e.t.Helper()

	walletAddr := mustAddr(e.t, walletHex)
	nonce := e.nextNonce()
	digest := ProposeDigest(walletAddr, caller.addr, nonce, destination, value, payload)

	return e.do("POST", "/wallets/"+walletHex+"/actions", map[string]any{
		"caller":      caller.hex(),
		"nonce":       nonce,
		"destination": hex.EncodeToString(destination[:]),
		"value":       value,
		"payload":     hex.EncodeToString(payload),
		"sig":         Sign(caller.priv, digest),
	})
}

// actionOp drives POST /wallets/{addr}/actions/{id}/{op}.
func (e *apiEnv) actionOp(walletHex string, caller *keyholder, op string, id uint64) (int, map[string]any) {
	e.t.Helper()

	walletAddr := mustAddr(e.t, walletHex)
	nonce := e.nextNonce()
	digest := ActionDigest(op, walletAddr, caller.addr, nonce, id)

	path := fmt.Sprintf("/wallets/%s/actions/%d/%s", walletHex, id, op)

	return e.do("POST", path, map[string]any{
		"caller": caller.hex(),
		"nonce":  nonce,
		"sig":    Sign(caller.priv, digest),
	})
}

func mustAddr(t *testing.T, hexStr string) wallet.Address {
	t.Helper()

	addr, err := parseAddress(hexStr)
	if err != nil {
		t.Fatalf("parse address %q: %v", hexStr, err)
	}

	return addr
}

func TestCreateAndInspectWallet(t *testing.T) {
	env := newAPIEnv(t)
	alice := newKeyholder(t)
	bob := newKeyholder(t)

	addr := env.createWallet(alice, []*keyholder{alice, bob}, 2, 500)

	code, resp := env.do("GET", "/wallets/"+addr, nil)
	if code != http.StatusOK {
		t.Fatalf("wallet info: status %d, %v", code, resp)
	}

	if resp["required"].(float64) != 2 {
		t.Errorf("required: %v", resp["required"])
	}
	if resp["dailyLimit"].(float64) != 500 {
		t.Errorf("dailyLimit: %v", resp["dailyLimit"])
	}
	if owners := resp["owners"].([]any); len(owners) != 2 {
		t.Errorf("owners: %v", owners)
	}
}

func TestCreateWalletBadSignature(t *testing.T) {
	env := newAPIEnv(t)
	alice := newKeyholder(t)

	code, resp := env.do("POST", "/wallets", map[string]any{
		"creator":  alice.hex(),
		"nonce":    1,
		"owners":   []string{alice.hex()},
		"required": 1,
		"sig":      hex.EncodeToString(make([]byte, 64)),
	})
	if code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d: %v", code, resp)
	}
}

func TestReplayRejected(t *testing.T) {
	env := newAPIEnv(t)
	alice := newKeyholder(t)
	bob := newKeyholder(t)

	addr := env.createWallet(alice, []*keyholder{alice, bob}, 2, 0)
	walletAddr := mustAddr(t, addr)

	// Build one signed request and send it twice verbatim
	nonce := env.nextNonce()
	digest := ProposeDigest(walletAddr, alice.addr, nonce, bob.addr, 100, []byte{0x01})
	body := map[string]any{
		"caller":      alice.hex(),
		"nonce":       nonce,
		"destination": bob.hex(),
		"value":       100,
		"payload":     "01",
		"sig":         Sign(alice.priv, digest),
	}

	code, resp := env.do("POST", "/wallets/"+addr+"/actions", body)
	if code != http.StatusCreated {
		t.Fatalf("first submission: status %d, %v", code, resp)
	}

	code, resp = env.do("POST", "/wallets/"+addr+"/actions", body)
	if code != http.StatusConflict {
		t.Errorf("replay: expected 409, got %d: %v", code, resp)
	}
}

func TestProposeConfirmExecuteFlow(t *testing.T) {
	env := newAPIEnv(t)
	alice := newKeyholder(t)
	bob := newKeyholder(t)
	payee := newKeyholder(t)

	addr := env.createWallet(alice, []*keyholder{alice, bob}, 2, 0)

	// Fund the wallet through the deposit endpoint
	code, resp := env.do("POST", "/accounts/"+addr+"/deposit", map[string]any{"amount": 1000})
	if code != http.StatusOK || resp["balance"].(float64) != 1000 {
		t.Fatalf("deposit: status %d, %v", code, resp)
	}

	code, resp = env.propose(addr, alice, payee.addr, 400, []byte{0x01})
	if code != http.StatusCreated {
		t.Fatalf("propose: status %d, %v", code, resp)
	}
	if resp["executed"].(bool) {
		t.Fatal("proposal executed before quorum")
	}

	id := uint64(resp["id"].(float64))

	code, resp = env.actionOp(addr, bob, OpConfirm, id)
	if code != http.StatusOK {
		t.Fatalf("confirm: status %d, %v", code, resp)
	}
	if !resp["executed"].(bool) {
		t.Fatal("action not executed at quorum")
	}

	code, resp = env.do("GET", "/accounts/"+payee.hex(), nil)
	if code != http.StatusOK || resp["balance"].(float64) != 400 {
		t.Errorf("payee balance: status %d, %v", code, resp)
	}
}

func TestUnauthorizedCaller(t *testing.T) {
	env := newAPIEnv(t)
	alice := newKeyholder(t)
	bob := newKeyholder(t)
	mallory := newKeyholder(t)

	addr := env.createWallet(alice, []*keyholder{alice, bob}, 2, 0)

	// mallory's envelope is validly signed, but mallory is not an owner
	code, resp := env.propose(addr, mallory, bob.addr, 100, []byte{0x01})
	if code != http.StatusForbidden {
		t.Errorf("expected 403, got %d: %v", code, resp)
	}
}

func TestEnumerateEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	alice := newKeyholder(t)
	bob := newKeyholder(t)
	payee := newKeyholder(t)

	addr := env.createWallet(alice, []*keyholder{alice, bob}, 2, 0)

	for i := 0; i < 3; i++ {
		code, resp := env.propose(addr, alice, payee.addr, uint64(100+i), []byte{0x01})
		if code != http.StatusCreated {
			t.Fatalf("propose %d: status %d, %v", i, code, resp)
		}
	}

	code, resp := env.do("GET", "/wallets/"+addr+"/actions?pending=true&executed=false", nil)
	if code != http.StatusOK {
		t.Fatalf("enumerate: status %d, %v", code, resp)
	}
	if ids := resp["ids"].([]any); len(ids) != 3 {
		t.Errorf("expected 3 pending ids, got %v", ids)
	}

	code, resp = env.do("GET", "/wallets/"+addr+"/actions?executed=true&pending=false", nil)
	if code != http.StatusOK {
		t.Fatalf("enumerate executed: status %d, %v", code, resp)
	}
	if ids := resp["ids"].([]any); len(ids) != 0 {
		t.Errorf("expected no executed ids, got %v", ids)
	}
}

func TestActionInfo(t *testing.T) {
	env := newAPIEnv(t)
	alice := newKeyholder(t)
	bob := newKeyholder(t)
	payee := newKeyholder(t)

	addr := env.createWallet(alice, []*keyholder{alice, bob}, 2, 0)

	code, resp := env.propose(addr, alice, payee.addr, 250, []byte{0x01, 0x02})
	if code != http.StatusCreated {
		t.Fatalf("propose: status %d, %v", code, resp)
	}
	id := uint64(resp["id"].(float64))

	code, resp = env.do("GET", fmt.Sprintf("/wallets/%s/actions/%d", addr, id), nil)
	if code != http.StatusOK {
		t.Fatalf("action info: status %d, %v", code, resp)
	}

	if resp["value"].(float64) != 250 {
		t.Errorf("value: %v", resp["value"])
	}
	if resp["payload"].(string) != "0102" {
		t.Errorf("payload: %v", resp["payload"])
	}
	if confs := resp["confirmations"].([]any); len(confs) != 1 || confs[0].(string) != alice.hex() {
		t.Errorf("confirmations: %v", confs)
	}

	code, resp = env.do("GET", "/wallets/"+addr+"/actions/99", nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown action: expected 404, got %d: %v", code, resp)
	}
}

func TestHealthAndStatus(t *testing.T) {
	env := newAPIEnv(t)
	alice := newKeyholder(t)

	code, resp := env.do("GET", "/health", nil)
	if code != http.StatusOK || resp["status"] != "ok" {
		t.Errorf("health: status %d, %v", code, resp)
	}

	env.createWallet(alice, []*keyholder{alice}, 1, 0)

	code, resp = env.do("GET", "/status", nil)
	if code != http.StatusOK {
		t.Fatalf("status: %d, %v", code, resp)
	}
	if resp["wallets"].(float64) != 1 {
		t.Errorf("wallet count: %v", resp["wallets"])
	}
}
