package client

import (
	"encoding/hex"
	"fmt"

	"CoVault/internal/api"
	"CoVault/internal/wallet"
)

// Client connects to a walletd node via HTTP.
type Client struct {
	nodeAddr string // HTTP address (e.g. "127.0.0.1:8080")
}

// New creates a client for a node.
func New(nodeAddr string) *Client {
	return &Client{nodeAddr: nodeAddr}
}

// WalletInfo is the parsed GET /wallets/{addr} response.
type WalletInfo struct {
	Address     wallet.Address
	Owners      []wallet.Address
	Required    uint64
	DailyLimit  uint64
	MaxWithdraw uint64
	ActionCount uint64
	Balance     uint64
}

// ActionResult reports the outcome of a mutating action operation.
type ActionResult struct {
	ID          uint64
	Executed    bool
	EffectError string // non-empty when the action executed but its effect failed
}

// ActionInfo is the parsed GET /wallets/{addr}/actions/{id} response.
type ActionInfo struct {
	ID            uint64
	Destination   wallet.Address
	Value         uint64
	Payload       []byte
	Executed      bool
	Confirmations []wallet.Address
}

// Status is the parsed GET /status response.
type Status struct {
	Wallets uint64 `json:"wallets"`
	Uptime  int64  `json:"uptime"`
}

// Health checks the node's health endpoint.
func (c *Client) Health() error {
	var resp struct {
		Status string `json:"status"`
	}

	if err := httpGet(c.url("/health"), &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("node unhealthy: %q", resp.Status)
	}

	return nil
}

// Status fetches the node status.
func (c *Client) Status() (*Status, error) {
	status := &Status{}
	if err := httpGet(c.url("/status"), status); err != nil {
		return nil, err
	}

	return status, nil
}

// CreateWallet instantiates a new wallet and returns its address.
func (c *Client) CreateWallet(creator *Keyholder, owners []wallet.Address, required, dailyLimit uint64) (wallet.Address, error) {
	nonce := newNonce()
	digest := api.CreateDigest(creator.addr, nonce, owners, required, dailyLimit)

	ownersHex := make([]string, len(owners))
	for i, o := range owners {
		ownersHex[i] = hex.EncodeToString(o[:])
	}

	body := map[string]any{
		"creator":    creator.hexAddr(),
		"nonce":      nonce,
		"owners":     ownersHex,
		"required":   required,
		"dailyLimit": dailyLimit,
		"sig":        api.Sign(creator.priv, digest),
	}

	var resp struct {
		Address string `json:"address"`
	}

	if err := httpPostJSON(c.url("/wallets"), body, &resp); err != nil {
		return wallet.Address{}, fmt.Errorf("create wallet:\n%w", err)
	}

	return parseAddr(resp.Address)
}

// WalletInfo fetches the governance state of a wallet.
func (c *Client) WalletInfo(addr wallet.Address) (*WalletInfo, error) {
	var resp struct {
		Address     string   `json:"address"`
		Owners      []string `json:"owners"`
		Required    uint64   `json:"required"`
		DailyLimit  uint64   `json:"dailyLimit"`
		MaxWithdraw uint64   `json:"maxWithdraw"`
		ActionCount uint64   `json:"actionCount"`
		Balance     uint64   `json:"balance"`
	}

	if err := httpGet(c.url("/wallets/"+hexAddr(addr)), &resp); err != nil {
		return nil, fmt.Errorf("wallet info:\n%w", err)
	}

	info := &WalletInfo{
		Required:    resp.Required,
		DailyLimit:  resp.DailyLimit,
		MaxWithdraw: resp.MaxWithdraw,
		ActionCount: resp.ActionCount,
		Balance:     resp.Balance,
	}

	var err error
	if info.Address, err = parseAddr(resp.Address); err != nil {
		return nil, err
	}

	info.Owners = make([]wallet.Address, len(resp.Owners))
	for i, o := range resp.Owners {
		if info.Owners[i], err = parseAddr(o); err != nil {
			return nil, err
		}
	}

	return info, nil
}

// Propose submits a new action to a wallet.
func (c *Client) Propose(caller *Keyholder, walletAddr, destination wallet.Address, value uint64, payload []byte) (*ActionResult, error) {
	nonce := newNonce()
	digest := api.ProposeDigest(walletAddr, caller.addr, nonce, destination, value, payload)

	body := map[string]any{
		"caller":      caller.hexAddr(),
		"nonce":       nonce,
		"destination": hexAddr(destination),
		"value":       value,
		"payload":     hex.EncodeToString(payload),
		"sig":         api.Sign(caller.priv, digest),
	}

	result := &actionResponse{}
	if err := httpPostJSON(c.url("/wallets/"+hexAddr(walletAddr)+"/actions"), body, result); err != nil {
		return nil, fmt.Errorf("propose:\n%w", err)
	}

	return result.toResult(), nil
}

// Confirm adds the caller's approval to a pending action.
func (c *Client) Confirm(caller *Keyholder, walletAddr wallet.Address, id uint64) (*ActionResult, error) {
	return c.actionOp(caller, walletAddr, api.OpConfirm, id)
}

// Revoke withdraws the caller's approval from a pending action.
func (c *Client) Revoke(caller *Keyholder, walletAddr wallet.Address, id uint64) (*ActionResult, error) {
	return c.actionOp(caller, walletAddr, api.OpRevoke, id)
}

// Execute attempts execution of a pending action.
func (c *Client) Execute(caller *Keyholder, walletAddr wallet.Address, id uint64) (*ActionResult, error) {
	return c.actionOp(caller, walletAddr, api.OpExecute, id)
}

// actionOp runs one signed per-action operation.
func (c *Client) actionOp(caller *Keyholder, walletAddr wallet.Address, op string, id uint64) (*ActionResult, error) {
	nonce := newNonce()
	digest := api.ActionDigest(op, walletAddr, caller.addr, nonce, id)

	body := map[string]any{
		"caller": caller.hexAddr(),
		"nonce":  nonce,
		"sig":    api.Sign(caller.priv, digest),
	}

	url := fmt.Sprintf("%s/wallets/%s/actions/%d/%s", c.base(), hexAddr(walletAddr), id, op)

	result := &actionResponse{}
	if err := httpPostJSON(url, body, result); err != nil {
		return nil, fmt.Errorf("%s:\n%w", op, err)
	}

	result.ID = id

	return result.toResult(), nil
}

// Actions enumerates action ids matching the pending/executed filter.
func (c *Client) Actions(walletAddr wallet.Address, offset, limit uint64, pending, executed bool) ([]uint64, error) {
	url := fmt.Sprintf("%s/wallets/%s/actions?offset=%d&limit=%d&pending=%t&executed=%t",
		c.base(), hexAddr(walletAddr), offset, limit, pending, executed)

	var resp struct {
		IDs []uint64 `json:"ids"`
	}

	if err := httpGet(url, &resp); err != nil {
		return nil, fmt.Errorf("enumerate actions:\n%w", err)
	}

	return resp.IDs, nil
}

// Action fetches one stored action record.
func (c *Client) Action(walletAddr wallet.Address, id uint64) (*ActionInfo, error) {
	var resp struct {
		ID            uint64   `json:"id"`
		Destination   string   `json:"destination"`
		Value         uint64   `json:"value"`
		Payload       string   `json:"payload"`
		Executed      bool     `json:"executed"`
		Confirmations []string `json:"confirmations"`
	}

	url := fmt.Sprintf("%s/wallets/%s/actions/%d", c.base(), hexAddr(walletAddr), id)
	if err := httpGet(url, &resp); err != nil {
		return nil, fmt.Errorf("get action:\n%w", err)
	}

	info := &ActionInfo{ID: resp.ID, Value: resp.Value, Executed: resp.Executed}

	var err error
	if info.Destination, err = parseAddr(resp.Destination); err != nil {
		return nil, err
	}

	if info.Payload, err = hex.DecodeString(resp.Payload); err != nil {
		return nil, fmt.Errorf("invalid payload hex: %q", resp.Payload)
	}

	info.Confirmations = make([]wallet.Address, len(resp.Confirmations))
	for i, conf := range resp.Confirmations {
		if info.Confirmations[i], err = parseAddr(conf); err != nil {
			return nil, err
		}
	}

	return info, nil
}

// Deposit credits an address with funds.
func (c *Client) Deposit(addr wallet.Address, amount uint64) (uint64, error) {
	var resp struct {
		Balance uint64 `json:"balance"`
	}

	body := map[string]any{"amount": amount}
	if err := httpPostJSON(c.url("/accounts/"+hexAddr(addr)+"/deposit"), body, &resp); err != nil {
		return 0, fmt.Errorf("deposit:\n%w", err)
	}

	return resp.Balance, nil
}

// Balance fetches the balance of an address.
func (c *Client) Balance(addr wallet.Address) (uint64, error) {
	var resp struct {
		Balance uint64 `json:"balance"`
	}

	if err := httpGet(c.url("/accounts/"+hexAddr(addr)), &resp); err != nil {
		return 0, fmt.Errorf("get balance:\n%w", err)
	}

	return resp.Balance, nil
}

// actionResponse is the wire form shared by propose and per-action ops.
type actionResponse struct {
	ID          uint64 `json:"id"`
	Executed    bool   `json:"executed"`
	EffectError string `json:"effectError"`
}

func (r *actionResponse) toResult() *ActionResult {
	return &ActionResult{ID: r.ID, Executed: r.Executed, EffectError: r.EffectError}
}

func (c *Client) base() string {
	return "http://" + c.nodeAddr
}

func (c *Client) url(path string) string {
	return c.base() + path
}

func hexAddr(addr wallet.Address) string {
	return hex.EncodeToString(addr[:])
}

func parseAddr(hexStr string) (wallet.Address, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil || len(b) != 32 {
		return wallet.Address{}, fmt.Errorf("invalid address: %q", hexStr)
	}

	return wallet.AddressFromBytes(b)
}
