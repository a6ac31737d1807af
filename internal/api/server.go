package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"CoVault/internal/ledger"
	"CoVault/internal/logger"
	"CoVault/internal/registry"
	"CoVault/internal/wallet"
)

const (
	// maxBodySize is the maximum request body size in bytes.
	maxBodySize = 1 << 20 // 1 MB
)

// Server is the HTTP API server. Every mutating wallet operation arrives as
// a signed envelope: the caller's Ed25519 key signs a blake3 digest of the
// operation, and the signature is checked against a replay window before
// the engine sees the request.
type Server struct {
	addr     string
	registry *registry.Registry
	ledger   *ledger.Ledger
	replay   *replayGuard
	server   *http.Server
	started  time.Time
}

// New creates a new HTTP API server.
func New(addr string, reg *registry.Registry, ldg *ledger.Ledger) *Server {
	return &Server{
		addr:     addr,
		registry: reg,
		ledger:   ldg,
		replay:   newReplayGuard(),
		started:  time.Now(),
	}
}

// Handler returns the route table. Exposed separately from Start so tests
// can drive the server without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /wallets", s.handleCreateWallet)
	mux.HandleFunc("GET /wallets/{addr}", s.handleWalletInfo)
	mux.HandleFunc("POST /wallets/{addr}/actions", s.handlePropose)
	mux.HandleFunc("GET /wallets/{addr}/actions", s.handleEnumerate)
	mux.HandleFunc("GET /wallets/{addr}/actions/{id}", s.handleActionInfo)
	mux.HandleFunc("POST /wallets/{addr}/actions/{id}/confirm", s.handleConfirm)
	mux.HandleFunc("POST /wallets/{addr}/actions/{id}/revoke", s.handleRevoke)
	mux.HandleFunc("POST /wallets/{addr}/actions/{id}/execute", s.handleExecute)
	mux.HandleFunc("POST /accounts/{addr}/deposit", s.handleDeposit)
	mux.HandleFunc("GET /accounts/{addr}", s.handleBalance)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.replay.close()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

type createRequest struct {
	Creator    string   `json:"creator"`
	Nonce      uint64   `json:"nonce"`
	Owners     []string `json:"owners"`
	Required   uint64   `json:"required"`
	DailyLimit uint64   `json:"dailyLimit"`
	Signature  string   `json:"sig"`
}

// handleCreateWallet handles POST /wallets.
func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}

	creator, err := parseAddress(req.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	owners := make([]wallet.Address, len(req.Owners))
	for i, o := range req.Owners {
		if owners[i], err = parseAddress(o); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	digest := CreateDigest(creator, req.Nonce, owners, req.Required, req.DailyLimit)
	if !s.admit(w, creator, digest, req.Signature) {
		return
	}

	instance, err := s.registry.Create(creator, owners, req.Required, req.DailyLimit)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	addr := instance.Address()

	writeJSON(w, http.StatusCreated, map[string]string{
		"address": hex.EncodeToString(addr[:]),
	})
}

// handleWalletInfo handles GET /wallets/{addr}.
func (s *Server) handleWalletInfo(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.openWallet(w, r)
	if !ok {
		return
	}

	owners := instance.Owners()
	ownersHex := make([]string, len(owners))
	for i, o := range owners {
		ownersHex[i] = hex.EncodeToString(o[:])
	}

	addr := instance.Address()

	writeJSON(w, http.StatusOK, map[string]any{
		"address":     hex.EncodeToString(addr[:]),
		"owners":      ownersHex,
		"required":    instance.Required(),
		"dailyLimit":  instance.DailyLimit(),
		"maxWithdraw": instance.CalcMaxWithdraw(),
		"actionCount": instance.ActionCount(),
		"balance":     s.ledger.Balance(ledger.Address(instance.Address())),
	})
}

type proposeRequest struct {
	Caller      string `json:"caller"`
	Nonce       uint64 `json:"nonce"`
	Destination string `json:"destination"`
	Value       uint64 `json:"value"`
	Payload     string `json:"payload"` // hex, may be empty
	Signature   string `json:"sig"`
}

// handlePropose handles POST /wallets/{addr}/actions.
func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.openWallet(w, r)
	if !ok {
		return
	}

	var req proposeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	destination, err := parseAddress(req.Destination)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := hex.DecodeString(req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload hex")
		return
	}

	digest := ProposeDigest(instance.Address(), caller, req.Nonce, destination, req.Value, payload)
	if !s.admit(w, caller, digest, req.Signature) {
		return
	}

	id, err := instance.Propose(caller, destination, req.Value, payload)
	if err != nil && !errors.Is(err, wallet.ErrExternalEffectFailed) {
		writeError(w, statusFor(err), err.Error())
		return
	}

	// The id is valid even when the effect failed: the action is recorded
	// and spent. Surface the effect error alongside it.
	resp := map[string]any{
		"id":       id,
		"executed": actionExecuted(instance, id),
	}
	if err != nil {
		resp["effectError"] = err.Error()
	}

	writeJSON(w, http.StatusCreated, resp)
}

type actionRequest struct {
	Caller    string `json:"caller"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"sig"`
}

// handleConfirm handles POST /wallets/{addr}/actions/{id}/confirm.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.handleActionOp(w, r, OpConfirm, func(instance *wallet.Wallet, caller wallet.Address, id uint64) error {
		return instance.Confirm(caller, id)
	})
}

// handleRevoke handles POST /wallets/{addr}/actions/{id}/revoke.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	s.handleActionOp(w, r, OpRevoke, func(instance *wallet.Wallet, caller wallet.Address, id uint64) error {
		return instance.Revoke(caller, id)
	})
}

// handleExecute handles POST /wallets/{addr}/actions/{id}/execute.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	s.handleActionOp(w, r, OpExecute, func(instance *wallet.Wallet, caller wallet.Address, id uint64) error {
		return instance.Execute(caller, id)
	})
}

// handleActionOp runs one signed per-action operation.
func (s *Server) handleActionOp(w http.ResponseWriter, r *http.Request, op string, run func(*wallet.Wallet, wallet.Address, uint64) error) {
	instance, ok := s.openWallet(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid action id")
		return
	}

	var req actionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	digest := ActionDigest(op, instance.Address(), caller, req.Nonce, id)
	if !s.admit(w, caller, digest, req.Signature) {
		return
	}

	err = run(instance, caller, id)

	resp := map[string]any{
		"executed": actionExecuted(instance, id),
	}

	if err != nil && !errors.Is(err, wallet.ErrExternalEffectFailed) {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err != nil {
		resp["effectError"] = err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleEnumerate handles GET /wallets/{addr}/actions.
func (s *Server) handleEnumerate(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.openWallet(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	offset := parseUintParam(query.Get("offset"), 0)
	limit := parseUintParam(query.Get("limit"), 100)
	pending := query.Get("pending") != "false"
	executed := query.Get("executed") != "false"

	ids := instance.Enumerate(offset, limit, pending, executed)

	writeJSON(w, http.StatusOK, map[string]any{
		"ids": ids,
	})
}

// handleActionInfo handles GET /wallets/{addr}/actions/{id}.
func (s *Server) handleActionInfo(w http.ResponseWriter, r *http.Request) {
	instance, ok := s.openWallet(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid action id")
		return
	}

	rec, err := instance.Action(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	confirmers, err := instance.Confirmations(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	confirmersHex := make([]string, len(confirmers))
	for i, c := range confirmers {
		confirmersHex[i] = hex.EncodeToString(c[:])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            rec.ID,
		"destination":   hex.EncodeToString(rec.Destination[:]),
		"value":         rec.Value,
		"payload":       hex.EncodeToString(rec.Payload),
		"executed":      rec.Executed,
		"confirmations": confirmersHex,
	})
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

// handleDeposit handles POST /accounts/{addr}/deposit.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r.PathValue("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.ledger.Deposit(ledger.Address(addr), req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance": s.ledger.Balance(ledger.Address(addr)),
	})
}

// handleBalance handles GET /accounts/{addr}.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r.PathValue("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance": s.ledger.Balance(ledger.Address(addr)),
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"wallets": s.registry.Count(),
		"uptime":  int64(time.Since(s.started).Seconds()),
	})
}

// openWallet resolves the {addr} path segment to a live wallet instance.
func (s *Server) openWallet(w http.ResponseWriter, r *http.Request) (*wallet.Wallet, bool) {
	addr, err := parseAddress(r.PathValue("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	instance, err := s.registry.Open(addr)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return nil, false
	}

	return instance, true
}

// admit verifies the envelope signature and the replay window.
func (s *Server) admit(w http.ResponseWriter, caller wallet.Address, digest [32]byte, sigHex string) bool {
	sig, err := verifySignature(caller, digest, sigHex)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return false
	}

	if !s.replay.check(sig) {
		writeError(w, http.StatusConflict, "duplicate request")
		return false
	}

	return true
}

// actionExecuted reads the executed flag, defaulting to false on any error.
func actionExecuted(instance *wallet.Wallet, id uint64) bool {
	rec, err := instance.Action(id)

	return err == nil && rec.Executed
}

// decodeBody parses a JSON request body, writing the error response itself.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	return true
}

// parseUintParam parses an optional numeric query parameter.
func parseUintParam(raw string, fallback uint64) uint64 {
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wallet.ErrWalletNotFound), errors.Is(err, wallet.ErrNoSuchAction):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, wallet.ErrAlreadyExecuted),
		errors.Is(err, wallet.ErrAlreadyConfirmed),
		errors.Is(err, wallet.ErrNotConfirmed),
		errors.Is(err, wallet.ErrQuorumNotMet):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrExternalEffectFailed):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
