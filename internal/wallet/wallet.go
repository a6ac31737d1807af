package wallet

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"CoVault/internal/logger"
	"CoVault/internal/storage"
)

// walletKeyPrefix namespaces all persisted wallet state.
var walletKeyPrefix = []byte("w:")

// Key tags within a wallet's namespace.
const (
	tagOwners        = 'o'
	tagRequired      = 'r'
	tagSequence      = 's'
	tagActions       = 'a'
	tagConfirmations = 'c'
	tagLimit         = 'l'
)

// Effector applies the external effect of an executed action: an opaque
// call carrying value and payload to a destination outside the wallet.
// Implementations must not call back into the wallet.
type Effector interface {
	Apply(destination Address, value uint64, payload []byte) error
}

// noopEffector accepts every effect without doing anything.
type noopEffector struct{}

func (noopEffector) Apply(Address, uint64, []byte) error { return nil }

// Options configures optional wallet collaborators.
type Options struct {
	// Effector applies external effects. Defaults to a no-op.
	Effector Effector

	// Now supplies the current time for the daily-limit window.
	// Defaults to time.Now.
	Now func() time.Time
}

// Wallet is a shared account controlled by a fixed set of co-owners.
// Every state-changing action runs through the same pipeline: propose,
// collect confirmations, execute once quorum is reached. Governance
// changes (owners, threshold, daily limit) travel as self-targeted
// actions through that identical pipeline.
//
// All operations serialize on one mutex; each call either completes or
// leaves no partial mutation.
type Wallet struct {
	addr Address
	db   *storage.Storage
	mu   sync.Mutex

	owners   *ownerSet
	required uint64

	actions       *actionStore
	confirmations *confirmationLedger
	limit         *dailyLimitGuard
	effector      Effector
}

// New creates and persists a fresh wallet instance.
// The initial owner set and threshold are immutable except through the
// approval pipeline itself.
func New(db *storage.Storage, addr Address, owners []Address, required, dailyLimit uint64, opts *Options) (*Wallet, error) {
	os, err := newOwnerSet(owners)
	if err != nil {
		return nil, err
	}

	if required < 1 || required > uint64(os.count()) {
		return nil, fmt.Errorf("%w: %d of %d owners", ErrInvalidRequired, required, os.count())
	}

	w := build(db, addr, os, required, opts)
	w.limit = newDailyLimitGuard(db, makeWalletKey(addr, tagLimit), dailyLimit, w.nowFunc(opts))

	if err := w.persistGovernance(); err != nil {
		return nil, fmt.Errorf("persist wallet: %w", err)
	}
	w.limit.persist()

	logger.Info("wallet created",
		"addr", hex.EncodeToString(addr[:8]),
		"owners", os.count(),
		"required", required,
		"daily_limit", dailyLimit,
	)

	return w, nil
}

// Open loads a wallet persisted by a previous run.
func Open(db *storage.Storage, addr Address, opts *Options) (*Wallet, error) {
	ownersRaw, err := db.Get(makeWalletKey(addr, tagOwners))
	if err != nil {
		return nil, err
	}
	if ownersRaw == nil {
		return nil, fmt.Errorf("%w: %x", ErrWalletNotFound, addr[:8])
	}

	os, err := decodeOwnerSet(ownersRaw)
	if err != nil {
		return nil, fmt.Errorf("load owners: %w", err)
	}

	requiredRaw, err := db.Get(makeWalletKey(addr, tagRequired))
	if err != nil {
		return nil, err
	}
	if len(requiredRaw) != 8 {
		return nil, fmt.Errorf("malformed required threshold for %x", addr[:8])
	}

	w := build(db, addr, os, binary.LittleEndian.Uint64(requiredRaw), opts)

	w.limit, err = openDailyLimitGuard(db, makeWalletKey(addr, tagLimit), w.nowFunc(opts))
	if err != nil {
		return nil, fmt.Errorf("load daily limit: %w", err)
	}

	return w, nil
}

// build assembles the wallet aggregate minus the daily-limit guard.
func build(db *storage.Storage, addr Address, os *ownerSet, required uint64, opts *Options) *Wallet {
	w := &Wallet{
		addr:     addr,
		db:       db,
		owners:   os,
		required: required,
		effector: noopEffector{},
	}

	if opts != nil && opts.Effector != nil {
		w.effector = opts.Effector
	}

	w.actions = newActionStore(db, makeWalletKey(addr, tagActions), makeWalletKey(addr, tagSequence))
	w.confirmations = newConfirmationLedger(db, makeWalletKey(addr, tagConfirmations))

	return w
}

// nowFunc resolves the clock option.
func (w *Wallet) nowFunc(opts *Options) func() time.Time {
	if opts != nil && opts.Now != nil {
		return opts.Now
	}

	return time.Now
}

// Propose submits a new action and records the caller's implicit
// confirmation. If the action is already executable — quorum of one, or a
// payload-free transfer within the daily allowance — it executes before
// returning. The returned id is valid even when the error is
// ErrExternalEffectFailed: the proposal fired, the effect did not.
func (w *Wallet) Propose(caller, destination Address, value uint64, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.owners.contains(caller) {
		return 0, ErrUnauthorized
	}

	id, err := w.actions.submit(destination, value, payload)
	if err != nil {
		return 0, err
	}

	// Submission counts as the first approval.
	if err := w.confirmations.confirm(id, caller); err != nil {
		return 0, err
	}

	logger.Debug("action proposed",
		"wallet", hex.EncodeToString(w.addr[:8]),
		"action", id,
		"caller", hex.EncodeToString(caller[:8]),
		"value", value,
	)

	_, err = w.maybeExecute(id)

	return id, err
}

// Confirm records the caller's approval; if quorum is now satisfied (or the
// daily-limit fast path applies to a payload-free transfer), execution is
// attempted within the same call.
func (w *Wallet) Confirm(caller Address, id uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.owners.contains(caller) {
		return ErrUnauthorized
	}

	rec, err := w.actions.get(id)
	if err != nil {
		return err
	}
	if rec.Executed {
		return fmt.Errorf("%w: %d", ErrAlreadyExecuted, id)
	}

	if err := w.confirmations.confirm(id, caller); err != nil {
		return err
	}

	_, err = w.maybeExecute(id)

	return err
}

// Revoke withdraws the caller's approval. Never triggers execution, and
// history of executed actions cannot be rewritten.
func (w *Wallet) Revoke(caller Address, id uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.owners.contains(caller) {
		return ErrUnauthorized
	}

	rec, err := w.actions.get(id)
	if err != nil {
		return err
	}
	if rec.Executed {
		return fmt.Errorf("%w: %d", ErrAlreadyExecuted, id)
	}

	return w.confirmations.revoke(id, caller)
}

// Execute attempts execution of a pending action. The caller must be an
// owner with a live confirmation on the action. Execution proceeds when
// quorum is satisfied against the CURRENT owner set and threshold, or when
// a payload-free transfer fits the daily allowance; otherwise
// ErrQuorumNotMet.
func (w *Wallet) Execute(caller Address, id uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.owners.contains(caller) {
		return ErrUnauthorized
	}

	rec, err := w.actions.get(id)
	if err != nil {
		return err
	}
	if rec.Executed {
		return fmt.Errorf("%w: %d", ErrAlreadyExecuted, id)
	}

	if !w.confirmations.hasConfirmed(id, caller) {
		return fmt.Errorf("%w: %d", ErrNotConfirmed, id)
	}

	executed, err := w.maybeExecute(id)
	if err != nil {
		return err
	}
	if !executed {
		return fmt.Errorf("%w: action %d", ErrQuorumNotMet, id)
	}

	return nil
}

// maybeExecute runs the action if it is executable now: quorum satisfied,
// or payload-free and approved by the daily-limit guard. Returns false
// when the action stays pending. Caller holds the mutex.
func (w *Wallet) maybeExecute(id uint64) (bool, error) {
	rec, err := w.actions.get(id)
	if err != nil {
		return false, err
	}

	if !w.quorumSatisfied(id) {
		if len(rec.Payload) != 0 || !w.limit.tryApprove(rec.Value) {
			return false, nil
		}
	}

	return true, w.execute(id, rec)
}

// quorumSatisfied counts live confirmations against the current owner set
// and current threshold. Nothing is cached from submission time: owner and
// threshold changes retroactively affect every pending action.
func (w *Wallet) quorumSatisfied(id uint64) bool {
	return w.confirmations.count(id, w.owners.contains) >= w.required
}

// execute marks the action executed, then applies its effect. The flag is
// committed to storage before the effect runs and never reverts: a failed
// effect surfaces as ErrExternalEffectFailed and the action is spent.
// Retry means a new proposal.
func (w *Wallet) execute(id uint64, rec *Action) error {
	if err := w.actions.markExecuted(id); err != nil {
		return err
	}

	var err error
	if rec.Destination == w.addr && len(rec.Payload) > 0 {
		err = w.applyInstruction(rec.Payload)
	} else {
		err = w.effector.Apply(rec.Destination, rec.Value, rec.Payload)
	}

	if err != nil {
		logger.Warn("action effect failed",
			"wallet", hex.EncodeToString(w.addr[:8]),
			"action", id,
			"error", err,
		)

		return fmt.Errorf("%w: action %d: %s", ErrExternalEffectFailed, id, err)
	}

	logger.Info("action executed",
		"wallet", hex.EncodeToString(w.addr[:8]),
		"action", id,
		"value", rec.Value,
	)

	return nil
}

// applyInstruction dispatches a governance payload against the wallet's
// own rules. Owner and threshold changes commit together, so the invariant
// 1 <= required <= |owners| cannot be observed broken.
func (w *Wallet) applyInstruction(payload []byte) error {
	in, err := decodeInstruction(payload)
	if err != nil {
		return err
	}

	switch in.kind {
	case instructionAddOwner:
		if err := w.owners.add(in.addr); err != nil {
			return err
		}

		return w.persistGovernance()

	case instructionRemoveOwner:
		if !w.owners.contains(in.addr) {
			return fmt.Errorf("%w: %x", ErrNotAnOwner, in.addr[:8])
		}
		if w.owners.count() == 1 {
			return fmt.Errorf("%w: cannot remove the last owner", ErrInvalidRequired)
		}

		if err := w.owners.remove(in.addr); err != nil {
			return err
		}

		// Clamp rather than leave the threshold above the owner count.
		if w.required > uint64(w.owners.count()) {
			w.required = uint64(w.owners.count())
		}

		return w.persistGovernance()

	case instructionReplaceOwner:
		if err := w.owners.replace(in.addr, in.addr2); err != nil {
			return err
		}

		return w.persistGovernance()

	case instructionChangeRequired:
		if in.amount < 1 || in.amount > uint64(w.owners.count()) {
			return fmt.Errorf("%w: %d of %d owners", ErrInvalidRequired, in.amount, w.owners.count())
		}

		w.required = in.amount

		return w.persistGovernance()

	case instructionChangeDailyLimit:
		w.limit.setLimit(in.amount)

		return nil
	}

	return fmt.Errorf("unknown instruction kind: %d", in.kind)
}

// persistGovernance writes the owner list and threshold in one batch.
func (w *Wallet) persistGovernance() error {
	required := make([]byte, 8)
	binary.LittleEndian.PutUint64(required, w.required)

	return w.db.SetBatch([]storage.KeyValue{
		{Key: makeWalletKey(w.addr, tagOwners), Value: w.owners.encode()},
		{Key: makeWalletKey(w.addr, tagRequired), Value: required},
	})
}

// Address returns the wallet's own address.
func (w *Wallet) Address() Address {
	return w.addr
}

// Owners returns the current ordered owner list.
func (w *Wallet) Owners() []Address {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.owners.owners()
}

// IsOwner reports whether addr is a current owner.
func (w *Wallet) IsOwner(addr Address) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.owners.contains(addr)
}

// Required returns the current quorum threshold.
func (w *Wallet) Required() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.required
}

// DailyLimit returns the current daily allowance.
func (w *Wallet) DailyLimit() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.limit.dailyLimit
}

// CalcMaxWithdraw returns how much may still bypass quorum today.
func (w *Wallet) CalcMaxWithdraw() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.limit.maxWithdraw()
}

// ActionCount returns the total number of submitted actions.
func (w *Wallet) ActionCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.actions.count()
}

// Action returns the stored record of one action.
func (w *Wallet) Action(id uint64) (*Action, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.actions.get(id)
}

// Confirmations returns the current owners with a live confirmation on the
// action, in owner order.
func (w *Wallet) Confirmations(id uint64) ([]Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.actions.get(id); err != nil {
		return nil, err
	}

	return w.confirmations.confirmers(id, w.owners.list), nil
}

// ConfirmationCount returns the number of live current-owner confirmations.
func (w *Wallet) ConfirmationCount(id uint64) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.actions.get(id); err != nil {
		return 0, err
	}

	return w.confirmations.count(id, w.owners.contains), nil
}

// Enumerate returns up to limit action ids in creation order matching the
// pending/executed filter, after skipping the first offset matches.
func (w *Wallet) Enumerate(offset, limit uint64, includePending, includeExecuted bool) []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.actions.enumerate(offset, limit, includePending, includeExecuted)
}

// makeWalletKey builds a namespaced storage key: "w:" + addr + tag.
func makeWalletKey(addr Address, tag byte) []byte {
	key := make([]byte, 0, len(walletKeyPrefix)+33)
	key = append(key, walletKeyPrefix...)
	key = append(key, addr[:]...)
	key = append(key, tag)

	return key
}
