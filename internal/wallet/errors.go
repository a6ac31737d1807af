package wallet

import "errors"

var (
	// ErrUnauthorized is returned when the caller is not a current owner,
	// or attempts a privileged mutation outside the approval pipeline.
	ErrUnauthorized = errors.New("caller is not an owner")

	// ErrNoSuchAction is returned for an unknown action id.
	ErrNoSuchAction = errors.New("no such action")

	// ErrAlreadyExecuted is returned when the action's executed flag is already set.
	ErrAlreadyExecuted = errors.New("action already executed")

	// ErrAlreadyConfirmed is returned when the caller already confirmed the action.
	ErrAlreadyConfirmed = errors.New("action already confirmed")

	// ErrNotConfirmed is returned when the caller has no live confirmation on the action.
	ErrNotConfirmed = errors.New("action not confirmed")

	// ErrQuorumNotMet is returned when executing with fewer live confirmations than required.
	ErrQuorumNotMet = errors.New("quorum not met")

	// ErrDuplicateOwner is returned when adding an address that is already an owner.
	ErrDuplicateOwner = errors.New("duplicate owner")

	// ErrNotAnOwner is returned when removing or replacing an address that is not an owner.
	ErrNotAnOwner = errors.New("not an owner")

	// ErrInvalidRequired is returned when the threshold would fall outside [1, owner count].
	ErrInvalidRequired = errors.New("required confirmations out of range")

	// ErrOwnerLimit is returned when adding an owner would exceed the owner cap.
	ErrOwnerLimit = errors.New("owner limit exceeded")

	// ErrExternalEffectFailed reports a dispatched effect that itself failed.
	// The action stays marked executed; retry requires a new proposal.
	ErrExternalEffectFailed = errors.New("external effect failed")

	// ErrWalletNotFound is returned when opening an address with no persisted state.
	ErrWalletNotFound = errors.New("wallet not found")
)
