package ledger

import (
	"errors"
	"fmt"

	"CoVault/internal/storage"
)

// balanceKeyPrefix is the storage key prefix for account balances.
var balanceKeyPrefix = []byte("b:")

var (
	// ErrInsufficientFunds is returned when a transfer exceeds the source balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAmountOverflow is returned when a credit would overflow the balance.
	ErrAmountOverflow = errors.New("balance overflow")
)

// Address is a 32-byte account identifier.
type Address [32]byte

// Ledger tracks native balances per address, backed by persistent storage.
// Callers are responsible for serializing mutations to the same account.
type Ledger struct {
	db *storage.Storage
}

// New creates a ledger backed by the given storage.
func New(db *storage.Storage) *Ledger {
	return &Ledger{db: db}
}

// Balance returns the balance of an address. Unknown addresses have balance 0.
func (l *Ledger) Balance(addr Address) uint64 {
	value, err := l.db.Get(makeBalanceKey(addr))
	if err != nil || len(value) != 8 {
		return 0
	}

	return decodeAmount(value)
}

// Deposit credits an address with the given amount.
func (l *Ledger) Deposit(addr Address, amount uint64) error {
	balance := l.Balance(addr)
	if balance+amount < balance {
		return ErrAmountOverflow
	}

	return l.db.Set(makeBalanceKey(addr), encodeAmount(balance+amount))
}

// Transfer moves amount from one address to another.
// Fails with ErrInsufficientFunds if the source balance is too low;
// no balance changes on failure.
func (l *Ledger) Transfer(from, to Address, amount uint64) error {
	if amount == 0 {
		return nil
	}

	if from == to {
		// Self-transfer is a no-op once the balance covers it.
		if l.Balance(from) < amount {
			return ErrInsufficientFunds
		}
		return nil
	}

	fromBalance := l.Balance(from)
	if fromBalance < amount {
		return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, fromBalance, amount)
	}

	toBalance := l.Balance(to)
	if toBalance+amount < toBalance {
		return ErrAmountOverflow
	}

	// Both sides commit together
	return l.db.SetBatch([]storage.KeyValue{
		{Key: makeBalanceKey(from), Value: encodeAmount(fromBalance - amount)},
		{Key: makeBalanceKey(to), Value: encodeAmount(toBalance + amount)},
	})
}

// makeBalanceKey builds the storage key for an address: "b:" + addr bytes.
func makeBalanceKey(addr Address) []byte {
	key := make([]byte, len(balanceKeyPrefix)+len(addr))
	copy(key, balanceKeyPrefix)
	copy(key[len(balanceKeyPrefix):], addr[:])

	return key
}
