package wallet

import (
	"encoding/binary"
	"fmt"

	"CoVault/internal/storage"
)

// confirmationLedger records which owners approved which actions.
// Entries reference actions by id and are never migrated or rewritten
// when the owner set changes: an approval by a since-removed owner stays
// recorded but stops counting toward quorum.
type confirmationLedger struct {
	db        *storage.Storage
	keyPrefix []byte
}

// newConfirmationLedger creates a confirmation ledger over the given namespace.
func newConfirmationLedger(db *storage.Storage, keyPrefix []byte) *confirmationLedger {
	return &confirmationLedger{db: db, keyPrefix: keyPrefix}
}

// confirm records owner's approval of the action.
func (c *confirmationLedger) confirm(id uint64, owner Address) error {
	key := c.makeKey(id, owner)

	if c.db.Has(key) {
		return fmt.Errorf("%w: action %d by %x", ErrAlreadyConfirmed, id, owner[:8])
	}

	return c.db.Set(key, []byte{1})
}

// revoke removes owner's approval of the action.
func (c *confirmationLedger) revoke(id uint64, owner Address) error {
	key := c.makeKey(id, owner)

	if !c.db.Has(key) {
		return fmt.Errorf("%w: action %d by %x", ErrNotConfirmed, id, owner[:8])
	}

	return c.db.Delete(key)
}

// hasConfirmed reports whether owner has a live confirmation on the action.
func (c *confirmationLedger) hasConfirmed(id uint64, owner Address) bool {
	return c.db.Has(c.makeKey(id, owner))
}

// count returns the number of recorded approvals from CURRENT owners.
// Approvals from addresses outside the given membership test are skipped.
func (c *confirmationLedger) count(id uint64, isOwner func(Address) bool) uint64 {
	prefix := c.makeIDPrefix(id)

	var n uint64
	_ = c.db.IteratePrefix(prefix, func(key, value []byte) error {
		addr, err := AddressFromBytes(key[len(prefix):])
		if err != nil {
			return nil
		}

		if isOwner(addr) {
			n++
		}

		return nil
	})

	return n
}

// confirmers returns the current owners with a live confirmation, in owner order.
func (c *confirmationLedger) confirmers(id uint64, owners []Address) []Address {
	out := []Address{}
	for _, o := range owners {
		if c.hasConfirmed(id, o) {
			out = append(out, o)
		}
	}

	return out
}

// makeIDPrefix builds the key prefix covering all confirmations of an action.
func (c *confirmationLedger) makeIDPrefix(id uint64) []byte {
	prefix := make([]byte, len(c.keyPrefix)+8)
	copy(prefix, c.keyPrefix)
	binary.BigEndian.PutUint64(prefix[len(c.keyPrefix):], id)

	return prefix
}

// makeKey builds the storage key for an (action id, owner) pair.
func (c *confirmationLedger) makeKey(id uint64, owner Address) []byte {
	prefix := c.makeIDPrefix(id)
	key := make([]byte, len(prefix)+32)
	copy(key, prefix)
	copy(key[len(prefix):], owner[:])

	return key
}
