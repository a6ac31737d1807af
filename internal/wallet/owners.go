package wallet

import "fmt"

const (
	// MaxOwners caps the owner set so every owner scan stays bounded.
	MaxOwners = 50
)

// Address is a 32-byte account identifier (an Ed25519 public key).
type Address [32]byte

// AddressFromBytes converts a 32-byte slice into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != 32 {
		return Address{}, fmt.Errorf("invalid address length: %d", len(b))
	}

	var a Address
	copy(a[:], b)

	return a, nil
}

// ownerSet is the ordered set of co-owners.
// Mutations are reachable only through governance dispatch in the engine's
// execute path; positions are stable except through replace.
type ownerSet struct {
	list  []Address
	index map[Address]int
}

// newOwnerSet builds an owner set from an ordered address list.
// Rejects duplicates, empty sets, and sets above MaxOwners.
func newOwnerSet(addrs []Address) (*ownerSet, error) {
	if len(addrs) == 0 {
		return nil, ErrInvalidRequired
	}
	if len(addrs) > MaxOwners {
		return nil, ErrOwnerLimit
	}

	os := &ownerSet{
		list:  make([]Address, len(addrs)),
		index: make(map[Address]int, len(addrs)),
	}

	for i, a := range addrs {
		if _, exists := os.index[a]; exists {
			return nil, fmt.Errorf("%w: %x", ErrDuplicateOwner, a[:8])
		}
		os.list[i] = a
		os.index[a] = i
	}

	return os, nil
}

// contains reports whether addr is a current owner.
func (os *ownerSet) contains(addr Address) bool {
	_, exists := os.index[addr]
	return exists
}

// count returns the number of owners.
func (os *ownerSet) count() int {
	return len(os.list)
}

// owners returns a copy of the ordered owner list.
func (os *ownerSet) owners() []Address {
	out := make([]Address, len(os.list))
	copy(out, os.list)

	return out
}

// add appends a new owner.
func (os *ownerSet) add(addr Address) error {
	if os.contains(addr) {
		return fmt.Errorf("%w: %x", ErrDuplicateOwner, addr[:8])
	}
	if len(os.list) >= MaxOwners {
		return ErrOwnerLimit
	}

	os.index[addr] = len(os.list)
	os.list = append(os.list, addr)

	return nil
}

// remove deletes an owner, shifting later owners down one position.
func (os *ownerSet) remove(addr Address) error {
	pos, exists := os.index[addr]
	if !exists {
		return fmt.Errorf("%w: %x", ErrNotAnOwner, addr[:8])
	}

	os.list = append(os.list[:pos], os.list[pos+1:]...)
	delete(os.index, addr)

	for i := pos; i < len(os.list); i++ {
		os.index[os.list[i]] = i
	}

	return nil
}

// replace swaps old for new in place, preserving position.
func (os *ownerSet) replace(old, new Address) error {
	pos, exists := os.index[old]
	if !exists {
		return fmt.Errorf("%w: %x", ErrNotAnOwner, old[:8])
	}
	if os.contains(new) {
		return fmt.Errorf("%w: %x", ErrDuplicateOwner, new[:8])
	}

	os.list[pos] = new
	delete(os.index, old)
	os.index[new] = pos

	return nil
}

// encode serializes the owner list as concatenated 32-byte addresses.
func (os *ownerSet) encode() []byte {
	buf := make([]byte, 0, len(os.list)*32)
	for _, a := range os.list {
		buf = append(buf, a[:]...)
	}

	return buf
}

// decodeOwnerSet deserializes an owner list written by encode.
func decodeOwnerSet(data []byte) (*ownerSet, error) {
	if len(data) == 0 || len(data)%32 != 0 {
		return nil, fmt.Errorf("malformed owner list: %d bytes", len(data))
	}

	addrs := make([]Address, len(data)/32)
	for i := range addrs {
		copy(addrs[i][:], data[i*32:(i+1)*32])
	}

	return newOwnerSet(addrs)
}
