package wallet

import (
	"encoding/binary"
	"fmt"
)

// A self-targeted action carries a governance instruction in its payload.
// The encoding is a tag byte followed by fixed-width little-endian args,
// keeping dispatch a closed, exhaustive set.

// instructionKind tags a governance instruction.
type instructionKind uint8

const (
	instructionAddOwner instructionKind = iota + 1
	instructionRemoveOwner
	instructionReplaceOwner
	instructionChangeRequired
	instructionChangeDailyLimit
)

// instruction is a decoded governance payload.
type instruction struct {
	kind   instructionKind
	addr   Address // AddOwner, RemoveOwner, ReplaceOwner (old)
	addr2  Address // ReplaceOwner (new)
	amount uint64  // ChangeRequired, ChangeDailyLimit
}

// EncodeAddOwner builds the payload for adding an owner.
func EncodeAddOwner(addr Address) []byte {
	return append([]byte{byte(instructionAddOwner)}, addr[:]...)
}

// EncodeRemoveOwner builds the payload for removing an owner.
func EncodeRemoveOwner(addr Address) []byte {
	return append([]byte{byte(instructionRemoveOwner)}, addr[:]...)
}

// EncodeReplaceOwner builds the payload for swapping old with new in place.
func EncodeReplaceOwner(old, new Address) []byte {
	buf := append([]byte{byte(instructionReplaceOwner)}, old[:]...)
	return append(buf, new[:]...)
}

// EncodeChangeRequired builds the payload for changing the quorum threshold.
func EncodeChangeRequired(required uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = byte(instructionChangeRequired)
	binary.LittleEndian.PutUint64(buf[1:], required)

	return buf
}

// EncodeChangeDailyLimit builds the payload for changing the daily allowance.
func EncodeChangeDailyLimit(limit uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = byte(instructionChangeDailyLimit)
	binary.LittleEndian.PutUint64(buf[1:], limit)

	return buf
}

// decodeInstruction parses a governance payload.
func decodeInstruction(data []byte) (*instruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty governance payload")
	}

	in := &instruction{kind: instructionKind(data[0])}
	args := data[1:]

	switch in.kind {
	case instructionAddOwner, instructionRemoveOwner:
		addr, err := AddressFromBytes(args)
		if err != nil {
			return nil, fmt.Errorf("owner arg: %w", err)
		}
		in.addr = addr

	case instructionReplaceOwner:
		if len(args) != 64 {
			return nil, fmt.Errorf("replace args: got %d bytes, want 64", len(args))
		}
		copy(in.addr[:], args[:32])
		copy(in.addr2[:], args[32:])

	case instructionChangeRequired, instructionChangeDailyLimit:
		if len(args) != 8 {
			return nil, fmt.Errorf("amount arg: got %d bytes, want 8", len(args))
		}
		in.amount = binary.LittleEndian.Uint64(args)

	default:
		return nil, fmt.Errorf("unknown instruction kind: %d", in.kind)
	}

	return in, nil
}
