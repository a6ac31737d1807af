package ledger

import "encoding/binary"

// Amounts are stored as 8-byte little-endian values.

// encodeAmount serializes an amount.
func encodeAmount(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)

	return buf
}

// decodeAmount deserializes an amount.
func decodeAmount(data []byte) uint64 {
	return binary.LittleEndian.Uint64(data)
}
