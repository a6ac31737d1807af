package wallet

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"CoVault/internal/storage"
)

const (
	// snapshotVersion is the current snapshot format version.
	snapshotVersion = 1
)

// Export serializes all persisted state of one wallet into a
// zstd-compressed frame. The frame is self-contained: governance state,
// the action table, the confirmation relation, and the daily-limit state.
func Export(db *storage.Storage, addr Address) ([]byte, error) {
	prefix := make([]byte, 0, len(walletKeyPrefix)+32)
	prefix = append(prefix, walletKeyPrefix...)
	prefix = append(prefix, addr[:]...)

	var pairs []storage.KeyValue

	err := db.IteratePrefix(prefix, func(key, value []byte) error {
		keyCopy := make([]byte, len(key))
		copy(keyCopy, key)

		valueCopy := make([]byte, len(value))
		copy(valueCopy, value)

		pairs = append(pairs, storage.KeyValue{Key: keyCopy, Value: valueCopy})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect wallet state: %w", err)
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: %x", ErrWalletNotFound, addr[:8])
	}

	raw := encodeSnapshot(pairs)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	return enc.EncodeAll(raw, nil), nil
}

// Import restores a wallet snapshot into the given store.
// All pairs are written in one batch.
func Import(db *storage.Storage, data []byte) error {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return err
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}

	pairs, err := decodeSnapshot(raw)
	if err != nil {
		return err
	}

	return db.SetBatch(pairs)
}

// encodeSnapshot builds the uncompressed frame:
// u8 version || u32 count || count * (u32 keyLen, key, u32 valLen, val).
func encodeSnapshot(pairs []storage.KeyValue) []byte {
	size := 1 + 4
	for _, kv := range pairs {
		size += 8 + len(kv.Key) + len(kv.Value)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, snapshotVersion)

	var num [4]byte
	binary.LittleEndian.PutUint32(num[:], uint32(len(pairs)))
	buf = append(buf, num[:]...)

	for _, kv := range pairs {
		binary.LittleEndian.PutUint32(num[:], uint32(len(kv.Key)))
		buf = append(buf, num[:]...)
		buf = append(buf, kv.Key...)

		binary.LittleEndian.PutUint32(num[:], uint32(len(kv.Value)))
		buf = append(buf, num[:]...)
		buf = append(buf, kv.Value...)
	}

	return buf
}

// decodeSnapshot parses a frame written by encodeSnapshot.
func decodeSnapshot(raw []byte) ([]storage.KeyValue, error) {
	if len(raw) < 5 {
		return nil, fmt.Errorf("snapshot too short: %d bytes", len(raw))
	}

	if raw[0] != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version: %d", raw[0])
	}

	count := binary.LittleEndian.Uint32(raw[1:5])
	offset := uint32(5)

	pairs := make([]storage.KeyValue, 0, count)

	readChunk := func() ([]byte, error) {
		if uint32(len(raw)) < offset+4 {
			return nil, fmt.Errorf("snapshot truncated at offset %d", offset)
		}

		n := binary.LittleEndian.Uint32(raw[offset : offset+4])
		offset += 4

		if uint32(len(raw)) < offset+n {
			return nil, fmt.Errorf("snapshot truncated at offset %d", offset)
		}

		chunk := make([]byte, n)
		copy(chunk, raw[offset:offset+n])
		offset += n

		return chunk, nil
	}

	for i := uint32(0); i < count; i++ {
		key, err := readChunk()
		if err != nil {
			return nil, err
		}

		value, err := readChunk()
		if err != nil {
			return nil, err
		}

		pairs = append(pairs, storage.KeyValue{Key: key, Value: value})
	}

	return pairs, nil
}
