package wallet

import (
	"encoding/binary"
	"fmt"

	"CoVault/internal/storage"
)

// Action is the stored record of a proposed effect.
type Action struct {
	ID          uint64
	Destination Address
	Value       uint64
	Payload     []byte
	Executed    bool
}

// actionStore owns the durable action table: records keyed by a
// monotonically increasing id. Ids are append-only and never reused,
// so confirmation entries can reference them indefinitely.
type actionStore struct {
	db        *storage.Storage
	keyPrefix []byte // prefix for action records
	seqKey    []byte // key holding the next id
}

// newActionStore creates an action store over the given key namespace.
func newActionStore(db *storage.Storage, keyPrefix, seqKey []byte) *actionStore {
	return &actionStore{db: db, keyPrefix: keyPrefix, seqKey: seqKey}
}

// count returns the total number of submitted actions.
func (s *actionStore) count() uint64 {
	value, err := s.db.Get(s.seqKey)
	if err != nil || len(value) != 8 {
		return 0
	}

	return binary.LittleEndian.Uint64(value)
}

// submit allocates the next id and stores the record with executed=false.
// Destination and value are taken as given; validation belongs to the engine.
func (s *actionStore) submit(destination Address, value uint64, payload []byte) (uint64, error) {
	id := s.count()

	seq := make([]byte, 8)
	binary.LittleEndian.PutUint64(seq, id+1)

	rec := &Action{ID: id, Destination: destination, Value: value, Payload: payload}

	err := s.db.SetBatch([]storage.KeyValue{
		{Key: s.makeKey(id), Value: encodeAction(rec)},
		{Key: s.seqKey, Value: seq},
	})
	if err != nil {
		return 0, fmt.Errorf("store action: %w", err)
	}

	return id, nil
}

// get loads an action record. Fails with ErrNoSuchAction for unknown ids.
func (s *actionStore) get(id uint64) (*Action, error) {
	value, err := s.db.Get(s.makeKey(id))
	if err != nil {
		return nil, fmt.Errorf("load action %d: %w", id, err)
	}
	if value == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchAction, id)
	}

	rec, err := decodeAction(value)
	if err != nil {
		return nil, fmt.Errorf("decode action %d: %w", id, err)
	}
	rec.ID = id

	return rec, nil
}

// markExecuted flips the executed flag, exactly once.
func (s *actionStore) markExecuted(id uint64) error {
	rec, err := s.get(id)
	if err != nil {
		return err
	}
	if rec.Executed {
		return fmt.Errorf("%w: %d", ErrAlreadyExecuted, id)
	}

	rec.Executed = true

	return s.db.Set(s.makeKey(id), encodeAction(rec))
}

// enumerate scans ids in creation order and returns up to limit ids
// matching the pending/executed predicate, after skipping the first
// offset matches. Both filters false always yields an empty result.
func (s *actionStore) enumerate(offset, limit uint64, includePending, includeExecuted bool) []uint64 {
	ids := []uint64{}
	if limit == 0 || (!includePending && !includeExecuted) {
		return ids
	}

	var skipped uint64

	_ = s.db.IteratePrefix(s.keyPrefix, func(key, value []byte) error {
		rec, err := decodeAction(value)
		if err != nil {
			return err
		}

		if rec.Executed && !includeExecuted {
			return nil
		}
		if !rec.Executed && !includePending {
			return nil
		}

		if skipped < offset {
			skipped++
			return nil
		}

		ids = append(ids, binary.BigEndian.Uint64(key[len(s.keyPrefix):]))
		if uint64(len(ids)) >= limit {
			return errEnumerateDone
		}

		return nil
	})

	return ids
}

// errEnumerateDone stops prefix iteration early once limit is reached.
var errEnumerateDone = fmt.Errorf("enumeration complete")

// makeKey builds the storage key for an action id.
// Ids are big-endian so lexicographic key order matches creation order.
func (s *actionStore) makeKey(id uint64) []byte {
	key := make([]byte, len(s.keyPrefix)+8)
	copy(key, s.keyPrefix)
	binary.BigEndian.PutUint64(key[len(s.keyPrefix):], id)

	return key
}

// encodeAction serializes a record:
// destination[32] || value u64 LE || executed u8 || payload len u32 LE || payload.
func encodeAction(rec *Action) []byte {
	buf := make([]byte, 0, 32+8+1+4+len(rec.Payload))
	buf = append(buf, rec.Destination[:]...)

	var num [8]byte
	binary.LittleEndian.PutUint64(num[:], rec.Value)
	buf = append(buf, num[:]...)

	if rec.Executed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	binary.LittleEndian.PutUint32(num[:4], uint32(len(rec.Payload)))
	buf = append(buf, num[:4]...)
	buf = append(buf, rec.Payload...)

	return buf
}

// decodeAction deserializes a record written by encodeAction.
func decodeAction(data []byte) (*Action, error) {
	if len(data) < 32+8+1+4 {
		return nil, fmt.Errorf("action record too short: %d bytes", len(data))
	}

	rec := &Action{}
	copy(rec.Destination[:], data[:32])
	rec.Value = binary.LittleEndian.Uint64(data[32:40])
	rec.Executed = data[40] == 1

	payloadLen := binary.LittleEndian.Uint32(data[41:45])
	if uint32(len(data)-45) < payloadLen {
		return nil, fmt.Errorf("action record truncated: want %d payload bytes", payloadLen)
	}

	if payloadLen > 0 {
		rec.Payload = make([]byte, payloadLen)
		copy(rec.Payload, data[45:45+payloadLen])
	}

	return rec, nil
}
