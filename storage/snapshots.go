package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"gravitywell/core"
)

var (
	keyLatest   = []byte("engine/snapshot/latest")
	keySequence = []byte("engine/snapshot/seq")
	prefixByNum = "engine/snapshot/n/"
)

// SnapshotStore keeps the latest engine snapshot plus a bounded history.
type SnapshotStore struct {
	db      Database
	history uint64
}

// NewSnapshotStore keeps up to history older snapshots besides the latest.
// Zero disables history.
func NewSnapshotStore(db Database, history uint64) *SnapshotStore {
	return &SnapshotStore{db: db, history: history}
}

// Save persists snap as the latest snapshot and returns its sequence number.
func (s *SnapshotStore) Save(snap *core.Snapshot) (uint64, error) {
	if snap == nil {
		return 0, fmt.Errorf("storage: nil snapshot")
	}
	buf, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("storage: encode snapshot: %w", err)
	}
	seq, err := s.sequence()
	if err != nil {
		return 0, err
	}
	seq++
	if s.history > 0 {
		if err := s.db.Put(numberKey(seq), buf); err != nil {
			return 0, err
		}
		if seq > s.history {
			if err := s.db.Delete(numberKey(seq - s.history)); err != nil {
				return 0, err
			}
		}
	}
	if err := s.db.Put(keyLatest, buf); err != nil {
		return 0, err
	}
	if err := s.db.Put(keySequence, binary.BigEndian.AppendUint64(nil, seq)); err != nil {
		return 0, err
	}
	return seq, nil
}

// Latest returns the most recent snapshot, or ErrNotFound.
func (s *SnapshotStore) Latest() (*core.Snapshot, error) {
	return s.load(keyLatest)
}

// At returns the snapshot saved with sequence seq while it is retained.
func (s *SnapshotStore) At(seq uint64) (*core.Snapshot, error) {
	return s.load(numberKey(seq))
}

func (s *SnapshotStore) load(key []byte) (*core.Snapshot, error) {
	buf, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	var snap core.Snapshot
	if err := json.Unmarshal(buf, &snap); err != nil {
		return nil, fmt.Errorf("storage: decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SnapshotStore) sequence() (uint64, error) {
	buf, err := s.db.Get(keySequence)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(buf) != 8 {
		return 0, fmt.Errorf("storage: corrupt snapshot sequence")
	}
	return binary.BigEndian.Uint64(buf), nil
}

func numberKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte(prefixByNum), seq)
}
