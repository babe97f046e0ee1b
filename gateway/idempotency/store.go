// Package idempotency replays the stored response of a mutation retried with
// the same Idempotency-Key instead of executing it twice.
package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	recordKeyPrefix   = "idem:"
	observedKeyPrefix = "observed:"
)

// Record is the response captured for one key.
type Record struct {
	Key         string    `json:"key"`
	Status      int       `json:"status"`
	ContentType string    `json:"contentType,omitempty"`
	Body        []byte    `json:"body"`
	ObservedAt  time.Time `json:"observedAt"`
}

// LevelDBStore persists records with a time index used for pruning.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a store at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("idempotency: store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("idempotency: resolve path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("idempotency: open store: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

// NewMemoryStore returns a store backed by in-memory LevelDB storage.
func NewMemoryStore() (*LevelDBStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("idempotency: open memory store: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lookup returns the record stored under key.
func (s *LevelDBStore) Lookup(ctx context.Context, key string) (*Record, bool, error) {
	buf, err := s.db.Get([]byte(recordKeyPrefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: load record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(buf, &rec); err != nil {
		return nil, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return &rec, true, nil
}

// Save stores rec. An existing record under the same key is kept.
func (s *LevelDBStore) Save(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.Key) == "" {
		return fmt.Errorf("idempotency: record key required")
	}
	if rec.ObservedAt.IsZero() {
		rec.ObservedAt = time.Now()
	}
	rec.ObservedAt = rec.ObservedAt.UTC()
	recordKey := []byte(recordKeyPrefix + rec.Key)
	if ok, err := s.db.Has(recordKey, nil); err != nil {
		return fmt.Errorf("idempotency: check record: %w", err)
	} else if ok {
		return nil
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put(recordKey, buf)
	batch.Put([]byte(observedKey(rec.ObservedAt.UnixNano(), rec.Key)), nil)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("idempotency: save record: %w", err)
	}
	return nil
}

// Prune deletes records observed before cutoff and reports how many were
// removed.
func (s *LevelDBStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffKey := []byte(observedKey(cutoff.UTC().UnixNano(), ""))
	iter := s.db.NewIterator(util.BytesPrefix([]byte(observedKeyPrefix)), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	removed := 0
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if bytes.Compare(iter.Key(), cutoffKey) >= 0 {
			break
		}
		key, _, ok := parseObservedKey(iter.Key())
		if !ok {
			continue
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
		batch.Delete([]byte(recordKeyPrefix + key))
		removed++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("idempotency: iterate records: %w", err)
	}
	if batch.Len() > 0 {
		if err := s.db.Write(batch, nil); err != nil {
			return 0, fmt.Errorf("idempotency: prune: %w", err)
		}
	}
	return removed, nil
}

func observedKey(nanos int64, key string) string {
	return fmt.Sprintf("%s%020d:%s", observedKeyPrefix, nanos, key)
}

func parseObservedKey(raw []byte) (string, int64, bool) {
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return "", 0, false
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[2], nanos, true
}
