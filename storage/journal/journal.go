// Package journal records every committed engine operation in SQL for audit
// and replay tooling.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrDSNRequired is returned when no database is configured.
var ErrDSNRequired = errors.New("journal: dsn must be configured")

// Entry is one committed operation.
type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequestID string    `gorm:"index"`
	Kind      string    `gorm:"index;not null"`
	Account   string    `gorm:"index"`
	Outcome   string    `gorm:"type:text;not null"`
	Digest    string
	CreatedAt time.Time `gorm:"index"`
}

// Journal appends entries. It is safe for concurrent use.
type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to dsn. postgres:// and postgresql:// URLs use Postgres;
// anything else is a SQLite path or DSN.
func Open(dsn string) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrDSNRequired
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db)
}

// New migrates the schema on db.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, ErrDSNRequired
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close releases the connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores outcome as JSON under kind. An empty requestID is replaced by
// a fresh one.
func (j *Journal) Record(ctx context.Context, requestID, kind, account string, outcome any, digest string) (*Entry, error) {
	if j == nil {
		return nil, fmt.Errorf("journal: not configured")
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("journal: encode outcome: %w", err)
	}
	if strings.TrimSpace(requestID) == "" {
		requestID = uuid.NewString()
	}
	entry := &Entry{
		ID:        uuid.New(),
		RequestID: requestID,
		Kind:      strings.TrimSpace(kind),
		Account:   strings.ToLower(strings.TrimSpace(account)),
		Outcome:   string(payload),
		Digest:    digest,
		CreatedAt: j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("journal: insert: %w", err)
	}
	return entry, nil
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Kind    string
	Account string
	Limit   int
}

// List returns matching entries, newest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	q := j.filtered(ctx, f)
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []Entry
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return out, nil
}

func (j *Journal) filtered(ctx context.Context, f Filter) *gorm.DB {
	q := j.db.WithContext(ctx).Model(&Entry{})
	if kind := strings.TrimSpace(f.Kind); kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if account := strings.ToLower(strings.TrimSpace(f.Account)); account != "" {
		q = q.Where("account = ?", account)
	}
	return q
}
