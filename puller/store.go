package puller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store owns the SQLite handle holding recent_links and every category table.
type Store struct {
	db *gorm.DB

	mu     sync.Mutex
	tables map[string]struct{}

	// betweenWrites runs inside Persist after the dedup row is written and
	// before the article row. Tests use it to fail the transaction midway.
	betweenWrites func() error
}

func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One writer; transactions must not interleave.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&RecentLink{}); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &Store{db: db, tables: make(map[string]struct{})}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	s.db = nil
	return err
}

// Exists is a point lookup on the unique link index.
func (s *Store) Exists(ctx context.Context, link string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&RecentLink{}).Where("link = ?", link).Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Record adds link to the dedup cache. A second Record of the same link
// returns ErrDuplicateLink.
func (s *Store) Record(ctx context.Context, link string, seen time.Time) error {
	return recordTx(s.db.WithContext(ctx), link, seen)
}

func recordTx(tx *gorm.DB, link string, seen time.Time) error {
	err := tx.Create(&RecentLink{Link: link, FirstSeen: seen.UTC()}).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return ErrDuplicateLink
	}
	return &StorageError{Op: "record", Link: link, Err: err}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// EnsureTable creates the category table if it does not exist yet.
func (s *Store) EnsureTable(ctx context.Context, table string) error {
	if err := checkPartition(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; ok {
		return nil
	}
	m := s.db.WithContext(ctx).Table(table).Migrator()
	if !m.HasTable(table) {
		if err := m.CreateTable(&Article{}); err != nil {
			return &StorageError{Op: "ensure_table", Category: table, Err: err}
		}
	}
	s.tables[table] = struct{}{}
	return nil
}

// Insert writes one article row. It does not check link uniqueness; that is
// the dedup cache's job.
func (s *Store) Insert(ctx context.Context, table string, a *Article) error {
	if err := checkPartition(table); err != nil {
		return err
	}
	return insertTx(s.db.WithContext(ctx), table, a)
}

func insertTx(tx *gorm.DB, table string, a *Article) error {
	if err := tx.Table(table).Create(a).Error; err != nil {
		return &StorageError{Op: "insert", Category: table, Link: a.Link, Err: err}
	}
	return nil
}

// Persist records a.Link in the dedup cache and inserts a into table as one
// transaction: either both rows exist afterwards or neither does.
func (s *Store) Persist(ctx context.Context, table string, a *Article, seen time.Time) error {
	if err := checkPartition(table); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := recordTx(tx, a.Link, seen); err != nil {
			return err
		}
		if s.betweenWrites != nil {
			if err := s.betweenWrites(); err != nil {
				return &StorageError{Op: "persist", Category: table, Link: a.Link, Err: err}
			}
		}
		return insertTx(tx, table, a)
	})
}

// PruneRecentLinks drops dedup entries first seen before cutoff. Links pruned
// this way are ingested again if a feed still lists them.
func (s *Store) PruneRecentLinks(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("first_seen < ?", cutoff.UTC()).Delete(&RecentLink{})
	if res.Error != nil {
		return 0, &StorageError{Op: "prune", Err: res.Error}
	}
	return res.RowsAffected, nil
}

// Partitions lists the category tables present in the store.
func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	var tables []string
	err := s.db.WithContext(ctx).Raw("SELECT name FROM sqlite_master WHERE type = ?", "table").Scan(&tables).Error
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		if checkPartition(t) == nil {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CountArticles(ctx context.Context, table string) (int64, error) {
	if err := checkPartition(table); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.WithContext(ctx).Table(table).Count(&n).Error
	return n, err
}

func (s *Store) CountRecentLinks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&RecentLink{}).Count(&n).Error
	return n, err
}

// ArticlesByLink returns every row for link in table, oldest first.
func (s *Store) ArticlesByLink(ctx context.Context, table, link string) ([]Article, error) {
	if err := checkPartition(table); err != nil {
		return nil, err
	}
	var out []Article
	err := s.db.WithContext(ctx).Table(table).Where("link = ?", link).Order("id asc").Find(&out).Error
	return out, err
}
