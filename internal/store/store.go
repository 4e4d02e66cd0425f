// Package store is the gorm-backed persistence layer for services, probe
// results, alert rules, notifications, log entries and users.
package store

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrConflict = errors.New("store: record already exists")
)

// Store wraps a shared *gorm.DB. It is safe for concurrent use.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for read-only aggregate queries.
func (s *Store) DB() *gorm.DB { return s.db }

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	}
	return err
}

// ownedServices scopes a query on a table with a service_id column to the
// services of one owner. owner 0 means no scoping.
func ownedServices(owner int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if owner == 0 {
			return db
		}
		return db.Where("service_id IN (?)", db.Session(&gorm.Session{NewDB: true}).
			Table("services").Select("id").Where("owner_id = ?", owner))
	}
}
