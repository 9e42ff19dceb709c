// Package storage implements the persistence primitives for the user data
// layer: the GORM-mapped user record on the relational side and the
// per-streamer redis keyspace on the key-value side. It contains no business
// logic; lazy loading and caching live in the chatuser package.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Default values applied to newly created user records.
const (
	DefaultLevel  = 100
	DefaultPoints = 0
)

// Record is a persisted chat user row. Username is the case-folded unique
// key; UsernameRaw keeps the display capitalization. ID is assigned by the
// store on first insert.
type Record struct {
	ID                   int64  `gorm:"primaryKey"`
	Username             string `gorm:"size:128;not null;uniqueIndex"`
	UsernameRaw          string `gorm:"size:128"`
	Level                int    `gorm:"not null;default:100"`
	Points               int64  `gorm:"not null;default:0"`
	Subscriber           bool   `gorm:"not null;default:false"`
	MinutesInChatOnline  int    `gorm:"not null;default:0"`
	MinutesInChatOffline int    `gorm:"not null;default:0"`
	DuelStats            []byte `gorm:"type:blob"`
}

// TableName maps Record onto the users table.
func (Record) TableName() string { return "users" }

// NewRecord builds an unsaved Record with default attributes for username.
// The username is case-folded for the unique key; the raw form is kept as the
// display name.
func NewRecord(username string) *Record {
	return &Record{
		Username:    FoldUsername(username),
		UsernameRaw: username,
		Level:       DefaultLevel,
		Points:      DefaultPoints,
	}
}

// FoldUsername normalizes a username to its canonical lookup form.
func FoldUsername(username string) string {
	return strings.ToLower(username)
}

// OpenSQLite opens (or creates) a SQLite database suitable for the user
// table, using the pure Go driver, and applies the usual PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	return db, nil
}

// Migrate creates or updates the users table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// SelectOrCreate looks a user up by case-folded username within tx, inserting
// a default record when none exists. The returned record belongs to tx: when
// tx is an open transaction the insert is only durable once the caller
// commits.
func SelectOrCreate(ctx context.Context, tx *gorm.DB, username string) (*Record, error) {
	folded := FoldUsername(username)

	var rec Record
	err := tx.WithContext(ctx).Where("username = ?", folded).First(&rec).Error
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := NewRecord(username)
	if err := tx.WithContext(ctx).Create(fresh).Error; err != nil {
		return nil, err
	}
	return fresh, nil
}

// Persist writes rec back in its own short transaction. Used by solo-mode
// saves, where the record is detached from any caller-owned session.
func Persist(ctx context.Context, db *gorm.DB, rec *Record) error {
	return db.WithContext(ctx).Save(rec).Error
}
