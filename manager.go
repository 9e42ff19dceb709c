// manager.go
package chatuser

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/CreativeUnicorns/chatuser/storage"
)

// Manager creates User façades wired to the configured stores. The
// chat-processing loop obtains one façade per username it touches; each
// façade loads lazily and independently.
type Manager struct {
	config *Config
	store  *storage.RedisStore
}

// New builds a Manager from functional options. A database handle, a redis
// client and a stream context are required; logger, field cache, timezone and
// token-award handler are optional.
func New(opts ...Option) (*Manager, error) {
	cfg := &Config{
		logger: NewDefaultLogger(),
		loc:    time.UTC,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.db == nil {
		return nil, ErrMissingDB
	}
	if cfg.rdb == nil {
		return nil, ErrMissingRedis
	}
	if cfg.stream == nil {
		return nil, ErrMissingStream
	}

	return &Manager{
		config: cfg,
		store:  storage.NewRedis(cfg.rdb),
	}, nil
}

// Migrate creates or updates the relational user table.
func (m *Manager) Migrate(ctx context.Context) error {
	return storage.Migrate(m.config.db.WithContext(ctx))
}

// User returns a solo-mode façade for username: relational loads and saves
// run in short transactions of their own. The raw (display-form) username is
// written through to the store so it stays current with how the user last
// appeared in chat.
func (m *Manager) User(ctx context.Context, username string) *User {
	return m.newUser(ctx, username, nil, nil)
}

// UserTx returns a shared-mode façade whose relational record is loaded and
// mutated inside tx. Nothing is committed by the façade; the caller owns the
// transaction. Use this when one batch operation touches many users.
func (m *Manager) UserTx(ctx context.Context, tx *gorm.DB, username string) *User {
	return m.newUser(ctx, username, tx, nil)
}

// UserWithRecord returns a shared-mode façade around an already fetched
// record, skipping the lazy relational load. Batch scans that query many
// records at once use this to avoid per-user lookups.
func (m *Manager) UserWithRecord(ctx context.Context, tx *gorm.DB, username string, rec *storage.Record) *User {
	return m.newUser(ctx, username, tx, rec)
}

func (m *Manager) newUser(ctx context.Context, username string, tx *gorm.DB, rec *storage.Record) *User {
	cfg := m.config
	folded := storage.FoldUsername(username)

	u := &User{
		username:     folded,
		sql:          newSQLAccessor(folded, cfg.db, tx, cfg.fields, cfg.logger).withRecord(rec),
		kv:           newRedisAccessor(folded, m.store, cfg.stream),
		store:        m.store,
		stream:       cfg.stream,
		logger:       cfg.logger,
		loc:          cfg.loc,
		onTokenAward: cfg.onTokenAward,
	}

	if err := u.kv.setUsernameRaw(ctx, username); err != nil {
		cfg.logger.Warn("failed to store raw username",
			"username", folded, "error", err)
	}

	return u
}
