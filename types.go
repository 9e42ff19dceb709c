// Package chatuser defines the core configuration types for the user data layer.
package chatuser

import (
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// State is the transient, non-store-backed portion of a User: outstanding
// debts and moderation bookkeeping. It is returned by User.Save so the owning
// process can persist it through its own state mechanism; it is never written
// to the relational row or the redis keyspace by this package.
type State struct {
	Debts      []int64   `json:"debts"`
	Moderator  bool      `json:"moderator"`
	TimedOut   bool      `json:"timed_out"`
	TimeoutEnd time.Time `json:"timeout_end"`
}

// WarningPolicy configures graduated timeout warnings. A user gets
// TotalChances reduced timeouts (BaseTimeout seconds times the number of
// chances already used, plus one) before the full requested timeout applies.
// Each consumed chance is recorded in redis under a key derived from Prefix
// and expires after Lifetime.
type WarningPolicy struct {
	TotalChances int
	BaseTimeout  int
	Prefix       string
	Lifetime     time.Duration
}

// Config holds the internal configuration for a Manager instance.
// It is populated by applying functional Options (e.g. WithDB, WithRedis)
// when a new Manager is created with New().
type Config struct {
	// db is the relational database handle used for user records.
	db *gorm.DB
	// rdb is the redis client backing counters, flags, warnings and tokens.
	rdb redis.UniversalClient
	// fields is the optional short-lived relational field cache.
	fields FieldCache
	// stream supplies the streamer identity and current broadcast id.
	stream StreamContext
	// logger is the logging interface used throughout the package.
	logger Logger
	// onTokenAward, if set, is invoked after a successful non-forced token award.
	onTokenAward TokenAwardFunc
	// loc is the display timezone for activity timestamps.
	loc *time.Location
}

// Option defines the signature for a functional option that configures a
// Manager instance. Functions of this type are passed to New().
type Option func(*Config)

// WithDB sets the GORM database handle user records are persisted to.
// This is a mandatory option.
func WithDB(db *gorm.DB) Option {
	return func(c *Config) {
		c.db = db
	}
}

// WithRedis sets the redis client backing the key-value side of every user.
// This is a mandatory option.
func WithRedis(rdb redis.UniversalClient) Option {
	return func(c *Config) {
		c.rdb = rdb
	}
}

// WithFieldCache sets the short-lived field cache consulted before relational
// loads. Without it every id/level/subscriber read falls through to the
// database. This option is optional.
func WithFieldCache(fc FieldCache) Option {
	return func(c *Config) {
		c.fields = fc
	}
}

// WithStream sets the StreamContext supplying channel identity and the current
// broadcast id. This is a mandatory option.
func WithStream(s StreamContext) Option {
	return func(c *Config) {
		c.stream = s
	}
}

// WithLogger sets the Logger implementation used by the Manager and every
// User it creates. If not set, a default slog-backed logger is used.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		c.logger = l
	}
}

// WithTokenAwardHandler sets the callback fired when a user gains tokens
// through a non-forced award.
func WithTokenAwardHandler(fn TokenAwardFunc) Option {
	return func(c *Config) {
		c.onTokenAward = fn
	}
}

// WithLocation sets the display timezone applied to last-seen and last-active
// reads. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *Config) {
		c.loc = loc
	}
}
