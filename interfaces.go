// Package chatuser defines interfaces for caching, stream context and event
// notification used by the user data layer.
package chatuser

// FieldCache caches a small snapshot of relational fields per username so that
// hot reads (id, level, subscriber) can skip the database entirely. Entries
// are point-in-time snapshots and may be stale up to the cache's clearing
// interval; a miss is a signal to fall through to the store, never an error.
type FieldCache interface {
	// Save stores the snapshot for username, overwriting any prior entry.
	Save(username string, id int64, level int, subscriber bool)
	// ID returns the cached record id, or ok=false on a miss.
	ID(username string) (int64, bool)
	// Level returns the cached privilege level, or ok=false on a miss.
	Level(username string) (int, bool)
	// Subscriber returns the cached subscriber flag, or ok=false on a miss.
	Subscriber(username string) (bool, bool)
	// Clear discards every entry.
	Clear()
}

// StreamContext supplies the identity of the channel the bot is running in and
// the identifier of the currently active broadcast, if any. Redis keys are
// namespaced by the streamer name, and token awards are keyed by stream id.
type StreamContext interface {
	// Streamer returns the channel identity used to namespace redis keys.
	Streamer() string
	// CurrentStreamID returns the active broadcast identifier, or ok=false
	// when no broadcast is live.
	CurrentStreamID() (string, bool)
}

// StaticStream is a fixed StreamContext, useful for single-channel bots and
// for tests.
type StaticStream struct {
	Name     string
	StreamID string
	Live     bool
}

// Streamer returns the configured channel name.
func (s StaticStream) Streamer() string { return s.Name }

// CurrentStreamID returns the configured stream id when Live is set.
func (s StaticStream) CurrentStreamID() (string, bool) {
	if !s.Live {
		return "", false
	}
	return s.StreamID, true
}

// TokenAwardFunc is notified when a user gains tokens through a non-forced
// award. It runs synchronously on the awarding goroutine.
type TokenAwardFunc func(user *User, amount int64)
