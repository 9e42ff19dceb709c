// redisuser.go
package chatuser

import (
	"context"
	"time"

	"github.com/CreativeUnicorns/chatuser/storage"
)

// redisAccessor lazily bridges a username to its key-value field set. The
// first read of any field triggers one pipelined round trip fetching every
// field at once; writes go straight to the store, one command per call, and
// update the in-memory copy immediately.
type redisAccessor struct {
	username string
	store    *storage.RedisStore
	stream   StreamContext

	fields storage.UserFields
	loaded bool
}

func newRedisAccessor(username string, store *storage.RedisStore, stream StreamContext) *redisAccessor {
	return &redisAccessor{
		username: username,
		store:    store,
		stream:   stream,
		fields:   storage.UserFields{UsernameRaw: username},
	}
}

func (a *redisAccessor) load(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	fields, err := a.store.LoadUserFields(ctx, a.stream.Streamer(), a.username)
	if err != nil {
		return err
	}
	a.fields = fields
	a.loaded = true
	return nil
}

func (a *redisAccessor) numLines(ctx context.Context) (int64, error) {
	if err := a.load(ctx); err != nil {
		return 0, err
	}
	return a.fields.NumLines, nil
}

func (a *redisAccessor) setNumLines(ctx context.Context, n int64) error {
	a.fields.NumLines = n
	return a.store.SetNumLines(ctx, a.stream.Streamer(), a.username, n)
}

// lastSeen returns the stored UTC timestamp, zero when the user has never
// been seen.
func (a *redisAccessor) lastSeen(ctx context.Context) (time.Time, error) {
	if err := a.load(ctx); err != nil {
		return time.Time{}, err
	}
	return a.fields.LastSeen, nil
}

func (a *redisAccessor) setLastSeen(ctx context.Context, t time.Time) error {
	a.fields.LastSeen = t.UTC()
	return a.store.SetLastSeen(ctx, a.stream.Streamer(), a.username, t)
}

func (a *redisAccessor) lastActive(ctx context.Context) (time.Time, error) {
	if err := a.load(ctx); err != nil {
		return time.Time{}, err
	}
	return a.fields.LastActive, nil
}

func (a *redisAccessor) setLastActive(ctx context.Context, t time.Time) error {
	a.fields.LastActive = t.UTC()
	return a.store.SetLastActive(ctx, a.stream.Streamer(), a.username, t)
}

func (a *redisAccessor) usernameRaw(ctx context.Context) (string, error) {
	if err := a.load(ctx); err != nil {
		return "", err
	}
	return a.fields.UsernameRaw, nil
}

func (a *redisAccessor) setUsernameRaw(ctx context.Context, raw string) error {
	a.fields.UsernameRaw = raw
	return a.store.SetUsernameRaw(ctx, a.stream.Streamer(), a.username, raw)
}

func (a *redisAccessor) ignored(ctx context.Context) (bool, error) {
	if err := a.load(ctx); err != nil {
		return false, err
	}
	return a.fields.Ignored, nil
}

func (a *redisAccessor) setIgnored(ctx context.Context, on bool) error {
	a.fields.Ignored = on
	return a.store.SetIgnored(ctx, a.stream.Streamer(), a.username, on)
}

func (a *redisAccessor) banned(ctx context.Context) (bool, error) {
	if err := a.load(ctx); err != nil {
		return false, err
	}
	return a.fields.Banned, nil
}

func (a *redisAccessor) setBanned(ctx context.Context, on bool) error {
	a.fields.Banned = on
	return a.store.SetBanned(ctx, a.stream.Streamer(), a.username, on)
}

// isNew reports whether the user has never been seen in chat before, derived
// from the absence of a last-seen timestamp.
func (a *redisAccessor) isNew(ctx context.Context) (bool, error) {
	seen, err := a.lastSeen(ctx)
	if err != nil {
		return false, err
	}
	return seen.IsZero(), nil
}
