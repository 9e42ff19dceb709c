// storage/redis.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis field names within the per-streamer user namespace. The pipelined
// load in LoadUserFields decodes positionally in exactly this order:
// the sorted-set counter first, then the hash fields, then the flags.
const (
	fieldNumLines    = "num_lines"
	fieldLastSeen    = "last_seen"
	fieldLastActive  = "last_active"
	fieldUsernameRaw = "username_raw"
	fieldIgnored     = "ignored"
	fieldBanned      = "banned"
)

// tagsKey is the global hash holding per-user tag blobs.
const tagsKey = "global:usertags"

// flagSentinel is the value stored for a set boolean field. Only presence
// matters on read.
const flagSentinel = "1"

// UserFields is the decoded key-value field set for one user. Zero
// timestamps mean the field was absent from the store.
type UserFields struct {
	NumLines    int64
	LastSeen    time.Time
	LastActive  time.Time
	UsernameRaw string
	Ignored     bool
	Banned      bool
}

// RedisStore issues the raw redis commands for user fields, warnings, tags
// and the token ledger. Keys are namespaced per streamer; every method takes
// the streamer explicitly so one store serves any channel.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing redis client.
func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// usersKey builds the per-streamer key holding field for all users.
func usersKey(streamer, field string) string {
	return fmt.Sprintf("%s:users:%s", streamer, field)
}

// TokensKey builds the per-user token ledger key.
func TokensKey(streamer, username string) string {
	return fmt.Sprintf("%s:%s:tokens", streamer, username)
}

// LoadUserFields fetches every key-value field for username in a single
// pipelined round trip and decodes them with per-field defaults: counter 0,
// timestamps absent, display name falling back to username, flags false.
// Malformed stored values count as absent.
func (s *RedisStore) LoadUserFields(ctx context.Context, streamer, username string) (UserFields, error) {
	pipe := s.client.Pipeline()
	lines := pipe.ZScore(ctx, usersKey(streamer, fieldNumLines), username)
	seen := pipe.HGet(ctx, usersKey(streamer, fieldLastSeen), username)
	active := pipe.HGet(ctx, usersKey(streamer, fieldLastActive), username)
	raw := pipe.HGet(ctx, usersKey(streamer, fieldUsernameRaw), username)
	ignored := pipe.HGet(ctx, usersKey(streamer, fieldIgnored), username)
	banned := pipe.HGet(ctx, usersKey(streamer, fieldBanned), username)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return UserFields{}, fmt.Errorf("load user fields: %w", err)
	}

	f := UserFields{UsernameRaw: username}
	if score, err := lines.Result(); err == nil {
		f.NumLines = int64(score)
	}
	f.LastSeen = parseTimestamp(seen)
	f.LastActive = parseTimestamp(active)
	if v, err := raw.Result(); err == nil && v != "" {
		f.UsernameRaw = v
	}
	f.Ignored = ignored.Err() == nil
	f.Banned = banned.Err() == nil
	return f, nil
}

// parseTimestamp decodes an epoch-seconds hash value, returning the zero time
// when the field is absent or unparseable.
func parseTimestamp(cmd *redis.StringCmd) time.Time {
	v, err := cmd.Result()
	if err != nil {
		return time.Time{}
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(int64(secs), int64((secs-float64(int64(secs)))*1e9)).UTC()
}

// SetNumLines upserts the message-count score, removing the member entirely
// at zero so the sorted set only holds active chatters.
func (s *RedisStore) SetNumLines(ctx context.Context, streamer, username string, n int64) error {
	key := usersKey(streamer, fieldNumLines)
	if n == 0 {
		return s.client.ZRem(ctx, key, username).Err()
	}
	return s.client.ZAdd(ctx, key, redis.Z{Score: float64(n), Member: username}).Err()
}

// SetLastSeen upserts the last-seen timestamp in epoch-seconds form.
func (s *RedisStore) SetLastSeen(ctx context.Context, streamer, username string, t time.Time) error {
	return s.setTimestamp(ctx, streamer, fieldLastSeen, username, t)
}

// SetLastActive upserts the last-active timestamp in epoch-seconds form.
func (s *RedisStore) SetLastActive(ctx context.Context, streamer, username string, t time.Time) error {
	return s.setTimestamp(ctx, streamer, fieldLastActive, username, t)
}

func (s *RedisStore) setTimestamp(ctx context.Context, streamer, field, username string, t time.Time) error {
	v := strconv.FormatFloat(float64(t.UnixNano())/float64(time.Second), 'f', 6, 64)
	return s.client.HSet(ctx, usersKey(streamer, field), username, v).Err()
}

// SetUsernameRaw upserts the display-form username. When raw matches the
// case-folded username the hash field is deleted instead; absence implies
// "display name equals username".
func (s *RedisStore) SetUsernameRaw(ctx context.Context, streamer, username, raw string) error {
	key := usersKey(streamer, fieldUsernameRaw)
	if raw == username {
		return s.client.HDel(ctx, key, username).Err()
	}
	return s.client.HSet(ctx, key, username, raw).Err()
}

// SetIgnored sets or clears the ignored flag for username.
func (s *RedisStore) SetIgnored(ctx context.Context, streamer, username string, on bool) error {
	return s.setFlag(ctx, streamer, fieldIgnored, username, on)
}

// SetBanned sets or clears the banned flag for username.
func (s *RedisStore) SetBanned(ctx context.Context, streamer, username string, on bool) error {
	return s.setFlag(ctx, streamer, fieldBanned, username, on)
}

func (s *RedisStore) setFlag(ctx context.Context, streamer, field, username string, on bool) error {
	key := usersKey(streamer, field)
	if !on {
		return s.client.HDel(ctx, key, username).Err()
	}
	return s.client.HSet(ctx, key, username, flagSentinel).Err()
}

// Warnings reports, for each key, whether a warning is currently recorded.
func (s *RedisStore) Warnings(ctx context.Context, keys []string) ([]bool, error) {
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch warnings: %w", err)
	}
	set := make([]bool, len(vals))
	for i, v := range vals {
		set[i] = v != nil
	}
	return set, nil
}

// AddWarning records a consumed warning chance under key, expiring after
// lifetime.
func (s *RedisStore) AddWarning(ctx context.Context, key string, lifetime time.Duration) error {
	return s.client.SetEx(ctx, key, flagSentinel, lifetime).Err()
}

// TokenBalances returns the raw stream-id to balance mapping for a user.
// Values are returned undecoded; callers decide how to treat malformed
// entries.
func (s *RedisStore) TokenBalances(ctx context.Context, streamer, username string) (map[string]string, error) {
	return s.client.HGetAll(ctx, TokensKey(streamer, username)).Result()
}

// SetTokenBalance unconditionally writes the balance for one stream id.
func (s *RedisStore) SetTokenBalance(ctx context.Context, streamer, username, streamID string, n int64) error {
	return s.client.HSet(ctx, TokensKey(streamer, username), streamID, n).Err()
}

// SetTokenBalanceIfAbsent writes the balance for one stream id only when that
// stream id has no entry yet, reporting whether the write happened. The
// check-and-set is a single atomic store command.
func (s *RedisStore) SetTokenBalanceIfAbsent(ctx context.Context, streamer, username, streamID string, n int64) (bool, error) {
	return s.client.HSetNX(ctx, TokensKey(streamer, username), streamID, n).Result()
}

// Tags returns the user's tag mapping from the global tag hash, or an empty
// map when none is stored.
func (s *RedisStore) Tags(ctx context.Context, username string) (map[string]string, error) {
	v, err := s.client.HGet(ctx, tagsKey, username).Result()
	if errors.Is(err, redis.Nil) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch tags: %w", err)
	}
	tags := map[string]string{}
	if err := json.Unmarshal([]byte(v), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

// SetTags stores the user's tag mapping as compact JSON, deleting the hash
// field when the mapping is empty.
func (s *RedisStore) SetTags(ctx context.Context, username string, tags map[string]string) error {
	if len(tags) == 0 {
		return s.client.HDel(ctx, tagsKey, username).Err()
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	return s.client.HSet(ctx, tagsKey, username, data).Err()
}
