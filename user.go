// Package chatuser implements the combined user façade.
package chatuser

import (
	"context"
	"time"

	"github.com/CreativeUnicorns/chatuser/storage"
)

// User is the combined per-participant façade: a relational accessor and a
// key-value accessor joined by explicit composition, plus transient state the
// owning process persists on its own (debts, moderator flag, timeout
// bookkeeping). Each accessor loads lazily, at most once per User instance.
//
// A User is not safe for concurrent use; the chat-processing loop is expected
// to drive it from a single goroutine.
type User struct {
	username string
	sql      *sqlAccessor
	kv       *redisAccessor

	debts      []int64
	Moderator  bool
	TimedOut   bool
	TimeoutEnd time.Time

	store        *storage.RedisStore
	stream       StreamContext
	logger       Logger
	loc          *time.Location
	onTokenAward TokenAwardFunc
}

// Username returns the case-folded username this User is keyed by.
func (u *User) Username() string { return u.username }

// Equal reports whether both façades refer to the same username.
func (u *User) Equal(other *User) bool {
	return other != nil && u.username == other.username
}

// ID returns the store-assigned record id, creating the record if the user
// has never been persisted.
func (u *User) ID(ctx context.Context) (int64, error) { return u.sql.id(ctx) }

// Level returns the user's privilege level.
func (u *User) Level(ctx context.Context) (int, error) { return u.sql.level(ctx) }

// SetLevel updates the privilege level in memory; Save persists it.
func (u *User) SetLevel(ctx context.Context, level int) error { return u.sql.setLevel(ctx, level) }

// Subscriber returns the subscriber flag.
func (u *User) Subscriber(ctx context.Context) (bool, error) { return u.sql.subscriber(ctx) }

// SetSubscriber updates the subscriber flag in memory. Setting the value the
// cache already holds is a no-op and performs no load.
func (u *User) SetSubscriber(ctx context.Context, v bool) error { return u.sql.setSubscriber(ctx, v) }

// Points returns the current point balance.
func (u *User) Points(ctx context.Context) (int64, error) { return u.sql.points(ctx) }

// SetPoints overwrites the point balance in memory; Save persists it.
func (u *User) SetPoints(ctx context.Context, points int64) error {
	return u.sql.setPoints(ctx, points)
}

// MinutesInChatOnline returns minutes spent in chat while the stream was live.
func (u *User) MinutesInChatOnline(ctx context.Context) (int, error) {
	return u.sql.minutesOnline(ctx)
}

// SetMinutesInChatOnline updates the online chat-time counter.
func (u *User) SetMinutesInChatOnline(ctx context.Context, minutes int) error {
	return u.sql.setMinutesOnline(ctx, minutes)
}

// MinutesInChatOffline returns minutes spent in chat while the stream was offline.
func (u *User) MinutesInChatOffline(ctx context.Context) (int, error) {
	return u.sql.minutesOffline(ctx)
}

// SetMinutesInChatOffline updates the offline chat-time counter.
func (u *User) SetMinutesInChatOffline(ctx context.Context, minutes int) error {
	return u.sql.setMinutesOffline(ctx, minutes)
}

// DuelStats returns the opaque duel-statistics blob, nil when unset.
func (u *User) DuelStats(ctx context.Context) ([]byte, error) { return u.sql.duelStats(ctx) }

// SetDuelStats replaces the duel-statistics blob.
func (u *User) SetDuelStats(ctx context.Context, stats []byte) error {
	return u.sql.setDuelStats(ctx, stats)
}

// NumLines returns the user's message count.
func (u *User) NumLines(ctx context.Context) (int64, error) { return u.kv.numLines(ctx) }

// SetNumLines writes the message count through to the store immediately.
func (u *User) SetNumLines(ctx context.Context, n int64) error { return u.kv.setNumLines(ctx, n) }

// LastSeen returns when the user was last seen in chat, localized to the
// configured display timezone. The zero time means never.
func (u *User) LastSeen(ctx context.Context) (time.Time, error) {
	t, err := u.kv.lastSeen(ctx)
	if err != nil || t.IsZero() {
		return t, err
	}
	return t.In(u.loc), nil
}

// SetLastSeen writes the last-seen timestamp through to the store immediately.
func (u *User) SetLastSeen(ctx context.Context, t time.Time) error {
	return u.kv.setLastSeen(ctx, t)
}

// LastActive returns when the user last sent a message, localized to the
// configured display timezone. The zero time means never.
func (u *User) LastActive(ctx context.Context) (time.Time, error) {
	t, err := u.kv.lastActive(ctx)
	if err != nil || t.IsZero() {
		return t, err
	}
	return t.In(u.loc), nil
}

// SetLastActive writes the last-active timestamp through to the store immediately.
func (u *User) SetLastActive(ctx context.Context, t time.Time) error {
	return u.kv.setLastActive(ctx, t)
}

// UsernameRaw returns the display-form username, falling back to the
// case-folded username when no display form is stored.
func (u *User) UsernameRaw(ctx context.Context) (string, error) { return u.kv.usernameRaw(ctx) }

// SetUsernameRaw writes the display-form username through to the store.
func (u *User) SetUsernameRaw(ctx context.Context, raw string) error {
	return u.kv.setUsernameRaw(ctx, raw)
}

// Ignored reports whether the bot ignores this user.
func (u *User) Ignored(ctx context.Context) (bool, error) { return u.kv.ignored(ctx) }

// SetIgnored sets or clears the ignored flag, writing through immediately.
func (u *User) SetIgnored(ctx context.Context, on bool) error { return u.kv.setIgnored(ctx, on) }

// Banned reports whether this user is banned from bot interaction.
func (u *User) Banned(ctx context.Context) (bool, error) { return u.kv.banned(ctx) }

// SetBanned sets or clears the banned flag, writing through immediately.
func (u *User) SetBanned(ctx context.Context, on bool) error { return u.kv.setBanned(ctx, on) }

// IsNew reports whether the user has never been seen in chat.
func (u *User) IsNew(ctx context.Context) (bool, error) { return u.kv.isNew(ctx) }

// Tags returns the user's tag mapping from the global tag hash.
func (u *User) Tags(ctx context.Context) (map[string]string, error) {
	return u.store.Tags(ctx, u.username)
}

// SetTags replaces the user's tag mapping.
func (u *User) SetTags(ctx context.Context, tags map[string]string) error {
	return u.store.SetTags(ctx, u.username, tags)
}

// SpendPoints deducts amount from the balance and reports true, or reports
// false without mutation when the balance is insufficient.
func (u *User) SpendPoints(ctx context.Context, amount int64) (bool, error) {
	points, err := u.sql.points(ctx)
	if err != nil {
		return false, err
	}
	if amount > points {
		return false, nil
	}
	return true, u.sql.setPoints(ctx, points-amount)
}

// SpendCurrency deducts points for the duration of fn. When fn returns an
// error the deducted points are returned to the user before the error
// propagates.
//
// TODO: debit tokens here as well once the token ledger moves off the
// per-stream hash; until then the tokens argument is accepted but unused.
func (u *User) SpendCurrency(ctx context.Context, points, tokens int64, fn func() error) error {
	if _, err := u.SpendPoints(ctx, points); err != nil {
		return err
	}

	if err := fn(); err != nil {
		u.logger.Debug("returning points after failed command",
			"username", u.username, "points", points)
		if refundErr := u.addPoints(ctx, points); refundErr != nil {
			u.logger.Error("failed to refund points",
				"username", u.username, "points", points, "error", refundErr)
		}
		return err
	}
	return nil
}

func (u *User) addPoints(ctx context.Context, amount int64) error {
	points, err := u.sql.points(ctx)
	if err != nil {
		return err
	}
	return u.sql.setPoints(ctx, points+amount)
}

// CreateDebt records amount as owed by the user.
func (u *User) CreateDebt(amount int64) {
	u.debts = append(u.debts, amount)
}

// RemoveDebt drops one debt entry matching amount. A missing entry is logged
// and ignored; another code path may have settled it already.
func (u *User) RemoveDebt(amount int64) {
	for i, d := range u.debts {
		if d == amount {
			u.debts = append(u.debts[:i], u.debts[i+1:]...)
			return
		}
	}
	u.logger.Error("debt not found in debt list",
		"username", u.username, "debt", amount, "debts", u.debts)
}

// PayDebt deducts amount from the balance and removes the matching debt entry.
func (u *User) PayDebt(ctx context.Context, amount int64) error {
	points, err := u.sql.points(ctx)
	if err != nil {
		return err
	}
	if err := u.sql.setPoints(ctx, points-amount); err != nil {
		return err
	}
	u.RemoveDebt(amount)
	return nil
}

// Debts returns a copy of the outstanding debt list.
func (u *User) Debts() []int64 {
	return append([]int64(nil), u.debts...)
}

// PointsInDebt returns the sum of all outstanding debts.
func (u *User) PointsInDebt() int64 {
	var total int64
	for _, d := range u.debts {
		total += d
	}
	return total
}

// PointsAvailable returns the balance minus outstanding debts.
func (u *User) PointsAvailable(ctx context.Context) (int64, error) {
	points, err := u.sql.points(ctx)
	if err != nil {
		return 0, err
	}
	return points - u.PointsInDebt(), nil
}

// CanAfford reports whether the user could spend amount after covering debts.
func (u *User) CanAfford(ctx context.Context, amount int64) (bool, error) {
	available, err := u.PointsAvailable(ctx)
	if err != nil {
		return false, err
	}
	return available >= amount, nil
}

// Save flushes the relational record (persist=false refreshes only the field
// cache) and returns the transient state snapshot for the owner to persist.
func (u *User) Save(ctx context.Context, persist bool) (State, error) {
	err := u.sql.save(ctx, persist)
	return State{
		Debts:      u.Debts(),
		Moderator:  u.Moderator,
		TimedOut:   u.TimedOut,
		TimeoutEnd: u.TimeoutEnd,
	}, err
}

// RestoreState reinstates a transient state snapshot previously returned by
// Save.
func (u *User) RestoreState(st State) {
	u.debts = append([]int64(nil), st.Debts...)
	u.Moderator = st.Moderator
	u.TimedOut = st.TimedOut
	u.TimeoutEnd = st.TimeoutEnd
}
