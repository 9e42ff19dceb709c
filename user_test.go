package chatuser

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/CreativeUnicorns/chatuser/cache"
	"github.com/CreativeUnicorns/chatuser/storage"
)

type testEnv struct {
	m      *Manager
	mr     *miniredis.Miniredis
	client *redis.Client
	db     *gorm.DB
	fields *cache.Fields
	stream *StaticStream
}

// newTestEnv wires a Manager to miniredis and a throwaway SQLite database.
// The field cache has no clear loop; tests clear it explicitly.
func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err, "failed to open test database")

	fields := cache.NewWithInterval(0)
	t.Cleanup(func() { _ = fields.Close() })

	stream := &StaticStream{Name: "pajlada", StreamID: "stream1", Live: true}

	opts = append([]Option{
		WithDB(db),
		WithRedis(client),
		WithStream(stream),
		WithFieldCache(fields),
	}, opts...)

	m, err := New(opts...)
	require.NoError(t, err)
	require.NoError(t, m.Migrate(context.Background()))

	return &testEnv{m: m, mr: mr, client: client, db: db, fields: fields, stream: stream}
}

func TestNew_RequiredOptions(t *testing.T) {
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	stream := StaticStream{Name: "pajlada"}

	_, err = New(WithRedis(client), WithStream(stream))
	assert.ErrorIs(t, err, ErrMissingDB)

	_, err = New(WithDB(db), WithStream(stream))
	assert.ErrorIs(t, err, ErrMissingRedis)

	_, err = New(WithDB(db), WithRedis(client))
	assert.ErrorIs(t, err, ErrMissingStream)
}

func TestManager_UserStoresRawUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "AliCe")
	assert.Equal(t, "alice", u.Username())

	raw, err := env.client.HGet(ctx, "pajlada:users:username_raw", "alice").Result()
	require.NoError(t, err)
	assert.Equal(t, "AliCe", raw)
}

func TestUser_SpendPoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	require.NoError(t, u.SetPoints(ctx, 100))

	ok, err := u.SpendPoints(ctx, 60)
	require.NoError(t, err)
	assert.True(t, ok)

	points, err := u.Points(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(40), points)

	ok, err = u.SpendPoints(ctx, 50)
	require.NoError(t, err)
	assert.False(t, ok, "overspend must fail")

	points, err = u.Points(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(40), points, "failed spend must not mutate the balance")
}

func TestUser_Debts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	require.NoError(t, u.SetPoints(ctx, 100))

	u.CreateDebt(30)
	u.CreateDebt(20)
	assert.Equal(t, int64(50), u.PointsInDebt())

	available, err := u.PointsAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), available)

	ok, err := u.CanAfford(ctx, 50)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = u.CanAfford(ctx, 51)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, u.PayDebt(ctx, 30))
	points, err := u.Points(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(70), points)
	assert.Equal(t, []int64{20}, u.Debts())
}

func TestUser_PayDebt_MissingAmountIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	require.NoError(t, u.SetPoints(ctx, 100))

	// The debt list may have been drained by another code path; the
	// deduction still happens and the anomaly is only logged.
	require.NoError(t, u.PayDebt(ctx, 10))

	points, err := u.Points(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(90), points)
	assert.Empty(t, u.Debts())
}

func TestUser_SpendCurrency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("refunds_on_failure", func(t *testing.T) {
		u := env.m.User(ctx, "alice")
		require.NoError(t, u.SetPoints(ctx, 100))

		failure := errors.New("command failed")
		err := u.SpendCurrency(ctx, 50, 0, func() error { return failure })
		assert.ErrorIs(t, err, failure, "the failure must propagate after the refund")

		points, err := u.Points(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(100), points)
	})

	t.Run("keeps_deduction_on_success", func(t *testing.T) {
		u := env.m.User(ctx, "bob")
		require.NoError(t, u.SetPoints(ctx, 100))

		require.NoError(t, u.SpendCurrency(ctx, 50, 0, func() error { return nil }))

		points, err := u.Points(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(50), points)
	})
}

func TestUser_SaveAndReload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	require.NoError(t, u.SetPoints(ctx, 500))
	require.NoError(t, u.SetLevel(ctx, 2000))
	_, err := u.Save(ctx, true)
	require.NoError(t, err)

	env.fields.Clear()

	fresh := env.m.User(ctx, "alice")
	points, err := fresh.Points(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), points)
	level, err := fresh.Level(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2000, level)
}

func TestUser_SaveWithoutPersistRefreshesCacheOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	require.NoError(t, u.SetLevel(ctx, 500))
	_, err := u.Save(ctx, false)
	require.NoError(t, err)

	// The cache reflects the in-memory record even though nothing was written.
	level, ok := env.fields.Level("alice")
	require.True(t, ok)
	assert.Equal(t, 500, level)

	env.fields.Clear()
	fresh := env.m.User(ctx, "alice")
	level, err = fresh.Level(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultLevel, level, "suppressed save must not reach the database")
}

func TestUser_FieldCacheServesReads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	_, err := u.Points(ctx) // force the load
	require.NoError(t, err)
	_, err = u.Save(ctx, true)
	require.NoError(t, err)

	// Mutate the row behind the cache's back.
	require.NoError(t, env.db.Model(&storage.Record{}).
		Where("username = ?", "alice").Update("level", 1234).Error)

	cached := env.m.User(ctx, "alice")
	level, err := cached.Level(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultLevel, level, "reads are served from the snapshot until it clears")
	assert.False(t, cached.sql.loaded, "a cache hit must not trigger a load")

	env.fields.Clear()
	fresh := env.m.User(ctx, "alice")
	level, err = fresh.Level(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1234, level)
}

func TestUser_SetSubscriberShortCircuit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	_, err := u.Subscriber(ctx)
	require.NoError(t, err)
	_, err = u.Save(ctx, true)
	require.NoError(t, err)

	same := env.m.User(ctx, "alice")
	require.NoError(t, same.SetSubscriber(ctx, false))
	assert.False(t, same.sql.loaded, "writing the cached value must not load the record")

	require.NoError(t, same.SetSubscriber(ctx, true))
	assert.True(t, same.sql.loaded, "writing a different value must load the record")
}

func TestUser_LoadsAtMostOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	points, err := u.Points(ctx)
	require.NoError(t, err)
	assert.Zero(t, points)

	// A second read must not hit the store again.
	require.NoError(t, env.db.Model(&storage.Record{}).
		Where("username = ?", "alice").Update("points", 999).Error)

	points, err = u.Points(ctx)
	require.NoError(t, err)
	assert.Zero(t, points)
}

func TestUser_SharedTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx := env.db.Begin()
	require.NoError(t, tx.Error)

	u := env.m.UserTx(ctx, tx, "alice")
	require.NoError(t, u.SetPoints(ctx, 500))
	_, err := u.Save(ctx, true)
	require.NoError(t, err, "shared-mode save must not open its own session")

	require.NoError(t, tx.Rollback().Error)
	env.fields.Clear()

	var count int64
	require.NoError(t, env.db.Model(&storage.Record{}).
		Where("username = ?", "alice").Count(&count).Error)
	assert.Zero(t, count, "rolled back work must leave no record behind")
}

func TestManager_UserWithRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := storage.NewRecord("eve")
	rec.Points = 77

	u := env.m.UserWithRecord(ctx, nil, "eve", rec)
	points, err := u.Points(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(77), points, "a supplied record skips the lazy load")
}

func TestUser_KVFlagsSurviveReload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	require.NoError(t, u.SetBanned(ctx, true))
	require.NoError(t, u.SetIgnored(ctx, true))

	fresh := env.m.User(ctx, "alice")
	banned, err := fresh.Banned(ctx)
	require.NoError(t, err)
	assert.True(t, banned)
	ignored, err := fresh.Ignored(ctx)
	require.NoError(t, err)
	assert.True(t, ignored)

	require.NoError(t, fresh.SetBanned(ctx, false))
	again := env.m.User(ctx, "alice")
	banned, err = again.Banned(ctx)
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestUser_IsNew(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	isNew, err := u.IsNew(ctx)
	require.NoError(t, err)
	assert.True(t, isNew)

	require.NoError(t, u.SetLastSeen(ctx, time.Now()))

	fresh := env.m.User(ctx, "alice")
	isNew, err = fresh.IsNew(ctx)
	require.NoError(t, err)
	assert.False(t, isNew)
}

func TestUser_LastSeenLocalized(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*3600)
	env := newTestEnv(t, WithLocation(zone))
	ctx := context.Background()

	seen := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	u := env.m.User(ctx, "alice")
	require.NoError(t, u.SetLastSeen(ctx, seen))

	fresh := env.m.User(ctx, "alice")
	got, err := fresh.LastSeen(ctx)
	require.NoError(t, err)
	assert.Equal(t, "UTC+2", got.Location().String())
	assert.Equal(t, seen.Unix(), got.Unix())

	// Never-seen users keep the zero time rather than a localized instant.
	ghost := env.m.User(ctx, "ghost")
	got, err = ghost.LastSeen(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestUser_NumLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	require.NoError(t, u.SetNumLines(ctx, 3))

	fresh := env.m.User(ctx, "alice")
	n, err := fresh.NumLines(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestUser_Tags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	require.NoError(t, u.SetTags(ctx, map[string]string{"vip": "yes"}))

	tags, err := u.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"vip": "yes"}, tags)
}

func TestUser_StateRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.m.User(ctx, "alice")
	u.CreateDebt(30)
	u.Moderator = true
	u.TimedOut = true
	u.TimeoutEnd = time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)

	st, err := u.Save(ctx, false)
	require.NoError(t, err)

	restored := env.m.User(ctx, "alice")
	restored.RestoreState(st)
	assert.Equal(t, []int64{30}, restored.Debts())
	assert.True(t, restored.Moderator)
	assert.True(t, restored.TimedOut)
	assert.Equal(t, u.TimeoutEnd, restored.TimeoutEnd)
}

func TestUser_Equal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.m.User(ctx, "Alice")
	b := env.m.User(ctx, "alice")
	c := env.m.User(ctx, "bob")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}
