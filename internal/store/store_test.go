package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb, zerolog.Nop()), mr
}

func TestRepositories(t *testing.T) {
	cases := map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository { return NewMemory() },
		"redis": func(t *testing.T) Repository {
			c, _ := newRedisCache(t)
			return c
		},
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := build(t)

			snap, err := repo.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, snap)

			students := []model.Student{{ID: "S-1001", Name: "Ani", NIS: "1001", Class: "XI-1"}}
			ack, err := repo.Save(ctx, KeyStudents, students)
			require.NoError(t, err)
			assert.Equal(t, Ack{Key: KeyStudents, Mode: ModeLocal}, ack)

			snap, err = repo.Load(ctx)
			require.NoError(t, err)
			require.Contains(t, snap, KeyStudents)
			assert.NotContains(t, snap, KeyExams)

			var ds Dataset
			require.NoError(t, ds.Decode(snap))
			assert.Equal(t, students, ds.Students)
		})
	}
}

func TestSaveRejectsUnknownKey(t *testing.T) {
	_, err := NewMemory().Save(context.Background(), Key("settings"), map[string]string{})
	assert.Error(t, err)
}

func TestMemorySubscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var got []Snapshot
	unsubscribe, err := m.Subscribe(ctx, func(s Snapshot) { got = append(got, s) })
	require.NoError(t, err)

	_, err = m.Save(ctx, KeyExams, []model.Exam{})
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	_, err = m.Save(ctx, KeyExams, []model.Exam{})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.JSONEq(t, `[]`, string(got[0][KeyExams]))
}

func TestRedisCacheSubscribe(t *testing.T) {
	ctx := context.Background()
	writer, mr := newRedisCache(t)
	reader := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zerolog.Nop())

	changes := make(chan Snapshot, 1)
	unsubscribe, err := reader.Subscribe(ctx, func(s Snapshot) { changes <- s })
	require.NoError(t, err)
	defer unsubscribe()

	_, err = writer.Save(ctx, KeyResults, []model.Result{{ID: "r1", Score: 80}})
	require.NoError(t, err)

	select {
	case snap := <-changes:
		var ds Dataset
		require.NoError(t, ds.Decode(snap))
		require.Len(t, ds.Results, 1)
		assert.Equal(t, 80, ds.Results[0].Score)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification received")
	}
}

func TestRedisCacheUsesPrefixedKeys(t *testing.T) {
	c, mr := newRedisCache(t)
	_, err := c.Save(context.Background(), KeyExams, []model.Exam{})
	require.NoError(t, err)

	val, err := mr.Get("cloud_exams")
	require.NoError(t, err)
	assert.Equal(t, "[]", val)
}

func TestDatasetSnapshotRoundTrip(t *testing.T) {
	ds := Dataset{Exams: []model.Exam{{ID: "e1", Title: "Fisika"}}}

	snap, err := ds.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap, len(Keys))
	assert.JSONEq(t, `[]`, string(snap[KeyResults]))

	var back Dataset
	require.NoError(t, back.Decode(snap))
	assert.Equal(t, "Fisika", back.Exams[0].Title)
	assert.Empty(t, back.Results)
}

func TestDecodeKeepsMissingKeys(t *testing.T) {
	ds := Dataset{Students: []model.Student{{ID: "S-1"}}}
	require.NoError(t, ds.Decode(Snapshot{KeyExams: json.RawMessage(`[{"id":"e1"}]`)}))
	assert.Len(t, ds.Students, 1)
	assert.Len(t, ds.Exams, 1)
}

func TestClassify(t *testing.T) {
	pgErr := classify("save", &pgconn.PgError{Code: "23505"})
	assert.False(t, errors.Is(pgErr, ErrUnavailable))

	netErr := classify("save", errors.New("dial tcp: connection refused"))
	assert.True(t, errors.Is(netErr, ErrUnavailable))

	canceled := classify("save", context.Canceled)
	assert.False(t, errors.Is(canceled, ErrUnavailable))
}
