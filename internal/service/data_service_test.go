package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataServiceLoadPrefersRemote(t *testing.T) {
	ctx := context.Background()
	local := store.NewMemory()
	remote := newCloudStore()

	_, err := local.Save(ctx, store.KeyStudents, []model.Student{{ID: "S-1", Name: "Lokal", NIS: "1"}})
	require.NoError(t, err)
	_, err = local.Save(ctx, store.KeyExams, []model.Exam{{ID: "ex-local", Title: "Lokal"}})
	require.NoError(t, err)
	_, err = remote.Memory.Save(ctx, store.KeyStudents, []model.Student{{ID: "S-2", Name: "Awan", NIS: "2"}})
	require.NoError(t, err)

	data := NewDataService(local, remote, zerolog.Nop())
	require.NoError(t, data.Load(ctx))

	ds := data.View()
	require.Len(t, ds.Students, 1)
	assert.Equal(t, "Awan", ds.Students[0].Name)
	require.Len(t, ds.Exams, 1, "keys the remote lacks come from the local cache")
	assert.Equal(t, "ex-local", ds.Exams[0].ID)
	assert.Equal(t, store.ModeCloud, data.Mode())

	snap, err := local.Load(ctx)
	require.NoError(t, err)
	var cached []model.Student
	require.NoError(t, json.Unmarshal(snap[store.KeyStudents], &cached))
	assert.Equal(t, "Awan", cached[0].Name, "remote value is written through")
}

func TestDataServiceUnreachableRemoteAtLoad(t *testing.T) {
	ctx := context.Background()
	local := store.NewMemory()
	_, err := local.Save(ctx, store.KeyStudents, []model.Student{{ID: "S-1", Name: "Lokal", NIS: "1"}})
	require.NoError(t, err)

	remote := newCloudStore()
	remote.down.Store(true)

	data := NewDataService(local, remote, zerolog.Nop())
	require.NoError(t, data.Load(ctx))
	assert.False(t, data.Cloud())
	assert.Len(t, data.View().Students, 1)
}

func TestDataServiceFallsBackToLocal(t *testing.T) {
	h := newHarness(t)

	mode, err := h.data.Update(h.ctx, func(d *store.Dataset) error {
		d.Students = append(d.Students, model.Student{ID: "S-1", Name: "Ani", NIS: "1"})
		return nil
	}, store.KeyStudents)
	require.NoError(t, err)
	assert.Equal(t, store.ModeCloud, mode)
	assert.EqualValues(t, 1, h.remote.saves.Load())

	h.remote.down.Store(true)
	mode, err = h.data.Update(h.ctx, func(d *store.Dataset) error {
		d.Students = append(d.Students, model.Student{ID: "S-2", Name: "Budi", NIS: "2"})
		return nil
	}, store.KeyStudents)
	require.NoError(t, err)
	assert.Equal(t, store.ModeLocal, mode)
	assert.False(t, h.data.Cloud())

	// The switch is permanent even once the remote answers again.
	h.remote.down.Store(false)
	mode, err = h.data.Update(h.ctx, func(d *store.Dataset) error {
		d.Students = append(d.Students, model.Student{ID: "S-3", Name: "Citra", NIS: "3"})
		return nil
	}, store.KeyStudents)
	require.NoError(t, err)
	assert.Equal(t, store.ModeLocal, mode)
	assert.EqualValues(t, 1, h.remote.saves.Load())

	snap, err := h.local.Load(h.ctx)
	require.NoError(t, err)
	var cached []model.Student
	require.NoError(t, json.Unmarshal(snap[store.KeyStudents], &cached))
	assert.Len(t, cached, 3)
}

func TestDataServiceUpdateErrorCommitsNothing(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("boom")

	_, err := h.data.Update(h.ctx, func(d *store.Dataset) error {
		d.Students = append(d.Students, model.Student{ID: "S-1"})
		return boom
	}, store.KeyStudents)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, h.data.View().Students)
	assert.Zero(t, h.remote.saves.Load())
}

func TestDataServiceViewIsACopy(t *testing.T) {
	h := newHarness(t)
	_, err := h.data.Update(h.ctx, func(d *store.Dataset) error {
		d.Students = []model.Student{{ID: "S-1", Name: "Ani"}}
		return nil
	}, store.KeyStudents)
	require.NoError(t, err)

	view := h.data.View()
	view.Students[0].Name = "Diubah"
	assert.Equal(t, "Ani", h.data.View().Students[0].Name)
}

func TestDataServiceWatchAppliesRemotePush(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.data.Watch(h.ctx))

	// Another instance writes straight to the shared store.
	_, err := h.remote.Memory.Save(h.ctx, store.KeyExams, []model.Exam{{ID: "ex-remote", Title: "Dari awan"}})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		exams := h.data.View().Exams
		return len(exams) == 1 && exams[0].ID == "ex-remote"
	}, time.Second, 5*time.Millisecond)

	snap, err := h.local.Load(h.ctx)
	require.NoError(t, err)
	assert.Contains(t, snap, store.KeyExams)
}

func TestDataServiceLocalModeFollowsSharedCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	newInstance := func() *DataService {
		ds := NewDataService(store.NewRedisCache(rdb, zerolog.Nop()), nil, zerolog.Nop())
		require.NoError(t, ds.Load(ctx))
		require.NoError(t, ds.Watch(ctx))
		t.Cleanup(ds.Close)
		return ds
	}
	a, b := newInstance(), newInstance()

	_, err := a.Update(ctx, func(d *store.Dataset) error {
		d.Exams = append(d.Exams, model.Exam{ID: "ex-a", Title: "Dari A"})
		return nil
	}, store.KeyExams)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		exams := b.View().Exams
		return len(exams) == 1 && exams[0].ID == "ex-a"
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, a.View().Exams, 1)
}

func TestDataServiceFollowsLocalCacheAfterFallback(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.data.Watch(h.ctx))

	h.remote.down.Store(true)
	_, err := h.data.Update(h.ctx, func(d *store.Dataset) error {
		d.Students = append(d.Students, model.Student{ID: "S-1", Name: "Ani", NIS: "1"})
		return nil
	}, store.KeyStudents)
	require.NoError(t, err)
	require.False(t, h.data.Cloud())

	// Another instance on the same cache writes while this one is local.
	assert.Eventually(t, func() bool {
		_, err := h.local.Save(h.ctx, store.KeyExams, []model.Exam{{ID: "ex-local", Title: "Lokal"}})
		require.NoError(t, err)
		exams := h.data.View().Exams
		return len(exams) == 1 && exams[0].ID == "ex-local"
	}, time.Second, 10*time.Millisecond)
}

func TestDataServiceRestoreAndExport(t *testing.T) {
	h := newHarness(t)
	backup := store.Dataset{
		Students: []model.Student{{ID: "S-9", Name: "Dewi", NIS: "9"}},
		Exams:    []model.Exam{{ID: "ex-1", Title: "Fisika"}},
	}

	mode, err := h.data.Restore(h.ctx, backup)
	require.NoError(t, err)
	assert.Equal(t, store.ModeCloud, mode)

	snap, err := h.data.Export()
	require.NoError(t, err)
	for _, key := range store.Keys {
		assert.Contains(t, snap, key)
	}
	assert.JSONEq(t, `[]`, string(snap[store.KeyResults]))

	var ds store.Dataset
	require.NoError(t, ds.Decode(snap))
	assert.Equal(t, "Dewi", ds.Students[0].Name)
}
