package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

type recordingAppender struct {
	mu      sync.Mutex
	fail    bool
	batches [][]model.Result
}

func (a *recordingAppender) Append(_ context.Context, batch []model.Result) (int, store.Mode, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return 0, "", errors.New("store down")
	}
	a.batches = append(a.batches, append([]model.Result(nil), batch...))
	return len(batch), store.ModeCloud, nil
}

func (a *recordingAppender) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, b := range a.batches {
		n += len(b)
	}
	return n
}

func TestResultWorkerDrainsQueue(t *testing.T) {
	rdb, mr := newRedis(t)
	appender := &recordingAppender{}
	w := NewResultWorker(appender, rdb, zerolog.Nop())

	for _, id := range []string{"r1", "r2", "r3"} {
		data, err := json.Marshal(model.Result{ID: id, ExamID: "ex-1", StudentID: "S-" + id})
		require.NoError(t, err)
		_, err = mr.RPush(config.WorkerKey.PersistResultsQueue, string(data))
		require.NoError(t, err)
	}
	_, err := mr.RPush(config.WorkerKey.PersistResultsQueue, "{not json")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return appender.count() == 3 }, 5*time.Second, 20*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.False(t, mr.Exists(config.WorkerKey.PersistResultsQueue))
}

func TestResultWorkerRequeuesOnFailure(t *testing.T) {
	rdb, mr := newRedis(t)
	appender := &recordingAppender{fail: true}
	w := NewResultWorker(appender, rdb, zerolog.Nop())

	batch := []model.Result{{ID: "r1"}, {ID: "r2"}}
	w.consumer.flushSafe(context.Background(), batch)

	queued, err := mr.List(config.WorkerKey.PersistResultsQueue)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	var first model.Result
	require.NoError(t, json.Unmarshal([]byte(queued[0]), &first))
	assert.Equal(t, "r1", first.ID)
}

type flakyViolations struct {
	bulkErr error
	bad     string
	rows    []model.ViolationEvent
}

func (f *flakyViolations) InsertBatch(_ context.Context, events []model.ViolationEvent) (int64, error) {
	if f.bulkErr != nil {
		return 0, f.bulkErr
	}
	f.rows = append(f.rows, events...)
	return int64(len(events)), nil
}

func (f *flakyViolations) Insert(_ context.Context, ev model.ViolationEvent) error {
	if ev.StudentID == f.bad {
		return errors.New("insert failed")
	}
	f.rows = append(f.rows, ev)
	return nil
}

func TestViolationWorkerFlush(t *testing.T) {
	rdb, _ := newRedis(t)
	batch := []model.ViolationEvent{
		{ExamID: "ex-1", StudentID: "S-1", Signal: "blur", Count: 1},
		{ExamID: "ex-1", StudentID: "S-2", Signal: "visibility_hidden", Count: 1},
	}

	t.Run("bulk", func(t *testing.T) {
		st := &flakyViolations{}
		w := NewViolationWorker(st, rdb, zerolog.Nop())
		assert.Empty(t, w.flush(context.Background(), batch))
		assert.Len(t, st.rows, 2)
	})

	t.Run("row by row recovery", func(t *testing.T) {
		st := &flakyViolations{bulkErr: errors.New("copy failed"), bad: "S-2"}
		w := NewViolationWorker(st, rdb, zerolog.Nop())
		failed := w.flush(context.Background(), batch)
		require.Len(t, failed, 1)
		assert.Equal(t, "S-2", failed[0].StudentID)
		require.Len(t, st.rows, 1)
		assert.Equal(t, "S-1", st.rows[0].StudentID)
	})

	t.Run("without store", func(t *testing.T) {
		w := NewViolationWorker(nil, rdb, zerolog.Nop())
		assert.Empty(t, w.flush(context.Background(), batch))
	})
}
