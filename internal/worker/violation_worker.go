package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/model"
)

// ViolationStore persists the violation log.
type ViolationStore interface {
	InsertBatch(ctx context.Context, events []model.ViolationEvent) (int64, error)
	Insert(ctx context.Context, ev model.ViolationEvent) error
}

// ViolationWorker copies queued violations into PostgreSQL. Without a store
// it only drains the queue; the live counters stay in Redis either way.
type ViolationWorker struct {
	consumer consumer[model.ViolationEvent]
	store    ViolationStore
	log      zerolog.Logger
}

func NewViolationWorker(store ViolationStore, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	w := &ViolationWorker{
		store: store,
		log:   log.With().Str("component", "violation_worker").Logger(),
	}
	w.consumer = consumer[model.ViolationEvent]{
		rdb:   rdb,
		queue: config.WorkerKey.PersistViolationsQueue,
		flush: w.flush,
		log:   w.log,
	}
	return w
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")
	w.consumer.run(ctx)
}

// flush tries a bulk copy first, then row by row. Rows that still fail are
// returned for requeue.
func (w *ViolationWorker) flush(ctx context.Context, batch []model.ViolationEvent) []model.ViolationEvent {
	if w.store == nil {
		return nil
	}
	n, err := w.store.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int64("rows", n).Msg("Violations persisted")
		return nil
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var failed []model.ViolationEvent
	for _, ev := range batch {
		if err := w.store.Insert(ctx, ev); err != nil {
			w.log.Error().Err(err).Str("exam_id", ev.ExamID).Str("student_id", ev.StudentID).Msg("Insert failed, requeueing")
			failed = append(failed, ev)
		}
	}
	return failed
}
