package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/store"
)

// ResultAppender stores a batch of finished-session results.
type ResultAppender interface {
	Append(ctx context.Context, batch []model.Result) (int, store.Mode, error)
}

// ResultWorker moves queued session results into the dataset.
type ResultWorker struct {
	consumer consumer[model.Result]
	results  ResultAppender
	log      zerolog.Logger
}

func NewResultWorker(results ResultAppender, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	w := &ResultWorker{
		results: results,
		log:     log.With().Str("component", "result_worker").Logger(),
	}
	w.consumer = consumer[model.Result]{
		rdb:   rdb,
		queue: config.WorkerKey.PersistResultsQueue,
		flush: w.flush,
		log:   w.log,
	}
	return w
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")
	w.consumer.run(ctx)
}

// flush appends the whole batch in one dataset write. The append either
// stores every fresh result or none, so a failure requeues the batch.
func (w *ResultWorker) flush(ctx context.Context, batch []model.Result) []model.Result {
	added, mode, err := w.results.Append(ctx, batch)
	if err != nil {
		w.log.Error().Err(err).Int("count", len(batch)).Msg("Result append failed, requeueing")
		return batch
	}
	w.log.Debug().Int("count", len(batch)).Int("added", added).Str("mode", string(mode)).Msg("Results persisted")
	return nil
}
