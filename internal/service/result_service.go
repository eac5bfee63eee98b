package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/store"
)

// ErrExamAlreadyTaken is returned when a student already has a result for an exam.
var ErrExamAlreadyTaken = errors.New("exam already taken")

// ResultService records session results and serves them back.
//
// A finished session claims a (student, exam) slot in Redis and enqueues its
// result; the result worker appends the queue to the dataset in batches. When
// Redis is unavailable the result is appended directly.
type ResultService struct {
	data *DataService
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(data *DataService, rdb *redis.Client, log zerolog.Logger) *ResultService {
	return &ResultService{
		data: data,
		rdb:  rdb,
		log:  log.With().Str("component", "result_service").Logger(),
	}
}

// Submit hands off the result of a finished session.
func (s *ResultService) Submit(ctx context.Context, res model.Result) error {
	claimed, err := s.rdb.HSetNX(ctx, config.CacheKey.ExamCompletedKey(res.ExamID), res.StudentID, res.ID).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("result_id", res.ID).Msg("Redis unavailable, appending result directly")
		return s.appendOne(ctx, res)
	}
	if !claimed {
		return ErrExamAlreadyTaken
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("result_id", res.ID).Msg("Queue push failed, appending result directly")
		return s.appendOne(ctx, res)
	}

	s.log.Debug().Str("result_id", res.ID).Msg("Result queued")
	return nil
}

func (s *ResultService) appendOne(ctx context.Context, res model.Result) error {
	n, _, err := s.Append(ctx, []model.Result{res})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExamAlreadyTaken
	}
	return nil
}

// Append stores a batch of results, newest first. Results for an exam that no
// longer exists, and second results for the same student and exam, are
// dropped. It returns how many were stored.
func (s *ResultService) Append(ctx context.Context, batch []model.Result) (int, store.Mode, error) {
	var added int
	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		exams := make(map[string]bool, len(d.Exams))
		for _, e := range d.Exams {
			exams[e.ID] = true
		}
		taken := make(map[[2]string]bool, len(d.Results))
		for _, r := range d.Results {
			taken[[2]string{r.StudentID, r.ExamID}] = true
		}

		var fresh []model.Result
		for _, r := range batch {
			key := [2]string{r.StudentID, r.ExamID}
			if !exams[r.ExamID] || taken[key] {
				continue
			}
			taken[key] = true
			fresh = append(fresh, r)
		}
		added = len(fresh)
		if added == 0 {
			return nil
		}
		slices.Reverse(fresh)
		d.Results = append(fresh, d.Results...)
		return nil
	}, store.KeyResults)
	if err != nil {
		return 0, "", fmt.Errorf("append results: %w", err)
	}

	if skipped := len(batch) - added; skipped > 0 {
		s.log.Info().Int("skipped", skipped).Msg("Dropped duplicate or orphaned results")
	}
	return added, mode, nil
}

// HasTaken reports whether the student already has a result for the exam,
// including one still waiting in the queue.
func (s *ResultService) HasTaken(ctx context.Context, studentID, examID string) (bool, error) {
	for _, r := range s.data.View().Results {
		if r.StudentID == studentID && r.ExamID == examID {
			return true, nil
		}
	}
	ok, err := s.rdb.HExists(ctx, config.CacheKey.ExamCompletedKey(examID), studentID).Result()
	if err != nil {
		return false, fmt.Errorf("check completion: %w", err)
	}
	return ok, nil
}

// List returns every result, newest first.
func (s *ResultService) List() []model.Result {
	return sortNewest(s.data.View().Results)
}

// ListByStudent returns a student's results, newest first.
func (s *ResultService) ListByStudent(studentID string) []model.Result {
	return s.filter(func(r model.Result) bool { return r.StudentID == studentID })
}

// ListByExam returns the results of an exam, newest first.
func (s *ResultService) ListByExam(examID string) []model.Result {
	return s.filter(func(r model.Result) bool { return r.ExamID == examID })
}

func (s *ResultService) filter(keep func(model.Result) bool) []model.Result {
	out := []model.Result{}
	for _, r := range s.data.View().Results {
		if keep(r) {
			out = append(out, r)
		}
	}
	return sortNewest(out)
}

func sortNewest(results []model.Result) []model.Result {
	slices.SortStableFunc(results, func(a, b model.Result) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return results
}

// AttachFeedback sets the teacher feedback of a result.
func (s *ResultService) AttachFeedback(ctx context.Context, resultID, feedback string) (*model.Result, store.Mode, error) {
	var updated model.Result
	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		i := slices.IndexFunc(d.Results, func(r model.Result) bool { return r.ID == resultID })
		if i < 0 {
			return ErrNotFound
		}
		d.Results[i].Feedback = feedback
		updated = d.Results[i]
		return nil
	}, store.KeyResults)
	if err != nil {
		return nil, "", err
	}
	return &updated, mode, nil
}

// AttachLatestFeedback sets the feedback on the student's most recent result,
// which is where the report card reads it from.
func (s *ResultService) AttachLatestFeedback(ctx context.Context, studentID, feedback string) (*model.Result, store.Mode, error) {
	latest := s.ListByStudent(studentID)
	if len(latest) == 0 {
		return nil, "", ErrNotFound
	}
	return s.AttachFeedback(ctx, latest[0].ID, feedback)
}

// RebuildMarkers rewrites the Redis completion markers from the dataset and
// the results still waiting in the persist queue. It runs at startup and after
// a restore so students whose results were removed may sit the exam again.
func (s *ResultService) RebuildMarkers(ctx context.Context) error {
	ds := s.data.View()
	queued, err := s.queued(ctx)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, e := range ds.Exams {
		pipe.Del(ctx, config.CacheKey.ExamCompletedKey(e.ID))
	}
	for _, r := range slices.Concat(ds.Results, queued) {
		pipe.HSet(ctx, config.CacheKey.ExamCompletedKey(r.ExamID), r.StudentID, r.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuild markers: %w", err)
	}
	return nil
}

// queued decodes the results the result worker has not appended yet.
func (s *ResultService) queued(ctx context.Context) ([]model.Result, error) {
	items, err := s.rdb.LRange(ctx, config.WorkerKey.PersistResultsQueue, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read result queue: %w", err)
	}

	out := make([]model.Result, 0, len(items))
	for _, item := range items {
		var res model.Result
		if err := json.Unmarshal([]byte(item), &res); err != nil {
			s.log.Warn().Err(err).Msg("Skipping malformed queued result")
			continue
		}
		out = append(out, res)
	}
	return out, nil
}
