package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/repository"
	"github.com/smada/genius-backend/internal/session"
	"golang.org/x/sync/errgroup"
)

// historyLimit caps the violation log returned to the monitor.
const historyLimit = 200

// MonitorEvent is published on an exam's monitor channel.
type MonitorEvent struct {
	Type      string                `json:"type"`
	Violation *model.ViolationEvent `json:"violation,omitempty"`
	Result    *model.Result         `json:"result,omitempty"`
}

const (
	MonitorEventViolation = "violation"
	MonitorEventFinished  = "finished"
)

// LiveSession is one running session as seen by the teacher.
type LiveSession struct {
	StudentID  string `json:"student_id"`
	Name       string `json:"name"`
	Answered   int    `json:"answered"`
	Total      int    `json:"total"`
	Remaining  int    `json:"remaining"`
	Violations int    `json:"violations"`
	Degraded   bool   `json:"degraded"`
}

// MonitorSnapshot is the state of an exam for the live monitor.
type MonitorSnapshot struct {
	ExamID     string           `json:"exam_id"`
	Sessions   []LiveSession    `json:"sessions"`
	Violations map[string]int64 `json:"violations"`
	Finished   int              `json:"finished"`
	Total      int64            `json:"total_violations"`
}

// MonitorService records integrity violations and feeds the live monitor.
//
// Each violation increments a per-exam Redis hash, is queued for the
// violation worker and is published on the exam's monitor channel.
type MonitorService struct {
	rdb      *redis.Client
	history  *repository.ViolationRepository
	sessions *session.Registry
	log      zerolog.Logger
}

// NewMonitorService creates a new MonitorService. history may be nil when
// PostgreSQL is not configured.
func NewMonitorService(
	rdb *redis.Client,
	history *repository.ViolationRepository,
	sessions *session.Registry,
	log zerolog.Logger,
) *MonitorService {
	return &MonitorService{
		rdb:      rdb,
		history:  history,
		sessions: sessions,
		log:      log.With().Str("component", "monitor_service").Logger(),
	}
}

// RecordViolation counts a violation and announces it.
func (s *MonitorService) RecordViolation(ctx context.Context, ev model.ViolationEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}
	event, _ := json.Marshal(MonitorEvent{Type: MonitorEventViolation, Violation: &ev})

	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, config.CacheKey.ExamViolationsKey(ev.ExamID), ev.StudentID, 1)
	pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(ev.ExamID), event)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record violation: %w", err)
	}
	return nil
}

// AnnounceFinished tells monitor subscribers that a session ended.
func (s *MonitorService) AnnounceFinished(ctx context.Context, res model.Result) {
	event, _ := json.Marshal(MonitorEvent{Type: MonitorEventFinished, Result: &res})
	if err := s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(res.ExamID), event).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", res.ExamID).Msg("Failed to announce finished session")
	}
}

// Counts returns the live violation count of every student of an exam.
func (s *MonitorService) Counts(ctx context.Context, examID string) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.ExamViolationsKey(examID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get violation counts: %w", err)
	}
	counts := make(map[string]int64, len(raw))
	for sid, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		counts[sid] = n
	}
	return counts, nil
}

// Summary returns per-student violation counts, highest first.
func (s *MonitorService) Summary(ctx context.Context, examID string) ([]model.ViolationSummary, error) {
	counts, err := s.Counts(ctx, examID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ViolationSummary, 0, len(counts))
	for sid, n := range counts {
		out = append(out, model.ViolationSummary{StudentID: sid, Count: n})
	}
	slices.SortFunc(out, func(a, b model.ViolationSummary) int {
		if a.Count != b.Count {
			return int(b.Count - a.Count)
		}
		if a.StudentID < b.StudentID {
			return -1
		}
		return 1
	})
	return out, nil
}

// History returns the persisted violation log of an exam.
func (s *MonitorService) History(ctx context.Context, examID string) ([]model.ViolationEvent, error) {
	if s.history == nil {
		return []model.ViolationEvent{}, nil
	}
	return s.history.ListByExam(ctx, examID, historyLimit)
}

// Snapshot gathers the running sessions, the live counters and the number of
// finished students of an exam. Counters are best-effort.
func (s *MonitorService) Snapshot(ctx context.Context, examID string) (*MonitorSnapshot, error) {
	snap := &MonitorSnapshot{
		ExamID:     examID,
		Sessions:   []LiveSession{},
		Violations: map[string]int64{},
	}

	var (
		counts   map[string]int64
		finished int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.Counts(gctx, examID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID).Msg("Violation counts unavailable")
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.rdb.HLen(gctx, config.CacheKey.ExamCompletedKey(examID)).Result()
		if err != nil {
			return fmt.Errorf("count finished: %w", err)
		}
		finished = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, sess := range s.sessions.ByExam(examID) {
		student := sess.Student()
		view := sess.View()
		snap.Sessions = append(snap.Sessions, LiveSession{
			StudentID:  student.ID,
			Name:       student.Name,
			Answered:   len(view.Answers),
			Total:      len(view.Questions),
			Remaining:  view.Remaining,
			Violations: view.Violations,
			Degraded:   view.Degraded,
		})
	}
	slices.SortFunc(snap.Sessions, func(a, b LiveSession) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})

	if counts != nil {
		snap.Violations = counts
		for _, n := range counts {
			snap.Total += n
		}
	}
	snap.Finished = int(finished)
	return snap, nil
}

// Subscribe opens the monitor channel of an exam. The caller closes it.
func (s *MonitorService) Subscribe(ctx context.Context, examID string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID))
}

// Reset clears the live counters and the history of an exam.
func (s *MonitorService) Reset(ctx context.Context, examID string) error {
	if err := s.rdb.Del(ctx, config.CacheKey.ExamViolationsKey(examID)).Err(); err != nil {
		return fmt.Errorf("clear counters: %w", err)
	}
	if s.history != nil {
		if err := s.history.DeleteByExam(ctx, examID); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
	}
	return nil
}
