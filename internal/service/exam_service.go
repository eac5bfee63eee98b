package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/session"
	"github.com/smada/genius-backend/internal/store"
)

// Domain Errors
var (
	ErrNoQuestions   = errors.New("exam has no questions")
	ErrInvalidStatus = errors.New("invalid exam status")
)

// ExamService handles exam authoring and the exam lifecycle.
type ExamService struct {
	data     *DataService
	sessions *session.Registry
	rdb      *redis.Client
	log      zerolog.Logger
	now      func() time.Time
}

// NewExamService creates a new ExamService.
func NewExamService(data *DataService, sessions *session.Registry, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		data:     data,
		sessions: sessions,
		rdb:      rdb,
		log:      log.With().Str("component", "exam_service").Logger(),
		now:      time.Now,
	}
}

// List returns every exam, newest first.
func (s *ExamService) List() []model.Exam {
	exams := s.data.View().Exams
	slices.SortStableFunc(exams, func(a, b model.Exam) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return exams
}

// GetByID retrieves an exam by its ID.
func (s *ExamService) GetByID(id string) (*model.Exam, error) {
	for _, e := range s.data.View().Exams {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

// ListForStudent returns the active exams a student of the given class may
// take, newest first.
func (s *ExamService) ListForStudent(class string) []model.Exam {
	var out []model.Exam
	for _, e := range s.List() {
		if e.Status == model.ExamStatusActive && e.Targets(class) {
			out = append(out, e)
		}
	}
	return out
}

// Create stores a new exam as draft.
func (s *ExamService) Create(ctx context.Context, in model.ExamInput) (*model.Exam, store.Mode, error) {
	if len(in.Questions) == 0 {
		return nil, "", ErrNoQuestions
	}

	exam := model.Exam{
		ID:        "ex-" + uuid.NewString(),
		Status:    model.ExamStatusDraft,
		CreatedAt: s.now(),
	}
	applyInput(&exam, in)

	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		d.Exams = append([]model.Exam{exam}, d.Exams...)
		return nil
	}, store.KeyExams)
	if err != nil {
		return nil, "", fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().Str("exam_id", exam.ID).Int("questions", len(exam.Questions)).Msg("Exam created")
	return &exam, mode, nil
}

// Update replaces the editable fields of an exam. Status, identity and
// creation time are kept. Running sessions keep the version they started with.
func (s *ExamService) Update(ctx context.Context, id string, in model.ExamInput) (*model.Exam, store.Mode, error) {
	if len(in.Questions) == 0 {
		return nil, "", ErrNoQuestions
	}

	var updated model.Exam
	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		i := slices.IndexFunc(d.Exams, func(e model.Exam) bool { return e.ID == id })
		if i < 0 {
			return ErrNotFound
		}
		updated = d.Exams[i]
		applyInput(&updated, in)
		d.Exams[i] = updated
		return nil
	}, store.KeyExams)
	if err != nil {
		return nil, "", err
	}

	s.log.Info().Str("exam_id", id).Msg("Exam updated")
	return &updated, mode, nil
}

// SetStatus moves an exam between draft, active and closed. Leaving active
// force-finishes the sessions still running.
func (s *ExamService) SetStatus(ctx context.Context, id string, status model.ExamStatus) (store.Mode, error) {
	if !status.Valid() {
		return "", ErrInvalidStatus
	}

	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		i := slices.IndexFunc(d.Exams, func(e model.Exam) bool { return e.ID == id })
		if i < 0 {
			return ErrNotFound
		}
		d.Exams[i].Status = status
		return nil
	}, store.KeyExams)
	if err != nil {
		return "", err
	}

	if status != model.ExamStatusActive {
		if n := s.sessions.TerminateExam(id); n > 0 {
			s.log.Info().Str("exam_id", id).Int("sessions", n).Msg("Running sessions terminated")
		}
	}

	s.log.Info().Str("exam_id", id).Str("status", string(status)).Msg("Exam status changed")
	return mode, nil
}

// Delete removes an exam together with its results. Running sessions are
// force-finished first; their results are discarded with the exam.
func (s *ExamService) Delete(ctx context.Context, id string) (store.Mode, error) {
	if _, err := s.GetByID(id); err != nil {
		return "", err
	}
	s.sessions.TerminateExam(id)

	removed := 0
	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		d.Exams = slices.DeleteFunc(d.Exams, func(e model.Exam) bool { return e.ID == id })
		before := len(d.Results)
		d.Results = slices.DeleteFunc(d.Results, func(r model.Result) bool { return r.ExamID == id })
		removed = before - len(d.Results)
		return nil
	}, store.KeyExams, store.KeyResults)
	if err != nil {
		return "", fmt.Errorf("delete exam: %w", err)
	}

	if err := s.rdb.Del(ctx,
		config.CacheKey.ExamCompletedKey(id),
		config.CacheKey.ExamViolationsKey(id),
	).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id).Msg("Failed to clear exam markers")
	}

	s.log.Info().Str("exam_id", id).Int("results_removed", removed).Msg("Exam deleted")
	return mode, nil
}

func applyInput(exam *model.Exam, in model.ExamInput) {
	exam.Title = in.Title
	exam.Subject = in.Subject
	exam.DurationMinutes = in.DurationMinutes
	exam.KKM = in.KKM
	exam.TargetClasses = slices.Clone(in.TargetClasses)
	exam.ShuffleQuestions = in.ShuffleQuestions

	exam.Questions = make([]model.Question, len(in.Questions))
	for i, q := range in.Questions {
		id := q.ID
		if id == "" {
			id = "q-" + uuid.NewString()
		}
		answer := 0
		if q.CorrectAnswer != nil {
			answer = *q.CorrectAnswer
		}
		exam.Questions[i] = model.Question{
			ID:            id,
			Text:          q.Text,
			Options:       slices.Clone(q.Options),
			CorrectAnswer: answer,
			Image:         q.Image,
		}
	}
}
