package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/session"
)

// Session start errors.
var (
	ErrExamNotActive   = errors.New("exam is not active")
	ErrExamNotTargeted = errors.New("exam is not open to this class")
)

// SessionService starts and resumes exam sessions and lists the exams a
// student may take.
type SessionService struct {
	exams    *ExamService
	results  *ResultService
	monitor  *MonitorService
	registry *session.Registry
	tick     time.Duration
	log      zerolog.Logger
}

// NewSessionService creates a new SessionService. tick is the wall time of
// one countdown second.
func NewSessionService(
	exams *ExamService,
	results *ResultService,
	monitor *MonitorService,
	registry *session.Registry,
	tick time.Duration,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		exams:    exams,
		results:  results,
		monitor:  monitor,
		registry: registry,
		tick:     tick,
		log:      log.With().Str("component", "session_service").Logger(),
	}
}

// Lobby returns the active exams open to the student's class, each marked
// with whether the student already has a result.
func (s *SessionService) Lobby(ctx context.Context, student model.Student) []model.ExamSummary {
	exams := s.exams.ListForStudent(student.Class)
	out := make([]model.ExamSummary, 0, len(exams))
	for _, e := range exams {
		taken, err := s.results.HasTaken(ctx, student.ID, e.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", e.ID).Msg("Completion check failed")
		}
		out = append(out, e.Summary(taken))
	}
	return out
}

// Open resumes the student's running session on an exam or starts a new
// one. created is false on resume.
func (s *SessionService) Open(ctx context.Context, student model.Student, examID string) (sess *session.Session, created bool, err error) {
	exam, err := s.exams.GetByID(examID)
	if err != nil {
		return nil, false, err
	}
	if exam.Status != model.ExamStatusActive {
		return nil, false, ErrExamNotActive
	}
	if !exam.Targets(student.Class) {
		return nil, false, ErrExamNotTargeted
	}
	if len(exam.Questions) == 0 {
		return nil, false, ErrNoQuestions
	}

	sess, created, err = s.registry.GetOrCreate(student.ID, examID, func() (*session.Session, error) {
		taken, err := s.results.HasTaken(ctx, student.ID, examID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID).Msg("Completion check failed")
		}
		if taken {
			return nil, ErrExamAlreadyTaken
		}
		return session.New(session.Options{
			Exam:         exam,
			Student:      student,
			Results:      finishedSink{results: s.results, monitor: s.monitor},
			Violations:   s.monitor,
			TickInterval: s.tick,
			Log:          s.log,
		}), nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		sess.Start(ctx)
	}
	return sess, created, nil
}

// Live returns the student's running session on an exam.
func (s *SessionService) Live(studentID, examID string) (*session.Session, bool) {
	return s.registry.Get(studentID, examID)
}

// TerminateExam force-finishes every running session of an exam.
func (s *SessionService) TerminateExam(examID string) int {
	n := s.registry.TerminateExam(examID)
	if n > 0 {
		s.log.Info().Str("exam_id", examID).Int("sessions", n).Msg("Sessions terminated")
	}
	return n
}

// TerminateStudent force-finishes one student's running session on an exam.
func (s *SessionService) TerminateStudent(studentID, examID string) bool {
	sess, ok := s.registry.Get(studentID, examID)
	if !ok {
		return false
	}
	_, ok = sess.Terminate()
	return ok
}

// finishedSink stores a result and tells the live monitor about it.
type finishedSink struct {
	results *ResultService
	monitor *MonitorService
}

func (f finishedSink) Submit(ctx context.Context, res model.Result) error {
	if err := f.results.Submit(ctx, res); err != nil {
		return err
	}
	f.monitor.AnnounceFinished(ctx, res)
	return nil
}
