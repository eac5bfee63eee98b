package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/store"
)

// SubmissionService handles task hand-ins and their grading.
type SubmissionService struct {
	data *DataService
	log  zerolog.Logger
	now  func() time.Time
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(data *DataService, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		data: data,
		log:  log.With().Str("component", "submission_service").Logger(),
		now:  time.Now,
	}
}

// Submit stores a task handed in by a student as pending.
func (s *SubmissionService) Submit(ctx context.Context, student model.Student, in model.SubmissionInput) (*model.Submission, store.Mode, error) {
	if in.Attachment != nil {
		if err := sniffAttachment(in.Attachment); err != nil {
			return nil, "", err
		}
	}

	sub := model.Submission{
		ID:           "sub-" + uuid.NewString(),
		StudentID:    student.ID,
		StudentName:  student.Name,
		StudentClass: student.Class,
		Subject:      strings.TrimSpace(in.Subject),
		Description:  strings.TrimSpace(in.Description),
		Attachment:   in.Attachment,
		Timestamp:    s.now(),
		Status:       model.SubmissionPending,
	}

	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		d.Submissions = append([]model.Submission{sub}, d.Submissions...)
		return nil
	}, store.KeySubmissions)
	if err != nil {
		return nil, "", err
	}

	s.log.Info().Str("submission_id", sub.ID).Str("student_id", student.ID).Msg("Task submitted")
	return &sub, mode, nil
}

// List returns submissions newest first, optionally only those with status.
func (s *SubmissionService) List(status model.SubmissionStatus) []model.Submission {
	return s.filter(func(sub model.Submission) bool { return status == "" || sub.Status == status })
}

// ListByStudent returns a student's submissions, newest first.
func (s *SubmissionService) ListByStudent(studentID string) []model.Submission {
	return s.filter(func(sub model.Submission) bool { return sub.StudentID == studentID })
}

// GetByID retrieves one submission.
func (s *SubmissionService) GetByID(id string) (*model.Submission, error) {
	for _, sub := range s.data.View().Submissions {
		if sub.ID == id {
			return &sub, nil
		}
	}
	return nil, ErrNotFound
}

func (s *SubmissionService) filter(keep func(model.Submission) bool) []model.Submission {
	out := []model.Submission{}
	for _, sub := range s.data.View().Submissions {
		if keep(sub) {
			out = append(out, sub)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Submission) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}

// Grade records a grade and marks the submission reviewed.
func (s *SubmissionService) Grade(ctx context.Context, id string, grade int) (*model.Submission, store.Mode, error) {
	var updated model.Submission
	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		i := slices.IndexFunc(d.Submissions, func(sub model.Submission) bool { return sub.ID == id })
		if i < 0 {
			return ErrNotFound
		}
		d.Submissions[i].Status = model.SubmissionReviewed
		d.Submissions[i].Grade = &grade
		updated = d.Submissions[i]
		return nil
	}, store.KeySubmissions)
	if err != nil {
		return nil, "", err
	}

	s.log.Info().Str("submission_id", id).Int("grade", grade).Msg("Task graded")
	return &updated, mode, nil
}
