package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/session"
	"github.com/smada/genius-backend/internal/store"
)

// ErrDuplicateNIS is returned when a NIS is already registered.
var ErrDuplicateNIS = errors.New("nis already registered")

// StudentService handles the student roster.
type StudentService struct {
	data     *DataService
	sessions *session.Registry
	log      zerolog.Logger
}

// NewStudentService creates a new StudentService.
func NewStudentService(data *DataService, sessions *session.Registry, log zerolog.Logger) *StudentService {
	return &StudentService{
		data:     data,
		sessions: sessions,
		log:      log.With().Str("component", "student_service").Logger(),
	}
}

// DefaultStudents seeds an empty roster on first start.
var DefaultStudents = []model.Student{
	{ID: "S-12345", Name: "Andi Pratama", NIS: "12345", Class: "XII MIPA 1"},
	{ID: "S-12346", Name: "Siti Aminah", NIS: "12346", Class: "XII MIPA 2"},
}

// SeedDefaults stores DefaultStudents when the roster is empty.
func (s *StudentService) SeedDefaults(ctx context.Context) error {
	if len(s.data.View().Students) > 0 {
		return nil
	}
	_, err := s.data.Update(ctx, func(d *store.Dataset) error {
		if len(d.Students) == 0 {
			d.Students = slices.Clone(DefaultStudents)
		}
		return nil
	}, store.KeyStudents)
	if err != nil {
		return fmt.Errorf("seed students: %w", err)
	}
	s.log.Info().Int("count", len(DefaultStudents)).Msg("Seeded default students")
	return nil
}

// ListStudents returns students sorted by class then name, optionally filtered
// by class, one page at a time.
func (s *StudentService) ListStudents(class string, page, perPage int) ([]model.Student, *response.Pagination) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 500 {
		perPage = 500
	}

	students := s.data.View().Students
	if class != "" {
		students = slices.DeleteFunc(students, func(st model.Student) bool { return st.Class != class })
	}
	slices.SortStableFunc(students, func(a, b model.Student) int {
		if c := strings.Compare(a.Class, b.Class); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	total := len(students)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return students[start:end], pagination
}

// All returns the whole roster.
func (s *StudentService) All() []model.Student {
	return s.data.View().Students
}

// GetByID retrieves a student by ID.
func (s *StudentService) GetByID(id string) (*model.Student, error) {
	for _, st := range s.data.View().Students {
		if st.ID == id {
			return &st, nil
		}
	}
	return nil, ErrNotFound
}

// GetByNIS retrieves a student by NIS.
func (s *StudentService) GetByNIS(nis string) (*model.Student, error) {
	nis = strings.TrimSpace(nis)
	for _, st := range s.data.View().Students {
		if st.NIS == nis {
			return &st, nil
		}
	}
	return nil, ErrNotFound
}

// Classes returns the distinct non-empty class labels, sorted.
func (s *StudentService) Classes() []string {
	var classes []string
	for _, st := range s.data.View().Students {
		if st.Class != "" && !slices.Contains(classes, st.Class) {
			classes = append(classes, st.Class)
		}
	}
	slices.Sort(classes)
	return classes
}

// Create adds one student. The ID derives from the NIS.
func (s *StudentService) Create(ctx context.Context, in model.StudentInput) (*model.Student, store.Mode, error) {
	student := newStudent(in)
	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		if slices.ContainsFunc(d.Students, func(st model.Student) bool { return st.NIS == student.NIS || st.ID == student.ID }) {
			return ErrDuplicateNIS
		}
		d.Students = append(d.Students, student)
		return nil
	}, store.KeyStudents)
	if err != nil {
		return nil, "", err
	}
	s.log.Info().Str("student_id", student.ID).Msg("Student created")
	return &student, mode, nil
}

// BulkCreate adds many students, skipping any NIS already registered or
// repeated within the batch. It returns the students actually added.
func (s *StudentService) BulkCreate(ctx context.Context, inputs []model.StudentInput) ([]model.Student, store.Mode, error) {
	var added []model.Student
	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		seen := make(map[string]bool, len(d.Students)+len(inputs))
		for _, st := range d.Students {
			seen[st.NIS] = true
			seen[st.ID] = true
		}
		added = added[:0]
		for _, in := range inputs {
			student := newStudent(in)
			if student.NIS == "" || student.Name == "" || seen[student.NIS] || seen[student.ID] {
				continue
			}
			seen[student.NIS] = true
			seen[student.ID] = true
			added = append(added, student)
		}
		d.Students = append(d.Students, added...)
		return nil
	}, store.KeyStudents)
	if err != nil {
		return nil, "", fmt.Errorf("bulk create students: %w", err)
	}

	s.log.Info().Int("requested", len(inputs)).Int("added", len(added)).Msg("Students imported")
	return added, mode, nil
}

// Update edits a student's name, NIS and class. Changing the NIS keeps the
// original ID so existing results stay attached.
func (s *StudentService) Update(ctx context.Context, id string, in model.StudentInput) (*model.Student, store.Mode, error) {
	var updated model.Student
	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		i := slices.IndexFunc(d.Students, func(st model.Student) bool { return st.ID == id })
		if i < 0 {
			return ErrNotFound
		}
		nis := strings.TrimSpace(in.NIS)
		if slices.ContainsFunc(d.Students, func(st model.Student) bool { return st.ID != id && st.NIS == nis }) {
			return ErrDuplicateNIS
		}
		updated = d.Students[i]
		updated.Name = strings.TrimSpace(in.Name)
		updated.NIS = nis
		updated.Class = strings.TrimSpace(in.Class)
		d.Students[i] = updated
		return nil
	}, store.KeyStudents)
	if err != nil {
		return nil, "", err
	}
	return &updated, mode, nil
}

// Delete removes a student. Sessions the student is running are
// force-finished. Results are kept for the exam history.
func (s *StudentService) Delete(ctx context.Context, id string) (store.Mode, error) {
	mode, err := s.data.Update(ctx, func(d *store.Dataset) error {
		before := len(d.Students)
		d.Students = slices.DeleteFunc(d.Students, func(st model.Student) bool { return st.ID == id })
		if len(d.Students) == before {
			return ErrNotFound
		}
		return nil
	}, store.KeyStudents)
	if err != nil {
		return "", err
	}

	s.sessions.TerminateStudent(id)
	s.log.Info().Str("student_id", id).Msg("Student deleted")
	return mode, nil
}

func newStudent(in model.StudentInput) model.Student {
	nis := strings.TrimSpace(in.NIS)
	return model.Student{
		ID:    model.StudentID(nis),
		Name:  strings.TrimSpace(in.Name),
		NIS:   nis,
		Class: strings.TrimSpace(in.Class),
	}
}
