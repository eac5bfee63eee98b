package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/session"
	"github.com/smada/genius-backend/internal/store"
	"github.com/stretchr/testify/require"
)

// cloudStore is a Memory that acknowledges writes as cloud writes and can be
// switched off.
type cloudStore struct {
	*store.Memory
	down  atomic.Bool
	saves atomic.Int32
}

func newCloudStore() *cloudStore {
	return &cloudStore{Memory: store.NewMemory()}
}

func (c *cloudStore) Load(ctx context.Context) (store.Snapshot, error) {
	if c.down.Load() {
		return nil, fmt.Errorf("dial: %w", store.ErrUnavailable)
	}
	return c.Memory.Load(ctx)
}

func (c *cloudStore) Save(ctx context.Context, key store.Key, value any) (store.Ack, error) {
	if c.down.Load() {
		return store.Ack{}, fmt.Errorf("dial: %w", store.ErrUnavailable)
	}
	c.saves.Add(1)
	ack, err := c.Memory.Save(ctx, key, value)
	ack.Mode = store.ModeCloud
	return ack, err
}

type harness struct {
	ctx         context.Context
	mr          *miniredis.Miniredis
	rdb         *redis.Client
	local       *store.Memory
	remote      *cloudStore
	data        *DataService
	registry    *session.Registry
	exams       *ExamService
	results     *ResultService
	students    *StudentService
	submissions *SubmissionService
	monitor     *MonitorService
	sessions    *SessionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		ctx:      ctx,
		mr:       mr,
		rdb:      rdb,
		local:    store.NewMemory(),
		remote:   newCloudStore(),
		registry: session.NewRegistry(),
	}
	h.data = NewDataService(h.local, h.remote, log)
	require.NoError(t, h.data.Load(ctx))
	t.Cleanup(h.data.Close)

	h.exams = NewExamService(h.data, h.registry, rdb, log)
	h.results = NewResultService(h.data, rdb, log)
	h.students = NewStudentService(h.data, h.registry, log)
	h.submissions = NewSubmissionService(h.data, log)
	h.monitor = NewMonitorService(rdb, nil, h.registry, log)
	h.sessions = NewSessionService(h.exams, h.results, h.monitor, h.registry, 0, log)
	return h
}

func intPtr(v int) *int { return &v }

func examInput(title string, classes ...string) model.ExamInput {
	questions := make([]model.QuestionInput, 5)
	for i := range questions {
		questions[i] = model.QuestionInput{
			Text:          fmt.Sprintf("Soal %d", i+1),
			Options:       []string{"A", "B", "C", "D", "E"},
			CorrectAnswer: intPtr(i),
		}
	}
	return model.ExamInput{
		Title:           title,
		Subject:         "Kimia",
		DurationMinutes: 30,
		Questions:       questions,
		KKM:             70,
		TargetClasses:   classes,
	}
}

// activeExam creates an exam and opens it.
func (h *harness) activeExam(t *testing.T, title string, classes ...string) *model.Exam {
	t.Helper()
	exam, _, err := h.exams.Create(h.ctx, examInput(title, classes...))
	require.NoError(t, err)
	_, err = h.exams.SetStatus(h.ctx, exam.ID, model.ExamStatusActive)
	require.NoError(t, err)
	exam.Status = model.ExamStatusActive
	return exam
}

func result(id, studentID, examID string, score int, at time.Time) model.Result {
	return model.Result{
		ID:             id,
		StudentID:      studentID,
		StudentName:    "Siswa " + studentID,
		ExamID:         examID,
		Score:          score,
		CorrectCount:   score / 20,
		TotalQuestions: 5,
		Timestamp:      at,
	}
}

func completedMarker(h *harness, examID, studentID string) bool {
	return h.mr.Exists(config.CacheKey.ExamCompletedKey(examID)) &&
		h.mr.HGet(config.CacheKey.ExamCompletedKey(examID), studentID) != ""
}
