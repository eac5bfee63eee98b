package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeedback struct {
	name, performance string
}

func (s *stubFeedback) WriteFeedback(_ context.Context, name, performance string) string {
	s.name, s.performance = name, performance
	return "Pertahankan prestasimu, " + name + "."
}

func newReportService(h *harness, fb FeedbackWriter) *ReportService {
	return NewReportService(h.data, h.results, fb, config.DefaultReportConfig(), zerolog.Nop())
}

func TestStudentReport(t *testing.T) {
	h := newHarness(t)
	reports := newReportService(h, &stubFeedback{})
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	_, _, err := h.students.Create(h.ctx, model.StudentInput{Name: "Ani", NIS: "1", Class: "XI-1"})
	require.NoError(t, err)
	kimia := h.activeExam(t, "Kimia")
	fisika := h.activeExam(t, "Fisika")

	// A result whose exam was removed later stays on the report.
	_, err = h.data.Update(h.ctx, func(d *store.Dataset) error {
		d.Results = []model.Result{
			result("r3", "S-1", fisika.ID, 60, base.Add(2*time.Hour)),
			result("r2", "S-1", "ex-gone", 90, base.Add(time.Hour)),
			result("r1", "S-1", kimia.ID, 80, base),
			result("r9", "S-2", kimia.ID, 10, base),
		}
		d.Results[1].Feedback = "Rajin"
		return nil
	}, store.KeyResults)
	require.NoError(t, err)

	sub, _, err := h.submissions.Submit(h.ctx, model.Student{ID: "S-1", Name: "Ani"}, model.SubmissionInput{Subject: "Biologi", Description: "x"})
	require.NoError(t, err)
	_, _, err = h.submissions.Grade(h.ctx, sub.ID, 70)
	require.NoError(t, err)
	_, _, err = h.submissions.Submit(h.ctx, model.Student{ID: "S-1", Name: "Ani"}, model.SubmissionInput{Subject: "Sejarah", Description: "belum dinilai"})
	require.NoError(t, err)

	report, err := reports.StudentReport("S-1")
	require.NoError(t, err)

	require.Len(t, report.Exams, 3)
	assert.Equal(t, []string{"r1", "r2", "r3"}, []string{report.Exams[0].ResultID, report.Exams[1].ResultID, report.Exams[2].ResultID})
	assert.True(t, report.Exams[0].Passed)
	assert.Equal(t, 70, report.Exams[0].KKM)
	assert.Equal(t, "Ujian dihapus", report.Exams[1].Title)
	assert.Equal(t, 75, report.Exams[1].KKM, "unknown exams use the passing average")
	assert.False(t, report.Exams[2].Passed)

	require.Len(t, report.Tasks, 1)
	assert.Equal(t, 70, report.Tasks[0].Grade)

	assert.Equal(t, 75, report.Average) // (80+90+60+70)/4
	assert.True(t, report.Passing)
	assert.Equal(t, []int{80, 90, 60}, []int{report.Chart[0].Score, report.Chart[1].Score, report.Chart[2].Score})
	assert.Equal(t, "Rajin", report.Feedback)
	assert.Equal(t, "SMADA GENIUS ACADEMY", report.School.Name)

	_, err = reports.StudentReport("S-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStudentReportWithoutActivity(t *testing.T) {
	h := newHarness(t)
	reports := newReportService(h, &stubFeedback{})
	_, _, err := h.students.Create(h.ctx, model.StudentInput{Name: "Baru", NIS: "7"})
	require.NoError(t, err)

	report, err := reports.StudentReport("S-7")
	require.NoError(t, err)
	assert.Empty(t, report.Exams)
	assert.Empty(t, report.Chart)
	assert.Zero(t, report.Average)
	assert.False(t, report.Passing)
	assert.Equal(t, config.DefaultReportConfig().DefaultFeedback, report.Feedback)
}

func TestDraftAndSaveFeedback(t *testing.T) {
	h := newHarness(t)
	fb := &stubFeedback{}
	reports := newReportService(h, fb)
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	_, _, err := h.students.Create(h.ctx, model.StudentInput{Name: "Ani", NIS: "1"})
	require.NoError(t, err)
	a := h.activeExam(t, "A")
	b := h.activeExam(t, "B")
	_, _, err = h.results.Append(h.ctx, []model.Result{
		result("r1", "S-1", a.ID, 80, base),
		result("r2", "S-1", b.ID, 100, base.Add(time.Hour)),
	})
	require.NoError(t, err)

	draft, err := reports.DraftFeedback(h.ctx, "S-1")
	require.NoError(t, err)
	assert.Equal(t, "Pertahankan prestasimu, Ani.", draft)
	assert.Equal(t, "Ani", fb.name)
	assert.Contains(t, fb.performance, "80, 100")

	saved, err := reports.SaveFeedback(h.ctx, "S-1", "  "+draft+"  ")
	require.NoError(t, err)
	assert.Equal(t, "r2", saved.ID)

	report, err := reports.StudentReport("S-1")
	require.NoError(t, err)
	assert.Equal(t, draft, report.Feedback)
}

func TestLeaderboard(t *testing.T) {
	h := newHarness(t)
	reports := newReportService(h, &stubFeedback{})
	now := time.Now()

	_, _, err := h.students.BulkCreate(h.ctx, []model.StudentInput{
		{Name: "Ani", NIS: "1", Class: "A"},
		{Name: "Budi", NIS: "2", Class: "A"},
		{Name: "Citra", NIS: "3", Class: "B"},
		{Name: "Dodi", NIS: "4", Class: "C"},
	})
	require.NoError(t, err)
	x := h.activeExam(t, "X")
	y := h.activeExam(t, "Y")
	_, _, err = h.results.Append(h.ctx, []model.Result{
		result("r1", "S-1", x.ID, 60, now),
		result("r2", "S-1", y.ID, 80, now),
		result("r3", "S-2", x.ID, 90, now),
		result("r4", "S-3", x.ID, 100, now),
	})
	require.NoError(t, err)

	board := reports.Leaderboard("A")

	require.Len(t, board.School, 3, "students without results are left out")
	assert.Equal(t, "Citra", board.School[0].Name)
	assert.Equal(t, "Budi", board.School[1].Name)
	assert.Equal(t, 70, board.School[2].Average)
	assert.Equal(t, 2, board.School[2].TotalExams)

	require.Len(t, board.Class, 2)
	assert.Equal(t, "Budi", board.Class[0].Name)

	require.Len(t, board.TopClasses, 3)
	assert.Equal(t, model.ClassStanding{Class: "B", Average: 100}, board.TopClasses[0])
	assert.Equal(t, model.ClassStanding{Class: "A", Average: 80}, board.TopClasses[1])
	assert.Equal(t, model.ClassStanding{Class: "C", Average: 0}, board.TopClasses[2])

	assert.Empty(t, reports.Leaderboard("").Class)
}
