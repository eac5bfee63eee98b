package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSubmitQueues(t *testing.T) {
	h := newHarness(t)
	exam := h.activeExam(t, "Antre")
	res := result("r1", "S-1", exam.ID, 80, time.Now())

	require.NoError(t, h.results.Submit(h.ctx, res))
	assert.True(t, completedMarker(h, exam.ID, "S-1"))

	queued, err := h.mr.List(config.WorkerKey.PersistResultsQueue)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	var got model.Result
	require.NoError(t, json.Unmarshal([]byte(queued[0]), &got))
	assert.Equal(t, "r1", got.ID)

	assert.Empty(t, h.results.List(), "the worker stores queued results")

	taken, err := h.results.HasTaken(h.ctx, "S-1", exam.ID)
	require.NoError(t, err)
	assert.True(t, taken)

	err = h.results.Submit(h.ctx, result("r2", "S-1", exam.ID, 100, time.Now()))
	assert.ErrorIs(t, err, ErrExamAlreadyTaken)
}

func TestResultSubmitWithoutRedis(t *testing.T) {
	h := newHarness(t)
	exam := h.activeExam(t, "Langsung")
	h.mr.Close()

	require.NoError(t, h.results.Submit(h.ctx, result("r1", "S-1", exam.ID, 80, time.Now())))
	results := h.results.List()
	require.Len(t, results, 1)
	assert.Equal(t, "r1", results[0].ID)

	err := h.results.Submit(h.ctx, result("r2", "S-1", exam.ID, 40, time.Now()))
	assert.ErrorIs(t, err, ErrExamAlreadyTaken)
}

func TestResultAppendDedupes(t *testing.T) {
	h := newHarness(t)
	exam := h.activeExam(t, "Unik")
	now := time.Now()

	n, _, err := h.results.Append(h.ctx, []model.Result{
		result("r1", "S-1", exam.ID, 80, now),
		result("r1-dup", "S-1", exam.ID, 20, now.Add(time.Second)),
		result("r2", "S-2", exam.ID, 60, now.Add(2*time.Second)),
		result("r3", "S-3", "ex-gone", 100, now),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, _, err = h.results.Append(h.ctx, []model.Result{result("r1-again", "S-1", exam.ID, 0, now)})
	require.NoError(t, err)
	assert.Zero(t, n)

	stored := h.data.View().Results
	require.Len(t, stored, 2)
	assert.Equal(t, "r2", stored[0].ID, "stored newest first")
	assert.Equal(t, "r1", stored[1].ID)
}

func TestResultListings(t *testing.T) {
	h := newHarness(t)
	a := h.activeExam(t, "A")
	b := h.activeExam(t, "B")
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	_, _, err := h.results.Append(h.ctx, []model.Result{
		result("r1", "S-1", a.ID, 80, base),
		result("r2", "S-1", b.ID, 60, base.Add(time.Hour)),
		result("r3", "S-2", a.ID, 90, base.Add(2*time.Hour)),
	})
	require.NoError(t, err)

	byStudent := h.results.ListByStudent("S-1")
	require.Len(t, byStudent, 2)
	assert.Equal(t, "r2", byStudent[0].ID)

	byExam := h.results.ListByExam(a.ID)
	require.Len(t, byExam, 2)
	assert.Equal(t, "r3", byExam[0].ID)
}

func TestResultFeedback(t *testing.T) {
	h := newHarness(t)
	a := h.activeExam(t, "A")
	b := h.activeExam(t, "B")
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	_, _, err := h.results.Append(h.ctx, []model.Result{
		result("r-old", "S-1", a.ID, 80, base),
		result("r-new", "S-1", b.ID, 60, base.Add(time.Hour)),
	})
	require.NoError(t, err)

	res, _, err := h.results.AttachLatestFeedback(h.ctx, "S-1", "Bagus")
	require.NoError(t, err)
	assert.Equal(t, "r-new", res.ID)
	assert.Equal(t, "Bagus", h.results.ListByStudent("S-1")[0].Feedback)

	_, _, err = h.results.AttachLatestFeedback(h.ctx, "S-404", "x")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = h.results.AttachFeedback(h.ctx, "r-missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResultRebuildMarkers(t *testing.T) {
	h := newHarness(t)
	exam := h.activeExam(t, "Pulih")
	_, _, err := h.results.Append(h.ctx, []model.Result{result("r1", "S-1", exam.ID, 80, time.Now())})
	require.NoError(t, err)
	h.mr.HSet(config.CacheKey.ExamCompletedKey(exam.ID), "S-stale", "r-stale")

	require.NoError(t, h.results.RebuildMarkers(context.Background()))
	assert.True(t, completedMarker(h, exam.ID, "S-1"))
	assert.False(t, completedMarker(h, exam.ID, "S-stale"))
}

func TestResultRebuildMarkersKeepsQueuedResults(t *testing.T) {
	h := newHarness(t)
	exam := h.activeExam(t, "Antre Pulih")

	// Still in the persist queue, not yet in the dataset.
	require.NoError(t, h.results.Submit(h.ctx, result("r1", "S-1", exam.ID, 80, time.Now())))
	require.Empty(t, h.results.ListByExam(exam.ID))

	require.NoError(t, h.results.RebuildMarkers(h.ctx))

	taken, err := h.results.HasTaken(h.ctx, "S-1", exam.ID)
	require.NoError(t, err)
	assert.True(t, taken)

	_, _, err = h.sessions.Open(h.ctx, model.Student{ID: "S-1", Name: "Siswa S-1"}, exam.ID)
	assert.ErrorIs(t, err, ErrExamAlreadyTaken)
}
