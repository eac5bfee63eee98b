package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/sheet"
	"github.com/smada/genius-backend/internal/validator"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExamHandler handles exam management endpoints for teachers.
type ExamHandler struct {
	examService    *service.ExamService
	resultService  *service.ResultService
	studentService *service.StudentService
	sessionService *service.SessionService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(
	examService *service.ExamService,
	resultService *service.ResultService,
	studentService *service.StudentService,
	sessionService *service.SessionService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		resultService:  resultService,
		studentService: studentService,
		sessionService: sessionService,
		monitorService: monitorService,
		log:            log.With().Str("component", "exam_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/teacher/exams
// Lists every exam, newest first.
func (h *ExamHandler) ListExams(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"exams": h.examService.List()})
}

// GetExam godoc
// GET /api/v1/teacher/exams/:exam_id
// Returns an exam with its questions and answer key.
func (h *ExamHandler) GetExam(c *gin.Context) {
	exam, err := h.examService.GetByID(c.Param("exam_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// CreateExam godoc
// POST /api/v1/teacher/exams
// Creates a new draft exam.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req model.ExamInput
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, mode, err := h.examService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Saved(c, http.StatusCreated, gin.H{"exam": exam}, mode)
}

// UpdateExam godoc
// PUT /api/v1/teacher/exams/:exam_id
// Replaces title, settings and questions of an exam.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	var req model.ExamInput
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, mode, err := h.examService.Update(c.Request.Context(), c.Param("exam_id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Saved(c, http.StatusOK, gin.H{"exam": exam}, mode)
}

// SetExamStatus godoc
// PATCH /api/v1/teacher/exams/:exam_id/status
// Activates, closes or returns an exam to draft.
func (h *ExamHandler) SetExamStatus(c *gin.Context) {
	var req model.ExamStatusRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	status := model.ExamStatus(req.Status)
	mode, err := h.examService.SetStatus(c.Request.Context(), c.Param("exam_id"), status)
	if err != nil {
		fail(c, err)
		return
	}
	response.Saved(c, http.StatusOK, gin.H{"status": status}, mode)
}

// DeleteExam godoc
// DELETE /api/v1/teacher/exams/:exam_id
// Deletes an exam, its results and its violation log.
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	examID := c.Param("exam_id")
	mode, err := h.examService.Delete(c.Request.Context(), examID)
	if err != nil {
		fail(c, err)
		return
	}

	if err := h.monitorService.Reset(c.Request.Context(), examID); err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID).Msg("Failed to clear violation log")
	}
	response.Saved(c, http.StatusOK, gin.H{}, mode)
}

// ListExamResults godoc
// GET /api/v1/teacher/exams/:exam_id/results
// Lists the results of an exam, newest first.
func (h *ExamHandler) ListExamResults(c *gin.Context) {
	examID := c.Param("exam_id")
	if _, err := h.examService.GetByID(examID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": h.resultService.ListByExam(examID)})
}

// ExportExamResults godoc
// GET /api/v1/teacher/exams/:exam_id/results/export
// Downloads the results of an exam as an xlsx workbook.
func (h *ExamHandler) ExportExamResults(c *gin.Context) {
	exam, err := h.examService.GetByID(c.Param("exam_id"))
	if err != nil {
		fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := sheet.WriteResults(&buf, exam, h.resultService.ListByExam(exam.ID), h.studentService.All()); err != nil {
		h.log.Error().Err(err).Str("exam_id", exam.ID).Msg("Failed to build results workbook")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	filename := fmt.Sprintf("nilai-%s-%s.xlsx", slug(exam.Title), time.Now().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// GetViolations godoc
// GET /api/v1/teacher/exams/:exam_id/violations
// Returns per-student violation counts and the recent violation log.
func (h *ExamHandler) GetViolations(c *gin.Context) {
	ctx := c.Request.Context()
	examID := c.Param("exam_id")
	if _, err := h.examService.GetByID(examID); err != nil {
		fail(c, err)
		return
	}

	summary, err := h.monitorService.Summary(ctx, examID)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID).Msg("Failed to read violation counts")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	history, err := h.monitorService.History(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID).Msg("Failed to read violation history")
		history = []model.ViolationEvent{}
	}

	response.Success(c, http.StatusOK, gin.H{
		"summary": summary,
		"history": history,
	})
}

// TerminateExam godoc
// POST /api/v1/teacher/exams/:exam_id/terminate
// Force-finishes every running session of the exam.
func (h *ExamHandler) TerminateExam(c *gin.Context) {
	examID := c.Param("exam_id")
	if _, err := h.examService.GetByID(examID); err != nil {
		fail(c, err)
		return
	}
	n := h.sessionService.TerminateExam(examID)
	response.Success(c, http.StatusOK, gin.H{"terminated": n})
}

// TerminateStudent godoc
// POST /api/v1/teacher/exams/:exam_id/students/:student_id/terminate
// Force-finishes one student's running session.
func (h *ExamHandler) TerminateStudent(c *gin.Context) {
	if !h.sessionService.TerminateStudent(c.Param("student_id"), c.Param("exam_id")) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"terminated": 1})
}

// slug keeps letters and digits of a title for use in a file name.
func slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "ujian"
	}
	return s
}
