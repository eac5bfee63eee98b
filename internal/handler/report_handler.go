package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/validator"
)

// ReportHandler serves report cards, feedback and rankings to teachers.
type ReportHandler struct {
	reportService *service.ReportService
	resultService *service.ResultService
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reportService *service.ReportService, resultService *service.ResultService) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		resultService: resultService,
	}
}

// GetReport godoc
// GET /api/v1/teacher/students/:student_id/report
// Returns the report card of a student.
func (h *ReportHandler) GetReport(c *gin.Context) {
	report, err := h.reportService.StudentReport(c.Param("student_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// DraftFeedback godoc
// POST /api/v1/teacher/students/:student_id/feedback/draft
// Asks the AI for a report-card comment. Nothing is saved.
func (h *ReportHandler) DraftFeedback(c *gin.Context) {
	text, err := h.reportService.DraftFeedback(c.Request.Context(), c.Param("student_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"feedback": text})
}

// SaveFeedback godoc
// PUT /api/v1/teacher/students/:student_id/feedback
// Stores the report-card comment on the student's latest result.
func (h *ReportHandler) SaveFeedback(c *gin.Context) {
	var req model.FeedbackRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.reportService.SaveFeedback(c.Request.Context(), c.Param("student_id"), req.Feedback)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// SetResultFeedback godoc
// PUT /api/v1/teacher/results/:result_id/feedback
// Stores teacher feedback on one result.
func (h *ReportHandler) SetResultFeedback(c *gin.Context) {
	var req model.FeedbackRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, mode, err := h.resultService.AttachFeedback(c.Request.Context(), c.Param("result_id"), req.Feedback)
	if err != nil {
		fail(c, err)
		return
	}
	response.Saved(c, http.StatusOK, gin.H{"result": res}, mode)
}

// ListResults godoc
// GET /api/v1/teacher/results
// Lists every result, newest first.
func (h *ReportHandler) ListResults(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"results": h.resultService.List()})
}

// GetLeaderboard godoc
// GET /api/v1/teacher/leaderboard?class=XII+MIPA+1
// Returns the rankings, with the class ranking for the given class.
func (h *ReportHandler) GetLeaderboard(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"leaderboard": h.reportService.Leaderboard(c.Query("class"))})
}

// GetHeader godoc
// GET /api/v1/teacher/report/header
// Returns the configured report letterhead.
func (h *ReportHandler) GetHeader(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"header": h.reportService.Header()})
}
