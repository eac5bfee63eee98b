package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/validator"
)

// SubmissionHandler handles task review for teachers.
type SubmissionHandler struct {
	submissionService *service.SubmissionService
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissionService *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService}
}

// ListSubmissions godoc
// GET /api/v1/teacher/submissions?status=pending
// Lists submissions, newest first.
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	status := model.SubmissionStatus(c.Query("status"))
	switch status {
	case "", model.SubmissionPending, model.SubmissionReviewed:
	default:
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"status": "status must be one of [pending reviewed]"})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"submissions": h.submissionService.List(status)})
}

// GetSubmission godoc
// GET /api/v1/teacher/submissions/:submission_id
// Returns one submission including its attachment.
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	sub, err := h.submissionService.GetByID(c.Param("submission_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"submission": sub})
}

// GradeSubmission godoc
// PUT /api/v1/teacher/submissions/:submission_id/grade
// Grades a submission and marks it reviewed.
func (h *SubmissionHandler) GradeSubmission(c *gin.Context) {
	var req model.GradeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, mode, err := h.submissionService.Grade(c.Request.Context(), c.Param("submission_id"), *req.Grade)
	if err != nil {
		fail(c, err)
		return
	}
	response.Saved(c, http.StatusOK, gin.H{"submission": sub}, mode)
}
