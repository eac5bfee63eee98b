package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smada/genius-backend/internal/middleware"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints (lobby, results,
// leaderboard, tasks and the report card).
type StudentPortalHandler struct {
	sessionService    *service.SessionService
	studentService    *service.StudentService
	resultService     *service.ResultService
	reportService     *service.ReportService
	submissionService *service.SubmissionService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	sessionService *service.SessionService,
	studentService *service.StudentService,
	resultService *service.ResultService,
	reportService *service.ReportService,
	submissionService *service.SubmissionService,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		sessionService:    sessionService,
		studentService:    studentService,
		resultService:     resultService,
		reportService:     reportService,
		submissionService: submissionService,
	}
}

// currentStudent resolves the authenticated student. The roster is preferred
// so a class change applies without a new login.
func (h *StudentPortalHandler) currentStudent(c *gin.Context) (model.Student, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return model.Student{}, false
	}
	if st, err := h.studentService.GetByID(claims.UserID); err == nil {
		return *st, true
	}
	return claims.Student(), true
}

// GetLobby godoc
// GET /api/v1/student/exams
// Returns the active exams open to the student's class.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": h.sessionService.Lobby(c.Request.Context(), student)})
}

// GetMyResults godoc
// GET /api/v1/student/results
// Returns the student's own results, newest first.
func (h *StudentPortalHandler) GetMyResults(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": h.resultService.ListByStudent(student.ID)})
}

// GetLeaderboard godoc
// GET /api/v1/student/leaderboard
// Returns the school, class and class standings rankings.
func (h *StudentPortalHandler) GetLeaderboard(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"leaderboard": h.reportService.Leaderboard(student.Class)})
}

// GetMyReport godoc
// GET /api/v1/student/report
// Returns the student's report card.
func (h *StudentPortalHandler) GetMyReport(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}
	report, err := h.reportService.StudentReport(student.ID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// ListMySubmissions godoc
// GET /api/v1/student/submissions
// Returns the tasks the student handed in, newest first.
func (h *StudentPortalHandler) ListMySubmissions(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"submissions": h.submissionService.ListByStudent(student.ID)})
}

// SubmitTask godoc
// POST /api/v1/student/submissions
// Hands in a task with an optional inline attachment.
func (h *StudentPortalHandler) SubmitTask(c *gin.Context) {
	student, ok := h.currentStudent(c)
	if !ok {
		return
	}

	var req model.SubmissionInput
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, mode, err := h.submissionService.Submit(c.Request.Context(), student, req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Saved(c, http.StatusCreated, gin.H{"submission": sub}, mode)
}
