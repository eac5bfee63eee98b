package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smada/genius-backend/internal/middleware"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService    *service.AuthService
	studentService *service.StudentService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, studentService *service.StudentService) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		studentService: studentService,
	}
}

// StudentLogin godoc
// POST /api/v1/auth/student/login
// Looks the student up by NIS and returns a JWT.
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req model.StudentLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, student, err := h.authService.LoginStudent(req.NIS)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":   token,
		"student": student,
	})
}

// TeacherLogin godoc
// POST /api/v1/auth/teacher/login
// Checks the shared teacher code and returns a JWT.
func (h *AuthHandler) TeacherLogin(c *gin.Context) {
	var req model.TeacherLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, err := h.authService.LoginTeacher(req.Token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTeacherCode) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidTeacherCode)
			return
		}
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": token})
}

// GetStudentProfile godoc
// GET /api/v1/auth/student/me
// Returns the profile of the currently authenticated student.
func (h *AuthHandler) GetStudentProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	student, err := h.studentService.GetByID(claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"student": student})
}
