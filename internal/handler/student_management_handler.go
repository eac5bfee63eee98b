package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/sheet"
	"github.com/smada/genius-backend/internal/validator"
)

// maxImportBytes caps an uploaded roster file.
const maxImportBytes = 4 << 20

// StudentManagementHandler handles teacher-facing roster management.
type StudentManagementHandler struct {
	studentService *service.StudentService
	log            zerolog.Logger
}

// NewStudentManagementHandler creates a new StudentManagementHandler.
func NewStudentManagementHandler(studentService *service.StudentService, log zerolog.Logger) *StudentManagementHandler {
	return &StudentManagementHandler{
		studentService: studentService,
		log:            log.With().Str("component", "student_handler").Logger(),
	}
}

// ListStudents godoc
// GET /api/v1/teacher/students
// Lists students with pagination, optionally filtered by class.
func (h *StudentManagementHandler) ListStudents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))

	students, pagination := h.studentService.ListStudents(c.Query("class"), page, perPage)
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"students": students}, pagination)
}

// ListClasses godoc
// GET /api/v1/teacher/classes
// Lists the class labels found on the roster.
func (h *StudentManagementHandler) ListClasses(c *gin.Context) {
	classes := h.studentService.Classes()
	if classes == nil {
		classes = []string{}
	}
	response.Success(c, http.StatusOK, gin.H{"classes": classes})
}

// CreateStudent godoc
// POST /api/v1/teacher/students
// Adds one student.
func (h *StudentManagementHandler) CreateStudent(c *gin.Context) {
	var req model.StudentInput
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, mode, err := h.studentService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Saved(c, http.StatusCreated, gin.H{"student": student}, mode)
}

// BulkCreateStudents godoc
// POST /api/v1/teacher/students/bulk
// Adds many students at once. Known NIS values are skipped.
func (h *StudentManagementHandler) BulkCreateStudents(c *gin.Context) {
	var req model.BulkStudentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.bulkCreate(c, req.Students)
}

// ImportStudents godoc
// POST /api/v1/teacher/students/import
// Adds the students of an uploaded CSV or XLSX roster (form field "file").
func (h *StudentManagementHandler) ImportStudents(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"file": "file is required"})
		return
	}
	if fh.Size > maxImportBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrInvalidPayload)
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}
	defer f.Close()

	inputs, err := sheet.ReadStudents(f, fh.Filename)
	if err != nil {
		if errors.Is(err, sheet.ErrUnsupportedFormat) {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"file": "only .csv and .xlsx files are supported"})
			return
		}
		h.log.Warn().Err(err).Str("file", fh.Filename).Msg("Unreadable roster upload")
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	if fields := validator.Struct(model.BulkStudentRequest{Students: inputs}); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.bulkCreate(c, inputs)
}

func (h *StudentManagementHandler) bulkCreate(c *gin.Context, inputs []model.StudentInput) {
	added, mode, err := h.studentService.BulkCreate(c.Request.Context(), inputs)
	if err != nil {
		fail(c, err)
		return
	}
	if added == nil {
		added = []model.Student{}
	}
	response.Saved(c, http.StatusCreated, gin.H{
		"students": added,
		"added":    len(added),
		"skipped":  len(inputs) - len(added),
	}, mode)
}

// DownloadTemplate godoc
// GET /api/v1/teacher/students/template
// Downloads the CSV roster template.
func (h *StudentManagementHandler) DownloadTemplate(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="template-siswa.csv"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := sheet.StudentTemplate(c.Writer); err != nil {
		_ = c.Error(err)
	}
}

// UpdateStudent godoc
// PUT /api/v1/teacher/students/:student_id
// Edits a student's name, NIS and class.
func (h *StudentManagementHandler) UpdateStudent(c *gin.Context) {
	var req model.StudentInput
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, mode, err := h.studentService.Update(c.Request.Context(), c.Param("student_id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Saved(c, http.StatusOK, gin.H{"student": student}, mode)
}

// DeleteStudent godoc
// DELETE /api/v1/teacher/students/:student_id
// Removes a student. Their results are kept.
func (h *StudentManagementHandler) DeleteStudent(c *gin.Context) {
	mode, err := h.studentService.Delete(c.Request.Context(), c.Param("student_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Saved(c, http.StatusOK, gin.H{}, mode)
}
