package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smada/genius-backend/internal/ai"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/store"
)

// domainError maps a service error onto an HTTP status and error code.
// Anything unknown is an internal error.
func domainError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrDuplicateNIS):
		return http.StatusConflict, response.ErrConflict
	case errors.Is(err, service.ErrInvalidStatus):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusBadRequest, response.ErrNoQuestions
	case errors.Is(err, service.ErrExamNotActive):
		return http.StatusForbidden, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrExamNotTargeted):
		return http.StatusForbidden, response.ErrExamNotTargeted
	case errors.Is(err, service.ErrExamAlreadyTaken):
		return http.StatusConflict, response.ErrExamAlreadyTaken
	case errors.Is(err, service.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge, response.ErrInvalidPayload
	case errors.Is(err, service.ErrUnsupportedAttachment):
		return http.StatusUnsupportedMediaType, response.ErrInvalidPayload
	case errors.Is(err, ai.ErrUnavailable):
		return http.StatusServiceUnavailable, response.ErrAIUnavailable
	case errors.Is(err, ai.ErrBadOutput):
		return http.StatusBadGateway, response.ErrAIBadOutput
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, response.ErrStorageUnavailable
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// fail writes the error response for a service error.
func fail(c *gin.Context, err error) {
	status, code := domainError(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}
