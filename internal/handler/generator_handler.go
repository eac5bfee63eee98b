package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/validator"
)

// GeneratorHandler drafts exam questions with the AI generator.
type GeneratorHandler struct {
	generatorService *service.GeneratorService
	log              zerolog.Logger
}

// NewGeneratorHandler creates a new GeneratorHandler.
func NewGeneratorHandler(generatorService *service.GeneratorService, log zerolog.Logger) *GeneratorHandler {
	return &GeneratorHandler{
		generatorService: generatorService,
		log:              log.With().Str("component", "generator_handler").Logger(),
	}
}

// GenerateQuestions godoc
// POST /api/v1/teacher/questions/generate
// Returns generated questions for the teacher to review. Nothing is saved.
func (h *GeneratorHandler) GenerateQuestions(c *gin.Context) {
	var req model.GenerateQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.generatorService.Generate(c.Request.Context(), req)
	if err != nil {
		h.log.Warn().Err(err).Str("topic", req.Topic).Msg("Question generation failed")
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}
