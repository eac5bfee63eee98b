package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/ai"
	"github.com/smada/genius-backend/internal/model"
)

// QuestionGenerator produces draft questions from a topic.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, req ai.QuestionRequest) ([]model.Question, error)
}

// GeneratorService drafts exam questions with the AI model. The questions
// are returned to the teacher for review and never stored here.
type GeneratorService struct {
	gen QuestionGenerator
	log zerolog.Logger
}

// NewGeneratorService creates a new GeneratorService.
func NewGeneratorService(gen QuestionGenerator, log zerolog.Logger) *GeneratorService {
	return &GeneratorService{
		gen: gen,
		log: log.With().Str("component", "generator_service").Logger(),
	}
}

// Generate validates the optional reference material and asks the model for
// questions.
func (s *GeneratorService) Generate(ctx context.Context, in model.GenerateQuestionsRequest) ([]model.Question, error) {
	if in.Material != nil {
		if err := sniffAttachment(in.Material, MaterialTypes...); err != nil {
			return nil, err
		}
	}

	questions, err := s.gen.GenerateQuestions(ctx, ai.QuestionRequest{
		Topic:         strings.TrimSpace(in.Topic),
		Count:         in.Count,
		ReferenceText: strings.TrimSpace(in.ReferenceText),
		Material:      in.Material,
	})
	if err != nil {
		return nil, err
	}
	return questions, nil
}
