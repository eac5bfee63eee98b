// Package ai generates exam questions and report-card comments with Gemini.
package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/validator"
	"google.golang.org/genai"
)

const (
	// DefaultCount is the number of questions generated when none is asked.
	DefaultCount = 5

	// FallbackFeedback is returned when no API key is configured.
	FallbackFeedback = "Teruslah belajar dengan giat untuk mencapai hasil yang lebih maksimal."
	// ErrorFeedback is returned when the model call fails.
	ErrorFeedback = "Siswa menunjukkan performa yang stabil. Teruslah belajar untuk mencapai hasil maksimal."

	requestTimeout = 60 * time.Second
)

var (
	ErrUnavailable = errors.New("ai client not configured")
	ErrBadOutput   = errors.New("ai returned no usable questions")
)

// QuestionRequest describes a batch of questions to generate.
type QuestionRequest struct {
	Topic         string
	Count         int
	ReferenceText string
	// Material is an optional file (image or PDF) the questions must draw on.
	Material *model.Attachment
}

// Client wraps the Gemini models API. A Client built without an API key is
// valid: question generation reports ErrUnavailable and feedback falls back
// to a fixed sentence.
type Client struct {
	genai *genai.Client
	model string
	log   zerolog.Logger
	now   func() time.Time
}

// New creates a Client. An empty apiKey yields a disabled client.
func New(ctx context.Context, apiKey, modelName string, log zerolog.Logger) (*Client, error) {
	c := &Client{
		model: modelName,
		log:   log.With().Str("component", "ai").Logger(),
		now:   time.Now,
	}
	if apiKey == "" {
		c.log.Warn().Msg("GEMINI_API_KEY not set, AI features disabled")
		return c, nil
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.genai = gc
	return c, nil
}

// Enabled reports whether an API key was configured.
func (c *Client) Enabled() bool {
	return c != nil && c.genai != nil
}

// questionSchema constrains the model to an array of questions.
var questionSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"text": {
				Type:        genai.TypeString,
				Description: "Teks soal lengkap.",
			},
			"options": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Tepat 5 pilihan jawaban (A-E)",
			},
			"correctAnswer": {
				Type:        genai.TypeInteger,
				Description: "Indeks jawaban yang benar (0-4)",
			},
		},
		Required: []string{"text", "options", "correctAnswer"},
	},
}

// GenerateQuestions asks the model for multiple-choice questions.
func (c *Client) GenerateQuestions(ctx context.Context, req QuestionRequest) ([]model.Question, error) {
	if !c.Enabled() {
		return nil, ErrUnavailable
	}
	if req.Count <= 0 {
		req.Count = DefaultCount
	}

	parts := make([]*genai.Part, 0, 2)
	if req.Material != nil {
		data, err := base64.StdEncoding.DecodeString(req.Material.Data)
		if err != nil {
			return nil, fmt.Errorf("decode material: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, req.Material.Type))
	}
	parts = append(parts, genai.NewPartFromText(questionPrompt(req.Topic, req.Count, req.ReferenceText)))

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   questionSchema,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	questions, err := ParseQuestions([]byte(resp.Text()), c.now())
	if err != nil {
		c.log.Warn().Err(err).Str("topic", req.Topic).Msg("Unusable question output")
		return nil, err
	}

	c.log.Info().
		Str("topic", req.Topic).
		Int("requested", req.Count).
		Int("generated", len(questions)).
		Dur("elapsed", time.Since(start)).
		Msg("Questions generated")
	return questions, nil
}

// WriteFeedback drafts a short report-card comment for a student. It never
// fails: without a client or on a model error it returns a fixed sentence.
func (c *Client) WriteFeedback(ctx context.Context, studentName, performance string) string {
	if !c.Enabled() {
		return FallbackFeedback
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(feedbackPrompt(studentName, performance)), nil)
	if err != nil {
		c.log.Warn().Err(err).Str("student", studentName).Msg("Feedback generation failed")
		return ErrorFeedback
	}
	if text := strings.TrimSpace(resp.Text()); text != "" {
		return text
	}
	return FallbackFeedback
}

type generatedQuestion struct {
	Text          string   `json:"text" binding:"required"`
	Options       []string `json:"options" binding:"len=5,dive,required"`
	CorrectAnswer *int     `json:"correctAnswer" binding:"required,min=0,max=4"`
}

// ParseQuestions decodes model output into questions. Entries that do not
// have a text, exactly five options and an answer index in range are
// dropped. It fails when nothing usable remains.
func ParseQuestions(raw []byte, now time.Time) ([]model.Question, error) {
	var generated []generatedQuestion
	if err := json.Unmarshal(raw, &generated); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadOutput, err)
	}

	stamp := now.UnixMilli()
	questions := make([]model.Question, 0, len(generated))
	for i, g := range generated {
		if fields := validator.Struct(g); fields != nil {
			continue
		}
		questions = append(questions, model.Question{
			ID:            fmt.Sprintf("q-%d-%d", stamp, i),
			Text:          g.Text,
			Options:       g.Options,
			CorrectAnswer: *g.CorrectAnswer,
		})
	}
	if len(questions) == 0 {
		return nil, ErrBadOutput
	}
	return questions, nil
}

func questionPrompt(topic string, count int, reference string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Buatkan %d soal pilihan ganda tingkat SMA.\n\n", count)
	fmt.Fprintf(&b, "TOPIK UTAMA: %s\n\n", topic)
	if reference != "" {
		fmt.Fprintf(&b, "SUMBER MATERI (WAJIB DIGUNAKAN): \n%q\n\n", reference)
	}
	b.WriteString(`INSTRUKSI KHUSUS:
1. Jika ada SUMBER MATERI di atas atau LAMPIRAN GAMBAR, Anda WAJIB membuat soal yang bersumber dari konten tersebut.
2. Gunakan pendekatan HOTS (Higher Order Thinking Skills) untuk menguji pemahaman, bukan sekadar hafalan.
3. Setiap soal HARUS memiliki tepat 5 pilihan jawaban (A, B, C, D, E).
4. Berikan jawaban yang benar dalam bentuk indeks (0 untuk A, 1 untuk B, dst).
5. Kembalikan output HANYA dalam format JSON sesuai schema yang ditentukan.`)
	return b.String()
}

func feedbackPrompt(name, performance string) string {
	return fmt.Sprintf("Sebagai seorang guru yang bijak, berikan komentar raport singkat (max 3 kalimat) untuk siswa bernama %s berdasarkan data nilai berikut: %s. Gunakan Bahasa Indonesia yang formal namun memotivasi.", name, performance)
}

// Performance renders exam scores and task grades the way the feedback
// prompt expects them.
func Performance(examScores, taskGrades []int) string {
	return fmt.Sprintf("Ujian: %s. Tugas: %s.", joinInts(examScores), joinInts(taskGrades))
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
