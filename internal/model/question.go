package model

// OptionCount is the fixed number of choices per question (A to E).
const OptionCount = 5

// QuestionImage is an inline picture attached to a question.
type QuestionImage struct {
	Data string `json:"data" binding:"required,base64"`
	Type string `json:"type" binding:"required,max=64"`
}

// Question is a multiple-choice question embedded in an exam.
type Question struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	Options       []string       `json:"options"`
	CorrectAnswer int            `json:"correct_answer"`
	Image         *QuestionImage `json:"image,omitempty"`
}

// QuestionInput is one question inside an ExamInput.
type QuestionInput struct {
	ID            string         `json:"id" binding:"omitempty,max=64"`
	Text          string         `json:"text" binding:"required"`
	Options       []string       `json:"options" binding:"required,len=5,dive,required"`
	CorrectAnswer *int           `json:"correct_answer" binding:"required,min=0,max=4"`
	Image         *QuestionImage `json:"image" binding:"omitempty"`
}

// QuestionView is a question as presented to a student: in display order and
// without the answer key.
type QuestionView struct {
	Position int            `json:"position"`
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Options  []string       `json:"options"`
	Image    *QuestionImage `json:"image,omitempty"`
}

// GenerateQuestionsRequest asks the AI generator for a batch of questions.
type GenerateQuestionsRequest struct {
	Topic         string      `json:"topic" binding:"required,max=500"`
	Count         int         `json:"count" binding:"omitempty,min=1,max=30"`
	ReferenceText string      `json:"reference_text" binding:"omitempty,max=20000"`
	Material      *Attachment `json:"material" binding:"omitempty"`
}
