package model

import (
	"slices"
	"time"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft  ExamStatus = "draft"
	ExamStatusActive ExamStatus = "active"
	ExamStatusClosed ExamStatus = "closed"
)

// ClassGeneral targets an exam at every class.
const ClassGeneral = "Umum"

// Valid reports whether s is a known status.
func (s ExamStatus) Valid() bool {
	switch s {
	case ExamStatusDraft, ExamStatusActive, ExamStatusClosed:
		return true
	}
	return false
}

// Exam represents an exam entity together with its embedded questions.
type Exam struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject"`
	DurationMinutes int        `json:"duration_minutes"`
	Questions       []Question `json:"questions"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	KKM             int        `json:"kkm"`
	TargetClasses   []string   `json:"target_classes"`
	// ShuffleQuestions is nil for exams saved before the flag existed.
	ShuffleQuestions *bool `json:"shuffle_questions,omitempty"`
}

// ShufflesQuestions reports whether sessions of this exam present questions in
// random order. Unset means yes.
func (e *Exam) ShufflesQuestions() bool {
	return e.ShuffleQuestions == nil || *e.ShuffleQuestions
}

// Targets reports whether a student of the given class may see the exam.
// Students without a class see every exam.
func (e *Exam) Targets(class string) bool {
	if class == "" {
		return true
	}
	return slices.Contains(e.TargetClasses, class) || slices.Contains(e.TargetClasses, ClassGeneral)
}

// ExamInput is the payload for creating or fully editing an exam.
type ExamInput struct {
	Title            string          `json:"title" binding:"required,min=3,max=255"`
	Subject          string          `json:"subject" binding:"required,max=100"`
	DurationMinutes  int             `json:"duration_minutes" binding:"min=0,max=480"`
	Questions        []QuestionInput `json:"questions" binding:"omitempty,dive"`
	KKM              int             `json:"kkm" binding:"min=0,max=100"`
	TargetClasses    []string        `json:"target_classes" binding:"omitempty,dive,required,max=64"`
	ShuffleQuestions *bool           `json:"shuffle_questions"`
}

// ExamStatusRequest changes the lifecycle status of an exam.
type ExamStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=draft active closed"`
}

// ExamSummary is the lobby view of an exam shown to students.
type ExamSummary struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Subject         string    `json:"subject"`
	DurationMinutes int       `json:"duration_minutes"`
	QuestionCount   int       `json:"question_count"`
	KKM             int       `json:"kkm"`
	CreatedAt       time.Time `json:"created_at"`
	Taken           bool      `json:"taken"`
}

// Summary strips the questions from an exam.
func (e *Exam) Summary(taken bool) ExamSummary {
	return ExamSummary{
		ID:              e.ID,
		Title:           e.Title,
		Subject:         e.Subject,
		DurationMinutes: e.DurationMinutes,
		QuestionCount:   len(e.Questions),
		KKM:             e.KKM,
		CreatedAt:       e.CreatedAt,
		Taken:           taken,
	}
}
