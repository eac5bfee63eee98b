package model

import "time"

// SubmissionStatus enumerates the review states of a task submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionReviewed SubmissionStatus = "reviewed"
)

// Attachment is a base64 encoded file sent inline with a request.
type Attachment struct {
	Name string `json:"name" binding:"omitempty,max=255"`
	Data string `json:"data" binding:"required,base64"`
	Type string `json:"type" binding:"required,max=128"`
}

// Submission is a task handed in by a student outside of an exam.
type Submission struct {
	ID           string           `json:"id"`
	StudentID    string           `json:"student_id"`
	StudentName  string           `json:"student_name"`
	StudentClass string           `json:"student_class"`
	Subject      string           `json:"subject"`
	Description  string           `json:"description"`
	Attachment   *Attachment      `json:"attachment,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
	Status       SubmissionStatus `json:"status"`
	Grade        *int             `json:"grade,omitempty"`
}

// SubmissionInput is the payload for handing in a task.
type SubmissionInput struct {
	Subject     string      `json:"subject" binding:"required,max=100"`
	Description string      `json:"description" binding:"required,max=5000"`
	Attachment  *Attachment `json:"attachment" binding:"omitempty"`
}

// GradeRequest grades a submission.
type GradeRequest struct {
	Grade *int `json:"grade" binding:"required,min=0,max=100"`
}
