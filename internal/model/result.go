package model

import "time"

// Result is the scored outcome of one student's session on one exam.
type Result struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	StudentName    string    `json:"student_name"`
	ExamID         string    `json:"exam_id"`
	Score          int       `json:"score"`
	CorrectCount   int       `json:"correct_count"`
	TotalQuestions int       `json:"total_questions"`
	Timestamp      time.Time `json:"timestamp"`
	Violations     int       `json:"violations"`
	Feedback       string    `json:"feedback,omitempty"`
}

// FeedbackRequest attaches teacher feedback to a result.
type FeedbackRequest struct {
	Feedback string `json:"feedback" binding:"max=2000"`
}
