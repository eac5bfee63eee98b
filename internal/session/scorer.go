package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/smada/genius-backend/internal/model"
)

// Score counts answers that match the answer key and converts the count to
// a whole percentage. Unanswered questions count as wrong.
func Score(answers map[int]int, questions []model.Question) (correct, score int) {
	for i, q := range questions {
		if opt, ok := answers[i]; ok && opt == q.CorrectAnswer {
			correct++
		}
	}
	return correct, Percent(correct, len(questions))
}

// Percent returns round(100*part/total) with halves rounded up, or 0 when
// total is 0. Integer arithmetic keeps 12.5 from becoming 12.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}

// Finalize builds the Result of a finished session.
func Finalize(exam *model.Exam, student model.Student, answers map[int]int, violations int, now time.Time) model.Result {
	correct, score := Score(answers, exam.Questions)
	return model.Result{
		ID:             uuid.NewString(),
		StudentID:      student.ID,
		StudentName:    student.Name,
		ExamID:         exam.ID,
		Score:          score,
		CorrectCount:   correct,
		TotalQuestions: len(exam.Questions),
		Timestamp:      now,
		Violations:     violations,
	}
}
