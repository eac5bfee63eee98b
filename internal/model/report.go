package model

import "time"

// ReportExamEntry is one exam line on a student report.
type ReportExamEntry struct {
	ResultID   string    `json:"result_id"`
	ExamID     string    `json:"exam_id"`
	Title      string    `json:"title"`
	Subject    string    `json:"subject"`
	Score      int       `json:"score"`
	KKM        int       `json:"kkm"`
	Passed     bool      `json:"passed"`
	Violations int       `json:"violations"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReportTaskEntry is one reviewed task line on a student report.
type ReportTaskEntry struct {
	SubmissionID string    `json:"submission_id"`
	Subject      string    `json:"subject"`
	Grade        int       `json:"grade"`
	Timestamp    time.Time `json:"timestamp"`
}

// ChartPoint is one score on the progress chart, oldest first.
type ChartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Score     int       `json:"score"`
}

// ReportHeader is the printed letterhead of a report card.
type ReportHeader struct {
	Name        string `json:"name"`
	Slogan      string `json:"slogan"`
	Period      string `json:"period"`
	DateText    string `json:"date_text"`
	SignerTitle string `json:"signer_title"`
}

// StudentReport aggregates a student's exam and task performance.
type StudentReport struct {
	Student  Student           `json:"student"`
	School   ReportHeader      `json:"school"`
	Exams    []ReportExamEntry `json:"exams"`
	Tasks    []ReportTaskEntry `json:"tasks"`
	Average  int               `json:"average"`
	Passing  bool              `json:"passing"`
	Chart    []ChartPoint      `json:"chart"`
	Feedback string            `json:"feedback"`
}

// LeaderboardEntry ranks one student by average exam score.
type LeaderboardEntry struct {
	StudentID  string `json:"student_id"`
	Name       string `json:"name"`
	Class      string `json:"class,omitempty"`
	Average    int    `json:"average"`
	TotalExams int    `json:"total_exams"`
}

// ClassStanding ranks a class by the mean of its students' averages.
type ClassStanding struct {
	Class   string `json:"class"`
	Average int    `json:"average"`
}

// Leaderboard holds the three rankings shown on the student dashboard.
type Leaderboard struct {
	School     []LeaderboardEntry `json:"school"`
	Class      []LeaderboardEntry `json:"class"`
	TopClasses []ClassStanding    `json:"top_classes"`
}

// ViolationEvent records one integrity violation during a session.
type ViolationEvent struct {
	ExamID      string    `json:"exam_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Signal      string    `json:"signal"`
	Count       int       `json:"count"`
	Timestamp   time.Time `json:"timestamp"`
}

// ViolationSummary is the per-student violation tally of an exam.
type ViolationSummary struct {
	StudentID string `json:"student_id"`
	Count     int64  `json:"count"`
}
