package service

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/ai"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/session"
)

// LeaderboardSize is the number of entries shown per ranking.
const LeaderboardSize = 10

// FeedbackWriter drafts report-card comments.
type FeedbackWriter interface {
	WriteFeedback(ctx context.Context, studentName, performance string) string
}

// ReportService builds report cards and leaderboards from the dataset.
type ReportService struct {
	data     *DataService
	results  *ResultService
	feedback FeedbackWriter
	cfg      config.ReportConfig
	log      zerolog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(data *DataService, results *ResultService, feedback FeedbackWriter, cfg config.ReportConfig, log zerolog.Logger) *ReportService {
	return &ReportService{
		data:     data,
		results:  results,
		feedback: feedback,
		cfg:      cfg,
		log:      log.With().Str("component", "report_service").Logger(),
	}
}

// Header returns the letterhead printed on report cards.
func (s *ReportService) Header() model.ReportHeader {
	return model.ReportHeader{
		Name:        s.cfg.SchoolName,
		Slogan:      s.cfg.SchoolSlogan,
		Period:      s.cfg.Period,
		DateText:    s.cfg.DateText,
		SignerTitle: s.cfg.SignerTitle,
	}
}

// StudentReport aggregates a student's exam results and reviewed tasks. The
// average covers both; ungraded reviewed tasks count as zero.
func (s *ReportService) StudentReport(studentID string) (*model.StudentReport, error) {
	ds := s.data.View()

	i := slices.IndexFunc(ds.Students, func(st model.Student) bool { return st.ID == studentID })
	if i < 0 {
		return nil, ErrNotFound
	}
	student := ds.Students[i]

	exams := make(map[string]model.Exam, len(ds.Exams))
	for _, e := range ds.Exams {
		exams[e.ID] = e
	}

	report := &model.StudentReport{
		Student: student,
		School:  s.Header(),
		Exams:   []model.ReportExamEntry{},
		Tasks:   []model.ReportTaskEntry{},
		Chart:   []model.ChartPoint{},
	}

	var scores []int
	results := sortOldest(filterResults(ds.Results, studentID))
	for _, r := range results {
		e := exams[r.ExamID]
		kkm := e.KKM
		if kkm == 0 {
			kkm = s.cfg.PassingAverage
		}
		title := e.Title
		if title == "" {
			title = "Ujian dihapus"
		}
		report.Exams = append(report.Exams, model.ReportExamEntry{
			ResultID:   r.ID,
			ExamID:     r.ExamID,
			Title:      title,
			Subject:    e.Subject,
			Score:      r.Score,
			KKM:        kkm,
			Passed:     r.Score >= kkm,
			Violations: r.Violations,
			Timestamp:  r.Timestamp,
		})
		report.Chart = append(report.Chart, model.ChartPoint{Timestamp: r.Timestamp, Score: r.Score})
		scores = append(scores, r.Score)
		if r.Feedback != "" {
			report.Feedback = r.Feedback
		}
	}

	for _, sub := range ds.Submissions {
		if sub.StudentID != studentID || sub.Status != model.SubmissionReviewed {
			continue
		}
		grade := 0
		if sub.Grade != nil {
			grade = *sub.Grade
		}
		report.Tasks = append(report.Tasks, model.ReportTaskEntry{
			SubmissionID: sub.ID,
			Subject:      sub.Subject,
			Grade:        grade,
			Timestamp:    sub.Timestamp,
		})
		scores = append(scores, grade)
	}

	report.Average = mean(scores)
	report.Passing = report.Average >= s.cfg.PassingAverage
	if report.Feedback == "" {
		report.Feedback = s.cfg.DefaultFeedback
	}
	return report, nil
}

// DraftFeedback asks the feedback writer for a comment on a student's
// performance. The draft is not stored.
func (s *ReportService) DraftFeedback(ctx context.Context, studentID string) (string, error) {
	report, err := s.StudentReport(studentID)
	if err != nil {
		return "", err
	}

	examScores := make([]int, len(report.Exams))
	for i, e := range report.Exams {
		examScores[i] = e.Score
	}
	taskGrades := make([]int, len(report.Tasks))
	for i, t := range report.Tasks {
		taskGrades[i] = t.Grade
	}

	return s.feedback.WriteFeedback(ctx, report.Student.Name, ai.Performance(examScores, taskGrades)), nil
}

// SaveFeedback stores the report comment on the student's latest result.
func (s *ReportService) SaveFeedback(ctx context.Context, studentID, feedback string) (*model.Result, error) {
	res, _, err := s.results.AttachLatestFeedback(ctx, studentID, strings.TrimSpace(feedback))
	return res, err
}

// Leaderboard ranks students by their average exam score. Students without
// results are left out. class selects the class ranking; the class standings
// cover every class on the roster.
func (s *ReportService) Leaderboard(class string) model.Leaderboard {
	ds := s.data.View()

	byStudent := make(map[string][]int)
	for _, r := range ds.Results {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r.Score)
	}

	var stats []model.LeaderboardEntry
	var classes []string
	for _, st := range ds.Students {
		if st.Class != "" && !slices.Contains(classes, st.Class) {
			classes = append(classes, st.Class)
		}
		scores := byStudent[st.ID]
		if len(scores) == 0 {
			continue
		}
		stats = append(stats, model.LeaderboardEntry{
			StudentID:  st.ID,
			Name:       st.Name,
			Class:      st.Class,
			Average:    mean(scores),
			TotalExams: len(scores),
		})
	}
	slices.SortStableFunc(stats, func(a, b model.LeaderboardEntry) int { return b.Average - a.Average })

	board := model.Leaderboard{
		School:     head(stats, LeaderboardSize),
		Class:      []model.LeaderboardEntry{},
		TopClasses: []model.ClassStanding{},
	}
	if class != "" {
		var inClass []model.LeaderboardEntry
		for _, e := range stats {
			if e.Class == class {
				inClass = append(inClass, e)
			}
		}
		board.Class = head(inClass, LeaderboardSize)
	}

	for _, c := range classes {
		var averages []int
		for _, e := range stats {
			if e.Class == c {
				averages = append(averages, e.Average)
			}
		}
		board.TopClasses = append(board.TopClasses, model.ClassStanding{Class: c, Average: mean(averages)})
	}
	slices.SortStableFunc(board.TopClasses, func(a, b model.ClassStanding) int { return b.Average - a.Average })

	return board
}

// mean is the rounded arithmetic mean, 0 for no values.
func mean(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return session.Percent(sum, 100*len(values))
}

func head[T any](s []T, n int) []T {
	if s == nil {
		return []T{}
	}
	return s[:min(n, len(s))]
}

func filterResults(results []model.Result, studentID string) []model.Result {
	var out []model.Result
	for _, r := range results {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out
}

func sortOldest(results []model.Result) []model.Result {
	slices.SortStableFunc(results, func(a, b model.Result) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return results
}
