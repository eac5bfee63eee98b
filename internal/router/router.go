package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/handler"
	"github.com/smada/genius-backend/internal/middleware"
	"github.com/smada/genius-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	StudentMgmt   *handler.StudentManagementHandler
	Exam          *handler.ExamHandler
	Submission    *handler.SubmissionHandler
	Report        *handler.ReportHandler
	Generator     *handler.GeneratorHandler
	WS            *handler.WSHandler
	Monitor       *handler.MonitorHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work of the middlewares.
func SetupRouter(
	ctx context.Context,
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", handlers.System.Health)

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := router.Group("/api/v1/public")
	{
		publicAPI.GET("/status", middleware.NoStore(), handlers.System.GetStatus)
		publicAPI.GET("/report/header", middleware.CacheControl(300), handlers.Report.GetHeader)
	}

	// Rate limiter for auth routes, per IP.
	authLimiter := middleware.NewRateLimiter(ctx, cfg.AuthRateLimit, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authAPI := router.Group("/api/v1/auth")
	authAPI.Use(middleware.NoStore())
	{
		authAPI.POST("/student/login", authLimiter.Middleware(), handlers.Auth.StudentLogin)
		authAPI.POST("/teacher/login", authLimiter.Middleware(), handlers.Auth.TeacherLogin)

		authAPI.GET("/student/me", middleware.RequireStudentJWT(auth), handlers.Auth.GetStudentProfile)
	}

	// ─── 2. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(auth), middleware.NoStore())
	{
		studentAPI.GET("/exams", handlers.StudentPortal.GetLobby)
		studentAPI.GET("/results", handlers.StudentPortal.GetMyResults)
		studentAPI.GET("/leaderboard", handlers.StudentPortal.GetLeaderboard)
		studentAPI.GET("/report", handlers.StudentPortal.GetMyReport)
		studentAPI.GET("/submissions", handlers.StudentPortal.ListMySubmissions)
		studentAPI.POST("/submissions", handlers.StudentPortal.SubmitTask)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(auth))
	{
		ws.GET("/student/exams/:exam_id/session", handlers.WS.ExamSessionStream)
	}

	// ─── 4. Teacher Group ──────────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(auth), middleware.NoStore())
	{
		// Exam management
		teacherAPI.GET("/exams", handlers.Exam.ListExams)
		teacherAPI.POST("/exams", handlers.Exam.CreateExam)
		teacherAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		teacherAPI.PUT("/exams/:exam_id", handlers.Exam.UpdateExam)
		teacherAPI.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		teacherAPI.PATCH("/exams/:exam_id/status", handlers.Exam.SetExamStatus)
		teacherAPI.GET("/exams/:exam_id/results", handlers.Exam.ListExamResults)
		teacherAPI.GET("/exams/:exam_id/results/export", handlers.Exam.ExportExamResults)
		teacherAPI.GET("/exams/:exam_id/violations", handlers.Exam.GetViolations)
		teacherAPI.POST("/exams/:exam_id/terminate", handlers.Exam.TerminateExam)
		teacherAPI.POST("/exams/:exam_id/students/:student_id/terminate", handlers.Exam.TerminateStudent)

		// Live monitor
		teacherAPI.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)
		teacherAPI.GET("/exams/:exam_id/monitor/snapshot", handlers.Monitor.GetSnapshot)

		// Question generator
		teacherAPI.POST("/questions/generate", handlers.Generator.GenerateQuestions)

		// Student management
		teacherAPI.GET("/classes", handlers.StudentMgmt.ListClasses)
		teacherAPI.GET("/students", handlers.StudentMgmt.ListStudents)
		teacherAPI.POST("/students", handlers.StudentMgmt.CreateStudent)
		teacherAPI.POST("/students/bulk", handlers.StudentMgmt.BulkCreateStudents)
		teacherAPI.POST("/students/import", handlers.StudentMgmt.ImportStudents)
		teacherAPI.GET("/students/template", handlers.StudentMgmt.DownloadTemplate)
		teacherAPI.PUT("/students/:student_id", handlers.StudentMgmt.UpdateStudent)
		teacherAPI.DELETE("/students/:student_id", handlers.StudentMgmt.DeleteStudent)

		// Reports and results
		teacherAPI.GET("/results", handlers.Report.ListResults)
		teacherAPI.PUT("/results/:result_id/feedback", handlers.Report.SetResultFeedback)
		teacherAPI.GET("/leaderboard", handlers.Report.GetLeaderboard)
		teacherAPI.GET("/students/:student_id/report", handlers.Report.GetReport)
		teacherAPI.POST("/students/:student_id/feedback/draft", handlers.Report.DraftFeedback)
		teacherAPI.PUT("/students/:student_id/feedback", handlers.Report.SaveFeedback)

		// Task submissions
		teacherAPI.GET("/submissions", handlers.Submission.ListSubmissions)
		teacherAPI.GET("/submissions/:submission_id", handlers.Submission.GetSubmission)
		teacherAPI.PUT("/submissions/:submission_id/grade", handlers.Submission.GradeSubmission)

		// Data backup and system monitoring
		teacherAPI.GET("/data/export", handlers.System.ExportData)
		teacherAPI.POST("/data/restore", handlers.System.RestoreData)
		teacherAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
