package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/ai"
	"github.com/smada/genius-backend/internal/config"
	"github.com/smada/genius-backend/internal/handler"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/router"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/session"
	"github.com/smada/genius-backend/internal/store"
	"github.com/smada/genius-backend/internal/validator"
	ws "github.com/smada/genius-backend/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const teacherCode = "guru-test"

type envelope struct {
	Data     json.RawMessage     `json:"data"`
	Error    *response.ErrorBody `json:"error"`
	Metadata response.Metadata   `json:"metadata"`
}

type app struct {
	t       *testing.T
	engine  *gin.Engine
	mr      *miniredis.Miniredis
	results *service.ResultService
}

func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zerolog.Nop()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		GinMode:       gin.TestMode,
		JWTSecret:     "test-secret",
		JWTExpiry:     time.Hour,
		BcryptCost:    4,
		TeacherToken:  teacherCode,
		AuthRateLimit: 100,
	}

	aiClient, err := ai.New(ctx, "", "gemini-test", log)
	require.NoError(t, err)

	registry := session.NewRegistry()
	data := service.NewDataService(store.NewMemory(), nil, log)
	require.NoError(t, data.Load(ctx))
	t.Cleanup(data.Close)

	students := service.NewStudentService(data, registry, log)
	require.NoError(t, students.SeedDefaults(ctx))
	auth := service.NewAuthService(cfg, students, log)
	exams := service.NewExamService(data, registry, rdb, log)
	results := service.NewResultService(data, rdb, log)
	submissions := service.NewSubmissionService(data, log)
	reports := service.NewReportService(data, results, aiClient, config.ReportConfig{SchoolName: "SMA Negeri 2"}, log)
	monitor := service.NewMonitorService(rdb, nil, registry, log)
	sessions := service.NewSessionService(exams, results, monitor, registry, time.Second, log)
	generator := service.NewGeneratorService(aiClient, log)

	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(auth, students),
		StudentPortal: handler.NewStudentPortalHandler(sessions, students, results, reports, submissions),
		StudentMgmt:   handler.NewStudentManagementHandler(students, log),
		Exam:          handler.NewExamHandler(exams, results, students, sessions, monitor, log),
		Submission:    handler.NewSubmissionHandler(submissions),
		Report:        handler.NewReportHandler(reports, results),
		Generator:     handler.NewGeneratorHandler(generator, log),
		WS:            handler.NewWSHandler(sessions, students, log, nil),
		Monitor:       handler.NewMonitorHandler(exams, monitor, log),
		System:        handler.NewSystemHandler(rdb, data, results, registry, log),
	}

	return &app{
		t:       t,
		engine:  router.SetupRouter(ctx, auth, handlers, cfg),
		mr:      mr,
		results: results,
	}
}

func (a *app) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (a *app) teacherToken() string {
	a.t.Helper()
	w, env := a.do(http.MethodPost, "/api/v1/auth/teacher/login", "", model.TeacherLoginRequest{Token: teacherCode})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &data))
	return data.Token
}

func (a *app) studentToken(nis string) string {
	a.t.Helper()
	w, env := a.do(http.MethodPost, "/api/v1/auth/student/login", "", model.StudentLoginRequest{NIS: nis})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &data))
	return data.Token
}

func intPtr(v int) *int { return &v }

func threeQuestionExam(classes ...string) model.ExamInput {
	shuffle := false
	in := model.ExamInput{
		Title:            "Ulangan Harian Fisika",
		Subject:          "Fisika",
		DurationMinutes:  10,
		KKM:              70,
		TargetClasses:    classes,
		ShuffleQuestions: &shuffle,
	}
	for i := range 3 {
		in.Questions = append(in.Questions, model.QuestionInput{
			Text:          "Soal",
			Options:       []string{"A", "B", "C", "D", "E"},
			CorrectAnswer: intPtr(i),
		})
	}
	return in
}

// createActiveExam creates an exam through the API and opens it.
func (a *app) createActiveExam(token string, in model.ExamInput) model.Exam {
	a.t.Helper()
	w, env := a.do(http.MethodPost, "/api/v1/teacher/exams", token, in)
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	var data struct {
		Exam model.Exam `json:"exam"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &data))

	w, _ = a.do(http.MethodPatch, "/api/v1/teacher/exams/"+data.Exam.ID+"/status", token,
		model.ExamStatusRequest{Status: string(model.ExamStatusActive)})
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return data.Exam
}

func TestLogin(t *testing.T) {
	a := newApp(t)

	t.Run("teacher wrong code", func(t *testing.T) {
		w, env := a.do(http.MethodPost, "/api/v1/auth/teacher/login", "", model.TeacherLoginRequest{Token: "salah"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, response.ErrInvalidTeacherCode, env.Error.Code)
	})

	t.Run("student unknown nis", func(t *testing.T) {
		w, env := a.do(http.MethodPost, "/api/v1/auth/student/login", "", model.StudentLoginRequest{NIS: "00000"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, response.ErrInvalidCredentials, env.Error.Code)
	})

	t.Run("missing field", func(t *testing.T) {
		w, env := a.do(http.MethodPost, "/api/v1/auth/student/login", "", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, response.ErrValidation, env.Error.Code)
		assert.Contains(t, env.Error.Fields, "nis")
	})

	t.Run("student profile", func(t *testing.T) {
		token := a.studentToken("12345")
		w, env := a.do(http.MethodGet, "/api/v1/auth/student/me", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var data struct {
			Student model.Student `json:"student"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "Andi Pratama", data.Student.Name)
		assert.Equal(t, "XII MIPA 1", data.Student.Class)
	})
}

func TestRoleSeparation(t *testing.T) {
	a := newApp(t)
	student := a.studentToken("12345")
	teacher := a.teacherToken()

	w, _ := a.do(http.MethodGet, "/api/v1/teacher/exams", student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = a.do(http.MethodGet, "/api/v1/student/exams", teacher, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = a.do(http.MethodGet, "/api/v1/teacher/exams", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExamLifecycle(t *testing.T) {
	a := newApp(t)
	teacher := a.teacherToken()

	t.Run("no questions", func(t *testing.T) {
		in := threeQuestionExam()
		in.Questions = nil
		w, env := a.do(http.MethodPost, "/api/v1/teacher/exams", teacher, in)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, response.ErrNoQuestions, env.Error.Code)
	})

	t.Run("unknown exam", func(t *testing.T) {
		w, env := a.do(http.MethodGet, "/api/v1/teacher/exams/ex-missing", teacher, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, response.ErrNotFound, env.Error.Code)
	})

	t.Run("invalid status", func(t *testing.T) {
		exam := a.createActiveExam(teacher, threeQuestionExam())
		w, _ := a.do(http.MethodPatch, "/api/v1/teacher/exams/"+exam.ID+"/status", teacher,
			map[string]string{"status": "archived"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("create reports storage mode", func(t *testing.T) {
		w, env := a.do(http.MethodPost, "/api/v1/teacher/exams", teacher, threeQuestionExam())
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, string(store.ModeLocal), env.Metadata.StorageMode)
	})
}

func TestStudentLobby(t *testing.T) {
	a := newApp(t)
	teacher := a.teacherToken()

	mine := a.createActiveExam(teacher, threeQuestionExam("XII MIPA 1"))
	general := a.createActiveExam(teacher, threeQuestionExam(model.ClassGeneral))
	other := a.createActiveExam(teacher, threeQuestionExam("XII MIPA 2"))

	w, env := a.do(http.MethodGet, "/api/v1/student/exams", a.studentToken("12345"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Exams []model.ExamSummary `json:"exams"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))

	ids := make([]string, 0, len(data.Exams))
	for _, e := range data.Exams {
		ids = append(ids, e.ID)
		assert.False(t, e.Taken)
		assert.Equal(t, 3, e.QuestionCount)
	}
	assert.ElementsMatch(t, []string{mine.ID, general.ID}, ids)
	assert.NotContains(t, ids, other.ID)
}

type finishedEvent struct {
	Event  ws.Event     `json:"event"`
	Reason string       `json:"reason"`
	Result model.Result `json:"result"`
	Saved  bool         `json:"saved"`
	Error  string       `json:"error"`
}

// dialSession opens the exam session socket and reads the started event.
func (a *app) dialSession(examID, token string) (*websocket.Conn, session.View) {
	a.t.Helper()
	srv := httptest.NewServer(a.engine)
	a.t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws/v1/student/exams/" + examID + "/session?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { _ = conn.Close() })
	require.NoError(a.t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var started struct {
		Event   ws.Event     `json:"event"`
		Resumed bool         `json:"resumed"`
		Session session.View `json:"session"`
	}
	require.NoError(a.t, conn.ReadJSON(&started))
	assert.Equal(a.t, ws.EventStarted, started.Event)
	assert.False(a.t, started.Resumed)
	return conn, started.Session
}

func readFinished(t *testing.T, conn *websocket.Conn) finishedEvent {
	t.Helper()
	var finished finishedEvent
	for finished.Event != ws.EventFinished {
		require.NoError(t, conn.ReadJSON(&finished))
	}
	return finished
}

func TestExamSessionOverWebSocket(t *testing.T) {
	a := newApp(t)
	teacher := a.teacherToken()
	exam := a.createActiveExam(teacher, threeQuestionExam("XII MIPA 1"))
	token := a.studentToken("12345")

	conn, view := a.dialSession(exam.ID, token)
	require.Len(t, view.Questions, 3)

	// Two correct answers out of three.
	for pos := range 2 {
		require.NoError(t, conn.WriteJSON(ws.Request{Action: ws.ActionSelect, Position: intPtr(pos), Option: intPtr(pos)}))
	}
	require.NoError(t, conn.WriteJSON(ws.Request{Action: ws.ActionFinish}))

	finished := readFinished(t, conn)
	assert.True(t, finished.Saved)
	assert.Empty(t, finished.Error)
	assert.Equal(t, 2, finished.Result.CorrectCount)
	assert.Equal(t, 67, finished.Result.Score)
	assert.Equal(t, 3, finished.Result.TotalQuestions)

	// A second attempt is refused before the upgrade.
	assert.Eventually(t, func() bool {
		w, _ := a.do(http.MethodGet, "/ws/v1/student/exams/"+exam.ID+"/session?token="+url.QueryEscape(token), "", nil)
		return w.Code == http.StatusConflict
	}, 2*time.Second, 20*time.Millisecond)
}

func TestExamSessionReportsUnsavedResult(t *testing.T) {
	a := newApp(t)
	teacher := a.teacherToken()
	exam := a.createActiveExam(teacher, threeQuestionExam("XII MIPA 1"))

	conn, _ := a.dialSession(exam.ID, a.studentToken("12345"))

	// Another instance already recorded a result for this student.
	a.mr.HSet(config.CacheKey.ExamCompletedKey(exam.ID), "S-12345", "r-other")

	require.NoError(t, conn.WriteJSON(ws.Request{Action: ws.ActionFinish}))

	finished := readFinished(t, conn)
	assert.Equal(t, ws.EventFinished, finished.Event)
	assert.False(t, finished.Saved)
	assert.Equal(t, response.GetMessage(response.ErrExamAlreadyTaken), finished.Error)
}

func TestWebSocketRejectsUntargetedExam(t *testing.T) {
	a := newApp(t)
	teacher := a.teacherToken()
	exam := a.createActiveExam(teacher, threeQuestionExam("XII MIPA 2"))

	w, env := a.do(http.MethodGet,
		"/ws/v1/student/exams/"+exam.ID+"/session?token="+url.QueryEscape(a.studentToken("12345")), "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrExamNotTargeted, env.Error.Code)
}

func TestGeneratorDisabled(t *testing.T) {
	a := newApp(t)
	w, env := a.do(http.MethodPost, "/api/v1/teacher/questions/generate", a.teacherToken(), model.GenerateQuestionsRequest{
		Topic: "Hukum Newton",
		Count: 3,
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrAIUnavailable, env.Error.Code)
}

func TestPublicStatus(t *testing.T) {
	a := newApp(t)
	w, env := a.do(http.MethodGet, "/api/v1/public/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var data struct {
		Mode  store.Mode `json:"mode"`
		Cloud bool       `json:"cloud"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, store.ModeLocal, data.Mode)
	assert.False(t, data.Cloud)
}
