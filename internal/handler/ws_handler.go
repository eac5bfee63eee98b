package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/middleware"
	"github.com/smada/genius-backend/internal/model"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
	"github.com/smada/genius-backend/internal/session"
	ws "github.com/smada/genius-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs exam sessions over WebSocket.
type WSHandler struct {
	sessionService *service.SessionService
	studentService *service.StudentService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	sessionService *service.SessionService,
	studentService *service.StudentService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		studentService: studentService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamSessionStream godoc
// WS /ws/v1/student/exams/:exam_id/session?token=...
// Starts or resumes the student's session and streams it. Start errors are
// answered with a plain HTTP error before the upgrade.
func (h *WSHandler) ExamSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	student := claims.Student()
	if st, err := h.studentService.GetByID(claims.UserID); err == nil {
		student = *st
	}

	sess, created, err := h.sessionService.Open(c.Request.Context(), student, c.Param("exam_id"))
	if err != nil {
		fail(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("student_id", student.ID).
		Str("exam_id", sess.Exam().ID).
		Logger()

	client := newWSClient(conn, sess, wsLog)
	if err := conn.WriteTyped(ws.StartedResponse{
		Event:   ws.EventStarted,
		Resumed: !created,
		Session: sess.View(),
	}); err != nil {
		wsLog.Warn().Err(err).Msg("Failed to send session state")
		return
	}
	sess.Attach(client)
	defer sess.Detach(client)

	// The session may have ended between Open and Attach.
	if res, reason, ok := sess.Result(); ok {
		client.OnFinished(res, reason)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-client.finished:
			_ = conn.Close()
		case <-done:
		}
	}()

	wsLog.Info().Bool("resumed", !created).Msg("Student connected")

	for {
		var msg ws.Request
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionSelect:
			h.handleSelect(conn, sess, &msg)
		case ws.ActionSignal:
			h.handleSignal(conn, wsLog, sess, &msg)
		case ws.ActionAcknowledge:
			sess.Acknowledge()
		case ws.ActionFinish:
			if _, ok := sess.Finish(); !ok {
				_ = conn.WriteError(response.GetMessage(response.ErrSessionFinished))
			}
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

// handleSelect records an answer and echoes it back.
func (h *WSHandler) handleSelect(conn *ws.Conn, sess *session.Session, msg *ws.Request) {
	if msg.Position == nil || msg.Option == nil {
		_ = conn.WriteError("position and option are required")
		return
	}

	ok, err := sess.Select(*msg.Position, *msg.Option)
	if err != nil {
		if errors.Is(err, session.ErrPositionOutOfRange) {
			_ = conn.WriteError("position out of range")
			return
		}
		_ = conn.WriteError(err.Error())
		return
	}
	if !ok {
		_ = conn.WriteError(response.GetMessage(response.ErrSessionFinished))
		return
	}

	_ = conn.WriteTyped(ws.AnsweredResponse{
		Event:    ws.EventAnswered,
		Position: *msg.Position,
		Option:   *msg.Option,
		Answered: sess.Answered(),
	})
}

// handleSignal forwards a focus or fullscreen change to the integrity
// monitor. Counted violations reach the client through OnViolation.
func (h *WSHandler) handleSignal(conn *ws.Conn, wsLog zerolog.Logger, sess *session.Session, msg *ws.Request) {
	sig, err := session.ParseSignal(msg.Signal)
	if err != nil {
		wsLog.Debug().Str("signal", msg.Signal).Msg("Unknown signal")
		_ = conn.WriteError(err.Error())
		return
	}
	sess.Observe(sig)
}

// wsClient is the session.Client of one WebSocket connection.
type wsClient struct {
	conn     *ws.Conn
	sess     *session.Session
	log      zerolog.Logger
	once     sync.Once
	finished chan struct{}
}

func newWSClient(conn *ws.Conn, sess *session.Session, log zerolog.Logger) *wsClient {
	return &wsClient{conn: conn, sess: sess, log: log, finished: make(chan struct{})}
}

func (w *wsClient) send(v any) {
	if err := w.conn.WriteTyped(v); err != nil {
		w.log.Debug().Err(err).Msg("WebSocket write failed")
	}
}

func (w *wsClient) RequestFullscreen() {
	w.send(ws.FullscreenResponse{Event: ws.EventRequestFullscreen})
}

func (w *wsClient) ExitFullscreen() {
	w.send(ws.FullscreenResponse{Event: ws.EventExitFullscreen})
}

func (w *wsClient) OnTick(remaining int) {
	w.send(ws.TickResponse{
		Event:         ws.EventTick,
		Remaining:     remaining,
		RemainingText: session.FormatRemaining(remaining),
	})
}

func (w *wsClient) OnViolation(count int, signal session.Signal) {
	w.send(ws.ViolationResponse{
		Event:   ws.EventViolation,
		Count:   count,
		Signal:  string(signal),
		Message: fmt.Sprintf("Aktivitas mencurigakan dicatat sebagai pelanggaran (%dx). Tetap fokus pada layar ujian!", count),
	})
}

// OnFinished sends the result once, flagging it unsaved when the hand-off to
// the result queue failed. The connection is closed afterwards.
func (w *wsClient) OnFinished(result model.Result, reason session.Reason) {
	w.once.Do(func() {
		msg := ws.FinishedResponse{
			Event:  ws.EventFinished,
			Reason: string(reason),
			Result: result,
			Saved:  true,
		}
		if err := w.sess.SubmitErr(); err != nil {
			_, code := domainError(err)
			msg.Saved = false
			msg.Error = response.GetMessage(code)
		}
		w.send(msg)
		close(w.finished)
	})
}
