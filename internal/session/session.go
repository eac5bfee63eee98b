// Package session runs one student's timed attempt at one exam: the question
// order, the selected answers, the countdown, the integrity monitor and the
// final scoring.
//
// Three sources drive a session concurrently: the countdown goroutine, the
// student's connection and teacher actions such as terminating an exam. They
// all go through the session mutex, and the first of them to move the
// session out of StateActive is the only one that produces a Result.
package session

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/smada/genius-backend/internal/model"
)

const submitTimeout = 10 * time.Second

// State is the lifecycle position of a session. It only moves forward.
type State int32

const (
	StateActive State = iota
	StateSubmitting
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSubmitting:
		return "submitting"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

// Reason tells what ended a session.
type Reason string

const (
	ReasonStudent Reason = "student"
	ReasonTimeout Reason = "timeout"
	ReasonForced  Reason = "forced"
)

// ResultSink receives the Result of every finished session.
type ResultSink interface {
	Submit(ctx context.Context, result model.Result) error
}

// ViolationSink is told about every counted violation.
type ViolationSink interface {
	RecordViolation(ctx context.Context, event model.ViolationEvent) error
}

// Client is the connected exam page. A session outlives connections; the
// latest attached client receives every notification.
type Client interface {
	Platform
	OnTick(remaining int)
	OnViolation(count int, signal Signal)
	OnFinished(result model.Result, reason Reason)
}

// Options configures a new Session.
type Options struct {
	Exam       *model.Exam
	Student    model.Student
	Results    ResultSink
	Violations ViolationSink
	// Rand drives the question shuffle. Nil uses the global source.
	Rand *rand.Rand
	// TickInterval is the wall time of one countdown second. Zero leaves the
	// countdown to explicit Tick calls.
	TickInterval time.Duration
	Now          func() time.Time
	Log          zerolog.Logger
}

// Session is one timed attempt.
type Session struct {
	exam         *model.Exam
	student      model.Student
	results      ResultSink
	violations   ViolationSink
	tickInterval time.Duration
	now          func() time.Time
	log          zerolog.Logger

	monitor *Monitor

	mu        sync.Mutex
	state     State
	started   bool
	tracker   *Tracker
	clock     *Clock
	client    Client
	baseCtx   context.Context
	stopClock context.CancelFunc
	result    model.Result
	reason    Reason
	submitErr error
	done      chan struct{}
}

// New prepares a session and fixes its question order. Call Start to begin.
func New(opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		exam:         opts.Exam,
		student:      opts.Student,
		results:      opts.Results,
		violations:   opts.Violations,
		tickInterval: opts.TickInterval,
		now:          now,
		log: opts.Log.With().
			Str("exam_id", opts.Exam.ID).
			Str("student_id", opts.Student.ID).
			Logger(),
		state:   StateActive,
		baseCtx: context.Background(),
		done:    make(chan struct{}),
	}

	order := Permutation(len(opts.Exam.Questions), opts.Exam.ShufflesQuestions(), opts.Rand)
	s.tracker = NewTracker(order)
	s.clock = NewClock(opts.Exam.DurationMinutes)
	s.monitor = NewMonitor(clientPlatform{s}, s.handleViolation)
	return s
}

// Start begins the countdown and the integrity monitor. A zero duration
// finishes the session immediately. Calling Start again has no effect.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.baseCtx = context.WithoutCancel(ctx)
	expired := s.clock.Expired()

	var tickCtx context.Context
	if !expired && s.tickInterval > 0 {
		tickCtx, s.stopClock = context.WithCancel(s.baseCtx)
	}
	s.mu.Unlock()

	if expired {
		s.finalize(ReasonTimeout)
		return
	}

	s.log.Info().Int("remaining", s.Remaining()).Msg("Session started")
	s.monitor.Start()
	if tickCtx != nil {
		go s.run(tickCtx)
	}
}

func (s *Session) run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick consumes one second of the countdown. The tick that reaches zero
// finishes the session.
func (s *Session) Tick() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	remaining, expired := s.clock.Tick()
	client := s.client
	s.mu.Unlock()

	if client != nil {
		client.OnTick(remaining)
	}
	if expired {
		s.finalize(ReasonTimeout)
	}
}

// Select records an answer for the question at a visual position. Once the
// session left StateActive it does nothing and reports false.
func (s *Session) Select(position, option int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false, nil
	}
	if _, err := s.tracker.Select(position, option); err != nil {
		return false, err
	}
	return true, nil
}

// Observe forwards a client signal to the integrity monitor.
func (s *Session) Observe(sig Signal) bool {
	if s.State() != StateActive {
		return false
	}
	return s.monitor.Observe(sig)
}

// Acknowledge records that the student dismissed a violation warning.
func (s *Session) Acknowledge() {
	if s.State() == StateActive {
		s.monitor.Acknowledge()
	}
}

// Finish ends the session at the student's request. ok is false when the
// session had already ended.
func (s *Session) Finish() (model.Result, bool) {
	return s.finalize(ReasonStudent)
}

// Terminate ends the session on behalf of a teacher.
func (s *Session) Terminate() (model.Result, bool) {
	return s.finalize(ReasonForced)
}

func (s *Session) finalize(reason Reason) (model.Result, bool) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return model.Result{}, false
	}
	s.state = StateSubmitting
	if s.stopClock != nil {
		s.stopClock()
	}
	answers := s.tracker.Answers()
	base := s.baseCtx
	s.mu.Unlock()

	violations := s.monitor.Stop()
	result := Finalize(s.exam, s.student, answers, violations, s.now())
	clientPlatform{s}.ExitFullscreen()

	var err error
	if s.results != nil {
		ctx, cancel := context.WithTimeout(base, submitTimeout)
		err = s.results.Submit(ctx, result)
		cancel()
		if err != nil {
			s.log.Error().Err(err).Str("result_id", result.ID).Msg("Result hand-off failed")
		}
	}

	s.mu.Lock()
	s.state = StateFinished
	s.result = result
	s.reason = reason
	s.submitErr = err
	client := s.client
	s.mu.Unlock()
	close(s.done)

	s.log.Info().
		Str("reason", string(reason)).
		Int("score", result.Score).
		Int("correct", result.CorrectCount).
		Int("total", result.TotalQuestions).
		Int("violations", result.Violations).
		Msg("Session finished")

	if client != nil {
		client.OnFinished(result, reason)
	}
	return result, true
}

func (s *Session) handleViolation(count int, sig Signal) {
	s.mu.Lock()
	client := s.client
	base := s.baseCtx
	s.mu.Unlock()

	s.log.Warn().Str("signal", string(sig)).Int("count", count).Msg("Integrity violation")

	if client != nil {
		client.OnViolation(count, sig)
	}
	if s.violations != nil {
		ctx, cancel := context.WithTimeout(base, submitTimeout)
		defer cancel()
		err := s.violations.RecordViolation(ctx, model.ViolationEvent{
			ExamID:      s.exam.ID,
			StudentID:   s.student.ID,
			StudentName: s.student.Name,
			Signal:      string(sig),
			Count:       count,
			Timestamp:   s.now(),
		})
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to record violation")
		}
	}
}

// Attach makes c the receiver of notifications, replacing any earlier
// client. A resumed running session asks the new client for fullscreen.
func (s *Session) Attach(c Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	if s.monitor.Running() && c != nil {
		c.RequestFullscreen()
	}
}

// Detach removes c if it is still the attached client.
func (s *Session) Detach(c Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == c {
		s.client = nil
	}
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining returns the seconds left on the countdown.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Remaining()
}

// Order returns a copy of the display order.
func (s *Session) Order() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.tracker.order...)
}

// IsAnswered reports whether the question at original index has a selection.
func (s *Session) IsAnswered(original int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.IsAnswered(original)
}

// Answered returns how many questions have a selection.
func (s *Session) Answered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Count()
}

// Violations returns the current violation count.
func (s *Session) Violations() int {
	return s.monitor.Violations()
}

// Result returns the final Result once the session is finished.
func (s *Session) Result() (model.Result, Reason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFinished {
		return model.Result{}, "", false
	}
	return s.result, s.reason, true
}

// SubmitErr returns the error of the result hand-off, if any.
func (s *Session) SubmitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitErr
}

// Done is closed when the session reaches StateFinished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Exam returns the exam being taken.
func (s *Session) Exam() *model.Exam {
	return s.exam
}

// Student returns the student taking the exam.
func (s *Session) Student() model.Student {
	return s.student
}

// View is what a (re)connecting client needs to render the session.
type View struct {
	ExamID          string               `json:"exam_id"`
	Title           string               `json:"title"`
	Subject         string               `json:"subject"`
	DurationMinutes int                  `json:"duration_minutes"`
	Questions       []model.QuestionView `json:"questions"`
	Answers         map[int]int          `json:"answers"`
	Remaining       int                  `json:"remaining"`
	RemainingText   string               `json:"remaining_text"`
	Violations      int                  `json:"violations"`
	Degraded        bool                 `json:"degraded"`
	State           string               `json:"state"`
}

// View renders the questions in display order without the answer key,
// along with the answers given so far keyed by position.
func (s *Session) View() View {
	s.mu.Lock()
	questions := make([]model.QuestionView, len(s.tracker.order))
	for pos, original := range s.tracker.order {
		q := s.exam.Questions[original]
		questions[pos] = model.QuestionView{
			Position: pos,
			ID:       q.ID,
			Text:     q.Text,
			Options:  q.Options,
			Image:    q.Image,
		}
	}
	answers := s.tracker.ByPosition()
	remaining := s.clock.Remaining()
	state := s.state
	s.mu.Unlock()

	return View{
		ExamID:          s.exam.ID,
		Title:           s.exam.Title,
		Subject:         s.exam.Subject,
		DurationMinutes: s.exam.DurationMinutes,
		Questions:       questions,
		Answers:         answers,
		Remaining:       remaining,
		RemainingText:   FormatRemaining(remaining),
		Violations:      s.monitor.Violations(),
		Degraded:        s.monitor.Degraded(),
		State:           state.String(),
	}
}

// clientPlatform routes monitor requests to whichever client is attached.
type clientPlatform struct{ s *Session }

func (p clientPlatform) RequestFullscreen() {
	if c := p.current(); c != nil {
		c.RequestFullscreen()
	}
}

func (p clientPlatform) ExitFullscreen() {
	if c := p.current(); c != nil {
		c.ExitFullscreen()
	}
}

func (p clientPlatform) current() Client {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.client
}
