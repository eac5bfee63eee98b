package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect      Action = "select"
	ActionSignal      Action = "signal"
	ActionAcknowledge Action = "acknowledge"
	ActionFinish      Action = "finish"
	ActionPing        Action = "ping"
)

// Request is every client message. Fields not used by the action are empty.
type Request struct {
	Action Action `json:"action"`
	// Position and Option are used by select.
	Position *int `json:"position,omitempty"`
	Option   *int `json:"option,omitempty"`
	// Signal is used by signal.
	Signal string `json:"signal,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventStarted           Event = "started"
	EventTick              Event = "tick"
	EventAnswered          Event = "answered"
	EventViolation         Event = "violation"
	EventRequestFullscreen Event = "request_fullscreen"
	EventExitFullscreen    Event = "exit_fullscreen"
	EventFinished          Event = "finished"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

// StartedResponse carries the full session state on (re)connect.
type StartedResponse struct {
	Event   Event `json:"event"`
	Resumed bool  `json:"resumed"`
	Session any   `json:"session"`
}

type TickResponse struct {
	Event         Event  `json:"event"`
	Remaining     int    `json:"remaining"`
	RemainingText string `json:"remaining_text"`
}

type AnsweredResponse struct {
	Event    Event `json:"event"`
	Position int   `json:"position"`
	Option   int   `json:"option"`
	Answered int   `json:"answered"`
}

type ViolationResponse struct {
	Event   Event  `json:"event"`
	Count   int    `json:"count"`
	Signal  string `json:"signal"`
	Message string `json:"message"`
}

type FullscreenResponse struct {
	Event Event `json:"event"`
}

// FinishedResponse carries the final result. Saved is false when the result
// could not be queued for persistence; Error then tells the student why.
type FinishedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
	Result any    `json:"result"`
	Saved  bool   `json:"saved"`
	Error  string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
