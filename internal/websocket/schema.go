package websocket

import "github.com/Deji-Tech/lawsa-iuo/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer     Action = "answer"
	ActionNext       Action = "next"
	ActionPrev       Action = "prev"
	ActionPause      Action = "pause"
	ActionResume     Action = "resume"
	ActionVisibility Action = "visibility"
	ActionSubmit     Action = "submit"
	ActionState      Action = "state"
	ActionPing       Action = "ping"
)

// Request is every client message. Fields are read according to Action.
type Request struct {
	Action        Action `json:"action"`
	QuestionIndex *int   `json:"question_index,omitempty"`
	OptionIndex   *int   `json:"option_index,omitempty"`
	Hidden        *bool  `json:"hidden,omitempty"`
	Confirm       bool   `json:"confirm,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState      Event = "state"
	EventTick       Event = "tick"
	EventFinished   Event = "finished"
	EventIncomplete Event = "incomplete"
	EventError      Event = "error"
	EventPong       Event = "pong"
)

// StateResponse carries the full session view after every accepted action.
type StateResponse struct {
	Event   Event              `json:"event"`
	Session *model.SessionView `json:"session"`
}

// TickResponse is pushed once per second while the session is live.
type TickResponse struct {
	Event            Event               `json:"event"`
	Status           model.SessionStatus `json:"status"`
	RemainingSeconds int                 `json:"time_remaining_seconds"`
	Saved            bool                `json:"saved"`
}

// FinishedResponse is pushed once when the attempt is scored.
type FinishedResponse struct {
	Event  Event                `json:"event"`
	Result *model.AttemptResult `json:"result"`
}

// IncompleteResponse asks the client to confirm a submit with unanswered questions.
type IncompleteResponse struct {
	Event      Event `json:"event"`
	Unanswered int   `json:"unanswered"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
