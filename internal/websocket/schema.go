package websocket

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/proctor"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionEvent  Action = "event"
	ActionKey    Action = "key"
	ActionAnswer Action = "answer"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestEnvelope is the single client message shape; fields not used by
// an action are left empty.
type RequestEnvelope struct {
	Action     Action            `json:"action"`
	Kind       string            `json:"kind,omitempty"`
	Key        *proctor.KeyPress `json:"key,omitempty"`
	QuestionID uuid.UUID         `json:"question_id,omitempty"`
	OptionID   uuid.UUID         `json:"option_id,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventReady          Event = "ready"
	EventWarning        Event = "warning"
	EventAnswerSaved    Event = "answer_saved"
	EventTime           Event = "time"
	EventSubmitted      Event = "submitted"
	EventSessionInvalid Event = "session_invalid"
	EventError          Event = "error"
	EventPong           Event = "pong"
)

// ReadyResponse is sent once the socket is bound to the attempt.
type ReadyResponse struct {
	Event            Event     `json:"event"`
	AttemptID        uuid.UUID `json:"attempt_id"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Tolerance        int       `json:"tolerance"`
	Violations       int       `json:"violations"`
}

// WarningResponse tells the student a violation was counted.
type WarningResponse struct {
	Event      Event  `json:"event"`
	Kind       string `json:"kind"`
	Violations int    `json:"violations"`
	Left       int    `json:"left"`
}

type AnswerSavedResponse struct {
	Event      Event     `json:"event"`
	QuestionID uuid.UUID `json:"question_id"`
}

type TimeResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// SubmittedResponse ends the stream. Result is nil when the attempt had
// already been submitted elsewhere.
type SubmittedResponse struct {
	Event  Event               `json:"event"`
	Reason proctor.Reason      `json:"reason"`
	Result *model.SubmitResult `json:"result,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type SimpleResponse struct {
	Event Event `json:"event"`
}
