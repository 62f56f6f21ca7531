package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/proctor"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	ws "github.com/stemsi/exstem-quiz/internal/websocket"
)

const (
	tickInterval       = time.Second
	timeSyncEvery      = 10 // ticks
	sessionCheckEvery  = 5  // ticks
	submitTimeout      = 10 * time.Second
	actionTimeout      = 5 * time.Second
	proctorInboxBuffer = 16
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
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

// WSHandler serves the proctor stream of an attempt.
type WSHandler struct {
	attemptService *service.AttemptService
	sessionService *service.SessionService
	monitorService *service.MonitorService
	tolerance      int
	tick           time.Duration
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	attemptService *service.AttemptService,
	sessionService *service.SessionService,
	monitorService *service.MonitorService,
	tolerance int,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		sessionService: sessionService,
		monitorService: monitorService,
		tolerance:      tolerance,
		tick:           tickInterval,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// proctorStream is the state of one connected tab. Only the goroutine
// running ProctorStream touches it.
type proctorStream struct {
	h       *WSHandler
	conn    *websocket.Conn
	ctx     context.Context
	attempt *model.Attempt
	token   string
	monitor *proctor.Monitor
	result  *model.SubmitResult
	log     zerolog.Logger
}

// ProctorStream godoc
// WS /ws/v1/student/attempts/:attempt_id/proctor?token=<jwt>&session=<session token>
// Receives integrity signals and answers, pushes warnings and the remaining
// time, and submits the attempt when violations or time run out.
func (h *WSHandler) ProctorStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	attempt, quiz, err := h.attemptService.GetActive(ctx, attemptID, claims.UserID)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}

	token := c.Query("session")
	valid, err := h.sessionService.Validate(ctx, attemptID, claims.UserID, token)
	if err != nil {
		failWithServiceError(c, h.log, err)
		return
	}
	if !valid {
		response.Fail(c, http.StatusForbidden, response.ErrSessionInvalid)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(ws.MaxMessageBytes)

	s := &proctorStream{
		h:       h,
		conn:    conn,
		ctx:     ctx,
		attempt: attempt,
		token:   token,
		log: h.log.With().
			Str("attempt_id", attemptID.String()).
			Str("student_id", claims.UserID.String()).
			Logger(),
	}
	s.monitor = proctor.NewMonitor(proctor.Config{
		Tolerance:         h.tolerance,
		StartedAt:         attempt.StartedAt,
		DurationMinutes:   quiz.DurationMinutes,
		InitialViolations: h.priorViolations(ctx, attemptID),
		Submit:            s.submit,
		Handled: func(err error) bool {
			return errors.Is(err, service.ErrInvalidAttempt)
		},
	})

	s.log.Info().Msg("Proctor stream connected")
	s.run()
	s.log.Info().Int("violations", s.monitor.Violations()).Bool("submitted", s.monitor.Done()).Msg("Proctor stream closed")
}

// priorViolations returns the violations recorded by earlier connections of
// the attempt. Events still queued for the audit writer are not counted.
func (h *WSHandler) priorViolations(ctx context.Context, attemptID uuid.UUID) int {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	n, err := h.monitorService.GetAttemptViolations(ctx, attemptID)
	if err != nil {
		h.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to load prior violations")
		return 0
	}
	return n
}

func (s *proctorStream) run() {
	_ = ws.WriteTyped(s.conn, ws.ReadyResponse{
		Event:            ws.EventReady,
		AttemptID:        s.attempt.ID,
		RemainingSeconds: s.monitor.RemainingSeconds(time.Now()),
		Tolerance:        s.h.tolerance,
		Violations:       s.monitor.Violations(),
	})

	// Reconnected after reaching the tolerance.
	if s.monitor.Pending() && s.apply(s.monitor.Tick(s.ctx, time.Now())) {
		return
	}

	inbox := make(chan ws.RequestEnvelope, proctorInboxBuffer)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(inbox)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(s.conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			select {
			case inbox <- msg:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(s.h.tick)
	defer ticker.Stop()
	ticks := 0

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg, ok := <-inbox:
			if !ok {
				return
			}
			if s.handle(msg) {
				return
			}

		case now := <-ticker.C:
			ticks++
			if ticks%sessionCheckEvery == 0 && !s.sessionValid() {
				_ = ws.WriteTyped(s.conn, ws.SimpleResponse{Event: ws.EventSessionInvalid})
				_ = ws.WriteClose(s.conn, websocket.ClosePolicyViolation, "session invalid")
				return
			}
			if s.apply(s.monitor.Tick(s.ctx, now)) {
				return
			}
			if ticks%timeSyncEvery == 0 {
				_ = ws.WriteTyped(s.conn, ws.TimeResponse{
					Event:            ws.EventTime,
					RemainingSeconds: s.monitor.RemainingSeconds(now),
				})
			}
		}
	}
}

// handle processes one client message and reports whether the stream is finished.
func (s *proctorStream) handle(msg ws.RequestEnvelope) bool {
	switch msg.Action {
	case ws.ActionEvent:
		kind, ok := proctor.ParseKind(msg.Kind)
		if !ok {
			_ = ws.WriteError(s.conn, string(response.ErrInvalidPayload), "unknown event kind: "+msg.Kind)
			return false
		}
		return s.apply(s.monitor.Signal(s.ctx, kind))

	case ws.ActionKey:
		if msg.Key == nil {
			_ = ws.WriteError(s.conn, string(response.ErrInvalidPayload), "key is required")
			return false
		}
		kind, ok := proctor.ClassifyShortcut(*msg.Key)
		if !ok {
			return false
		}
		return s.apply(s.monitor.Signal(s.ctx, kind))

	case ws.ActionAnswer:
		s.answer(msg.QuestionID, msg.OptionID)
		return false

	case ws.ActionSubmit:
		return s.apply(s.monitor.Submit(s.ctx))

	case ws.ActionPing:
		_ = ws.WriteTyped(s.conn, ws.SimpleResponse{Event: ws.EventPong})
		return false

	default:
		s.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = ws.WriteError(s.conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		return false
	}
}

// apply reacts to a monitor event and reports whether the stream is finished.
func (s *proctorStream) apply(ev proctor.Event) bool {
	switch ev.Type {
	case proctor.EventRecorded:
		s.h.attemptService.RecordSignal(s.ctx, s.attempt, string(ev.Kind), false, ev.Violations)
		return false

	case proctor.EventWarning:
		s.h.attemptService.RecordSignal(s.ctx, s.attempt, string(ev.Kind), true, ev.Violations)
		_ = ws.WriteTyped(s.conn, ws.WarningResponse{
			Event:      ws.EventWarning,
			Kind:       string(ev.Kind),
			Violations: ev.Violations,
			Left:       ev.Left,
		})
		return false

	case proctor.EventSubmitted, proctor.EventAlreadySubmitted:
		if ev.Kind != "" {
			s.h.attemptService.RecordSignal(s.ctx, s.attempt, string(ev.Kind), true, ev.Violations)
		}
		_ = ws.WriteTyped(s.conn, ws.SubmittedResponse{
			Event:  ws.EventSubmitted,
			Reason: ev.Reason,
			Result: s.result,
		})
		_ = ws.WriteClose(s.conn, websocket.CloseNormalClosure, string(ev.Reason))
		return true

	case proctor.EventSubmitFailed:
		// The monitor retries on the next tick.
		s.log.Error().Err(ev.Err).Str("reason", string(ev.Reason)).Msg("Proctor submission failed")
		_ = ws.WriteError(s.conn, string(response.ErrInternal), "submission failed, retrying")
		return false
	}
	return false
}

// submit is the monitor's SubmitFunc. It outlives a dropped connection.
func (s *proctorStream) submit(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitTimeout)
	defer cancel()

	res, err := s.h.attemptService.Submit(ctx, s.attempt.ID, s.attempt.StudentID)
	if err != nil {
		return err
	}
	s.result = res
	return nil
}

func (s *proctorStream) answer(questionID, optionID uuid.UUID) {
	if questionID == uuid.Nil || optionID == uuid.Nil {
		_ = ws.WriteError(s.conn, string(response.ErrValidation), "question_id and option_id are required")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, actionTimeout)
	defer cancel()

	if err := s.h.attemptService.RecordAnswer(ctx, s.attempt.ID, s.attempt.StudentID, questionID, optionID); err != nil {
		_, code, known := lookupServiceError(err)
		if !known {
			s.log.Error().Err(err).Msg("Answer save failed")
		}
		_ = ws.WriteError(s.conn, string(code), response.GetMessage(code))
		return
	}

	_ = ws.WriteTyped(s.conn, ws.AnswerSavedResponse{Event: ws.EventAnswerSaved, QuestionID: questionID})
}

func (s *proctorStream) sessionValid() bool {
	ctx, cancel := context.WithTimeout(s.ctx, actionTimeout)
	defer cancel()

	valid, err := s.h.sessionService.Validate(ctx, s.attempt.ID, s.attempt.StudentID, s.token)
	if err != nil {
		// Store trouble is not evidence of a second tab.
		s.log.Warn().Err(err).Msg("Session recheck failed")
		return true
	}
	return valid
}
