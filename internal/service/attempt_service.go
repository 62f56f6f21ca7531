package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/grading"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/timekeeper"
)

const expiredSweepBatch = 100

// AttemptService drives the attempt lifecycle: start, answer, submit.
type AttemptService struct {
	quizzes      QuizStore
	attempts     AttemptStore
	sessions     *SessionService
	certificates *CertificateService
	papers       *QuizService
	bus          *EventBus
	passPercent  int
	grace        time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	quizzes QuizStore,
	attempts AttemptStore,
	sessions *SessionService,
	certificates *CertificateService,
	papers *QuizService,
	bus *EventBus,
	cfg *config.Config,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		quizzes:      quizzes,
		attempts:     attempts,
		sessions:     sessions,
		certificates: certificates,
		papers:       papers,
		bus:          bus,
		passPercent:  cfg.PassPercent,
		grace:        cfg.DeadlineGrace,
		now:          time.Now,
		log:          log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start begins an attempt, or returns the caller's in-progress attempt.
// A session token is issued only when a new attempt is created.
func (s *AttemptService) Start(ctx context.Context, studentID, quizID uuid.UUID) (*model.StartResult, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuizUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if !quiz.IsActive {
		return nil, ErrQuizUnavailable
	}

	existing, err := s.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}
	if existing != nil {
		return s.resume(existing, quiz)
	}

	now := s.now()
	if !quiz.WindowOpen(now) {
		return nil, ErrQuizUnavailable
	}

	attempt := &model.Attempt{
		QuizID:     quizID,
		StudentID:  studentID,
		TotalMarks: quiz.TotalMarks,
		StartedAt:  now,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start: the other request created the row.
			winner, fetchErr := s.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			return s.resume(winner, quiz)
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	token, err := s.sessions.Issue(ctx, studentID, quizID, attempt.ID)
	if err != nil {
		s.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Attempt created without session")
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.bus.PublishMonitor(ctx, quizID, MonitorEvent{
		Type:      MonitorAttemptStarted,
		AttemptID: attempt.ID,
		StudentID: studentID,
	})

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("quiz_id", quizID.String()).
		Str("student_id", studentID.String()).
		Msg("Attempt started")

	return &model.StartResult{
		AttemptID:        attempt.ID,
		SessionToken:     token,
		StartedAt:        attempt.StartedAt,
		DurationMinutes:  quiz.DurationMinutes,
		RemainingSeconds: timekeeper.RemainingSeconds(attempt.StartedAt, quiz.DurationMinutes, now),
	}, nil
}

func (s *AttemptService) resume(a *model.Attempt, quiz *model.Quiz) (*model.StartResult, error) {
	if a.Status != model.AttemptStatusInProgress {
		return nil, ErrAlreadyCompleted
	}
	return &model.StartResult{
		AttemptID:        a.ID,
		AlreadyStarted:   true,
		StartedAt:        a.StartedAt,
		DurationMinutes:  quiz.DurationMinutes,
		RemainingSeconds: timekeeper.RemainingSeconds(a.StartedAt, quiz.DurationMinutes, s.now()),
	}, nil
}

// RecordAnswer saves the caller's choice for one question, overwriting any earlier one.
func (s *AttemptService) RecordAnswer(ctx context.Context, attemptID, studentID, questionID, optionID uuid.UUID) error {
	a, err := s.attempts.UpsertAnswer(ctx, attemptID, studentID, questionID, optionID)
	switch {
	case errors.Is(err, repository.ErrAttemptNotActive):
		return ErrInvalidAttempt
	case errors.Is(err, repository.ErrOptionMismatch):
		return ErrInvalidOption
	case err != nil:
		return fmt.Errorf("record answer: %w", err)
	}

	s.sessions.Touch(ctx, attemptID)
	s.bus.PublishMonitor(ctx, a.QuizID, MonitorEvent{
		Type:      MonitorAnswerSaved,
		AttemptID: attemptID,
		StudentID: studentID,
	})
	return nil
}

// Submit scores and closes the caller's attempt. It succeeds at most once per
// attempt; later or concurrent calls get ErrInvalidAttempt.
func (s *AttemptService) Submit(ctx context.Context, attemptID, studentID uuid.UUID) (*model.SubmitResult, error) {
	sub, err := s.attempts.Submit(ctx, attemptID, studentID, s.passPercent, s.now())
	if errors.Is(err, repository.ErrAttemptNotActive) {
		return nil, ErrInvalidAttempt
	}
	if err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}

	// Sessions were deactivated in the submit transaction.
	s.sessions.Forget(ctx, attemptID)

	result := &model.SubmitResult{
		AttemptID:        sub.AttemptID,
		Score:            sub.Score,
		TotalMarks:       sub.TotalMarks,
		RequiredToPass:   sub.RequiredToPass,
		Passed:           sub.Passed,
		TimeTakenSeconds: sub.TimeTakenSeconds,
	}

	if sub.Passed {
		number, err := s.certificates.IssueIfAbsent(ctx, sub.AttemptID, sub.StudentID, sub.QuizID, sub.Score, sub.TotalMarks)
		if err != nil {
			// The sweeper issues it on its next run.
			s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Certificate issuance failed")
		} else {
			result.CertificateNumber = &number
		}
	}

	s.bus.PublishMonitor(ctx, sub.QuizID, MonitorEvent{
		Type:      MonitorAttemptSubmitted,
		AttemptID: attemptID,
		StudentID: studentID,
		Score:     &result.Score,
		Passed:    &result.Passed,
	})

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("quiz_id", sub.QuizID.String()).
		Str("student_id", studentID.String()).
		Int("score", sub.Score).
		Int("total_marks", sub.TotalMarks).
		Bool("passed", sub.Passed).
		Msg("Attempt submitted")

	return result, nil
}

// SubmitExpired submits in-progress attempts whose time ran out more than
// the grace period ago. It returns the number submitted.
func (s *AttemptService) SubmitExpired(ctx context.Context) (int, error) {
	expired, err := s.attempts.ListExpired(ctx, s.grace, s.now(), expiredSweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list expired attempts: %w", err)
	}

	submitted := 0
	for _, e := range expired {
		_, err := s.Submit(ctx, e.AttemptID, e.StudentID)
		switch {
		case err == nil:
			submitted++
		case errors.Is(err, ErrInvalidAttempt):
			// Submitted by the student or proctor in the meantime.
		default:
			s.log.Error().Err(err).Str("attempt_id", e.AttemptID.String()).Msg("Deadline submission failed")
		}
	}
	return submitted, nil
}

// GetActive returns the caller's in-progress attempt together with its quiz.
func (s *AttemptService) GetActive(ctx context.Context, attemptID, studentID uuid.UUID) (*model.Attempt, *model.Quiz, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrInvalidAttempt
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}
	if a.StudentID != studentID || a.Status != model.AttemptStatusInProgress {
		return nil, nil, ErrInvalidAttempt
	}

	quiz, err := s.quizzes.GetByID(ctx, a.QuizID)
	if err != nil {
		return nil, nil, fmt.Errorf("get quiz: %w", err)
	}
	return a, quiz, nil
}

// GetState returns what the quiz page needs after a (re)load.
func (s *AttemptService) GetState(ctx context.Context, attemptID, studentID uuid.UUID) (*model.AttemptState, error) {
	a, quiz, err := s.GetActive(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	paper, err := s.papers.GetPaper(ctx, a.QuizID)
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	answers, err := s.attempts.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	return &model.AttemptState{
		Attempt:          *a,
		Paper:            paper,
		Answers:          answers,
		RemainingSeconds: timekeeper.RemainingSeconds(a.StartedAt, quiz.DurationMinutes, s.now()),
		RequiredToPass:   grading.RequiredToPass(a.TotalMarks, s.passPercent),
	}, nil
}

// ReissueSession hands out a new token for the caller's in-progress attempt,
// but only when no session is active (after an instructor reset).
func (s *AttemptService) ReissueSession(ctx context.Context, attemptID, studentID uuid.UUID) (*model.IssuedSession, error) {
	a, _, err := s.GetActive(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	token, err := s.sessions.Issue(ctx, studentID, a.QuizID, attemptID)
	if err != nil {
		return nil, err
	}
	return &model.IssuedSession{AttemptID: attemptID, SessionToken: token}, nil
}

// ResetSession deactivates the attempt's session on an instructor's behalf.
func (s *AttemptService) ResetSession(ctx context.Context, attemptID uuid.UUID) error {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get attempt: %w", err)
	}

	if err := s.sessions.Deactivate(ctx, attemptID); err != nil {
		return err
	}

	s.bus.PublishMonitor(ctx, a.QuizID, MonitorEvent{
		Type:      MonitorSessionReset,
		AttemptID: attemptID,
		StudentID: a.StudentID,
	})
	return nil
}

// RecordSignal queues a proctor signal for audit and notifies the monitor of violations.
func (s *AttemptService) RecordSignal(ctx context.Context, a *model.Attempt, kind string, violation bool, count int) {
	s.bus.EnqueueProctorEvent(ctx, model.ProctorEvent{
		AttemptID:  a.ID,
		QuizID:     a.QuizID,
		StudentID:  a.StudentID,
		Kind:       kind,
		Violation:  violation,
		Count:      count,
		RecordedAt: s.now().UTC(),
	})
	if violation {
		s.bus.PublishMonitor(ctx, a.QuizID, MonitorEvent{
			Type:       MonitorViolation,
			AttemptID:  a.ID,
			StudentID:  a.StudentID,
			Kind:       kind,
			Violations: count,
		})
	}
}

// ListResults returns the caller's attempts.
func (s *AttemptService) ListResults(ctx context.Context, studentID uuid.UUID) ([]model.AttemptSummary, error) {
	results, err := s.attempts.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	for i := range results {
		results[i].RequiredToPass = grading.RequiredToPass(results[i].TotalMarks, s.passPercent)
	}
	return results, nil
}

// ListQuizResults returns paginated attempts of a quiz for instructors.
func (s *AttemptService) ListQuizResults(ctx context.Context, quizID uuid.UUID, page, perPage int, status *model.AttemptStatus) ([]model.QuizResult, int64, error) {
	return s.attempts.ListByQuiz(ctx, quizID, page, perPage, status)
}
