package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/grading"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// LobbyStatus represents the state of a quiz as seen by one student.
type LobbyStatus string

const (
	LobbyStatusUpcoming   LobbyStatus = "UPCOMING"
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusClosed     LobbyStatus = "CLOSED"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
)

// LobbyQuiz is a quiz as displayed in the student lobby.
type LobbyQuiz struct {
	model.Quiz
	RequiredToPass int                  `json:"required_to_pass"`
	LobbyStatus    LobbyStatus          `json:"lobby_status"`
	AttemptID      *uuid.UUID           `json:"attempt_id,omitempty"`
	AttemptStatus  *model.AttemptStatus `json:"attempt_status,omitempty"`
	Score          *int                 `json:"score,omitempty"`
	Passed         *bool                `json:"passed,omitempty"`
}

// QuizService serves the read side of quizzes to students.
type QuizService struct {
	store       QuizStore
	attempts    AttemptStore
	rdb         *redis.Client
	paperTTL    time.Duration
	passPercent int
	now         func() time.Time
	log         zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(store QuizStore, attempts AttemptStore, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *QuizService {
	return &QuizService{
		store:       store,
		attempts:    attempts,
		rdb:         rdb,
		paperTTL:    cfg.PaperCacheTTL,
		passPercent: cfg.PassPercent,
		now:         time.Now,
		log:         log.With().Str("component", "quiz_service").Logger(),
	}
}

// GetLobby lists active quizzes overlaid with the student's attempts.
func (s *QuizService) GetLobby(ctx context.Context, studentID uuid.UUID) ([]LobbyQuiz, error) {
	quizzes, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	attempts, err := s.attempts.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	byQuiz := make(map[uuid.UUID]*model.AttemptSummary, len(attempts))
	for i := range attempts {
		byQuiz[attempts[i].QuizID] = &attempts[i]
	}

	now := s.now()
	lobby := make([]LobbyQuiz, 0, len(quizzes))
	for i := range quizzes {
		q := quizzes[i]
		entry := LobbyQuiz{
			Quiz:           q,
			RequiredToPass: grading.RequiredToPass(q.TotalMarks, s.passPercent),
		}

		if a, ok := byQuiz[q.ID]; ok {
			entry.AttemptID = &a.ID
			entry.AttemptStatus = &a.Status
			entry.Score = a.Score
			entry.Passed = a.Passed
			if a.Status == model.AttemptStatusInProgress {
				entry.LobbyStatus = LobbyStatusInProgress
			} else {
				entry.LobbyStatus = LobbyStatusCompleted
			}
		} else {
			switch {
			case q.ScheduledStart != nil && now.Before(*q.ScheduledStart):
				entry.LobbyStatus = LobbyStatusUpcoming
			case !q.WindowOpen(now):
				entry.LobbyStatus = LobbyStatusClosed
			default:
				entry.LobbyStatus = LobbyStatusAvailable
			}
		}

		lobby = append(lobby, entry)
	}

	return lobby, nil
}

// GetQuiz returns a quiz by ID.
func (s *QuizService) GetQuiz(ctx context.Context, quizID uuid.UUID) (*model.Quiz, error) {
	q, err := s.store.GetByID(ctx, quizID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	return q, nil
}

// GetPaper returns the student-facing paper, served from Redis when warm.
func (s *QuizService) GetPaper(ctx context.Context, quizID uuid.UUID) (*model.QuizPaper, error) {
	key := config.CacheKey.QuizPaperKey(quizID.String())

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var paper model.QuizPaper
		if jsonErr := json.Unmarshal(raw, &paper); jsonErr == nil {
			return &paper, nil
		}
		s.log.Warn().Str("quiz_id", quizID.String()).Msg("Discarding malformed paper cache")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Redis error reading paper, falling back to database")
	}

	paper, err := s.store.GetPaper(ctx, quizID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load paper: %w", err)
	}

	if data, err := json.Marshal(paper); err == nil {
		_ = s.rdb.Set(ctx, key, data, s.paperTTL).Err()
	}
	return paper, nil
}

// PrewarmPapers loads the papers of all active quizzes into Redis before
// traffic arrives. It returns how many were cached.
func (s *QuizService) PrewarmPapers(ctx context.Context) (int, error) {
	quizzes, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list quizzes: %w", err)
	}

	warmed := 0
	for _, q := range quizzes {
		if _, err := s.GetPaper(ctx, q.ID); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", q.ID.String()).Msg("Paper prewarm failed")
			continue
		}
		warmed++
	}
	return warmed, nil
}
