package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-quiz/internal/grading"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// MonitorService serves live monitoring and analytics to instructors.
type MonitorService struct {
	store       MonitorStore
	quizzes     QuizStore
	passPercent int
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(store MonitorStore, quizzes QuizStore, passPercent int) *MonitorService {
	return &MonitorService{store: store, quizzes: quizzes, passPercent: passPercent}
}

// StudentProgressSnapshot holds answered and violation counts per attempt.
type StudentProgressSnapshot struct {
	AnsweredCounts  map[uuid.UUID]int64 `json:"answered_counts"`
	ViolationCounts map[uuid.UUID]int64 `json:"violation_counts"`
	TotalViolations int64               `json:"total_violations"`
}

// GetStudentProgress fetches answered and violation counts concurrently.
func (s *MonitorService) GetStudentProgress(ctx context.Context, quizID uuid.UUID) (*StudentProgressSnapshot, error) {
	snapshot := &StudentProgressSnapshot{
		AnsweredCounts:  make(map[uuid.UUID]int64),
		ViolationCounts: make(map[uuid.UUID]int64),
	}

	var (
		answeredCounts  map[uuid.UUID]int64
		violationCounts map[uuid.UUID]int64
		answeredErr     error
		violationErr    error
		wg              sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.store.GetAnsweredCounts(ctx, quizID)
	}()
	go func() {
		defer wg.Done()
		violationCounts, violationErr = s.store.GetViolationCounts(ctx, quizID)
	}()
	wg.Wait()

	// Answered counts are required; violation counts are best-effort.
	if answeredErr != nil {
		return nil, answeredErr
	}
	if answeredCounts != nil {
		snapshot.AnsweredCounts = answeredCounts
	}
	if violationErr == nil && violationCounts != nil {
		snapshot.ViolationCounts = violationCounts
		for _, n := range violationCounts {
			snapshot.TotalViolations += n
		}
	}

	return snapshot, nil
}

// AttemptCounts splits a quiz's attempts by status.
type AttemptCounts struct {
	InProgress int64 `json:"in_progress"`
	Submitted  int64 `json:"submitted"`
}

// GetAttemptCounts counts every attempt of the quiz, not a page of them.
func (s *MonitorService) GetAttemptCounts(ctx context.Context, quizID uuid.UUID) (AttemptCounts, error) {
	stats, err := s.store.GetAttemptStats(ctx, quizID)
	if err != nil {
		return AttemptCounts{}, fmt.Errorf("attempt stats: %w", err)
	}
	return AttemptCounts{InProgress: stats.InProgress, Submitted: stats.TotalAttempts}, nil
}

// GetAttemptViolations returns the violations already recorded for an attempt.
func (s *MonitorService) GetAttemptViolations(ctx context.Context, attemptID uuid.UUID) (int, error) {
	n, err := s.store.GetAttemptViolationCount(ctx, attemptID)
	if err != nil {
		return 0, fmt.Errorf("attempt violations: %w", err)
	}
	return int(n), nil
}

// GetAnalytics returns pass rate, averages and per-question correctness for a quiz.
func (s *MonitorService) GetAnalytics(ctx context.Context, quizID uuid.UUID) (*model.QuizAnalytics, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	stats, err := s.store.GetAttemptStats(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("attempt stats: %w", err)
	}
	questions, err := s.store.GetQuestionStats(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("question stats: %w", err)
	}

	stats.RequiredToPass = grading.RequiredToPass(quiz.TotalMarks, s.passPercent)
	if stats.TotalAttempts > 0 {
		stats.PassRate = roundTenth(float64(stats.PassedAttempts) * 100 / float64(stats.TotalAttempts))
	}
	stats.AverageScore = roundTenth(stats.AverageScore)
	stats.AverageTimeSeconds = math.Round(stats.AverageTimeSeconds)

	for i := range questions {
		if questions[i].TotalAnswers > 0 {
			questions[i].CorrectRate = roundTenth(float64(questions[i].CorrectAnswers) * 100 / float64(questions[i].TotalAnswers))
		}
	}
	stats.Questions = questions

	stats.TotalMarks = quiz.TotalMarks
	return stats, nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
