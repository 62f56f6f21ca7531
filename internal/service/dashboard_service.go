package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/grading"
	"github.com/stemsi/exstem-quiz/internal/model"
)

const recentAttemptsLimit = 5

// DashboardService builds the student and admin dashboards.
type DashboardService struct {
	store DashboardStore
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(store DashboardStore) *DashboardService {
	return &DashboardService{store: store}
}

// GetStudentDashboard returns the student's stat cards and latest attempts.
func (s *DashboardService) GetStudentDashboard(ctx context.Context, studentID uuid.UUID) (*model.StudentDashboard, error) {
	data, err := s.store.GetStudentSummary(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("student summary: %w", err)
	}

	recent, err := s.store.GetRecentAttempts(ctx, &studentID, recentAttemptsLimit)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}

	data.AveragePercentage = roundTenth(data.AveragePercentage)
	data.RecentAttempts = withPercentages(recent)
	return data, nil
}

// GetAdminDashboard returns the platform-wide stat cards and latest attempts.
func (s *DashboardService) GetAdminDashboard(ctx context.Context) (*model.AdminDashboard, error) {
	data, err := s.store.GetAdminSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin summary: %w", err)
	}

	recent, err := s.store.GetRecentAttempts(ctx, nil, recentAttemptsLimit)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}

	data.RecentAttempts = withPercentages(recent)
	return data, nil
}

// withPercentages fills Percentage on scored attempts.
func withPercentages(attempts []model.RecentAttempt) []model.RecentAttempt {
	for i := range attempts {
		if score := attempts[i].Score; score != nil {
			p := grading.Percentage(*score, attempts[i].TotalMarks)
			attempts[i].Percentage = &p
		}
	}
	return attempts
}
