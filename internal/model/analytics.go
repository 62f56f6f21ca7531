package model

import "github.com/google/uuid"

// QuizAnalytics aggregates submitted attempts for one quiz.
type QuizAnalytics struct {
	QuizID             uuid.UUID           `json:"quiz_id"`
	Title              string              `json:"title"`
	TotalAttempts      int64               `json:"total_attempts"`
	PassedAttempts     int64               `json:"passed_attempts"`
	InProgress         int64               `json:"in_progress"`
	TotalMarks         int                 `json:"total_marks"`
	PassRate           float64             `json:"pass_rate"`
	AverageScore       float64             `json:"average_score"`
	AverageTimeSeconds float64             `json:"average_time_seconds"`
	RequiredToPass     int                 `json:"required_to_pass"`
	Questions          []QuestionAnalytics `json:"questions"`
}

// QuestionAnalytics is the per-question correctness rate.
type QuestionAnalytics struct {
	QuestionID     uuid.UUID `json:"question_id"`
	QuestionText   string    `json:"question_text"`
	Marks          int       `json:"marks"`
	TotalAnswers   int64     `json:"total_answers"`
	CorrectAnswers int64     `json:"correct_answers"`
	CorrectRate    float64   `json:"correct_rate"`
}
