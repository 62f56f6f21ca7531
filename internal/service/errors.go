package service

import "errors"

// Attempt lifecycle errors. Handlers map these to response codes.
var (
	ErrQuizUnavailable  = errors.New("quiz is not active or outside its scheduled window")
	ErrAlreadyCompleted = errors.New("quiz already completed")
	ErrInvalidAttempt   = errors.New("invalid or already submitted attempt")
	ErrInvalidOption    = errors.New("option does not belong to this question")
	ErrSessionActive    = errors.New("attempt already has an active session")
	ErrNotFound         = errors.New("resource not found")
)
