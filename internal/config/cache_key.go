package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptSessionKey holds the hash of the active session token for an attempt.
func (r *CacheKeyStruct) AttemptSessionKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:session", attemptID)
}

// QuizPaperKey holds the student-facing quiz paper (no correctness flags).
func (r *CacheKeyStruct) QuizPaperKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:paper", quizID)
}

// QuizMonitorChannel returns the Redis PubSub channel name for a quiz monitor.
func (r *CacheKeyStruct) QuizMonitorChannel(quizID string) string {
	return fmt.Sprintf("quiz:%s:monitor", quizID)
}

var CacheKey = NewCacheKeyStruct()
