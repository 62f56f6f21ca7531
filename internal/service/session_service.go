package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"golang.org/x/crypto/blake2b"
)

const (
	sessionTokenBytes = 32
	// revokedSession marks a just-ended session. It blocks cache heals
	// that read the row before it was deactivated.
	revokedSession    = "revoked"
	revokedSessionTTL = time.Minute
)

// SessionService binds an attempt to the single browser tab that started it.
// Raw tokens are returned to the client once; only their BLAKE2b-256 hash
// is stored in Postgres and cached in Redis.
type SessionService struct {
	store SessionStore
	rdb   *redis.Client
	bus   *EventBus
	ttl   time.Duration
	log   zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(store SessionStore, rdb *redis.Client, bus *EventBus, cfg *config.Config, log zerolog.Logger) *SessionService {
	return &SessionService{
		store: store,
		rdb:   rdb,
		bus:   bus,
		ttl:   cfg.SessionCacheTTL,
		log:   log.With().Str("component", "session_guard").Logger(),
	}
}

// newSessionToken returns 32 random bytes hex-encoded.
func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashSessionToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func wellFormedToken(token string) bool {
	if len(token) != sessionTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// cached value layout: "<student_id>:<token_hash>"
func encodeSessionCache(studentID uuid.UUID, hash string) string {
	return studentID.String() + ":" + hash
}

func decodeSessionCache(v string) (uuid.UUID, string, bool) {
	sid, hash, ok := strings.Cut(v, ":")
	if !ok {
		return uuid.Nil, "", false
	}
	id, err := uuid.Parse(sid)
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, hash, true
}

// Issue creates the active session for an attempt and returns the raw token.
// It fails with ErrSessionActive if the attempt already has one.
func (s *SessionService) Issue(ctx context.Context, studentID, quizID, attemptID uuid.UUID) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}
	hash := hashSessionToken(token)

	sess := &model.ActiveSession{
		StudentID: studentID,
		QuizID:    quizID,
		AttemptID: attemptID,
		TokenHash: hash,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		if errors.Is(err, repository.ErrSessionConflict) {
			return "", ErrSessionActive
		}
		return "", fmt.Errorf("create session: %w", err)
	}

	key := config.CacheKey.AttemptSessionKey(attemptID.String())
	if err := s.rdb.Set(ctx, key, encodeSessionCache(studentID, hash), s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to cache session")
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("student_id", studentID.String()).
		Msg("Session issued")

	return token, nil
}

// Validate reports whether token is the active session of the attempt for
// studentID. Every mismatch is reported as invalid, never as an error.
func (s *SessionService) Validate(ctx context.Context, attemptID, studentID uuid.UUID, token string) (bool, error) {
	if !wellFormedToken(token) {
		return false, nil
	}

	owner, storedHash, found, err := s.lookup(ctx, attemptID)
	if err != nil {
		return false, err
	}
	if !found || owner != studentID {
		return false, nil
	}

	hash := hashSessionToken(token)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(storedHash)) == 1, nil
}

// lookup reads the active session from Redis, falling back to Postgres on a
// miss or a Redis failure and healing the cache.
func (s *SessionService) lookup(ctx context.Context, attemptID uuid.UUID) (uuid.UUID, string, bool, error) {
	key := config.CacheKey.AttemptSessionKey(attemptID.String())

	val, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil && val == revokedSession:
	case err == nil:
		if owner, hash, ok := decodeSessionCache(val); ok {
			return owner, hash, true, nil
		}
		s.log.Warn().Str("attempt_id", attemptID.String()).Msg("Malformed session cache entry")
	case errors.Is(err, redis.Nil):
	default:
		s.log.Warn().Err(err).Msg("Redis error reading session, falling back to database")
	}

	sess, err := s.store.FindActive(ctx, attemptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, "", false, nil
	}
	if err != nil {
		return uuid.Nil, "", false, fmt.Errorf("find session: %w", err)
	}

	// NX: a revocation written after the read above must win.
	_ = s.rdb.SetNX(ctx, key, encodeSessionCache(sess.StudentID, sess.TokenHash), s.ttl).Err()

	return sess.StudentID, sess.TokenHash, true, nil
}

// Deactivate ends every active session of the attempt. Repeated calls are no-ops.
func (s *SessionService) Deactivate(ctx context.Context, attemptID uuid.UUID) error {
	n, err := s.store.DeactivateByAttempt(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	s.Forget(ctx, attemptID)

	if n > 0 {
		s.log.Info().Str("attempt_id", attemptID.String()).Int64("sessions", n).Msg("Session deactivated")
	}
	return nil
}

// Forget replaces the cached session of an attempt with a short-lived
// revocation marker. Call it after the session rows were deactivated.
func (s *SessionService) Forget(ctx context.Context, attemptID uuid.UUID) {
	key := config.CacheKey.AttemptSessionKey(attemptID.String())
	if err := s.rdb.Set(ctx, key, revokedSession, revokedSessionTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to drop session cache")
	}
}

// Touch records session activity. The write is queued, not synchronous.
func (s *SessionService) Touch(ctx context.Context, attemptID uuid.UUID) {
	s.bus.EnqueueActivity(ctx, attemptID, time.Now().UTC())
}
