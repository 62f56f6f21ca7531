package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

func TestSessionService_Validate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student, quiz, attempt := uuid.New(), uuid.New(), uuid.New()

	token, err := h.sessions.Issue(ctx, student, quiz, attempt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name      string
		attemptID uuid.UUID
		studentID uuid.UUID
		token     string
		want      bool
	}{
		{"matching token", attempt, student, token, true},
		{"other token", attempt, student, strings.Repeat("ab", 32), false},
		{"other student", attempt, uuid.New(), token, false},
		{"other attempt", uuid.New(), student, token, false},
		{"empty token", attempt, student, "", false},
		{"too short", attempt, student, token[:10], false},
		{"not hex", attempt, student, strings.Repeat("zz", 32), false},
		{"uppercased", attempt, student, strings.ToUpper(token), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.sessions.Validate(ctx, tt.attemptID, tt.studentID, tt.token)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionService_StoresOnlyHash(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	attempt := uuid.New()

	token, err := h.sessions.Issue(ctx, uuid.New(), uuid.New(), attempt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	sess, err := (&fakeSessions{h.db}).FindActive(ctx, attempt)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if sess.TokenHash == token || sess.TokenHash != hashSessionToken(token) {
		t.Errorf("stored hash %q does not match BLAKE2b of the issued token", sess.TokenHash)
	}

	cached, err := h.mr.Get(config.CacheKey.AttemptSessionKey(attempt.String()))
	if err != nil {
		t.Fatalf("cache entry: %v", err)
	}
	if strings.Contains(cached, token) {
		t.Error("raw token leaked into the cache")
	}
}

func TestSessionService_SecondIssueRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student, quiz, attempt := uuid.New(), uuid.New(), uuid.New()

	first, err := h.sessions.Issue(ctx, student, quiz, attempt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := h.sessions.Issue(ctx, student, quiz, attempt); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Issue: got %v, want ErrSessionActive", err)
	}
	if ok, _ := h.sessions.Validate(ctx, attempt, student, first); !ok {
		t.Error("first token invalidated by rejected second issue")
	}
}

func TestSessionService_Deactivate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student, attempt := uuid.New(), uuid.New()

	token, err := h.sessions.Issue(ctx, student, uuid.New(), attempt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := h.sessions.Deactivate(ctx, attempt); err != nil {
			t.Fatalf("Deactivate #%d: %v", i+1, err)
		}
	}
	if ok, err := h.sessions.Validate(ctx, attempt, student, token); err != nil || ok {
		t.Errorf("Validate after deactivate = %v, %v; want false, nil", ok, err)
	}
}

func TestSessionService_FallsBackToDatabase(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student, attempt := uuid.New(), uuid.New()
	key := config.CacheKey.AttemptSessionKey(attempt.String())

	token, err := h.sessions.Issue(ctx, student, uuid.New(), attempt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	t.Run("cache evicted", func(t *testing.T) {
		h.mr.FlushAll()
		ok, err := h.sessions.Validate(ctx, attempt, student, token)
		if err != nil || !ok {
			t.Fatalf("Validate = %v, %v; want true", ok, err)
		}
		if !h.mr.Exists(key) {
			t.Error("cache was not repopulated")
		}
	})

	t.Run("cache corrupted", func(t *testing.T) {
		if err := h.mr.Set(key, "garbage"); err != nil {
			t.Fatal(err)
		}
		ok, err := h.sessions.Validate(ctx, attempt, student, token)
		if err != nil || !ok {
			t.Fatalf("Validate = %v, %v; want true", ok, err)
		}
		if v, _ := h.mr.Get(key); v == "garbage" {
			t.Error("corrupt cache entry was not replaced")
		}
	})
}

// interleavedSessions runs afterRead once, between the database read of a
// cache miss and the cache heal that follows it.
type interleavedSessions struct {
	*fakeSessions
	afterRead func()
}

func (s *interleavedSessions) FindActive(ctx context.Context, attemptID uuid.UUID) (*model.ActiveSession, error) {
	sess, err := s.fakeSessions.FindActive(ctx, attemptID)
	if s.afterRead != nil {
		fn := s.afterRead
		s.afterRead = nil
		fn()
	}
	return sess, err
}

func TestSessionService_HealDoesNotResurrectEndedSession(t *testing.T) {
	tests := []struct {
		name string
		end  func(h *harness, attemptID, studentID uuid.UUID) error
	}{
		{"submit", func(h *harness, attemptID, studentID uuid.UUID) error {
			_, err := h.attempts.Submit(context.Background(), attemptID, studentID)
			return err
		}},
		{"admin reset", func(h *harness, attemptID, _ uuid.UUID) error {
			return h.attempts.ResetSession(context.Background(), attemptID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			quiz, _ := h.db.seedQuiz(30, 5)
			student := uuid.New()
			res := mustStart(t, h, student, quiz.ID)
			key := config.CacheKey.AttemptSessionKey(res.AttemptID.String())
			h.mr.Del(key)

			store := &interleavedSessions{fakeSessions: &fakeSessions{h.db}}
			store.afterRead = func() {
				if err := tt.end(h, res.AttemptID, student); err != nil {
					t.Errorf("end session: %v", err)
				}
			}
			guard := NewSessionService(store, h.rdb, NewEventBus(h.rdb, zerolog.Nop()), testConfig(), zerolog.Nop())

			// This read raced the end of the session; its answer is not checked.
			if _, err := guard.Validate(ctx, res.AttemptID, student, res.SessionToken); err != nil {
				t.Fatalf("Validate: %v", err)
			}

			if v, _ := h.mr.Get(key); v != revokedSession {
				t.Errorf("cache = %q, want revocation marker", v)
			}
			for _, svc := range []*SessionService{guard, h.sessions} {
				if ok, err := svc.Validate(ctx, res.AttemptID, student, res.SessionToken); err != nil || ok {
					t.Errorf("Validate after end = %v, %v; want false", ok, err)
				}
			}
		})
	}
}

func TestSessionService_IssueReplacesRevocation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	student, quiz, attempt := uuid.New(), uuid.New(), uuid.New()

	if _, err := h.sessions.Issue(ctx, student, quiz, attempt); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := h.sessions.Deactivate(ctx, attempt); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	token, err := h.sessions.Issue(ctx, student, quiz, attempt)
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if ok, err := h.sessions.Validate(ctx, attempt, student, token); err != nil || !ok {
		t.Errorf("Validate reissued token = %v, %v; want true", ok, err)
	}
}

func TestSessionService_TouchQueuesActivity(t *testing.T) {
	h := newHarness(t)
	h.sessions.Touch(context.Background(), uuid.New())
	h.sessions.Touch(context.Background(), uuid.New())

	items, err := h.mr.List(config.WorkerKey.SessionActivityQueue)
	if err != nil {
		t.Fatalf("activity queue: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("queue length = %d, want 2", len(items))
	}
}

func TestSessionCacheEncoding(t *testing.T) {
	student := uuid.New()
	hash := hashSessionToken("x")

	gotStudent, gotHash, ok := decodeSessionCache(encodeSessionCache(student, hash))
	if !ok || gotStudent != student || gotHash != hash {
		t.Errorf("round trip = %s, %s, %v", gotStudent, gotHash, ok)
	}

	for _, bad := range []string{"", "no-separator", "not-a-uuid:abc"} {
		if _, _, ok := decodeSessionCache(bad); ok {
			t.Errorf("decodeSessionCache(%q) accepted malformed input", bad)
		}
	}
}
