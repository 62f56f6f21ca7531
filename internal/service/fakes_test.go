package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/grading"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/timekeeper"
)

// memDB is an in-memory stand-in for Postgres. Every method holds mu for its
// whole body, which gives the same atomicity the row locks give the real stores.
type memDB struct {
	mu        sync.Mutex
	quizzes   map[uuid.UUID]*model.Quiz
	questions map[uuid.UUID]*model.Question
	options   map[uuid.UUID]*model.Option
	attempts  map[uuid.UUID]*model.Attempt
	answers   map[uuid.UUID]map[uuid.UUID]*model.Answer // attempt → question → answer
	sessions  []*model.ActiveSession
	certs     map[uuid.UUID]*model.Certificate // by attempt

	// certCreateErr, when set, fails every certificate insert.
	certCreateErr error
	// beforeCreate runs inside Create before the uniqueness check.
	beforeCreate func(a *model.Attempt)
}

func newMemDB() *memDB {
	return &memDB{
		quizzes:   make(map[uuid.UUID]*model.Quiz),
		questions: make(map[uuid.UUID]*model.Question),
		options:   make(map[uuid.UUID]*model.Option),
		attempts:  make(map[uuid.UUID]*model.Attempt),
		answers:   make(map[uuid.UUID]map[uuid.UUID]*model.Answer),
		certs:     make(map[uuid.UUID]*model.Certificate),
	}
}

type seededQuestion struct {
	ID      uuid.UUID
	Correct uuid.UUID
	Wrong   uuid.UUID
}

// seedQuiz adds an active quiz with one question per entry in marks. Each
// question has one correct and one wrong option.
func (db *memDB) seedQuiz(durationMinutes int, marks ...int) (*model.Quiz, []seededQuestion) {
	db.mu.Lock()
	defer db.mu.Unlock()

	q := &model.Quiz{
		ID:              uuid.New(),
		Title:           "Quiz",
		DurationMinutes: durationMinutes,
		IsActive:        true,
	}
	var seeded []seededQuestion
	for i, m := range marks {
		question := &model.Question{ID: uuid.New(), QuizID: q.ID, QuestionText: "Q", QuestionType: model.QuestionTypeMultipleChoice, Marks: m, OrderNumber: i + 1}
		correct := &model.Option{ID: uuid.New(), QuestionID: question.ID, OptionText: "right", IsCorrect: true, OrderNumber: 1}
		wrong := &model.Option{ID: uuid.New(), QuestionID: question.ID, OptionText: "wrong", OrderNumber: 2}
		db.questions[question.ID] = question
		db.options[correct.ID] = correct
		db.options[wrong.ID] = wrong
		q.TotalMarks += m
		seeded = append(seeded, seededQuestion{ID: question.ID, Correct: correct.ID, Wrong: wrong.ID})
	}
	db.quizzes[q.ID] = q
	return q, seeded
}

func (db *memDB) attempt(id uuid.UUID) model.Attempt {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.attempts[id]
}

func (db *memDB) certCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.certs)
}

// ─── QuizStore ─────────────────────────────────────────────────────────

type fakeQuizzes struct{ db *memDB }

func (f *fakeQuizzes) GetByID(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	q, ok := f.db.quizzes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *q
	return &cp, nil
}

func (f *fakeQuizzes) ListActive(_ context.Context) ([]model.Quiz, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Quiz
	for _, q := range f.db.quizzes {
		if q.IsActive {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeQuizzes) GetPaper(_ context.Context, quizID uuid.UUID) (*model.QuizPaper, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	q, ok := f.db.quizzes[quizID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	paper := &model.QuizPaper{QuizID: q.ID, Title: q.Title, DurationMinutes: q.DurationMinutes, TotalMarks: q.TotalMarks}
	for _, question := range f.db.questions {
		if question.QuizID != quizID {
			continue
		}
		pq := model.PaperQuestion{ID: question.ID, QuestionText: question.QuestionText, QuestionType: question.QuestionType, Marks: question.Marks, OrderNumber: question.OrderNumber}
		for _, o := range f.db.options {
			if o.QuestionID == question.ID {
				pq.Options = append(pq.Options, model.PaperOption{ID: o.ID, OptionText: o.OptionText, OrderNumber: o.OrderNumber})
			}
		}
		sort.Slice(pq.Options, func(i, j int) bool { return pq.Options[i].OrderNumber < pq.Options[j].OrderNumber })
		paper.Questions = append(paper.Questions, pq)
	}
	sort.Slice(paper.Questions, func(i, j int) bool { return paper.Questions[i].OrderNumber < paper.Questions[j].OrderNumber })
	return paper, nil
}

// ─── AttemptStore ──────────────────────────────────────────────────────

type fakeAttempts struct{ db *memDB }

func (f *fakeAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttempts) GetByQuizAndStudent(_ context.Context, quizID, studentID uuid.UUID) (*model.Attempt, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, a := range f.db.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAttempts) Create(_ context.Context, a *model.Attempt) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.beforeCreate != nil {
		f.db.beforeCreate(a)
	}
	for _, existing := range f.db.attempts {
		if existing.QuizID == a.QuizID && existing.StudentID == a.StudentID {
			return pgx.ErrNoRows
		}
	}
	a.ID = uuid.New()
	a.Status = model.AttemptStatusInProgress
	cp := *a
	f.db.attempts[a.ID] = &cp
	return nil
}

func (f *fakeAttempts) guard(attemptID, studentID uuid.UUID) (*model.Attempt, error) {
	a, ok := f.db.attempts[attemptID]
	if !ok || a.StudentID != studentID || a.Status != model.AttemptStatusInProgress {
		return nil, repository.ErrAttemptNotActive
	}
	return a, nil
}

func (f *fakeAttempts) UpsertAnswer(_ context.Context, attemptID, studentID, questionID, optionID uuid.UUID) (*model.Attempt, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, err := f.guard(attemptID, studentID)
	if err != nil {
		return nil, err
	}
	o, ok := f.db.options[optionID]
	q, qok := f.db.questions[questionID]
	if !ok || !qok || o.QuestionID != questionID || q.QuizID != a.QuizID {
		return nil, repository.ErrOptionMismatch
	}
	if f.db.answers[attemptID] == nil {
		f.db.answers[attemptID] = make(map[uuid.UUID]*model.Answer)
	}
	isCorrect := o.IsCorrect
	f.db.answers[attemptID][questionID] = &model.Answer{
		ID: uuid.New(), AttemptID: attemptID, QuestionID: questionID,
		SelectedOptionID: &optionID, IsCorrect: &isCorrect, AnsweredAt: time.Now(),
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttempts) Submit(_ context.Context, attemptID, studentID uuid.UUID, passPercent int, now time.Time) (*model.AttemptSubmission, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, err := f.guard(attemptID, studentID)
	if err != nil {
		return nil, err
	}

	score := 0
	for qid, an := range f.db.answers[attemptID] {
		if an.IsCorrect != nil && *an.IsCorrect {
			score += f.db.questions[qid].Marks
		}
	}
	passed := grading.Passed(score, a.TotalMarks, passPercent)
	taken := timekeeper.ElapsedSeconds(a.StartedAt, now)

	a.Status = model.AttemptStatusSubmitted
	a.Score = &score
	a.Passed = &passed
	a.SubmittedAt = &now
	a.TimeTakenSeconds = &taken

	for _, s := range f.db.sessions {
		if s.AttemptID == attemptID {
			s.IsActive = false
		}
	}

	return &model.AttemptSubmission{
		AttemptID: a.ID, QuizID: a.QuizID, StudentID: a.StudentID,
		Score: score, TotalMarks: a.TotalMarks,
		RequiredToPass: grading.RequiredToPass(a.TotalMarks, passPercent),
		Passed:         passed, SubmittedAt: now, TimeTakenSeconds: taken,
	}, nil
}

func (f *fakeAttempts) ListAnswers(_ context.Context, attemptID uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := make(map[uuid.UUID]uuid.UUID)
	for qid, an := range f.db.answers[attemptID] {
		if an.SelectedOptionID != nil {
			out[qid] = *an.SelectedOptionID
		}
	}
	return out, nil
}

func (f *fakeAttempts) ListByStudent(_ context.Context, studentID uuid.UUID) ([]model.AttemptSummary, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.AttemptSummary
	for _, a := range f.db.attempts {
		if a.StudentID != studentID {
			continue
		}
		s := model.AttemptSummary{Attempt: *a, QuizTitle: f.db.quizzes[a.QuizID].Title}
		if c, ok := f.db.certs[a.ID]; ok {
			n := c.CertificateNumber
			s.CertificateNumber = &n
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeAttempts) ListByQuiz(_ context.Context, quizID uuid.UUID, page, perPage int, status *model.AttemptStatus) ([]model.QuizResult, int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.QuizResult
	for _, a := range f.db.attempts {
		if a.QuizID != quizID || (status != nil && a.Status != *status) {
			continue
		}
		out = append(out, model.QuizResult{
			AttemptID: a.ID, StudentID: a.StudentID, Status: a.Status, Score: a.Score,
			TotalMarks: a.TotalMarks, Passed: a.Passed, StartedAt: a.StartedAt,
			SubmittedAt: a.SubmittedAt, TimeTakenSeconds: a.TimeTakenSeconds,
		})
	}
	total := int64(len(out))
	start := (page - 1) * perPage
	if start >= len(out) {
		return nil, total, nil
	}
	return out[start:min(start+perPage, len(out))], total, nil
}

func (f *fakeAttempts) ListExpired(_ context.Context, grace time.Duration, now time.Time, limit int) ([]model.ExpiredAttempt, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.ExpiredAttempt
	for _, a := range f.db.attempts {
		if a.Status != model.AttemptStatusInProgress {
			continue
		}
		deadline := timekeeper.Deadline(a.StartedAt, f.db.quizzes[a.QuizID].DurationMinutes).Add(grace)
		if now.After(deadline) && len(out) < limit {
			out = append(out, model.ExpiredAttempt{AttemptID: a.ID, QuizID: a.QuizID, StudentID: a.StudentID})
		}
	}
	return out, nil
}

// ─── SessionStore ──────────────────────────────────────────────────────

type fakeSessions struct{ db *memDB }

func (f *fakeSessions) Create(_ context.Context, s *model.ActiveSession) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.sessions {
		if existing.AttemptID == s.AttemptID && existing.IsActive {
			return repository.ErrSessionConflict
		}
	}
	s.ID = uuid.New()
	s.IsActive = true
	s.CreatedAt = time.Now()
	s.LastActivity = s.CreatedAt
	cp := *s
	f.db.sessions = append(f.db.sessions, &cp)
	return nil
}

func (f *fakeSessions) FindActive(_ context.Context, attemptID uuid.UUID) (*model.ActiveSession, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, s := range f.db.sessions {
		if s.AttemptID == attemptID && s.IsActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessions) DeactivateByAttempt(_ context.Context, attemptID uuid.UUID) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for _, s := range f.db.sessions {
		if s.AttemptID == attemptID && s.IsActive {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

// ─── CertificateStore ──────────────────────────────────────────────────

type fakeCerts struct{ db *memDB }

func (f *fakeCerts) ExistsForAttempt(_ context.Context, attemptID uuid.UUID) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	_, ok := f.db.certs[attemptID]
	return ok, nil
}

func (f *fakeCerts) Create(_ context.Context, c *model.Certificate) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.certCreateErr != nil {
		return false, f.db.certCreateErr
	}
	if _, ok := f.db.certs[c.AttemptID]; ok {
		return false, nil
	}
	for _, existing := range f.db.certs {
		if existing.CertificateNumber == c.CertificateNumber {
			return false, repository.ErrCertificateNumberTaken
		}
	}
	c.ID = uuid.New()
	c.IssuedAt = time.Now()
	cp := *c
	f.db.certs[c.AttemptID] = &cp
	return true, nil
}

func (f *fakeCerts) view(c *model.Certificate) *model.CertificateView {
	return &model.CertificateView{Certificate: *c, QuizTitle: f.db.quizzes[c.QuizID].Title}
}

func (f *fakeCerts) GetByAttempt(_ context.Context, attemptID uuid.UUID) (*model.CertificateView, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.certs[attemptID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return f.view(c), nil
}

func (f *fakeCerts) GetByNumber(_ context.Context, number string) (*model.CertificateView, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, c := range f.db.certs {
		if c.CertificateNumber == number {
			return f.view(c), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeCerts) ListByStudent(_ context.Context, studentID uuid.UUID) ([]model.CertificateView, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.CertificateView
	for _, c := range f.db.certs {
		if c.StudentID == studentID {
			out = append(out, *f.view(c))
		}
	}
	return out, nil
}

func (f *fakeCerts) ListPending(_ context.Context, limit int) ([]model.PendingCertificate, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.PendingCertificate
	for _, a := range f.db.attempts {
		if a.Status != model.AttemptStatusSubmitted || a.Passed == nil || !*a.Passed {
			continue
		}
		if _, ok := f.db.certs[a.ID]; ok || len(out) >= limit {
			continue
		}
		out = append(out, model.PendingCertificate{AttemptID: a.ID, StudentID: a.StudentID, QuizID: a.QuizID, Score: *a.Score, TotalMarks: a.TotalMarks})
	}
	return out, nil
}

// ─── Harness ───────────────────────────────────────────────────────────

type harness struct {
	db           *memDB
	mr           *miniredis.Miniredis
	rdb          *redis.Client
	attempts     *AttemptService
	sessions     *SessionService
	certificates *CertificateService
	quizzes      *QuizService
}

func testConfig() *config.Config {
	return &config.Config{
		PassPercent:          grading.DefaultPassPercent,
		ProctorMaxViolations: 3,
		CertificatePrefix:    "MCCS-QUIZ",
		SessionCacheTTL:      10 * time.Minute,
		PaperCacheTTL:        time.Minute,
		DeadlineGrace:        30 * time.Second,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	log := zerolog.Nop()
	db := newMemDB()

	bus := NewEventBus(rdb, log)
	sessions := NewSessionService(&fakeSessions{db}, rdb, bus, cfg, log)
	certificates := NewCertificateService(&fakeCerts{db}, cfg, log)
	quizzes := NewQuizService(&fakeQuizzes{db}, &fakeAttempts{db}, rdb, cfg, log)
	attempts := NewAttemptService(&fakeQuizzes{db}, &fakeAttempts{db}, sessions, certificates, quizzes, bus, cfg, log)

	return &harness{
		db:           db,
		mr:           mr,
		rdb:          rdb,
		attempts:     attempts,
		sessions:     sessions,
		certificates: certificates,
		quizzes:      quizzes,
	}
}
