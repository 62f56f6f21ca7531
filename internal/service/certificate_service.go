package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/grading"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
)

const (
	certificateRandomBytes  = 16
	certificateRetries      = 3
	pendingCertificateBatch = 100
)

// CertificateService issues and serves completion certificates.
type CertificateService struct {
	store  CertificateStore
	prefix string
	now    func() time.Time
	log    zerolog.Logger
}

// NewCertificateService creates a new CertificateService.
func NewCertificateService(store CertificateStore, cfg *config.Config, log zerolog.Logger) *CertificateService {
	return &CertificateService{
		store:  store,
		prefix: cfg.CertificatePrefix,
		now:    time.Now,
		log:    log.With().Str("component", "certificate_issuer").Logger(),
	}
}

// NewCertificateNumber returns "<prefix>-<year>-<32 uppercase hex chars>".
func NewCertificateNumber(prefix string, year int) (string, error) {
	buf := make([]byte, certificateRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, year, strings.ToUpper(hex.EncodeToString(buf))), nil
}

// IssueIfAbsent creates the certificate of a passed attempt unless one exists.
// It returns the certificate number either way.
func (s *CertificateService) IssueIfAbsent(ctx context.Context, attemptID, studentID, quizID uuid.UUID, score, totalMarks int) (string, error) {
	exists, err := s.store.ExistsForAttempt(ctx, attemptID)
	if err != nil {
		return "", fmt.Errorf("check certificate: %w", err)
	}
	if exists {
		return s.existingNumber(ctx, attemptID)
	}

	for i := 0; i < certificateRetries; i++ {
		number, err := NewCertificateNumber(s.prefix, s.now().Year())
		if err != nil {
			return "", err
		}

		cert := &model.Certificate{
			AttemptID:         attemptID,
			StudentID:         studentID,
			QuizID:            quizID,
			CertificateNumber: number,
			Score:             score,
			TotalMarks:        totalMarks,
			Percentage:        grading.Percentage(score, totalMarks),
		}

		created, err := s.store.Create(ctx, cert)
		if errors.Is(err, repository.ErrCertificateNumberTaken) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create certificate: %w", err)
		}
		if !created {
			// Lost a race with a concurrent issuer.
			return s.existingNumber(ctx, attemptID)
		}

		s.log.Info().
			Str("attempt_id", attemptID.String()).
			Str("student_id", studentID.String()).
			Str("certificate_number", number).
			Int("percentage", cert.Percentage).
			Msg("Certificate issued")
		return number, nil
	}

	return "", fmt.Errorf("create certificate: %w", repository.ErrCertificateNumberTaken)
}

func (s *CertificateService) existingNumber(ctx context.Context, attemptID uuid.UUID) (string, error) {
	c, err := s.store.GetByAttempt(ctx, attemptID)
	if err != nil {
		return "", fmt.Errorf("get certificate: %w", err)
	}
	return c.CertificateNumber, nil
}

// IssuePending issues certificates for passed attempts that have none,
// repairing issuance that failed after a committed submission.
func (s *CertificateService) IssuePending(ctx context.Context) (int, error) {
	pending, err := s.store.ListPending(ctx, pendingCertificateBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending certificates: %w", err)
	}

	issued := 0
	for _, p := range pending {
		if _, err := s.IssueIfAbsent(ctx, p.AttemptID, p.StudentID, p.QuizID, p.Score, p.TotalMarks); err != nil {
			s.log.Error().Err(err).Str("attempt_id", p.AttemptID.String()).Msg("Pending certificate issuance failed")
			continue
		}
		issued++
	}
	return issued, nil
}

// ListForStudent returns the certificates of a student.
func (s *CertificateService) ListForStudent(ctx context.Context, studentID uuid.UUID) ([]model.CertificateView, error) {
	return s.store.ListByStudent(ctx, studentID)
}

// GetByNumber returns a certificate by its public number.
func (s *CertificateService) GetByNumber(ctx context.Context, number string) (*model.CertificateView, error) {
	c, err := s.store.GetByNumber(ctx, number)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	return c, nil
}
