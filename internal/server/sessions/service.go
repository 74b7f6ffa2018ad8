// Package sessions owns the lifecycle of an application session: creation
// with the uniqueness check on the applicant identity, the sliding resume
// window, the termination latch, and identity changes.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haulhq/driveronboard/internal/common"
	"github.com/haulhq/driveronboard/internal/cryptox"
	"github.com/haulhq/driveronboard/internal/server/auth"
	"github.com/haulhq/driveronboard/internal/server/config"
	"github.com/haulhq/driveronboard/internal/server/models"
	sessionrepo "github.com/haulhq/driveronboard/internal/server/repositories/sessions"
	"github.com/haulhq/driveronboard/internal/steps"
)

type Service struct {
	repo      sessionrepo.Repository
	order     *steps.Order
	resumeTTL time.Duration
	jwtSecret []byte
	pepper    []byte
	encKey    []byte

	// injectable for expiry tests
	now func() time.Time
}

func NewService(repo sessionrepo.Repository, cfg *config.Config) *Service {
	return &Service{
		repo:      repo,
		order:     steps.DefaultOrder(),
		resumeTTL: cfg.ResumeTTL,
		jwtSecret: []byte(cfg.ResumeTokenSecret),
		pepper:    []byte(cfg.IdentityPepper),
		encKey:    []byte(cfg.IdentityEncryptionKey),
		now:       time.Now,
	}
}

// Create starts a new session for the given applicant identity, or returns
// ErrDuplicateIdentity if an application for that identity already exists.
// The pre-write lookup gives the common case a clean answer; the unique
// index on the hash backs it up under concurrent creates.
func (s *Service) Create(ctx context.Context, identity string, company models.CompanyContext) (*models.Session, error) {
	hash := cryptox.HashIdentity(identity, s.pepper)

	_, err := s.repo.GetByIdentityHash(ctx, hash)
	if err == nil {
		return nil, common.ErrDuplicateIdentity
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("error checking identity: %w", err)
	}

	encrypted, nonce, err := cryptox.EncryptIdentity(identity, s.encKey)
	if err != nil {
		return nil, fmt.Errorf("error encrypting identity: %w", err)
	}

	session := &models.Session{
		ID:                uuid.NewString(),
		IdentityHash:      hash,
		IdentityEncrypted: encrypted,
		IdentityNonce:     nonce,
		Company:           company,
		Progress:          steps.Progress{CurrentStep: s.order.First()},
		ResumeExpiresAt:   s.now().Add(s.resumeTTL),
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, session *models.Session) error {
	return s.repo.Update(ctx, session)
}

// Resume exchanges a resume token for its live session. Expiry of either
// the token or the session's resume window yields ErrSessionExpired.
func (s *Service) Resume(ctx context.Context, token string) (*models.Session, error) {
	sessionID, err := auth.GetSessionIDFromToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.IsExpired(session) {
		return nil, common.ErrSessionExpired
	}

	return session, nil
}

func (s *Service) IssueResumeToken(session *models.Session) (string, error) {
	return auth.GenerateResumeToken(session.ID, s.jwtSecret, s.resumeTTL)
}

func (s *Service) IsExpired(session *models.Session) bool {
	return s.now().After(session.ResumeExpiresAt)
}

// Touch slides the resume window forward from now. Callers persist the
// session afterwards; Touch itself does not write.
func (s *Service) Touch(session *models.Session) {
	session.ResumeExpiresAt = s.now().Add(s.resumeTTL)
}

// Terminate flips the one-way termination latch and persists it. A second
// call is a no-op; the original reason is kept.
func (s *Service) Terminate(ctx context.Context, session *models.Session, reason string) error {
	if session.Terminated {
		return nil
	}

	now := s.now()
	session.Terminated = true
	session.TerminatedReason = reason
	session.TerminatedAt = &now

	return s.repo.Update(ctx, session)
}

// ChangeIdentity rebinds a session to a corrected identity value, keeping
// the uniqueness guarantee against all other sessions. Like any other
// session write it is refused once the resume window has elapsed or the
// session is terminated.
func (s *Service) ChangeIdentity(ctx context.Context, session *models.Session, identity string) error {
	if s.IsExpired(session) {
		return common.ErrSessionExpired
	}
	if session.Terminated {
		return common.ErrSessionTerminated
	}

	hash := cryptox.HashIdentity(identity, s.pepper)
	if hash == session.IdentityHash {
		return nil
	}

	other, err := s.repo.GetByIdentityHash(ctx, hash)
	if err == nil && other.ID != session.ID {
		return common.ErrDuplicateIdentity
	}
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("error checking identity: %w", err)
	}

	encrypted, nonce, err := cryptox.EncryptIdentity(identity, s.encKey)
	if err != nil {
		return fmt.Errorf("error encrypting identity: %w", err)
	}

	session.IdentityHash = hash
	session.IdentityEncrypted = encrypted
	session.IdentityNonce = nonce

	return s.repo.Update(ctx, session)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
