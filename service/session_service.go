package service

import (
	"context"
	"fmt"

	"github.com/layer-3/keeper/core"
	"github.com/layer-3/keeper/ports"
	"go.uber.org/zap"
)

const (
	reasonLogout  = "logout"
	reasonRotated = "rotated"
)

// SessionService issues, verifies and rotates session token pairs
type SessionService struct {
	tokenizer ports.Tokenizer
	ledger    ports.Ledger
	eventPub  ports.EventPublisher
	logger    *zap.Logger
}

// NewSessionService creates a new session service
func NewSessionService(
	tokenizer ports.Tokenizer,
	ledger ports.Ledger,
	eventPub ports.EventPublisher,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		tokenizer: tokenizer,
		ledger:    ledger,
		eventPub:  eventPub,
		logger:    logger.Named("session"),
	}
}

// Open mints an access and refresh token pair for subject and records it
func (s *SessionService) Open(ctx context.Context, subject string) (core.SessionPackage, error) {
	pkg, record, err := s.mintPair(subject)
	if err != nil {
		return core.SessionPackage{}, err
	}

	if err := s.ledger.StartSession(ctx, record); err != nil {
		return core.SessionPackage{}, fmt.Errorf("failed to start session: %w", err)
	}

	s.logger.Debug("session opened", zap.String("subject", subject))
	return pkg, nil
}

// VerifyAccess checks an access token cryptographically and against the ledger.
// It returns the token claims when both checks pass.
func (s *SessionService) VerifyAccess(ctx context.Context, access string) (core.Claims, error) {
	claims, err := s.tokenizer.Verify(core.DomainAccess, access)
	if err != nil {
		return core.Claims{}, err
	}

	open, err := s.ledger.IsOpen(ctx, access)
	if err != nil {
		return core.Claims{}, fmt.Errorf("failed to check session: %w", err)
	}
	if !open {
		return core.Claims{}, fmt.Errorf("session is closed: %w", core.ErrTokenInvalid)
	}

	return claims, nil
}

// CheckPair reports whether access and refresh were issued together and are still open
func (s *SessionService) CheckPair(ctx context.Context, access, refresh string) (bool, error) {
	ok, err := s.ledger.CheckTuple(ctx, access, refresh)
	if err != nil {
		return false, fmt.Errorf("failed to check session tuple: %w", err)
	}
	return ok, nil
}

// Rotate retires the session of refresh and opens a new one for the subject
// carried by access. A refresh token can be rotated once.
func (s *SessionService) Rotate(ctx context.Context, access, refresh string) (core.SessionPackage, error) {
	if _, err := s.tokenizer.Verify(core.DomainRefresh, refresh); err != nil {
		return core.SessionPackage{}, err
	}

	refreshable, err := s.ledger.IsRefreshable(ctx, refresh)
	if err != nil {
		return core.SessionPackage{}, fmt.Errorf("failed to check session: %w", err)
	}
	if !refreshable {
		return core.SessionPackage{}, fmt.Errorf("refresh token already used: %w", core.ErrTokenInvalid)
	}

	// The refresh token has been verified above; the access token only
	// names whose session this is.
	claims, err := s.tokenizer.Decode(access)
	if err != nil {
		return core.SessionPackage{}, err
	}

	pkg, record, err := s.mintPair(claims.Subject)
	if err != nil {
		return core.SessionPackage{}, err
	}

	// Losing a concurrent rotation surfaces here as ErrTokenInvalid
	if err := s.ledger.Rotate(ctx, refresh, record); err != nil {
		return core.SessionPackage{}, fmt.Errorf("failed to rotate session: %w", err)
	}

	s.publishClosed(ctx, claims.Subject, reasonRotated)
	return pkg, nil
}

// Close ends the session of a token pair
func (s *SessionService) Close(ctx context.Context, access, refresh string) error {
	ok, err := s.CheckPair(ctx, access, refresh)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tokens do not belong to an open session: %w", core.ErrTokenInvalid)
	}

	if err := s.ledger.CloseSession(ctx, refresh); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	if subject, err := s.SubjectOf(access); err == nil {
		s.publishClosed(ctx, subject, reasonLogout)
	}
	return nil
}

// SubjectOf returns the subject embedded in a token without verifying it
func (s *SessionService) SubjectOf(token string) (string, error) {
	claims, err := s.tokenizer.Decode(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *SessionService) mintPair(subject string) (core.SessionPackage, core.SessionRecord, error) {
	access, accessClaims, err := s.tokenizer.Mint(core.DomainAccess, subject)
	if err != nil {
		return core.SessionPackage{}, core.SessionRecord{}, fmt.Errorf("failed to create access token: %w", err)
	}

	refresh, refreshClaims, err := s.tokenizer.Mint(core.DomainRefresh, subject)
	if err != nil {
		return core.SessionPackage{}, core.SessionRecord{}, fmt.Errorf("failed to create refresh token: %w", err)
	}

	pkg := core.SessionPackage{
		Access:    access,
		Refresh:   refresh,
		ExpiresAt: accessClaims.ExpiresAt,
	}
	record := core.SessionRecord{
		Access:           access,
		Refresh:          refresh,
		Subject:          subject,
		RefreshExpiresAt: refreshClaims.ExpiresAt,
		State:            core.SessionOpen,
	}
	return pkg, record, nil
}

// publishClosed notifies other instances. The ledger is already updated,
// so a failed publish is logged and does not fail the operation.
func (s *SessionService) publishClosed(ctx context.Context, subject, reason string) {
	if err := s.eventPub.PublishSessionClosed(ctx, subject, reason); err != nil {
		s.logger.Warn("failed to publish session closed event",
			zap.String("subject", subject),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}
