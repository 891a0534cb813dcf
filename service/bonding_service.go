package service

import (
	"context"
	"fmt"

	"github.com/layer-3/keeper/core"
	"github.com/layer-3/keeper/ports"
	"go.uber.org/zap"
)

// BondingService runs the pairing protocol between a patient and a keeper
type BondingService struct {
	tokenizer ports.Tokenizer
	users     ports.UserStore
	eventPub  ports.EventPublisher
	maxBonds  int
	logger    *zap.Logger
}

// NewBondingService creates a new bonding service
func NewBondingService(
	tokenizer ports.Tokenizer,
	users ports.UserStore,
	eventPub ports.EventPublisher,
	maxBonds int,
	logger *zap.Logger,
) *BondingService {
	return &BondingService{
		tokenizer: tokenizer,
		users:     users,
		eventPub:  eventPub,
		maxBonds:  maxBonds,
		logger:    logger.Named("bonding"),
	}
}

// IssueCode mints a short lived bonding code carrying the requester identity
func (s *BondingService) IssueCode(ctx context.Context, requester string) (string, error) {
	code, _, err := s.tokenizer.Mint(core.DomainBonding, requester)
	if err != nil {
		return "", fmt.Errorf("failed to create bonding code: %w", err)
	}
	return code, nil
}

// Redeem verifies a bonding code and bonds its requester with accepter
func (s *BondingService) Redeem(ctx context.Context, code, accepter string) error {
	claims, err := s.tokenizer.Verify(core.DomainBonding, code)
	if err != nil {
		return err
	}

	err = s.users.UpdateBond(ctx, claims.Subject, accepter, func(patient, keeper *core.User) error {
		return patient.BondWith(keeper, s.maxBonds)
	})
	if err != nil {
		return err
	}

	s.logger.Info("bond established",
		zap.String("patient", claims.Subject),
		zap.String("keeper", accepter),
	)
	if err := s.eventPub.PublishBondEstablished(ctx, claims.Subject, accepter); err != nil {
		s.logger.Warn("failed to publish bond event", zap.Error(err))
	}
	return nil
}

// Bonds lists the users bonded with subject: a patient's keepers or a
// keeper's cared patient
func (s *BondingService) Bonds(ctx context.Context, subject string) ([]core.User, error) {
	user, err := s.users.Get(ctx, subject)
	if err != nil {
		return nil, err
	}

	var ids []string
	switch user.Role {
	case core.RolePatient:
		ids = user.Bonds
	case core.RoleKeeper:
		if user.Cared != "" {
			ids = []string{user.Cared}
		}
	default:
		return nil, core.ErrUnauthorizedOperation
	}

	bonds := make([]core.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.users.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		bonds = append(bonds, u)
	}
	return bonds, nil
}

// ChooseRole lets a blank user become a patient or a keeper
func (s *BondingService) ChooseRole(ctx context.Context, subject string, role core.Role) error {
	if role != core.RolePatient && role != core.RoleKeeper {
		return core.ErrInvalidRole
	}

	user, err := s.users.Get(ctx, subject)
	if err != nil {
		return err
	}
	if user.Role != core.RoleBlank {
		return core.ErrUnauthorizedOperation
	}

	return s.users.SetRole(ctx, subject, role)
}
