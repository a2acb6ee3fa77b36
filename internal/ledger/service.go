package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storybook-server/shared/interfaces"
	"storybook-server/shared/logger"
	"storybook-server/shared/models"
)

const signupReference = "signup"

// Service - журнал кредитов. Баланс выводится из суммы транзакций, записи только добавляются.
type Service struct {
	repo        interfaces.CreditRepository
	signupBonus int64
	logger      *zap.Logger
}

// NewService создает сервис кредитов. signupBonus > 0 начисляется один раз при первом обращении к балансу.
func NewService(repo interfaces.CreditRepository, signupBonus int64, log *zap.Logger) *Service {
	return &Service{repo: repo, signupBonus: signupBonus, logger: log.Named("LedgerService")}
}

// Debit списывает amount. При нехватке баланса транзакция не пишется и возвращается ErrInsufficientCredits.
func (s *Service) Debit(ctx context.Context, userID string, amount int64, reason models.CreditReason, ref *string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: debit %d", models.ErrInvalidAmount, amount)
	}
	if reason.IsEarn() {
		return nil, fmt.Errorf("%w: reason %s is not a spend reason", models.ErrInvalidField, reason)
	}
	tx, balance, err := s.repo.Apply(ctx, userID, -amount, reason, ref)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) {
			s.logger.Info("Debit rejected: insufficient credits",
				logger.UserField(userID), zap.Int64("amount", amount), zap.String("reason", string(reason)))
		}
		return nil, err
	}
	s.logger.Info("Credits debited",
		logger.UserField(userID),
		zap.Int64("amount", amount),
		zap.String("reason", string(reason)),
		zap.Int64("balance", balance))
	return tx, nil
}

// Credit начисляет amount. Повтор с той же ссылкой и причиной дает ErrDuplicateTransaction.
func (s *Service) Credit(ctx context.Context, userID string, amount int64, reason models.CreditReason, ref *string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit %d", models.ErrInvalidAmount, amount)
	}
	if !reason.IsEarn() {
		return nil, fmt.Errorf("%w: reason %s is not an earn reason", models.ErrInvalidField, reason)
	}
	tx, balance, err := s.repo.Apply(ctx, userID, amount, reason, ref)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Credits added",
		logger.UserField(userID),
		zap.Int64("amount", amount),
		zap.String("reason", string(reason)),
		zap.Int64("balance", balance))
	return tx, nil
}

// Refund возвращает списание за историю, которая не была создана. Повторный возврат не удваивается.
func (s *Service) Refund(ctx context.Context, userID string, amount int64, ref *string) error {
	_, err := s.Credit(ctx, userID, amount, models.ReasonStoryRefund, ref)
	if errors.Is(err, models.ErrDuplicateTransaction) {
		s.logger.Warn("Refund already recorded", logger.UserField(userID))
		return nil
	}
	return err
}

// GetAccount возвращает счет, предварительно начислив бонус за регистрацию.
func (s *Service) GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error) {
	s.ensureSignupBonus(ctx, userID)
	return s.repo.GetAccount(ctx, userID)
}

// GetBalance возвращает текущий баланс.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	acc, err := s.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Transactions возвращает страницу журнала, новые записи первыми.
func (s *Service) Transactions(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}

// Grant - административное начисление (покупка, компенсация).
func (s *Service) Grant(ctx context.Context, userID string, amount int64, reason models.CreditReason, ref *string) (*models.CreditTransaction, error) {
	if reason == "" {
		reason = models.ReasonAdminGrant
	}
	return s.Credit(ctx, userID, amount, reason, ref)
}

func (s *Service) ensureSignupBonus(ctx context.Context, userID string) {
	if s.signupBonus <= 0 {
		return
	}
	ref := signupReference
	_, _, err := s.repo.Apply(ctx, userID, s.signupBonus, models.ReasonSignupBonus, &ref)
	switch {
	case err == nil:
		s.logger.Info("Signup bonus granted", logger.UserField(userID), zap.Int64("amount", s.signupBonus))
	case errors.Is(err, models.ErrDuplicateTransaction):
	default:
		s.logger.Warn("Failed to grant signup bonus", logger.UserField(userID), zap.Error(err))
	}
}
