package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storybook-server/shared/interfaces"
	"storybook-server/shared/models"
)

var _ interfaces.CreditRepository = (*pgCreditRepository)(nil)

type pgCreditRepository struct {
	db     interfaces.TxBeginner
	logger *zap.Logger
}

func NewPgCreditRepository(db interfaces.TxBeginner, logger *zap.Logger) interfaces.CreditRepository {
	return &pgCreditRepository{
		db:     db,
		logger: logger.Named("PgCreditRepo"),
	}
}

const (
	getCreditAccountQuery = `
SELECT a.user_id,
       COALESCE((SELECT SUM(t.amount) FROM credit_transactions t WHERE t.user_id = a.user_id), 0)::BIGINT AS balance,
       a.lifetime_earned, a.lifetime_spent, a.created_at
FROM credit_accounts a
WHERE a.user_id = $1`

	ensureCreditAccountQuery = `INSERT INTO credit_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	lockCreditAccountQuery   = `SELECT user_id FROM credit_accounts WHERE user_id = $1 FOR UPDATE`
	sumCreditsQuery          = `SELECT COALESCE(SUM(amount), 0)::BIGINT FROM credit_transactions WHERE user_id = $1`
	creditRefExistsQuery     = `SELECT EXISTS (SELECT 1 FROM credit_transactions WHERE user_id = $1 AND reason = $2 AND reference = $3)`

	insertCreditTxQuery = `
INSERT INTO credit_transactions (id, user_id, amount, reason, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	updateLifetimeQuery = `
UPDATE credit_accounts
SET lifetime_earned = lifetime_earned + $2, lifetime_spent = lifetime_spent + $3, updated_at = NOW()
WHERE user_id = $1`

	listCreditTxQuery = `
SELECT id, user_id, amount, reason, reference, created_at
FROM credit_transactions
WHERE user_id = $1
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3`

	countCreditTxQuery = `SELECT COUNT(*) FROM credit_transactions WHERE user_id = $1`
)

func (r *pgCreditRepository) GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error) {
	var acc models.CreditAccount
	if err := pgxscan.Get(ctx, r.db, &acc, getCreditAccountQuery, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.CreditAccount{UserID: userID}, nil
		}
		r.logger.Error("Failed to get credit account", zap.String("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: get credit account: %v", models.ErrDatabase, err)
	}
	return &acc, nil
}

// Apply сериализует операции одного пользователя блокировкой строки счета,
// поэтому два параллельных списания не уведут баланс в минус.
func (r *pgCreditRepository) Apply(ctx context.Context, userID string, amount int64, reason models.CreditReason, reference *string) (*models.CreditTransaction, int64, error) {
	if amount == 0 {
		return nil, 0, models.ErrInvalidAmount
	}
	txRecord := &models.CreditTransaction{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	}
	var newBalance int64
	logFields := []zap.Field{
		zap.String("userID", userID),
		zap.Int64("amount", amount),
		zap.String("reason", string(reason)),
	}

	err := WithTransaction(ctx, r.db, r.logger, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureCreditAccountQuery, userID); err != nil {
			return fmt.Errorf("%w: ensure account: %v", models.ErrDatabase, err)
		}
		var locked string
		if err := tx.QueryRow(ctx, lockCreditAccountQuery, userID).Scan(&locked); err != nil {
			return fmt.Errorf("%w: lock account: %v", models.ErrDatabase, err)
		}

		if reference != nil {
			var exists bool
			if err := tx.QueryRow(ctx, creditRefExistsQuery, userID, string(reason), *reference).Scan(&exists); err != nil {
				return fmt.Errorf("%w: check reference: %v", models.ErrDatabase, err)
			}
			if exists {
				return models.ErrDuplicateTransaction
			}
		}

		var balance int64
		if err := tx.QueryRow(ctx, sumCreditsQuery, userID).Scan(&balance); err != nil {
			return fmt.Errorf("%w: sum balance: %v", models.ErrDatabase, err)
		}
		if amount < 0 && balance+amount < 0 {
			return fmt.Errorf("%w: balance %d, required %d", models.ErrInsufficientCredits, balance, -amount)
		}

		if _, err := tx.Exec(ctx, insertCreditTxQuery,
			txRecord.ID, userID, amount, string(reason), reference, txRecord.CreatedAt,
		); err != nil {
			if _, ok := uniqueViolation(err); ok {
				return models.ErrDuplicateTransaction
			}
			return fmt.Errorf("%w: insert transaction: %v", models.ErrDatabase, err)
		}

		var earned, spent int64
		if amount > 0 {
			earned = amount
		} else {
			spent = -amount
		}
		if _, err := tx.Exec(ctx, updateLifetimeQuery, userID, earned, spent); err != nil {
			return fmt.Errorf("%w: update lifetime totals: %v", models.ErrDatabase, err)
		}
		newBalance = balance + amount
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) || errors.Is(err, models.ErrDuplicateTransaction) {
			r.logger.Info("Credit transaction rejected", append(logFields, zap.Error(err))...)
		} else {
			r.logger.Error("Failed to apply credit transaction", append(logFields, zap.Error(err))...)
		}
		return nil, 0, err
	}

	r.logger.Info("Credit transaction applied", append(logFields, zap.Int64("balance", newBalance))...)
	return txRecord, newBalance, nil
}

func (r *pgCreditRepository) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, countCreditTxQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count transactions: %v", models.ErrDatabase, err)
	}
	txs := make([]models.CreditTransaction, 0)
	if err := pgxscan.Select(ctx, r.db, &txs, listCreditTxQuery, userID, limit, offset); err != nil {
		r.logger.Error("Failed to list credit transactions", zap.String("userID", userID), zap.Error(err))
		return nil, 0, fmt.Errorf("%w: list transactions: %v", models.ErrDatabase, err)
	}
	return txs, total, nil
}
