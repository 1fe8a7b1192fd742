package ledger

import (
	"context"
	"errors"
	"fmt"

	"competition-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBLedger keeps allowances in the local credit_accounts table. An account is
// addressed by its account_ref or by its email.
type DBLedger struct {
	DB *gorm.DB
}

func NewDBLedger(db *gorm.DB) *DBLedger {
	return &DBLedger{DB: db}
}

func (l *DBLedger) find(ctx context.Context, ref string) (*models.CreditAccount, error) {
	var acct models.CreditAccount
	err := l.DB.WithContext(ctx).
		Where("account_ref = ? OR email = ?", ref, ref).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: load account: %w", err)
	}
	return &acct, nil
}

func (l *DBLedger) ReadAllowance(ctx context.Context, ref string) (int64, error) {
	acct, err := l.find(ctx, ref)
	if err != nil {
		return 0, err
	}
	return acct.LifetimeGenerations, nil
}

// IncreaseAllowance adds amount to the account. With a non-empty key the
// grant is recorded in credit_grants in the same transaction, and a key that
// is already there leaves the balance alone.
func (l *DBLedger) IncreaseAllowance(ctx context.Context, ref string, amount int64, key string) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: amount must be positive, got %d", amount)
	}
	acct, err := l.find(ctx, ref)
	if err != nil {
		return err
	}

	return l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if key != "" {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.CreditGrant{
				Key:        key,
				AccountRef: acct.AccountRef,
				Amount:     amount,
			})
			if res.Error != nil {
				return fmt.Errorf("ledger: record grant: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return nil
			}
		}
		res := tx.Model(&models.CreditAccount{}).
			Where("account_ref = ?", acct.AccountRef).
			Update("lifetime_generations", gorm.Expr("lifetime_generations + ?", amount))
		if res.Error != nil {
			return fmt.Errorf("ledger: increase allowance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, ref)
		}
		return nil
	})
}
