package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/shift-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createCreditLedgerTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_credit_ledger",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CreditGrantModel{}, &repository.CreditTransactionModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_credit_grants_org_expiry ON credit_grants (organization_id, expires_at) WHERE credits_remaining > 0`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_transactions_refund_of ON credit_transactions (refund_of_id) WHERE refund_of_id IS NOT NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CreditTransactionModel{}, &repository.CreditGrantModel{})
		},
	}
}
