package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addFallbackClaimIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_add_fallback_claim_index",
		Migrate: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_deliveries_fallback_due ON push_notification_deliveries (fallback_due_at) WHERE status = 'sent' AND fallback_processed = false`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`DROP INDEX IF EXISTS idx_deliveries_fallback_due`,
			})
		},
	}
}
