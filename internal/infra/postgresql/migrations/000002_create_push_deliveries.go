package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/shift-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createPushDeliveriesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_push_deliveries",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.PushNotificationDeliveryModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PushNotificationDeliveryModel{})
		},
	}
}
