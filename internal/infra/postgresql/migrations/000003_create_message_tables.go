package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/shift-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createMessageTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_message_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.MessageLogModel{}, &repository.MessageModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_contact_created ON messages (contact_id, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.MessageModel{}, &repository.MessageLogModel{})
		},
	}
}
