package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/shift-dispatch/internal/repository"
	"gorm.io/gorm"
)

func createCatalogTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_catalog_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&repository.UserModel{},
				&repository.JobModel{},
				&repository.ContactModel{},
				&repository.TemplateModel{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.TemplateModel{},
				&repository.ContactModel{},
				&repository.JobModel{},
				&repository.UserModel{},
			)
		},
	}
}
