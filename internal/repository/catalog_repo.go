package repository

import (
	"context"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"gorm.io/gorm"
)

// Read-only lookups for records owned by the surrounding application.

type JobRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Job, error)
}

type ContactRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
}

type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Template, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type GormJobRepo struct{ db *gorm.DB }

func NewGormJobRepo(db *gorm.DB) *GormJobRepo { return &GormJobRepo{db: db} }

func (r *GormJobRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var model JobModel
	if err := firstByID(ctx, r.db, &model, id); err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}

type GormContactRepo struct{ db *gorm.DB }

func NewGormContactRepo(db *gorm.DB) *GormContactRepo { return &GormContactRepo{db: db} }

func (r *GormContactRepo) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	var model ContactModel
	if err := firstByID(ctx, r.db, &model, id); err != nil {
		return nil, err
	}
	return contactModelToDomain(&model), nil
}

type GormTemplateRepo struct{ db *gorm.DB }

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo { return &GormTemplateRepo{db: db} }

func (r *GormTemplateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	var model TemplateModel
	if err := firstByID(ctx, r.db, &model, id); err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}

type GormUserRepo struct{ db *gorm.DB }

func NewGormUserRepo(db *gorm.DB) *GormUserRepo { return &GormUserRepo{db: db} }

func (r *GormUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var model UserModel
	if err := firstByID(ctx, r.db, &model, id); err != nil {
		return nil, err
	}
	return &domain.User{ID: model.ID, OrganizationID: model.OrganizationID}, nil
}

func firstByID(ctx context.Context, db *gorm.DB, dest any, id string) error {
	err := db.WithContext(ctx).First(dest, "id = ?", id).Error
	if isNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}
