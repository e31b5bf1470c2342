package repository

import (
	"time"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
)

// CreditGrantModel is the persistence model for the credit_grants table.
type CreditGrantModel struct {
	ID               string            `gorm:"type:uuid;primaryKey"`
	OrganizationID   string            `gorm:"type:varchar(36);not null;index:idx_credit_grants_org"`
	UserID           string            `gorm:"type:varchar(36);not null;default:'';index:idx_credit_grants_user"`
	SourceType       domain.SourceType `gorm:"type:varchar(20);not null"`
	SourceRef        *string           `gorm:"type:varchar(255)"`
	CreditsGranted   int               `gorm:"not null"`
	CreditsConsumed  int               `gorm:"not null;default:0"`
	CreditsRemaining int               `gorm:"not null"`
	ExpiresAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (CreditGrantModel) TableName() string {
	return "credit_grants"
}

// CreditTransactionModel is the persistence model for credit_transactions.
type CreditTransactionModel struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	OrganizationID string  `gorm:"type:varchar(36);not null;index:idx_credit_transactions_org"`
	UserID         string  `gorm:"type:varchar(36);not null;default:''"`
	GrantID        string  `gorm:"type:uuid;not null;index:idx_credit_transactions_grant"`
	MessageID      *string `gorm:"type:varchar(36)"`
	Delta          int     `gorm:"not null"`
	Reason         string  `gorm:"type:text;not null"`
	RefundOfID     *string `gorm:"type:uuid"`
	RefundedByID   *string `gorm:"type:uuid"`
	CreatedAt      time.Time
}

func (CreditTransactionModel) TableName() string {
	return "credit_transactions"
}

// PushNotificationDeliveryModel is the persistence model for push_notification_deliveries.
type PushNotificationDeliveryModel struct {
	ID                string                `gorm:"type:uuid;primaryKey"`
	ContactID         string                `gorm:"type:uuid;not null"`
	JobID             string                `gorm:"type:uuid;not null"`
	CampaignID        *string               `gorm:"type:uuid;index:idx_deliveries_campaign"`
	OrganizationID    *string               `gorm:"type:varchar(36)"`
	NotificationID    string                `gorm:"type:varchar(255);not null;index:idx_deliveries_notification"`
	TemplateID        *string               `gorm:"type:uuid"`
	CustomMessage     *string               `gorm:"type:text"`
	Status            domain.DeliveryStatus `gorm:"type:varchar(20);not null"`
	FallbackDueAt     time.Time             `gorm:"not null"`
	FallbackProcessed bool                  `gorm:"not null;default:false"`
	FallbackAttempts  int                   `gorm:"not null;default:0"`
	FallbackClaimedAt *time.Time
	SMSFallbackSentAt *time.Time `gorm:"column:sms_fallback_sent_at"`
	DeliveredAt       *time.Time
	ProviderMessageID *string `gorm:"type:varchar(255)"`
	LastError         *string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (PushNotificationDeliveryModel) TableName() string {
	return "push_notification_deliveries"
}

// MessageLogModel is the persistence model for message_logs.
type MessageLogModel struct {
	ID             string                 `gorm:"type:uuid;primaryKey"`
	DeliveryID     string                 `gorm:"type:uuid;not null;index:idx_message_logs_delivery"`
	OrganizationID *string                `gorm:"type:varchar(36)"`
	Event          domain.MessageLogEvent `gorm:"type:varchar(40);not null"`
	Detail         *string                `gorm:"type:text"`
	CreatedAt      time.Time
}

func (MessageLogModel) TableName() string {
	return "message_logs"
}

// MessageModel is the persistence model for messages.
type MessageModel struct {
	ID                string                  `gorm:"type:uuid;primaryKey"`
	OrganizationID    string                  `gorm:"type:varchar(36);not null"`
	ContactID         string                  `gorm:"type:uuid;not null"`
	JobID             string                  `gorm:"type:uuid"`
	Direction         domain.MessageDirection `gorm:"type:varchar(10);not null"`
	Body              string                  `gorm:"type:text;not null"`
	ProviderMessageID *string                 `gorm:"type:varchar(255)"`
	CreatedAt         time.Time
}

func (MessageModel) TableName() string {
	return "messages"
}

type UserModel struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	OrganizationID *string `gorm:"type:varchar(36)"`
	CreatedAt      time.Time
}

func (UserModel) TableName() string {
	return "users"
}

type JobModel struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	OrganizationID string    `gorm:"type:varchar(36);not null"`
	Name           string    `gorm:"type:varchar(255);not null"`
	Location       string    `gorm:"type:varchar(255)"`
	StartsAt       time.Time `gorm:"not null"`
	EndsAt         *time.Time
	Notes          string `gorm:"type:text"`
	Timezone       string `gorm:"type:varchar(64)"`
	CreatedAt      time.Time
}

func (JobModel) TableName() string {
	return "jobs"
}

type ContactModel struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	OrganizationID string `gorm:"type:varchar(36);not null"`
	FirstName      string `gorm:"type:varchar(100)"`
	LastName       string `gorm:"type:varchar(100)"`
	CountryCode    string `gorm:"type:varchar(8);not null"`
	PhoneNumber    string `gorm:"type:varchar(32);not null"`
	IsOptedOut     bool   `gorm:"not null;default:false"`
	HasLogin       bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

func (ContactModel) TableName() string {
	return "contacts"
}

type TemplateModel struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	OrganizationID string `gorm:"type:varchar(36);not null"`
	Name           string `gorm:"type:varchar(255);not null"`
	Body           string `gorm:"type:text;not null"`
	CreatedAt      time.Time
}

func (TemplateModel) TableName() string {
	return "message_templates"
}

func grantModelFromDomain(g *domain.CreditGrant) *CreditGrantModel {
	if g == nil {
		return nil
	}

	return &CreditGrantModel{
		ID:               g.ID,
		OrganizationID:   g.OrganizationID,
		UserID:           g.UserID,
		SourceType:       g.SourceType,
		SourceRef:        g.SourceRef,
		CreditsGranted:   g.CreditsGranted,
		CreditsConsumed:  g.CreditsConsumed,
		CreditsRemaining: g.CreditsRemaining,
		ExpiresAt:        g.ExpiresAt,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
	}
}

func grantModelToDomain(m *CreditGrantModel) *domain.CreditGrant {
	if m == nil {
		return nil
	}

	return &domain.CreditGrant{
		ID:               m.ID,
		OrganizationID:   m.OrganizationID,
		UserID:           m.UserID,
		SourceType:       m.SourceType,
		SourceRef:        m.SourceRef,
		CreditsGranted:   m.CreditsGranted,
		CreditsConsumed:  m.CreditsConsumed,
		CreditsRemaining: m.CreditsRemaining,
		ExpiresAt:        utcPtr(m.ExpiresAt),
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

func transactionModelFromDomain(t *domain.CreditTransaction) *CreditTransactionModel {
	if t == nil {
		return nil
	}

	return &CreditTransactionModel{
		ID:             t.ID,
		OrganizationID: t.OrganizationID,
		UserID:         t.UserID,
		GrantID:        t.GrantID,
		MessageID:      t.MessageID,
		Delta:          t.Delta,
		Reason:         t.Reason,
		RefundOfID:     t.RefundOfID,
		RefundedByID:   t.RefundedByID,
		CreatedAt:      t.CreatedAt,
	}
}

func transactionModelToDomain(m *CreditTransactionModel) *domain.CreditTransaction {
	if m == nil {
		return nil
	}

	return &domain.CreditTransaction{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		UserID:         m.UserID,
		GrantID:        m.GrantID,
		MessageID:      m.MessageID,
		Delta:          m.Delta,
		Reason:         m.Reason,
		RefundOfID:     m.RefundOfID,
		RefundedByID:   m.RefundedByID,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

func deliveryModelFromDomain(d *domain.PushNotificationDelivery) *PushNotificationDeliveryModel {
	if d == nil {
		return nil
	}

	return &PushNotificationDeliveryModel{
		ID:                d.ID,
		ContactID:         d.ContactID,
		JobID:             d.JobID,
		CampaignID:        d.CampaignID,
		OrganizationID:    d.OrganizationID,
		NotificationID:    d.NotificationID,
		TemplateID:        d.TemplateID,
		CustomMessage:     d.CustomMessage,
		Status:            d.Status,
		FallbackDueAt:     d.FallbackDueAt,
		FallbackProcessed: d.FallbackProcessed,
		FallbackAttempts:  d.FallbackAttempts,
		FallbackClaimedAt: d.FallbackClaimedAt,
		SMSFallbackSentAt: d.SMSFallbackSentAt,
		DeliveredAt:       d.DeliveredAt,
		ProviderMessageID: d.ProviderMessageID,
		LastError:         d.LastError,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *PushNotificationDeliveryModel) *domain.PushNotificationDelivery {
	if m == nil {
		return nil
	}

	return &domain.PushNotificationDelivery{
		ID:                m.ID,
		ContactID:         m.ContactID,
		JobID:             m.JobID,
		CampaignID:        m.CampaignID,
		OrganizationID:    m.OrganizationID,
		NotificationID:    m.NotificationID,
		TemplateID:        m.TemplateID,
		CustomMessage:     m.CustomMessage,
		Status:            m.Status,
		FallbackDueAt:     m.FallbackDueAt.UTC(),
		FallbackProcessed: m.FallbackProcessed,
		FallbackAttempts:  m.FallbackAttempts,
		FallbackClaimedAt: utcPtr(m.FallbackClaimedAt),
		SMSFallbackSentAt: utcPtr(m.SMSFallbackSentAt),
		DeliveredAt:       utcPtr(m.DeliveredAt),
		ProviderMessageID: m.ProviderMessageID,
		LastError:         m.LastError,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

func messageLogModelFromDomain(l *domain.MessageLog) *MessageLogModel {
	if l == nil {
		return nil
	}

	return &MessageLogModel{
		ID:             l.ID,
		DeliveryID:     l.DeliveryID,
		OrganizationID: l.OrganizationID,
		Event:          l.Event,
		Detail:         l.Detail,
		CreatedAt:      l.CreatedAt,
	}
}

func messageLogModelToDomain(m *MessageLogModel) *domain.MessageLog {
	if m == nil {
		return nil
	}

	return &domain.MessageLog{
		ID:             m.ID,
		DeliveryID:     m.DeliveryID,
		OrganizationID: m.OrganizationID,
		Event:          m.Event,
		Detail:         m.Detail,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

func messageModelFromDomain(msg *domain.Message) *MessageModel {
	if msg == nil {
		return nil
	}

	return &MessageModel{
		ID:                msg.ID,
		OrganizationID:    msg.OrganizationID,
		ContactID:         msg.ContactID,
		JobID:             msg.JobID,
		Direction:         msg.Direction,
		Body:              msg.Body,
		ProviderMessageID: msg.ProviderMessageID,
		CreatedAt:         msg.CreatedAt,
	}
}

func messageModelToDomain(m *MessageModel) *domain.Message {
	if m == nil {
		return nil
	}

	return &domain.Message{
		ID:                m.ID,
		OrganizationID:    m.OrganizationID,
		ContactID:         m.ContactID,
		JobID:             m.JobID,
		Direction:         m.Direction,
		Body:              m.Body,
		ProviderMessageID: m.ProviderMessageID,
		CreatedAt:         m.CreatedAt.UTC(),
	}
}

func jobModelToDomain(m *JobModel) *domain.Job {
	return &domain.Job{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Name:           m.Name,
		Location:       m.Location,
		StartsAt:       m.StartsAt.UTC(),
		EndsAt:         utcPtr(m.EndsAt),
		Notes:          m.Notes,
		Timezone:       m.Timezone,
	}
}

func contactModelToDomain(m *ContactModel) *domain.Contact {
	return &domain.Contact{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		CountryCode:    m.CountryCode,
		PhoneNumber:    m.PhoneNumber,
		IsOptedOut:     m.IsOptedOut,
		HasLogin:       m.HasLogin,
	}
}

func templateModelToDomain(m *TemplateModel) *domain.Template {
	return &domain.Template{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Name:           m.Name,
		Body:           m.Body,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
