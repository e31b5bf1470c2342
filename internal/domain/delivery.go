package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus represents the lifecycle state of a push notification delivery.
type DeliveryStatus string

const (
	DeliveryStatusSent        DeliveryStatus = "sent"
	DeliveryStatusDelivered   DeliveryStatus = "delivered"
	DeliveryStatusSMSFallback DeliveryStatus = "sms_fallback"
	DeliveryStatusFailed      DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusSent, DeliveryStatusDelivered, DeliveryStatusSMSFallback, DeliveryStatusFailed:
		return true
	}
	return false
}

func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusSMSFallback || s == DeliveryStatusFailed
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// PushNotificationDelivery is one push notification sent to one contact for one job.
type PushNotificationDelivery struct {
	ID                string
	ContactID         string
	JobID             string
	CampaignID        *string
	OrganizationID    *string
	NotificationID    string
	TemplateID        *string
	CustomMessage     *string
	Status            DeliveryStatus
	FallbackDueAt     time.Time
	FallbackProcessed bool
	FallbackAttempts  int
	FallbackClaimedAt *time.Time
	SMSFallbackSentAt *time.Time
	DeliveredAt       *time.Time
	ProviderMessageID *string
	LastError         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (d *PushNotificationDelivery) Validate() error {
	if d.ContactID == "" {
		return fmt.Errorf("%w: contact id is required", ErrValidation)
	}
	if d.JobID == "" {
		return fmt.Errorf("%w: job id is required", ErrValidation)
	}
	if d.NotificationID == "" {
		return fmt.Errorf("%w: notification id is required", ErrValidation)
	}
	if d.TemplateID == nil && (d.CustomMessage == nil || strings.TrimSpace(*d.CustomMessage) == "") {
		return fmt.Errorf("%w: template id or custom message is required", ErrValidation)
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, d.Status)
	}
	if d.FallbackDueAt.IsZero() {
		return fmt.Errorf("%w: fallback due time is required", ErrValidation)
	}
	return nil
}

// MessageLogEvent names an entry in a delivery's event trail.
type MessageLogEvent string

const (
	EventSMSFallbackTriggered MessageLogEvent = "sms_fallback_triggered"
	EventSMSSent              MessageLogEvent = "sms_sent"
	EventSMSFailed            MessageLogEvent = "sms_failed"
)

func (e MessageLogEvent) String() string { return string(e) }

// MessageLog records one fallback event for a delivery.
type MessageLog struct {
	ID             string
	DeliveryID     string
	OrganizationID *string
	Event          MessageLogEvent
	Detail         *string
	CreatedAt      time.Time
}
