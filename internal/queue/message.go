package queue

import (
	"fmt"
	"strings"
	"time"
)

// ReceiptMessage reports that the push provider delivered a notification.
type ReceiptMessage struct {
	NotificationID string    `json:"notificationId"`
	DeliveredAt    time.Time `json:"deliveredAt"`
	CorrelationID  string    `json:"correlationId,omitempty"`
}

func (m ReceiptMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if m.DeliveredAt.IsZero() {
		return fmt.Errorf("deliveredAt is required")
	}
	return nil
}
