package provider

import (
	"context"
	"fmt"
	"strings"
)

// SMSProvider is the outbound SMS port.
type SMSProvider interface {
	Send(ctx context.Context, msg SMSMessage) (*ProviderResponse, error)
}

// SMSMessage is one outbound text. To must be in E.164 form.
type SMSMessage struct {
	From string
	To   string
	Body string
}

func (m SMSMessage) Validate() error {
	if !strings.HasPrefix(m.To, "+") {
		return fmt.Errorf("recipient %q is not in E.164 form", m.To)
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("message body is required")
	}
	return nil
}

// ProviderResponse stores gateway call metadata for audit and persistence.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
