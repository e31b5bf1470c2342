package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultGatewayTimeout = 10 * time.Second

type gatewayRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type gatewayResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
	SID       string `json:"sid"`
}

// HTTPGateway sends SMS through a JSON HTTP gateway.
type HTTPGateway struct {
	client   *resty.Client
	endpoint string
}

var _ SMSProvider = (*HTTPGateway)(nil)

func NewHTTPGateway(endpoint string, timeout time.Duration) (*HTTPGateway, error) {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewHTTPGatewayWithClient(endpoint, client)
}

func NewHTTPGatewayWithClient(endpoint string, client *resty.Client) (*HTTPGateway, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("sms gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid sms gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPGateway{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (g *HTTPGateway) Send(ctx context.Context, msg SMSMessage) (*ProviderResponse, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("sms gateway is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return nil, &ProviderError{Message: "invalid message", Cause: err}
	}

	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(gatewayRequest{From: msg.From, To: msg.To, Body: msg.Body}).
		Post(g.endpoint)
	if err != nil {
		return nil, requestError(err)
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "gateway returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, statusError(statusCode, response.Body())
	}

	return &ProviderResponse{
		StatusCode: statusCode,
		Body:       responseBody,
		MessageID:  gatewayMessageID(response),
	}, nil
}

func gatewayMessageID(response *resty.Response) string {
	var parsed gatewayResponse
	if err := json.Unmarshal(response.Body(), &parsed); err == nil {
		for _, id := range []string{parsed.ID, parsed.MessageID, parsed.SID} {
			if id = strings.TrimSpace(id); id != "" {
				return id
			}
		}
	}

	for _, key := range []string{"X-Message-ID", "X-Request-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
