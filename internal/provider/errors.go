package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

const maxErrorBody = 256

// ProviderError describes a failed SMS gateway call.
type ProviderError struct {
	StatusCode int
	// Code is the gateway's own error code when the response body carries one.
	Code      string
	Message   string
	Transient bool
	// NotSent is set when the gateway certainly did not accept the message.
	NotSent bool
	Cause   error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("sms provider error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": status=%d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": code=%s", e.Code)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": " + msg)
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a send failure could succeed on a later attempt.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// Resendable reports whether a failed send can be retried without any chance
// of the recipient getting the SMS twice.
func Resendable(err error) bool {
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return false
	}
	return providerErr.Transient && providerErr.NotSent
}

// requestError wraps a transport failure. A failed dial never reached the
// gateway, so the message was not sent.
func requestError(err error) *ProviderError {
	var opErr *net.OpError
	return &ProviderError{
		Message:   "gateway request failed",
		Transient: !errors.Is(err, context.Canceled),
		NotSent:   errors.As(err, &opErr) && opErr.Op == "dial",
		Cause:     err,
	}
}

type gatewayErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusError classifies a non-2xx gateway response. 4xx responses were
// refused by the gateway; of those only 429 is worth retrying. 5xx responses
// are retryable but may have been sent.
func statusError(statusCode int, body []byte) *ProviderError {
	providerErr := &ProviderError{
		StatusCode: statusCode,
		Transient:  statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError,
		NotSent:    statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError,
	}

	var parsed gatewayErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		providerErr.Code, providerErr.Message = parsed.Code, parsed.Message
		if parsed.Error != nil {
			providerErr.Code, providerErr.Message = parsed.Error.Code, parsed.Error.Message
		}
	}
	if providerErr.Message == "" {
		providerErr.Message = truncate(strings.TrimSpace(string(body)), maxErrorBody)
	}
	return providerErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
