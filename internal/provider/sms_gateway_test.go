package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

func TestHTTPGatewaySendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody gatewayRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM-42"}`))
	}))
	defer server.Close()

	g, err := NewHTTPGateway(server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPGateway() error = %v", err)
	}

	msg := SMSMessage{From: "+15550000000", To: "+14155550132", Body: "Shift tomorrow at 9"}
	resp, err := g.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if resp.MessageID != "SM-42" {
		t.Fatalf("MessageID = %q, want %q", resp.MessageID, "SM-42")
	}
	if gotBody.From != msg.From || gotBody.To != msg.To || gotBody.Body != msg.Body {
		t.Fatalf("request = %+v, want %+v", gotBody, msg)
	}
}

func TestHTTPGatewayMessageIDFromHeader(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Message-ID", "hdr-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	g, err := NewHTTPGateway(server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPGateway() error = %v", err)
	}

	resp, err := g.Send(context.Background(), SMSMessage{To: "+14155550132", Body: "hi"})
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if resp.MessageID != "hdr-1" {
		t.Fatalf("MessageID = %q, want hdr-1", resp.MessageID)
	}
}

func TestHTTPGatewaySendStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "unreachable number is permanent", statusCode: http.StatusUnprocessableEntity, wantTransient: false},
		{name: "bad gateway is transient", statusCode: http.StatusBadGateway, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("gateway failed"))
			}))
			defer server.Close()

			g, err := NewHTTPGateway(server.URL, time.Second)
			if err != nil {
				t.Fatalf("NewHTTPGateway() error = %v", err)
			}

			_, err = g.Send(context.Background(), SMSMessage{To: "+14155550132", Body: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if providerErr.StatusCode != tc.statusCode {
				t.Fatalf("ProviderError.StatusCode = %d, want %d", providerErr.StatusCode, tc.statusCode)
			}
		})
	}
}

func TestHTTPGatewayRejectsInvalidMessage(t *testing.T) {
	t.Parallel()

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	g, err := NewHTTPGateway(server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPGateway() error = %v", err)
	}

	for _, msg := range []SMSMessage{
		{To: "4155550132", Body: "hi"},
		{To: "+14155550132", Body: "  "},
	} {
		if _, err := g.Send(context.Background(), msg); err == nil {
			t.Fatalf("Send(%+v) expected error", msg)
		}
	}
	if calls != 0 {
		t.Fatalf("gateway calls = %d, want 0", calls)
	}
}

func TestHTTPGatewaySendTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	g, err := NewHTTPGatewayWithClient(server.URL, client)
	if err != nil {
		t.Fatalf("NewHTTPGatewayWithClient() error = %v", err)
	}

	_, err = g.Send(context.Background(), SMSMessage{To: "+14155550132", Body: "hi"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestNewHTTPGatewayValidatesEndpoint(t *testing.T) {
	t.Parallel()

	for _, endpoint := range []string{"", "  ", "not a url"} {
		if _, err := NewHTTPGateway(endpoint, time.Second); err == nil {
			t.Fatalf("NewHTTPGateway(%q) expected error", endpoint)
		}
	}
}

func TestHTTPGatewayParsesGatewayErrorBody(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		statusCode  int
		body        string
		wantCode    string
		wantMessage string
		wantResend  bool
	}{
		{name: "flat body", statusCode: http.StatusUnprocessableEntity, body: `{"code":"21211","message":"invalid to number"}`, wantCode: "21211", wantMessage: "invalid to number"},
		{name: "nested body", statusCode: http.StatusTooManyRequests, body: `{"error":{"code":"throttled","message":"slow down"}}`, wantCode: "throttled", wantMessage: "slow down", wantResend: true},
		{name: "plain text", statusCode: http.StatusServiceUnavailable, body: "maintenance", wantMessage: "maintenance"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			g, err := NewHTTPGateway(server.URL, time.Second)
			if err != nil {
				t.Fatalf("NewHTTPGateway() error = %v", err)
			}

			_, err = g.Send(context.Background(), SMSMessage{To: "+14155550132", Body: "hi"})
			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if providerErr.Code != tc.wantCode || providerErr.Message != tc.wantMessage {
				t.Fatalf("code/message = %q/%q, want %q/%q", providerErr.Code, providerErr.Message, tc.wantCode, tc.wantMessage)
			}
			if got := Resendable(err); got != tc.wantResend {
				t.Fatalf("Resendable() = %v, want %v", got, tc.wantResend)
			}
		})
	}
}

func TestResendableRequiresUnsentTransientFailure(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "server error may have sent", err: &ProviderError{StatusCode: 502, Transient: true}, want: false},
		{name: "permanent rejection", err: &ProviderError{StatusCode: 400, NotSent: true}, want: false},
		{name: "throttled", err: &ProviderError{StatusCode: 429, Transient: true, NotSent: true}, want: true},
		{name: "dial failure", err: requestError(&net.OpError{Op: "dial", Err: errors.New("connection refused")}), want: true},
		{name: "read failure", err: requestError(&net.OpError{Op: "read", Err: errors.New("reset")}), want: false},
	}

	for _, tc := range testCases {
		if got := Resendable(tc.err); got != tc.want {
			t.Fatalf("%s: Resendable() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
