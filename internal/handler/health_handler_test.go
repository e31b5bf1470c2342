package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHealthRoutes(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	testCases := []struct {
		name       string
		checks     map[string]Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "all dependencies up",
			checks:     map[string]Checker{"postgres": ok, "redis": ok},
			wantStatus: fiber.StatusOK,
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name:       "redis down",
			checks:     map[string]Checker{"postgres": ok, "redis": down},
			wantStatus: fiber.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "ok", "redis": "down"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			app := newTestApp(t, func(app *fiber.App) error {
				RegisterHealthRoutes(app, tc.checks)
				return nil
			})

			resp, _ := performRequest(t, app, http.MethodGet, "/livez", "")
			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("livez status = %d, want 200", resp.StatusCode)
			}

			resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("readyz status = %d, want %d, body=%s", resp.StatusCode, tc.wantStatus, string(body))
			}

			var parsed struct {
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(body, &parsed); err != nil {
				t.Fatalf("json unmarshal error = %v", err)
			}
			for name, want := range tc.wantChecks {
				if parsed.Checks[name] != want {
					t.Fatalf("check %s = %q, want %q", name, parsed.Checks[name], want)
				}
			}
		})
	}
}
