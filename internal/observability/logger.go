package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type correlationIDKey struct{}

// NewLogger builds the JSON production logger shared by the api and worker
// binaries. Every entry carries the emitting service name.
func NewLogger(service, level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	opts := []zap.Option{zap.AddCaller()}
	if service = strings.TrimSpace(service); service != "" {
		opts = append(opts, zap.Fields(zap.String("service", service)))
	}

	logger, err := cfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var parsed zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}

	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return parsed, nil
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	correlationID, ok := ctx.Value(correlationIDKey{}).(string)
	if !ok || correlationID == "" {
		return "", false
	}

	return correlationID, true
}

func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	correlationID, ok := CorrelationIDFromContext(ctx)
	if !ok {
		return logger
	}

	return logger.With(zap.String("correlationId", correlationID))
}

// DeliveryFields identifies a push delivery in log entries.
func DeliveryFields(d domain.PushNotificationDelivery) []zap.Field {
	fields := []zap.Field{
		zap.String("deliveryId", d.ID),
		zap.String("contactId", d.ContactID),
		zap.String("jobId", d.JobID),
	}
	if d.CampaignID != nil {
		fields = append(fields, zap.String("campaignId", *d.CampaignID))
	}
	if d.OrganizationID != nil {
		fields = append(fields, zap.String("organizationId", *d.OrganizationID))
	}
	return fields
}

// ScopeFields identifies a ledger scope in log entries.
func ScopeFields(scope domain.Scope) []zap.Field {
	fields := []zap.Field{
		zap.String("scopeKind", scope.Kind.String()),
		zap.String("organizationId", scope.OrganizationID),
	}
	if scope.Kind == domain.ScopeUser {
		fields = append(fields, zap.String("userId", scope.UserID))
	}
	return fields
}
