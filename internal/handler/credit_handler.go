package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/shift-dispatch/internal/domain"
	"github.com/kursadbilgin/shift-dispatch/internal/ledger"
)

type CreditService interface {
	GrantTrialCredits(ctx context.Context, organizationID string) (*domain.CreditGrant, error)
	GrantSubscriptionCredits(ctx context.Context, organizationID string, amount int, subscriptionRef string) (*domain.CreditGrant, error)
	GrantBundleCredits(ctx context.Context, organizationID string, amount int, purchaseRef string, expiresAt *time.Time) (*domain.CreditGrant, error)
	GrantCredits(ctx context.Context, scope domain.Scope, req ledger.GrantRequest) (*domain.CreditGrant, error)
	ConsumeCredits(ctx context.Context, scope domain.Scope, amount int, reason string) ([]domain.CreditTransaction, error)
	RefundCredits(ctx context.Context, scope domain.Scope, transactionIDs []string, reason string) ([]domain.CreditTransaction, error)
	GetAvailableCredits(ctx context.Context, scope domain.Scope) (int, error)
	GetCreditBreakdown(ctx context.Context, scope domain.Scope) ([]domain.CreditGrant, error)
	ResolveUserScope(ctx context.Context, userID string) (domain.Scope, error)
}

type CreditHandler struct {
	service CreditService
}

func NewCreditHandler(service CreditService) (*CreditHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("credit service is required")
	}
	return &CreditHandler{service: service}, nil
}

func RegisterCreditRoutes(router fiber.Router, service CreditService) error {
	h, err := NewCreditHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	org := v1.Group("/organizations/:orgId/credits")
	org.Get("/", h.GetCredits)
	org.Post("/grants", h.Grant)
	org.Post("/consume", h.Consume)
	org.Post("/refunds", h.Refund)
	v1.Get("/users/:userId/credits", h.GetUserCredits)

	return nil
}

type grantRequest struct {
	SourceType string     `json:"sourceType"`
	Amount     int        `json:"amount"`
	SourceRef  string     `json:"sourceRef"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	UserID     string     `json:"userId,omitempty"`
}

type consumeRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
	UserID string `json:"userId,omitempty"`
}

type refundRequest struct {
	TransactionIDs []string `json:"transactionIds"`
	Reason         string   `json:"reason"`
	UserID         string   `json:"userId,omitempty"`
}

type grantResponse struct {
	ID               string     `json:"id"`
	OrganizationID   string     `json:"organizationId"`
	UserID           string     `json:"userId,omitempty"`
	SourceType       string     `json:"sourceType"`
	SourceRef        *string    `json:"sourceRef,omitempty"`
	CreditsGranted   int        `json:"creditsGranted"`
	CreditsConsumed  int        `json:"creditsConsumed"`
	CreditsRemaining int        `json:"creditsRemaining"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

type transactionResponse struct {
	ID         string    `json:"id"`
	GrantID    string    `json:"grantId"`
	Delta      int       `json:"delta"`
	Reason     string    `json:"reason"`
	MessageID  *string   `json:"messageId,omitempty"`
	RefundOfID *string   `json:"refundOfId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type creditsResponse struct {
	Available int             `json:"available"`
	Grants    []grantResponse `json:"grants"`
}

type transactionsResponse struct {
	Transactions []transactionResponse `json:"transactions"`
}

func (h *CreditHandler) GetCredits(c *fiber.Ctx) error {
	scope, err := requestScope(c.Params("orgId"), c.Query("userId"))
	if err != nil {
		return err
	}
	return h.respondCredits(c, scope)
}

func (h *CreditHandler) GetUserCredits(c *fiber.Ctx) error {
	scope, err := h.service.ResolveUserScope(c.Context(), c.Params("userId"))
	if err != nil {
		return err
	}
	return h.respondCredits(c, scope)
}

func (h *CreditHandler) respondCredits(c *fiber.Ctx, scope domain.Scope) error {
	available, err := h.service.GetAvailableCredits(c.Context(), scope)
	if err != nil {
		return err
	}
	grants, err := h.service.GetCreditBreakdown(c.Context(), scope)
	if err != nil {
		return err
	}

	return c.JSON(creditsResponse{Available: available, Grants: toGrantResponses(grants)})
}

func (h *CreditHandler) Grant(c *fiber.Ctx) error {
	var req grantRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	orgID := strings.TrimSpace(c.Params("orgId"))
	sourceType, err := domain.ParseSourceTypeFromString(req.SourceType)
	if err != nil {
		return err
	}

	var grant *domain.CreditGrant
	switch {
	case strings.TrimSpace(req.UserID) != "":
		grant, err = h.service.GrantCredits(c.Context(), domain.UserScope(orgID, strings.TrimSpace(req.UserID)), ledger.GrantRequest{
			SourceType: sourceType,
			Amount:     req.Amount,
			SourceRef:  optionalString(req.SourceRef),
			ExpiresAt:  req.ExpiresAt,
		})
	case sourceType == domain.SourceTrial:
		grant, err = h.service.GrantTrialCredits(c.Context(), orgID)
		if err == nil && grant == nil {
			return fiber.NewError(fiber.StatusConflict, "trial credits are disabled")
		}
	case sourceType == domain.SourceSubscription:
		grant, err = h.service.GrantSubscriptionCredits(c.Context(), orgID, req.Amount, req.SourceRef)
	default:
		grant, err = h.service.GrantBundleCredits(c.Context(), orgID, req.Amount, req.SourceRef, req.ExpiresAt)
	}
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toGrantResponse(*grant))
}

func (h *CreditHandler) Consume(c *fiber.Ctx) error {
	var req consumeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	scope, err := requestScope(c.Params("orgId"), req.UserID)
	if err != nil {
		return err
	}

	txns, err := h.service.ConsumeCredits(c.Context(), scope, req.Amount, req.Reason)
	if err != nil {
		return err
	}

	return c.JSON(transactionsResponse{Transactions: toTransactionResponses(txns)})
}

func (h *CreditHandler) Refund(c *fiber.Ctx) error {
	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.TransactionIDs) == 0 {
		return fmt.Errorf("%w: transactionIds is required", domain.ErrValidation)
	}

	scope, err := requestScope(c.Params("orgId"), req.UserID)
	if err != nil {
		return err
	}

	refunds, err := h.service.RefundCredits(c.Context(), scope, req.TransactionIDs, req.Reason)
	if err != nil {
		return err
	}

	return c.JSON(transactionsResponse{Transactions: toTransactionResponses(refunds)})
}

func requestScope(orgID, userID string) (domain.Scope, error) {
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)

	scope := domain.OrganizationScope(orgID)
	if userID != "" {
		scope = domain.UserScope(orgID, userID)
	}
	if err := scope.Validate(); err != nil {
		return domain.Scope{}, err
	}
	return scope, nil
}

func toGrantResponses(grants []domain.CreditGrant) []grantResponse {
	responses := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		responses = append(responses, toGrantResponse(g))
	}
	return responses
}

func toGrantResponse(g domain.CreditGrant) grantResponse {
	return grantResponse{
		ID:               g.ID,
		OrganizationID:   g.OrganizationID,
		UserID:           g.UserID,
		SourceType:       g.SourceType.String(),
		SourceRef:        g.SourceRef,
		CreditsGranted:   g.CreditsGranted,
		CreditsConsumed:  g.CreditsConsumed,
		CreditsRemaining: g.CreditsRemaining,
		ExpiresAt:        g.ExpiresAt,
		CreatedAt:        g.CreatedAt,
	}
}

func toTransactionResponses(txns []domain.CreditTransaction) []transactionResponse {
	responses := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		responses = append(responses, transactionResponse{
			ID:         t.ID,
			GrantID:    t.GrantID,
			Delta:      t.Delta,
			Reason:     t.Reason,
			MessageID:  t.MessageID,
			RefundOfID: t.RefundOfID,
			CreatedAt:  t.CreatedAt,
		})
	}
	return responses
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
