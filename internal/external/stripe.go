package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentconsole/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

const stripeAPIBase = "https://api.stripe.com"

// Metadata keys stamped on checkout sessions and subscriptions. The webhook
// handler reads them back to find the user.
const (
	MetadataUserID = "user_id"
	MetadataTier   = "tier"
)

// Query parameters appended to the checkout success URL. They form the
// checkout hint read by the payment-return endpoint. Stripe replaces the
// session placeholder with the real id on redirect.
const (
	successParamConfirmed = "confirmed"
	successParamTier      = "tier"
	successParamSessionID = "session_id"
	sessionIDPlaceholder  = "{CHECKOUT_SESSION_ID}"
)

// StripeClientConfig configures a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	// BaseURL overrides the API host; tests point it at httptest.
	BaseURL string
	// PriceIDs maps each paid tier to its recurring Stripe price.
	PriceIDs map[types.PlanTier]string
}

// StripeClient creates checkout sessions through the Stripe REST API. Calls
// are form-encoded and sent through BaseClient.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	priceIDs  map[types.PlanTier]string
	logger    *slog.Logger
}

// NewStripeClient builds a client with production retry and breaker settings.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig, logger *slog.Logger) *StripeClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	base := NewBaseClient(httpClient, DefaultBreakerSettings("stripe"), DefaultRetryPolicy(), "agentconsole/1.0")
	return NewStripeClientWithBase(base, cfg, logger)
}

// NewStripeClientWithBase builds a client on a caller-provided BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig, logger *slog.Logger) *StripeClient {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	prices := make(map[types.PlanTier]string, len(cfg.PriceIDs))
	for tier, id := range cfg.PriceIDs {
		prices[tier] = id
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		priceIDs:  prices,
		logger:    logger,
	}
}

// PriceIDsFromConfig converts the tier->price map read from the environment.
// Unknown or trial tiers are rejected.
func PriceIDsFromConfig(raw map[string]string) (map[types.PlanTier]string, error) {
	out := make(map[types.PlanTier]string, len(raw))
	for k, v := range raw {
		tier, ok := types.ParsePlanTier(strings.ToLower(strings.TrimSpace(k)))
		if !ok || tier == types.PlanTrial {
			return nil, fmt.Errorf("price mapping for unknown paid tier %q", k)
		}
		out[tier] = strings.TrimSpace(v)
	}
	return out, nil
}

// CreateCheckoutSession starts a hosted subscription checkout for userID.
// The success URL carries the checkout hint so the dashboard can apply the
// purchase before the webhook arrives.
func (s *StripeClient) CreateCheckoutSession(
	ctx context.Context,
	userID, email string,
	tier types.PlanTier,
	urls types.CheckoutURLs,
) (checkoutURL, sessionID string, err error) {
	if !tier.Valid() || tier == types.PlanTrial {
		return "", "", types.NewAppError(types.ErrCodeValidationInvalidPlanTier,
			fmt.Sprintf("tier %q cannot be purchased", tier), nil)
	}
	priceID, ok := s.priceIDs[tier]
	if !ok || priceID == "" {
		return "", "", types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("no Stripe price configured for tier %s", tier), nil)
	}
	successURL, err := withCheckoutHint(urls.Success, tier)
	if err != nil {
		return "", "", types.NewAppError(types.ErrCodeValidationInvalidPayload, "invalid success URL", err)
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("client_reference_id", userID)
	form.Set("success_url", successURL)
	form.Set("cancel_url", urls.Cancel)
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata["+MetadataUserID+"]", userID)
	form.Set("metadata["+MetadataTier+"]", string(tier))
	form.Set("subscription_data[metadata]["+MetadataUserID+"]", userID)
	form.Set("subscription_data[metadata]["+MetadataTier+"]", string(tier))
	if email != "" {
		form.Set("customer_email", email)
	}

	resp, err := s.post(ctx, "/v1/checkout/sessions", form)
	if err != nil {
		return "", "", s.wrapError("create checkout session", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", s.errorFromResponse(resp, "create checkout session")
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", "", types.NewAppError(types.ErrCodeUpstreamStripe, "decoding checkout session", err)
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"user_id", userID,
		"tier", tier,
		"session_id", session.ID,
	)
	return session.URL, session.ID, nil
}

// withCheckoutHint appends confirmed=true&tier=<tier>&session_id=... to raw,
// keeping any query it already has. The placeholder must stay unescaped for
// Stripe to substitute it.
func withCheckoutHint(raw string, tier types.PlanTier) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("success URL %q is not absolute", raw)
	}
	q := u.Query()
	q.Set(successParamConfirmed, "true")
	q.Set(successParamTier, string(tier))
	q.Del(successParamSessionID)
	u.RawQuery = q.Encode() + "&" + successParamSessionID + "=" + sessionIDPlaceholder
	return u.String(), nil
}

// VerifyCheckoutSession confirms that sessionID is a paid checkout started by
// userID for tier. The payment-return endpoint calls it before trusting the
// hint in its query string.
func (s *StripeClient) VerifyCheckoutSession(ctx context.Context, sessionID, userID string, tier types.PlanTier) error {
	if sessionID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "checkout session id is required", nil)
	}

	resp, err := s.get(ctx, "/v1/checkout/sessions/"+url.PathEscape(sessionID))
	if err != nil {
		return s.wrapError("retrieve checkout session", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.errorFromResponse(resp, "retrieve checkout session")
	}

	var session struct {
		ClientReferenceID string            `json:"client_reference_id"`
		PaymentStatus     string            `json:"payment_status"`
		Metadata          map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe, "decoding checkout session", err)
	}

	switch {
	case session.ClientReferenceID != userID:
		return types.NewAppError(types.ErrCodePermissionOwner, "checkout session belongs to another user", nil)
	case session.PaymentStatus != "paid" && session.PaymentStatus != "no_payment_required":
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPayload, "checkout session is not paid", nil,
			map[string]any{"payment_status": session.PaymentStatus})
	case session.Metadata[MetadataTier] != string(tier):
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPlanTier, "checkout session was for another tier", nil,
			map[string]any{"session_tier": session.Metadata[MetadataTier]})
	}
	return nil
}

func (s *StripeClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	return s.base.Do(req)
}

func (s *StripeClient) post(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	return s.base.Do(req)
}

type stripeErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Param   string `json:"param"`
	} `json:"error"`
}

// errorFromResponse turns a non-200 Stripe answer into an AppError. Retryable
// statuses never reach here; BaseClient maps those.
func (s *StripeClient) errorFromResponse(resp *http.Response, op string) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe answered %d with an unreadable body", op, resp.StatusCode), err)
	}
	var env stripeErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe answered %d with a non-JSON body", op, resp.StatusCode), err)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: %s", op, env.Error.Message), nil,
		map[string]any{
			"status":      resp.StatusCode,
			"stripe_type": env.Error.Type,
			"stripe_code": env.Error.Code,
			"param":       env.Error.Param,
		})
}

func (s *StripeClient) wrapError(op string, err error) error {
	if types.ErrorCodeOf(err) != "" {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamStripe, fmt.Sprintf("%s: %v", op, err), err)
}
