package external

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"agentconsole/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
)

var testPrices = map[types.PlanTier]string{
	types.PlanBasic:    "price_basic_test",
	types.PlanStandard: "price_standard_test",
	types.PlanPremium:  "price_premium_test",
}

func newTestStripeClient(t *testing.T, serverURL string) *StripeClient {
	t.Helper()
	base := newTestClient(t, testPolicy(0))
	return NewStripeClientWithBase(base, StripeClientConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   serverURL,
		PriceIDs:  testPrices,
	}, nil)
}

var testURLs = types.CheckoutURLs{
	Success: "https://console.example.com/plan/return?from=checkout",
	Cancel:  "https://console.example.com/plan",
}

func TestCreateCheckoutSession_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
		assert.Equal(t, stripe.APIVersion, r.Header.Get("Stripe-Version"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "usr_1", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "price_standard_test", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "usr_1", r.PostForm.Get("metadata[user_id]"))
		assert.Equal(t, "standard", r.PostForm.Get("metadata[tier]"))
		assert.Equal(t, "usr_1", r.PostForm.Get("subscription_data[metadata][user_id]"))
		assert.Equal(t, "a@example.com", r.PostForm.Get("customer_email"))
		assert.Equal(t, testURLs.Cancel, r.PostForm.Get("cancel_url"))

		success, err := url.Parse(r.PostForm.Get("success_url"))
		require.NoError(t, err)
		assert.Equal(t, "/plan/return", success.Path)
		assert.Equal(t, "checkout", success.Query().Get("from"))
		assert.Equal(t, "true", success.Query().Get("confirmed"))
		assert.Equal(t, "standard", success.Query().Get("tier"))
		assert.Contains(t, r.PostForm.Get("success_url"), "session_id={CHECKOUT_SESSION_ID}")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_test_1","url":"https://checkout.stripe.com/c/cs_test_1"}`)
	}))
	defer server.Close()

	client := newTestStripeClient(t, server.URL)
	checkoutURL, sessionID, err := client.CreateCheckoutSession(context.Background(), "usr_1", "a@example.com", types.PlanStandard, testURLs)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_test_1", checkoutURL)
}

func TestCreateCheckoutSession_RejectsUnpurchasableTiers(t *testing.T) {
	client := newTestStripeClient(t, "http://127.0.0.1:1")

	for _, tier := range []types.PlanTier{types.PlanTrial, "gold"} {
		_, _, err := client.CreateCheckoutSession(context.Background(), "usr_1", "", tier, testURLs)
		require.Error(t, err)
		assert.Equal(t, types.ErrCodeValidationInvalidPlanTier, types.ErrorCodeOf(err), tier)
	}
}

func TestCreateCheckoutSession_MissingPrice(t *testing.T) {
	client := NewStripeClientWithBase(newTestClient(t, testPolicy(0)), StripeClientConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   "http://127.0.0.1:1",
	}, nil)

	_, _, err := client.CreateCheckoutSession(context.Background(), "usr_1", "", types.PlanBasic, testURLs)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalUnexpected, types.ErrorCodeOf(err))
}

func TestCreateCheckoutSession_StripeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such price","param":"line_items[0][price]"}}`)
	}))
	defer server.Close()

	_, _, err := newTestStripeClient(t, server.URL).CreateCheckoutSession(context.Background(), "usr_1", "", types.PlanBasic, testURLs)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
	assert.Equal(t, "resource_missing", appErr.Details["stripe_code"])
	assert.Equal(t, http.StatusBadRequest, appErr.Details["status"])
}

func TestCreateCheckoutSession_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "<html>nope</html>")
	}))
	defer server.Close()

	_, _, err := newTestStripeClient(t, server.URL).CreateCheckoutSession(context.Background(), "usr_1", "", types.PlanBasic, testURLs)
	assert.Equal(t, types.ErrCodeUpstreamStripe, types.ErrorCodeOf(err))
}

func TestCreateCheckoutSession_RelativeSuccessURL(t *testing.T) {
	client := newTestStripeClient(t, "http://127.0.0.1:1")
	_, _, err := client.CreateCheckoutSession(context.Background(), "usr_1", "", types.PlanBasic,
		types.CheckoutURLs{Success: "/plan/return", Cancel: "/plan"})
	assert.Equal(t, types.ErrCodeValidationInvalidPayload, types.ErrorCodeOf(err))
}

func checkoutSessionServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/checkout/sessions/cs_test_1", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVerifyCheckoutSession(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		userID   string
		tier     types.PlanTier
		wantCode types.ErrorCode
	}{
		{
			name:   "paid session for caller and tier",
			body:   `{"id":"cs_test_1","client_reference_id":"usr_1","payment_status":"paid","metadata":{"tier":"premium"}}`,
			userID: "usr_1",
			tier:   types.PlanPremium,
		},
		{
			name:     "session of another user",
			body:     `{"id":"cs_test_1","client_reference_id":"usr_2","payment_status":"paid","metadata":{"tier":"premium"}}`,
			userID:   "usr_1",
			tier:     types.PlanPremium,
			wantCode: types.ErrCodePermissionOwner,
		},
		{
			name:     "unpaid session",
			body:     `{"id":"cs_test_1","client_reference_id":"usr_1","payment_status":"unpaid","metadata":{"tier":"premium"}}`,
			userID:   "usr_1",
			tier:     types.PlanPremium,
			wantCode: types.ErrCodeValidationInvalidPayload,
		},
		{
			name:     "session bought a lower tier",
			body:     `{"id":"cs_test_1","client_reference_id":"usr_1","payment_status":"paid","metadata":{"tier":"basic"}}`,
			userID:   "usr_1",
			tier:     types.PlanPremium,
			wantCode: types.ErrCodeValidationInvalidPlanTier,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := checkoutSessionServer(t, tt.body)
			err := newTestStripeClient(t, server.URL).VerifyCheckoutSession(context.Background(), "cs_test_1", tt.userID, tt.tier)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantCode, types.ErrorCodeOf(err))
		})
	}
}

func TestVerifyCheckoutSession_UnknownSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such checkout.session"}}`)
	}))
	defer server.Close()

	err := newTestStripeClient(t, server.URL).VerifyCheckoutSession(context.Background(), "cs_test_1", "usr_1", types.PlanBasic)
	assert.Equal(t, types.ErrCodeUpstreamStripe, types.ErrorCodeOf(err))

	err = newTestStripeClient(t, server.URL).VerifyCheckoutSession(context.Background(), "", "usr_1", types.PlanBasic)
	assert.Equal(t, types.ErrCodeValidationMissingField, types.ErrorCodeOf(err))
}

func TestPriceIDsFromConfig(t *testing.T) {
	prices, err := PriceIDsFromConfig(map[string]string{"Basic": " price_b ", "premium": "price_p"})
	require.NoError(t, err)
	assert.Equal(t, map[types.PlanTier]string{types.PlanBasic: "price_b", types.PlanPremium: "price_p"}, prices)

	_, err = PriceIDsFromConfig(map[string]string{"trial": "price_t"})
	assert.Error(t, err)
}

func TestStripeVerifier(t *testing.T) {
	secret := "whsec_test_secret"
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	t.Run("valid", func(t *testing.T) {
		signed := stripe.GenerateTestSignedPayload(&stripe.UnsignedPayload{Payload: payload, Secret: secret})
		assert.NoError(t, StripeVerifier{}.Verify(payload, signed.Header, secret))
	})

	t.Run("wrong secret", func(t *testing.T) {
		signed := stripe.GenerateTestSignedPayload(&stripe.UnsignedPayload{Payload: payload, Secret: "whsec_other"})
		assert.Error(t, StripeVerifier{}.Verify(payload, signed.Header, secret))
	})

	t.Run("missing header", func(t *testing.T) {
		assert.Error(t, StripeVerifier{}.Verify(payload, "", secret))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		old := time.Now().Add(-10 * time.Minute)
		header := fmt.Sprintf("t=%d,v1=%s", old.Unix(), hex.EncodeToString(stripe.ComputeSignature(old, payload, secret)))
		assert.Error(t, StripeVerifier{}.Verify(payload, header, secret))
	})
}
