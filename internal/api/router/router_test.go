package router

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanalabs/agenda-bot/internal/http/handlers"
	"github.com/aidanalabs/agenda-bot/internal/http/middleware"
)

type noopInbound struct{ calls int }

func (n *noopInbound) HandleInbound(context.Context, string, string, string, string) error {
	n.calls++
	return nil
}

type noopFlagStore struct{ quoted int }

func (n *noopFlagStore) MarkQuoteSent(context.Context, uuid.UUID) (bool, error) {
	n.quoted++
	return true, nil
}

func (n *noopFlagStore) SetHumanFlag(context.Context, uuid.UUID, bool) error { return nil }

func TestRouterHealth(t *testing.T) {
	h := New(&Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestRouterWebhookRoute(t *testing.T) {
	inbound := &noopInbound{}
	h := New(&Config{
		Webhook: handlers.NewWhatsAppWebhookHandler(inbound, "", "", nil),
	})

	form := url.Values{}
	form.Set("From", "whatsapp:+5215512345678")
	form.Set("Body", "hola")
	req := httptest.NewRequest("POST", "/webhooks/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, 1, inbound.calls)
}

func operatorToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.OperatorClaims{
		OrgID: "org-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRouterOpsRequiresOperatorToken(t *testing.T) {
	const secret = "test-secret"
	h := New(&Config{
		ReservationStatus: handlers.NewReservationStatusHandler(nil, nil),
		OperatorSecret:    secret,
	})

	req := httptest.NewRequest("POST", "/reservations/status", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)

	req = httptest.NewRequest("POST", "/reservations/status", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+operatorToken(t, secret))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code, "authorized request reaches the handler and fails validation")
}

func TestRouterConversationOpsRoutes(t *testing.T) {
	const secret = "test-secret"
	store := &noopFlagStore{}
	h := New(&Config{
		ConversationOps: handlers.NewConversationOpsHandler(store, nil),
		OperatorSecret:  secret,
	})

	body := `{"conversation_id":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest("POST", "/conversations/quote", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+operatorToken(t, secret))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, 1, store.quoted)

	req = httptest.NewRequest("POST", "/conversations/human",
		strings.NewReader(`{"conversation_id":"`+uuid.NewString()+`","human":true}`))
	req.Header.Set("Authorization", "Bearer "+operatorToken(t, secret))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, 204, rec.Code)
}
