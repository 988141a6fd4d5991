package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojf/subgate/internal/metrics"
)

func newRouter(updates chan tgbotapi.Update) http.Handler {
	d := Deps{Metrics: metrics.New().Handler(), WebhookSecret: "s3cret", Logger: zerolog.Nop()}
	if updates != nil {
		d.Updates = updates
	}
	return Router(d)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthz(t *testing.T) {
	rec := serve(newRouter(nil), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRouterMetrics(t *testing.T) {
	rec := serve(newRouter(nil), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "subgate_conversations_active")
}

func TestWebhook_Disabled(t *testing.T) {
	rec := serve(newRouter(nil), httptest.NewRequest(http.MethodPost, "/tg/webhook", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook_Secret(t *testing.T) {
	updates := make(chan tgbotapi.Update, 1)
	h := newRouter(updates)

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/tg/webhook", strings.NewReader(`{"update_id":1}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/tg/webhook?secret=s3cret", strings.NewReader(`{"update_id":2}`))
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, updates, 1)
	assert.Equal(t, 2, (<-updates).UpdateID)
}

func TestWebhook_QueuesUpdate(t *testing.T) {
	updates := make(chan tgbotapi.Update, 1)
	body := `{"update_id":7,"chat_join_request":{"chat":{"id":-100,"type":"channel"},"from":{"id":42,"first_name":"A"},"date":1}}`
	req := httptest.NewRequest(http.MethodPost, "/tg/webhook", strings.NewReader(body))
	req.Header.Set(secretHeader, "s3cret")

	rec := serve(newRouter(updates), req)

	require.Equal(t, http.StatusOK, rec.Code)
	up := <-updates
	require.NotNil(t, up.ChatJoinRequest)
	assert.Equal(t, int64(-100), up.ChatJoinRequest.Chat.ID)
	assert.Equal(t, int64(42), up.ChatJoinRequest.From.ID)
}

func TestWebhook_BadBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/tg/webhook", strings.NewReader(`{`))
	req.Header.Set(secretHeader, "s3cret")
	rec := serve(newRouter(make(chan tgbotapi.Update, 1)), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
