package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// secretHeader carries the secret_token set when registering the webhook.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

type Deps struct {
	Metrics       http.Handler
	Updates       chan<- tgbotapi.Update // nil disables the webhook
	WebhookSecret string
	Logger        zerolog.Logger
}

func Router(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.Updates != nil {
		r.Post("/tg/webhook", TelegramWebhook(d.Updates, d.WebhookSecret))
	}
	return r
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// TelegramWebhook queues posted updates for the dispatcher. The secret may
// arrive in the Telegram header or as ?secret= for older registrations.
func TelegramWebhook(updates chan<- tgbotapi.Update, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(secretHeader)
		if got == "" {
			got = r.URL.Query().Get("secret")
		}
		if secret != "" && subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var up tgbotapi.Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&up); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		select {
		case updates <- up:
			_, _ = w.Write([]byte("ok"))
		case <-r.Context().Done():
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	}
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("http request")
		})
	}
}
