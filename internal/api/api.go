// Package api is the HTTP boundary: routing, request decoding, upload
// hygiene, and admin-key enforcement. It surfaces the verdict structure
// unmodified and keeps all decision logic in internal/verify.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/certledger/certverify/internal/auth"
	"github.com/certledger/certverify/internal/config"
	"github.com/certledger/certverify/internal/store"
	"github.com/certledger/certverify/internal/verify"
)

// Handler carries the dependencies of every endpoint.
type Handler struct {
	store     store.Store
	extractor verify.Extractor
	verifier  *verify.Engine
	keys      *auth.Keyring
	cfg       config.ServerConfig
}

// New constructs the handler.
func New(st store.Store, ex verify.Extractor, v *verify.Engine, keys *auth.Keyring, cfg config.ServerConfig) *Handler {
	return &Handler{store: st, extractor: ex, verifier: v, keys: keys, cfg: cfg}
}

// Router wires all endpoints. Public routes carry CORS and a rate limit on
// verification; admin routes additionally require a valid X-API-Key.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
	}))

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ocr", h.handleOCR)

		r.Group(func(r chi.Router) {
			r.Use(throttle(rate.NewLimiter(rate.Limit(h.cfg.VerifyRPS), h.cfg.VerifyBurst)))
			r.Post("/verify", h.handleVerify)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.keys.RequireAdmin)
			r.Post("/register", h.handleRegister)
			r.Post("/import", h.handleImport)
			r.Get("/records", h.handleRecords)
			r.Get("/stats", h.handleStats)
		})
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// throttle rejects requests beyond the configured rate with 429.
func throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
