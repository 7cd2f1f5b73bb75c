// Package http exposes the inbound WhatsApp webhook endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bookline/whatsgate/internal/errcode"
	"github.com/bookline/whatsgate/internal/health"
	"github.com/bookline/whatsgate/internal/observability/logger"
	"github.com/bookline/whatsgate/internal/observability/metrics"
	"github.com/bookline/whatsgate/internal/routing"
	"github.com/bookline/whatsgate/internal/whatsapp"
)

// WebhookRouter resolves and authenticates inbound webhooks
type WebhookRouter interface {
	RouteWebhook(ctx context.Context, payload *whatsapp.Payload) (*routing.Route, error)
	VerifyWebhook(ctx context.Context, phoneNumberID string, req routing.HandshakeRequest) (string, error)
	VerifySignature(ctx context.Context, tenantID string, body []byte, header string) error
}

// MessageHandler receives every routed, authenticated webhook
type MessageHandler interface {
	HandleWebhook(ctx context.Context, route *routing.Route, payload *whatsapp.Payload) error
}

// MessageHandlerFunc adapts a function to MessageHandler
type MessageHandlerFunc func(ctx context.Context, route *routing.Route, payload *whatsapp.Payload) error

func (f MessageHandlerFunc) HandleWebhook(ctx context.Context, route *routing.Route, payload *whatsapp.Payload) error {
	return f(ctx, route, payload)
}

// HealthReporter summarizes credential health for the health endpoint
type HealthReporter interface {
	Summary() health.Summary
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	router   WebhookRouter
	messages MessageHandler
	monitor  HealthReporter
	metrics  *metrics.Instruments
	checks   []dependencyCheck
}

type dependencyCheck struct {
	name string
	fn   func(context.Context) error
}

// NewHandler creates a new HTTP handler. monitor and instruments may be nil.
func NewHandler(router WebhookRouter, messages MessageHandler, monitor HealthReporter, instruments *metrics.Instruments) *Handler {
	if instruments == nil {
		instruments = metrics.NoopInstruments()
	}
	return &Handler{
		router:   router,
		messages: messages,
		monitor:  monitor,
		metrics:  instruments,
	}
}

// RouterConfig configures the HTTP router
type RouterConfig struct {
	MaxBodyBytes int64
	Timeout      time.Duration
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, cfg RouterConfig) *chi.Mux {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if rateLimiter != nil {
		r.Use(RateLimitMiddleware(rateLimiter))
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))
	r.Use(MaxBodyMiddleware(cfg.MaxBodyBytes))

	r.Get("/health", h.HealthCheck)

	r.Route("/webhooks/whatsapp", func(r chi.Router) {
		r.Post("/", h.ReceiveWebhook)
		r.Get("/{phoneNumberID}", h.VerifyWebhook)
		r.Post("/{phoneNumberID}", h.ReceiveWebhook)
	})

	return r
}

// HealthCheck returns the service status and credential health counts
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	body := map[string]any{"service": "whatsgate"}

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		deps := make(map[string]string, len(h.checks))
		for _, c := range h.checks {
			if err := c.fn(ctx); err != nil {
				slog.WarnContext(ctx, "dependency check failed", slog.String("dependency", c.name), logger.Error(err))
				deps[c.name] = "unavailable"
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			deps[c.name] = "ok"
		}
		body["dependencies"] = deps
	}
	if h.monitor != nil {
		body["credentials"] = h.monitor.Summary()
	}
	body["status"] = status
	respondJSON(w, code, body)
}

// AddCheck registers a dependency probed by the health endpoint
func (h *Handler) AddCheck(name string, fn func(context.Context) error) {
	h.checks = append(h.checks, dependencyCheck{name: name, fn: fn})
}

// VerifyWebhook answers the provider's subscription handshake with the raw
// challenge as plain text.
func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	phoneNumberID := chi.URLParam(r, "phoneNumberID")
	q := r.URL.Query()

	challenge, err := h.router.VerifyWebhook(r.Context(), phoneNumberID, routing.HandshakeRequest{
		Mode:        q.Get("hub.mode"),
		VerifyToken: q.Get("hub.verify_token"),
		Challenge:   q.Get("hub.challenge"),
	})
	if err != nil {
		slog.WarnContext(r.Context(), "webhook handshake rejected",
			logger.PhoneNumberID(phoneNumberID),
			logger.Code(errcode.Code(err)),
			logger.Error(err))
		respondError(w, statusFor(err), errcode.Code(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// ReceiveWebhook routes an event notification to its tenant. Malformed and
// unroutable deliveries are acknowledged so the provider does not retry.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.observe(ctx, "too_large")
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		h.observe(ctx, "read_error")
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	payload, err := whatsapp.ParsePayload(body)
	if err != nil {
		slog.WarnContext(ctx, "dropping undecodable webhook", logger.Error(err))
		h.ack(ctx, w, "malformed")
		return
	}

	route, err := h.router.RouteWebhook(ctx, payload)
	if err != nil {
		code := errcode.Code(err)
		if code == errcode.RoutingError {
			slog.ErrorContext(ctx, "webhook routing unavailable", logger.Error(err))
			h.observe(ctx, "routing_error")
			respondError(w, http.StatusServiceUnavailable, code)
			return
		}
		slog.WarnContext(ctx, "dropping unroutable webhook",
			logger.PhoneNumberID(payload.PhoneNumberID()),
			logger.Code(code),
			logger.Error(err))
		h.ack(ctx, w, "unroutable")
		return
	}

	if pathID := chi.URLParam(r, "phoneNumberID"); pathID != "" && pathID != route.PhoneNumberID {
		slog.WarnContext(ctx, "dropping webhook delivered to another phone number's endpoint",
			logger.PhoneNumberID(route.PhoneNumberID),
			logger.String("path_phone_number_id", pathID))
		h.ack(ctx, w, "unroutable")
		return
	}

	ctx = withRoute(ctx, route.Tenant.ID, route.PhoneNumberID)

	if err := h.router.VerifySignature(ctx, route.Tenant.ID, body, r.Header.Get(routing.SignatureHeader)); err != nil {
		slog.WarnContext(ctx, "webhook signature rejected",
			logger.TenantID(route.Tenant.ID),
			logger.Code(errcode.Code(err)),
			logger.Error(err))
		h.observe(ctx, "rejected")
		respondError(w, statusFor(err), errcode.Code(err))
		return
	}

	if h.messages != nil {
		if err := h.messages.HandleWebhook(ctx, route, payload); err != nil {
			slog.ErrorContext(ctx, "webhook handler failed", logger.TenantID(route.Tenant.ID), logger.Error(err))
			h.observe(ctx, "handler_error")
			respondError(w, http.StatusInternalServerError, "handler failed")
			return
		}
	}

	h.ack(ctx, w, "routed")
}

func (h *Handler) ack(ctx context.Context, w http.ResponseWriter, result string) {
	h.observe(ctx, result)
	respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (h *Handler) observe(ctx context.Context, result string) {
	setOutcome(ctx, result)
	h.metrics.WebhooksReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// statusFor maps an error code to an HTTP status
func statusFor(err error) int {
	switch errcode.Code(err) {
	case errcode.WebhookVerificationFailed:
		return http.StatusForbidden
	case errcode.InvalidSignature:
		return http.StatusUnauthorized
	case errcode.PhoneNumberIDNotFound, errcode.TenantNotFound, errcode.WhatsAppSettingsNotFound:
		return http.StatusNotFound
	case errcode.InvalidWebhookPayload:
		return http.StatusBadRequest
	case errcode.RoutingError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
