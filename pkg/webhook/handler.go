// Package webhook is the Stripe-facing edge: it verifies and decodes
// incoming webhook deliveries, translates them into reconcile events,
// and reports outcomes with the service's legacy response codes.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v83"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

const maxBodyBytes = 256 * 1024

// Logical response codes. The numeric values are the wire contract
// existing webhook consumers key off; they predate this codebase and are
// kept verbatim, including 500 for success.
const (
	CodeOK               = 500
	CodeDuplicate        = 100
	CodeBadPayload       = 101
	CodeInvalidStatus    = 102
	CodeUnlinkedCustomer = 201
	CodeAccountNotFound  = 401
	CodeInternalError    = 902
	CodeUnsupportedEvent = 900
	CodeMethodNotAllowed = 901
)

// Response is the JSON body returned for every webhook delivery. The
// HTTP status stays 200 for logical errors; Code is authoritative.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Processor handles one decoded event to a terminal outcome.
type Processor interface {
	Process(ctx context.Context, ev *reconcile.Event) (*reconcile.Result, error)
}

// Config holds webhook handler configuration
type Config struct {
	// Processor receives the decoded events.
	Processor Processor

	// SigningSecret enables Stripe signature verification when set.
	SigningSecret string

	// Logger is used for structured logging (default: NoopLogger).
	Logger reconcile.Logger
}

// Handler serves the inbound webhook route
type Handler struct {
	processor Processor
	secret    string
	logger    reconcile.Logger
}

// NewHandler creates a webhook handler
func NewHandler(config Config) (*Handler, error) {
	if config.Processor == nil {
		return nil, errors.New("processor is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = &reconcile.NoopLogger{}
	}
	return &Handler{
		processor: config.Processor,
		secret:    config.SigningSecret,
		logger:    logger,
	}, nil
}

// Router returns the HTTP routes for the webhook surface.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/webhook", h.handleWebhook)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		h.respond(w, http.StatusOK, "error", "Method not allowed", CodeMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.respond(w, http.StatusOK, "error", "Invalid payload", CodeBadPayload)
		return
	}

	event, err := h.decodeEnvelope(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, errBadSignature) {
			h.respond(w, http.StatusUnauthorized, "error", "Invalid signature", CodeBadPayload)
			return
		}
		h.respond(w, http.StatusOK, "error", "Invalid payload", CodeBadPayload)
		return
	}

	ev, err := TranslateEvent(event)
	if err != nil {
		if errors.Is(err, reconcile.ErrUnsupportedEvent) {
			h.respond(w, http.StatusOK, "success", "Event not supported", CodeUnsupportedEvent)
			return
		}
		h.respond(w, http.StatusOK, "error", "Invalid payload", CodeBadPayload)
		return
	}

	res, err := h.processor.Process(r.Context(), ev)
	if err != nil {
		h.logger.Warn("event processing failed",
			reconcile.Field{Key: "event_id", Value: ev.ID},
			reconcile.Field{Key: "event_type", Value: string(ev.Type)},
			reconcile.Field{Key: "error", Value: err.Error()})
		msg, code := classify(err)
		h.respond(w, http.StatusOK, "error", msg, code)
		return
	}

	if res.Outcome == reconcile.OutcomeDuplicate {
		h.respond(w, http.StatusOK, "success", "Event already processed (Duplicate or Resend)", CodeDuplicate)
		return
	}

	h.logger.Debug("webhook handled",
		reconcile.Field{Key: "event_id", Value: ev.ID},
		reconcile.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()})
	h.respond(w, http.StatusOK, "success", "OK", CodeOK)
}

var errBadSignature = errors.New("webhook signature verification failed")

// decodeEnvelope parses the provider envelope, verifying the signature
// when a signing secret is configured.
func (h *Handler) decodeEnvelope(body []byte, sigHeader string) (*stripe.Event, error) {
	if h.secret != "" {
		event, err := stripe.ConstructEvent(body, sigHeader, h.secret)
		if err != nil {
			return nil, errBadSignature
		}
		return &event, nil
	}

	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	if event.ID == "" {
		return nil, errors.New("event envelope missing id")
	}
	return &event, nil
}

// classify maps a processing error to the legacy message and code.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, reconcile.ErrBadRequest):
		return "Invalid payload", CodeBadPayload
	case errors.Is(err, reconcile.ErrInvalidStatus):
		return "Invalid payment status", CodeInvalidStatus
	case errors.Is(err, reconcile.ErrCustomerNotLinked):
		return "Customer not found", CodeUnlinkedCustomer
	case errors.Is(err, reconcile.ErrAccountNotFound):
		return "Member not found", CodeAccountNotFound
	case errors.Is(err, reconcile.ErrUnsupportedEvent):
		return "Event not supported", CodeUnsupportedEvent
	default:
		return "Internal error", CodeInternalError
	}
}

func (h *Handler) respond(w http.ResponseWriter, httpStatus int, status, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	if err := json.NewEncoder(w).Encode(Response{Status: status, Message: message, Code: code}); err != nil {
		return
	}
}
