package callback

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pagemarkhq/pagehook/internal/courier"
	"github.com/pagemarkhq/pagehook/internal/logging"
	"github.com/pagemarkhq/pagehook/internal/metrics"
	"github.com/pagemarkhq/pagehook/internal/store"
	"github.com/pagemarkhq/pagehook/internal/tracing"
)

// ResultRecorder writes terminal delivery state. *store.Deliveries
// satisfies it.
type ResultRecorder interface {
	RecordResult(ctx context.Context, destinationID, eventID, eventType, status string, httpStatus int, lastError string, attempts int) (bool, error)
}

// Verifier authenticates inbound callback requests. *courier.CallbackVerifier
// satisfies it.
type Verifier interface {
	Verify(token string) error
}

// DisablePolicy reacts to terminal delivery outcomes. *policy.AutoDisabler
// satisfies it.
type DisablePolicy interface {
	OnFailure(ctx context.Context, destinationID string) (bool, int, error)
	OnSuccess(ctx context.Context, destinationID string) error
}

// Handler receives asynchronous delivery results from the courier. The
// courier retries its own callbacks at-least-once, so everything here must
// tolerate duplicates.
type Handler struct {
	deliveries ResultRecorder
	verifier   Verifier
	policy     DisablePolicy
	logger     *logging.Logger
}

func NewHandler(deliveries ResultRecorder, verifier Verifier, policy DisablePolicy, logger *logging.Logger) *Handler {
	return &Handler{
		deliveries: deliveries,
		verifier:   verifier,
		policy:     policy,
		logger:     logger,
	}
}

type response struct {
	OK        bool   `json:"ok"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, response{Error: "method not allowed"})
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "callback.receive")
	defer span.End()

	if err := h.verifier.Verify(r.Header.Get(courier.CallbackSignatureHeader)); err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.RecordCallback("unauthorized")
		h.logger.WithContext(ctx).WithError(err).Warn("callback with invalid courier signature")
		writeJSON(w, http.StatusUnauthorized, response{Error: "invalid courier signature"})
		return
	}

	q := r.URL.Query()
	destinationID := q.Get("webhookId")
	eventID := q.Get("eventId")
	eventType := q.Get("event")
	if destinationID == "" || eventID == "" || eventType == "" {
		metrics.RecordCallback("malformed")
		h.logger.WithContext(ctx).WithField("query", r.URL.RawQuery).Warn("callback missing correlation parameters")
		writeJSON(w, http.StatusBadRequest, response{Error: "missing correlation parameters"})
		return
	}

	span.SetAttributes(
		attribute.String("destination_id", destinationID),
		attribute.String("event_id", eventID),
		attribute.String("event_type", eventType),
	)
	log := h.logger.WithContext(ctx).WithEvent(eventID).WithDestination(destinationID)

	var res courier.Result
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.RecordCallback("malformed")
		log.WithError(err).Warn("callback body not parseable")
		writeJSON(w, http.StatusBadRequest, response{Error: "unparseable body"})
		return
	}

	status := store.StatusDelivered
	if res.Failed() {
		status = store.StatusFailed
	}

	applied, err := h.deliveries.RecordResult(ctx, destinationID, eventID, eventType, status, res.Status, res.Error, res.Attempts)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		log.WithError(err).Error("recording delivery result failed")
		writeJSON(w, http.StatusInternalServerError, response{Error: "persistence failure"})
		return
	}
	if !applied {
		// Same (destination, event) already terminal: at-least-once
		// callback replay, acknowledge without touching state.
		metrics.RecordCallback("duplicate")
		writeJSON(w, http.StatusOK, response{OK: true, Duplicate: true})
		return
	}

	metrics.RecordCallback(status)
	if res.Failed() {
		log.WithFields(map[string]any{"http_status": res.Status, "attempts": res.Attempts}).WithField("last_error", res.Error).Info("delivery failed terminally")
		h.applyFailurePolicy(ctx, destinationID)
	} else {
		log.WithField("attempts", res.Attempts).Info("delivery confirmed")
		if err := h.policy.OnSuccess(ctx, destinationID); err != nil {
			log.WithError(err).Warn("failure streak reset failed")
		}
	}

	writeJSON(w, http.StatusOK, response{OK: true})
}

func (h *Handler) applyFailurePolicy(ctx context.Context, destinationID string) {
	disabled, streak, err := h.policy.OnFailure(ctx, destinationID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		h.logger.WithContext(ctx).WithDestination(destinationID).WithError(err).Warn("failure policy errored")
		return
	}
	if disabled {
		metrics.RecordDestinationDisabled()
		h.logger.WithContext(ctx).WithDestination(destinationID).WithField("streak", streak).Warn("destination disabled after sustained failures")
	}
}
