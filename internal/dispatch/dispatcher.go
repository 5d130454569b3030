package dispatch

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pagemarkhq/pagehook/internal/courier"
	"github.com/pagemarkhq/pagehook/internal/event"
	"github.com/pagemarkhq/pagehook/internal/logging"
	"github.com/pagemarkhq/pagehook/internal/metrics"
	"github.com/pagemarkhq/pagehook/internal/signature"
	"github.com/pagemarkhq/pagehook/internal/store"
	"github.com/pagemarkhq/pagehook/internal/tracing"
)

// CallbackPath is where the courier reports delivery outcomes.
const CallbackPath = "/api/webhooks/callback"

// DeliveryRecorder records that a job was handed to the courier.
// *store.Deliveries satisfies it.
type DeliveryRecorder interface {
	CreateQueued(ctx context.Context, destinationID, eventID, eventType string) error
}

// Dispatcher fans one event out to every registered destination. Each
// destination is handled independently: its own signature, its own callback
// URL, its own courier submission, its own failures.
type Dispatcher struct {
	publisher  courier.Publisher
	deliveries DeliveryRecorder
	signer     signature.Signer
	baseURL    string
	logger     *logging.Logger
}

func New(publisher courier.Publisher, deliveries DeliveryRecorder, baseURL string, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		publisher:  publisher,
		deliveries: deliveries,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// BuildCallbackURL encodes the correlation fields the callback handler
// needs to recover full context without a database round-trip.
func BuildCallbackURL(baseURL, destinationID, eventID, eventType string) string {
	q := url.Values{}
	q.Set("webhookId", destinationID)
	q.Set("eventId", eventID)
	q.Set("event", eventType)
	return strings.TrimSuffix(baseURL, "/") + CallbackPath + "?" + q.Encode()
}

// Fanout builds one envelope for the trigger and submits one courier job
// per destination, concurrently. It returns the shared event id and how
// many submissions the courier accepted. Individual failures are logged
// and counted, never returned: webhook delivery is fire-and-forget from
// the event source's point of view.
func (d *Dispatcher) Fanout(ctx context.Context, dests []store.Destination, trigger string, data any) (string, int) {
	env := event.NewEnvelope(trigger, data)

	ctx, span := tracing.StartSpan(ctx, "dispatch.fanout",
		attribute.String("trigger", trigger),
		attribute.String("event_id", env.ID),
		attribute.Int("destinations", len(dests)),
	)
	defer span.End()

	metrics.RecordFanout(trigger, len(dests))
	if len(dests) == 0 {
		return env.ID, 0
	}

	// Marshal once: every destination signs and ships these exact bytes.
	body, err := json.Marshal(env)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		d.logger.WithContext(ctx).WithEvent(env.ID).WithTrigger(trigger).WithError(err).Error("envelope not serializable, dropping fan-out")
		return env.ID, 0
	}

	var submitted atomic.Int32
	var wg sync.WaitGroup
	for _, dst := range dests {
		wg.Add(1)
		go func(dst store.Destination) {
			defer wg.Done()
			if d.submit(ctx, dst, env, body) {
				submitted.Add(1)
			}
		}(dst)
	}
	wg.Wait()

	span.SetAttributes(attribute.Int("submitted", int(submitted.Load())))
	return env.ID, int(submitted.Load())
}

// submit handles one destination and reports whether the courier accepted
// the job.
func (d *Dispatcher) submit(ctx context.Context, dst store.Destination, env event.Envelope, body []byte) bool {
	log := d.logger.WithContext(ctx).WithEvent(env.ID).WithTrigger(env.Event).WithDestination(dst.ID)

	sig, err := d.signer.SignBytes(dst.Secret, body)
	if err != nil {
		tracing.AddSpanEvent(ctx, "dispatch.sign_failed", attribute.String("destination_id", dst.ID))
		metrics.RecordSubmission("sign_failed", 0)
		log.WithError(err).Error("cannot sign envelope for destination")
		return false
	}

	callback := BuildCallbackURL(d.baseURL, dst.ID, env.ID, env.Event)

	// Record the attempt before handing it off; a failed audit write is
	// not a reason to withhold the delivery itself.
	if err := d.deliveries.CreateQueued(ctx, dst.ID, env.ID, env.Event); err != nil {
		tracing.SetSpanError(ctx, err)
		log.WithError(err).Warn("queued delivery row not recorded")
	}

	job := courier.Job{
		URL: dst.URL,
		Headers: map[string]string{
			"Content-Type":            "application/json",
			courier.SignatureHeader:   sig,
			courier.HideHeadersHeader: "true",
		},
		Body:            body,
		Callback:        callback,
		FailureCallback: callback,
	}

	start := time.Now()
	if err := d.publisher.Publish(ctx, job); err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.RecordSubmission("rejected", time.Since(start))
		log.WithError(err).Error("courier rejected delivery job")
		return false
	}

	metrics.RecordSubmission("submitted", time.Since(start))
	return true
}
