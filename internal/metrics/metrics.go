package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehook_events_dispatched_total",
			Help: "Total number of events fanned out, by trigger.",
		},
		[]string{"trigger"},
	)

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehook_submissions_total",
			Help: "Total number of per-destination courier submissions by outcome.",
		},
		[]string{"outcome"}, // submitted, rejected, sign_failed
	)

	FanoutSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pagehook_fanout_size",
			Help:    "Number of destinations per fan-out.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		},
	)

	CourierPublishSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pagehook_courier_publish_seconds",
			Help:    "Latency of courier publish submissions.",
			Buckets: prometheus.DefBuckets,
		},
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagehook_callbacks_total",
			Help: "Total number of courier callback invocations by result.",
		},
		[]string{"result"}, // delivered, failed, duplicate, malformed, unauthorized
	)

	DestinationsDisabledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pagehook_destinations_disabled_total",
			Help: "Total number of destinations auto-disabled after sustained failures.",
		},
	)

	TriggerBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagehook_trigger_backlog",
			Help: "Depth of the trigger topic channel awaiting dispatch.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsDispatchedTotal,
		SubmissionsTotal,
		FanoutSize,
		CourierPublishSeconds,
		CallbacksTotal,
		DestinationsDisabledTotal,
		TriggerBacklog,
	)
}

// RecordFanout records one fan-out invocation and its destination count.
func RecordFanout(trigger string, destinations int) {
	EventsDispatchedTotal.WithLabelValues(trigger).Inc()
	FanoutSize.Observe(float64(destinations))
}

// RecordSubmission records the outcome of one per-destination submission.
func RecordSubmission(outcome string, latency time.Duration) {
	SubmissionsTotal.WithLabelValues(outcome).Inc()
	if latency > 0 {
		CourierPublishSeconds.Observe(latency.Seconds())
	}
}

// RecordCallback records one callback invocation result.
func RecordCallback(result string) {
	CallbacksTotal.WithLabelValues(result).Inc()
}

// RecordDestinationDisabled records an auto-disable.
func RecordDestinationDisabled() {
	DestinationsDisabledTotal.Inc()
}

// UpdateTriggerBacklog sets the current trigger channel depth.
func UpdateTriggerBacklog(depth float64) {
	TriggerBacklog.Set(depth)
}
