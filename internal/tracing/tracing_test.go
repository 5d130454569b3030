package tracing

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{
			name:     "with SERVICE_VERSION set",
			envValue: "v1.2.3",
			expected: "v1.2.3",
		},
		{
			name:     "with SERVICE_VERSION not set",
			envValue: "",
			expected: "dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("SERVICE_VERSION", tt.envValue)
				defer os.Unsetenv("SERVICE_VERSION")
			} else {
				os.Unsetenv("SERVICE_VERSION")
			}

			if got := getVersion(); got != tt.expected {
				t.Errorf("getVersion() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetInstanceID(t *testing.T) {
	tests := []struct {
		name        string
		hostnameEnv string
		podNameEnv  string
		expected    string
	}{
		{
			name:        "with HOSTNAME set",
			hostnameEnv: "callback-01",
			expected:    "callback-01",
		},
		{
			name:       "with POD_NAME set (no HOSTNAME)",
			podNameEnv: "pagehook-dispatcher-abc123",
			expected:   "pagehook-dispatcher-abc123",
		},
		{
			name:        "HOSTNAME takes precedence over POD_NAME",
			hostnameEnv: "callback-01",
			podNameEnv:  "pagehook-dispatcher-abc123",
			expected:    "callback-01",
		},
		{
			name:     "with neither set",
			expected: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("HOSTNAME")
			os.Unsetenv("POD_NAME")

			if tt.hostnameEnv != "" {
				os.Setenv("HOSTNAME", tt.hostnameEnv)
				defer os.Unsetenv("HOSTNAME")
			}
			if tt.podNameEnv != "" {
				os.Setenv("POD_NAME", tt.podNameEnv)
				defer os.Unsetenv("POD_NAME")
			}

			if got := getInstanceID(); got != tt.expected {
				t.Errorf("getInstanceID() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetOTLPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{
			name:     "default when unset",
			envValue: "",
			expected: "tempo:4318",
		},
		{
			name:     "plain host:port",
			envValue: "collector:4318",
			expected: "collector:4318",
		},
		{
			name:     "http scheme stripped",
			envValue: "http://collector:4318",
			expected: "collector:4318",
		},
		{
			name:     "https scheme stripped",
			envValue: "https://collector:4318",
			expected: "collector:4318",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.envValue)
				defer os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
			} else {
				os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
			}

			if got := getOTLPEndpoint(); got != tt.expected {
				t.Errorf("getOTLPEndpoint() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// withTestTracerProvider installs an in-memory tracer provider and returns
// its span recorder.
func withTestTracerProvider(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	old := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(old) })
	return recorder
}

func TestStartSpan(t *testing.T) {
	recorder := withTestTracerProvider(t)

	ctx, span := StartSpan(context.Background(), "dispatch.fanout",
		attribute.String("trigger", "document.viewed"),
	)
	AddSpanEvent(ctx, "courier.publish", attribute.String("destination_id", "wh-1"))
	SetSpanError(ctx, errors.New("publish rejected"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name() != "dispatch.fanout" {
		t.Errorf("span name = %q, want dispatch.fanout", got.Name())
	}
	if len(got.Events()) == 0 {
		t.Error("span has no events, want courier.publish event")
	}
	if len(got.Events()) > 0 && got.Events()[0].Name != "courier.publish" {
		// RecordError also adds an exception event, check the first
		t.Errorf("first span event = %q, want courier.publish", got.Events()[0].Name)
	}
}

func TestGetTraceID(t *testing.T) {
	t.Run("no span in context", func(t *testing.T) {
		if id := GetTraceID(context.Background()); id != "" {
			t.Errorf("GetTraceID() = %q, want empty", id)
		}
	})

	t.Run("with recording span", func(t *testing.T) {
		withTestTracerProvider(t)
		ctx, span := StartSpan(context.Background(), "test")
		defer span.End()

		if id := GetTraceID(ctx); len(id) != 32 {
			t.Errorf("GetTraceID() = %q, want 32-char trace id", id)
		}
	})
}

func TestNSQPropagationRoundTrip(t *testing.T) {
	withTestTracerProvider(t)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx, span := StartSpan(context.Background(), "publish")
	defer span.End()

	headers := PropagateTraceToNSQ(ctx)
	if len(headers) == 0 {
		t.Fatal("PropagateTraceToNSQ() returned no headers")
	}

	extracted := ExtractTraceFromNSQ(context.Background(), headers)
	if got, want := GetTraceID(extracted), GetTraceID(ctx); got != want {
		t.Errorf("round-tripped trace id = %q, want %q", got, want)
	}
}
