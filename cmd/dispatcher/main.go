package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pagemarkhq/pagehook/internal/config"
	"github.com/pagemarkhq/pagehook/internal/courier"
	"github.com/pagemarkhq/pagehook/internal/db"
	"github.com/pagemarkhq/pagehook/internal/dispatch"
	"github.com/pagemarkhq/pagehook/internal/event"
	"github.com/pagemarkhq/pagehook/internal/health"
	"github.com/pagemarkhq/pagehook/internal/logging"
	"github.com/pagemarkhq/pagehook/internal/metrics"
	"github.com/pagemarkhq/pagehook/internal/store"
	"github.com/pagemarkhq/pagehook/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("pagehook-dispatcher")

	shutdown, err := tracing.InitTracing(ctx, "pagehook-dispatcher")
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		logger.Plain().WithError(err).Fatal("schema migration failed")
	}

	destinations := store.NewDestinations(pool)
	deliveries := store.NewDeliveries(pool)
	publisher := courier.NewClient(cfg.Courier.URL, cfg.Courier.Token)
	dispatcher := dispatch.New(publisher, deliveries, cfg.Callback.BaseURL, logger)

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool, nil))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("dispatcher HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("dispatcher HTTP server failed")
		}
	}()

	conf := nsq.NewConfig()
	conf.MaxInFlight = 100
	consumer, err := nsq.NewConsumer(cfg.NSQ.TriggersTopic, cfg.NSQ.Channel, conf)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}

	startBacklogMonitor(cfg, logger)

	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		var t dispatch.TriggerMessage
		if err := json.Unmarshal(m.Body, &t); err != nil {
			logger.Plain().WithError(err).Error("bad trigger payload")
			return nil // terminal: don't retry bad payloads
		}
		if t.TeamID == "" || !event.KnownTrigger(t.Trigger) {
			logger.Plain().WithTeam(t.TeamID).WithTrigger(t.Trigger).Warn("dropping trigger outside the known set")
			return nil
		}

		msgCtx := tracing.ExtractTraceFromNSQ(ctx, t.TraceHeaders)
		msgCtx, span := tracing.StartSpan(msgCtx, "dispatcher.trigger",
			attribute.String("team_id", t.TeamID),
			attribute.String("trigger", t.Trigger),
		)
		defer span.End()

		dests, err := destinations.ListEnabledByTeam(msgCtx, t.TeamID)
		if err != nil {
			tracing.SetSpanError(msgCtx, err)
			logger.WithContext(msgCtx).WithTeam(t.TeamID).WithTrigger(t.Trigger).WithError(err).Error("listing destinations failed")
			return err // requeue: transient db failure
		}

		eventID, submitted := dispatcher.Fanout(msgCtx, dests, t.Trigger, t.Data)
		span.SetAttributes(
			attribute.String("event_id", eventID),
			attribute.Int("submitted", submitted),
		)
		logger.WithContext(msgCtx).WithTeam(t.TeamID).WithTrigger(t.Trigger).WithEvent(eventID).WithFields(map[string]any{
			"destinations": len(dests),
			"submitted":    submitted,
		}).Info("fan-out complete")
		return nil
	}))

	// Connecting directly to NSQD forces channel creation, instead of the
	// channel being lazily created on first publish
	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to nsqd failed")
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to lookupd failed")
	}

	logger.Plain().Info("dispatcher service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down dispatcher service")
	consumer.Stop()
	<-consumer.StopChan
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("dispatcher service stopped")
}

// startBacklogMonitor periodically reads trigger channel depth from nsqd's
// stats endpoint into the backlog gauge.
func startBacklogMonitor(cfg config.Config, logger *logging.Logger) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		httpClient := &http.Client{Timeout: 5 * time.Second}

		for range ticker.C {
			nsqdHTTPAddr := strings.Replace(cfg.NSQ.NsqdTCPAddr, ":4150", ":4151", 1)
			resp, err := httpClient.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHTTPAddr))
			if err != nil {
				logger.Plain().WithError(err).Error("failed to get NSQ stats")
				continue
			}

			depth, found, err := channelDepth(resp.Body, cfg.NSQ.TriggersTopic, cfg.NSQ.Channel)
			resp.Body.Close()
			if err != nil {
				logger.Plain().WithError(err).Error("failed to decode NSQ stats")
				continue
			}
			if found {
				metrics.UpdateTriggerBacklog(depth)
			}
		}
	}()
}

// channelDepth extracts one channel's queue depth from an nsqd stats
// response.
func channelDepth(body io.Reader, topicName, channelName string) (float64, bool, error) {
	var stats struct {
		Topics []struct {
			Name     string `json:"topic_name"`
			Channels []struct {
				Name  string `json:"channel_name"`
				Depth int64  `json:"depth"`
			} `json:"channels"`
		} `json:"topics"`
	}
	if err := json.NewDecoder(body).Decode(&stats); err != nil {
		return 0, false, err
	}

	for _, topic := range stats.Topics {
		if topic.Name != topicName {
			continue
		}
		for _, channel := range topic.Channels {
			if channel.Name == channelName {
				return float64(channel.Depth), true, nil
			}
		}
	}
	return 0, false, nil
}
