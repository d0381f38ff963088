package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/config"
	"github.com/LeonardoBeccarini/climate_controller/internal/services/event"
	"github.com/LeonardoBeccarini/climate_controller/pkg/dedup"
	"github.com/LeonardoBeccarini/climate_controller/pkg/logging"
	"github.com/LeonardoBeccarini/climate_controller/pkg/rabbitmq"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"go.uber.org/zap"
)

// Event recorder: stores control cycles, guardrail decisions and actuator state changes
// as system_event points and serves the latest cycles.
func main() {
	config.LoadDotEnv()
	lg, err := logging.New(config.Env("LOG_LEVEL", "info"), config.Env("LOG_FORMAT", "json"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	influxOrg := config.Env("INFLUX_ORG", "greenhouse")
	influxBucket := config.Env("INFLUX_BUCKET", "events")
	flushInterval := time.Duration(config.EnvInt("WRITE_FLUSH_INTERVAL_MS", 200)) * time.Millisecond

	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(config.EnvInt("WRITE_BATCH_SIZE", 10))).
		SetFlushInterval(uint(flushInterval.Milliseconds()))
	influx := influxdb2.NewClientWithOptions(config.Env("INFLUX_URL", "http://localhost:8086"), os.Getenv("INFLUX_TOKEN"), opts)
	defer influx.Close()
	writer := event.NewWriter(influx.WriteAPI(influxOrg, influxBucket), lg)

	client, err := rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
		Host:     config.Env("RABBITMQ_HOST", "localhost"),
		Port:     config.EnvInt("RABBITMQ_PORT", 1883),
		User:     config.Env("RABBITMQ_USER", "guest"),
		Password: config.Env("RABBITMQ_PASSWORD", "guest"),
		ClientID: config.Env("HOSTNAME", "event-service"),
	}, lg)
	if err != nil {
		lg.Fatal("mqtt connect", zap.Error(err))
	}

	r := mux.NewRouter()
	r.Handle("/healthz", event.NewHealthHandler(client, writer)).Methods(http.MethodGet)
	r.Handle("/readyz", event.NewReadyHandler(client, writer, 2*time.Second)).Methods(http.MethodGet)
	r.Handle("/events/cycles/latest", event.NewCycleLatestHandler(influx, influxOrg, influxBucket)).Methods(http.MethodGet)

	port := config.EnvInt("HTTP_PORT", 8080)
	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           handlers.LoggingHandler(os.Stdout, r),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		lg.Info("http listening", zap.Int("port", port))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server", zap.Error(err))
		}
	}()

	topics := config.EnvList("EVENT_SUB_TOPICS")
	if len(topics) == 0 {
		topics = []string{"event/controlCycle/#", "event/autonomousAction/#", "actuator/state/+"}
	}

	h := event.NewMQTTHandler(func(evt event.CommonEvent) {
		writer.Write(event.EventToPoint(evt), evt.EventType)
	})
	// QoS 1 topics may be redelivered
	d := dedup.New(10*time.Minute, 20000)
	consumer := rabbitmq.NewMultiConsumer(client, topics, func(topic string, m mqtt.Message) error {
		if !d.ShouldProcessPayload(m.Topic(), m.Payload()) {
			return nil
		}
		if err := h.Handle(topic, m); err != nil {
			lg.Warn("decode event", zap.String("topic", m.Topic()), zap.Error(err))
		}
		return nil
	}, lg)

	consumer.ConsumeMessage(ctx)
	lg.Info("shutting down",
		zap.Int64("cycles", writer.Count(event.TypeControlCycle)),
		zap.Int64("autonomous", writer.Count(event.TypeAutonomousAction)))

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = hs.Shutdown(shCtx)
	writer.Flush()
}
