package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/config"
	"github.com/LeonardoBeccarini/climate_controller/internal/services/aggregator"
	"github.com/LeonardoBeccarini/climate_controller/pkg/logging"
	"github.com/LeonardoBeccarini/climate_controller/pkg/rabbitmq"
	"go.uber.org/zap"
)

// Standalone aggregator: publishes the room snapshot on sensor/snapshot for consumers other
// than the controller, which embeds its own aggregator.
func main() {
	config.LoadDotEnv()
	lg, err := logging.New(config.Env("LOG_LEVEL", "info"), config.Env("LOG_FORMAT", "json"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &rabbitmq.RabbitMQConfig{
		Host:     config.Env("RABBITMQ_HOST", "localhost"),
		Port:     config.EnvInt("RABBITMQ_PORT", 1883),
		User:     config.Env("RABBITMQ_USER", "guest"),
		Password: config.Env("RABBITMQ_PASSWORD", "guest"),
		ClientID: config.Env("RABBITMQ_CLIENTID", "snapshotAggregator1"),
	}
	client, err := rabbitmq.NewRabbitMQConn(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("mqtt connect", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(client, config.Env("SNAPSHOT_TOPIC", "sensor/snapshot"), lg)
	consumer := rabbitmq.NewMultiConsumer(client,
		[]string{aggregator.SensorTopicPrefix + "+", aggregator.ActuatorTopicPrefix + "+"}, nil, lg)

	agg := aggregator.NewSnapshotAggregator(consumer, publisher,
		config.EnvDuration("AGGREGATION_INTERVAL", time.Minute),
		config.EnvDuration("STALE_AFTER", 10*time.Minute), lg)

	lg.Info("snapshot aggregator running")
	agg.Start(ctx)

	last, _ := json.Marshal(agg.Snapshot())
	lg.Info("snapshot aggregator stopped", zap.ByteString("last_snapshot", last))
}
