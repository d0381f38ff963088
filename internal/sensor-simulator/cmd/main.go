package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/config"
	sensorSimulator "github.com/LeonardoBeccarini/climate_controller/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/climate_controller/pkg/logging"
	"github.com/LeonardoBeccarini/climate_controller/pkg/rabbitmq"
	"go.uber.org/zap"
)

func main() {
	sensorID := flag.String("sensor-id", "room-sensor-1", "sensor identifier")
	clientID := flag.String("client-id", "roomSimulator1", "MQTT client ID")
	interval := flag.Duration("interval", 10*time.Second, "publish interval")
	lat := flag.Float64("lat", 41.9028, "latitude for the outdoor conditions")
	lon := flag.Float64("lon", 12.4964, "longitude for the outdoor conditions")
	temp := flag.Float64("temp", 72, "initial indoor temperature °F")
	rh := flag.Float64("rh", 55, "initial indoor relative humidity %")
	noise := flag.Float64("noise", 0.2, "reading noise standard deviation")
	flag.Parse()

	config.LoadDotEnv()
	lg, err := logging.New(config.Env("LOG_LEVEL", "info"), config.Env("LOG_FORMAT", "console"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model := sensorSimulator.NewRoomModel(time.Now().UnixNano(), *noise)
	model.SetIndoor(*temp, *rh)
	if key := os.Getenv("OPENWEATHER_API_KEY"); key != "" {
		fctx, cancel := context.WithTimeout(ctx, 20*time.Second)
		t, h, err := sensorSimulator.NewAmbientClient(key).Current(fctx, *lat, *lon)
		cancel()
		if err != nil {
			lg.Warn("outdoor conditions unavailable, using defaults", zap.Error(err))
		} else {
			model.SetAmbient(t, h)
			lg.Info("outdoor conditions", zap.Float64("temp_f", t), zap.Float64("rh", h))
		}
	}

	client, err := rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
		Host:     config.Env("RABBITMQ_HOST", "localhost"),
		Port:     config.EnvInt("RABBITMQ_PORT", 1883),
		User:     config.Env("RABBITMQ_USER", "guest"),
		Password: config.Env("RABBITMQ_PASSWORD", "guest"),
		ClientID: *clientID,
	}, lg)
	if err != nil {
		lg.Fatal("mqtt connect", zap.Error(err))
	}
	defer rabbitmq.CloseRabbitMQConn(client)

	sim := sensorSimulator.NewRoomSimulator(
		rabbitmq.NewMultiConsumer(client, []string{sensorSimulator.StateTopic}, nil, lg),
		rabbitmq.NewPublisher(client, "", lg),
		model, *sensorID, lg)
	sim.Start(ctx, *interval)
}
