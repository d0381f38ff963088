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
	"github.com/LeonardoBeccarini/climate_controller/internal/services/device"
	"github.com/LeonardoBeccarini/climate_controller/pkg/logging"
	"github.com/LeonardoBeccarini/climate_controller/pkg/rabbitmq"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"
)

// Provider simulator: a stand-in for the vendor bridge, for local runs of climatectl.
func main() {
	config.LoadDotEnv()
	lg, err := logging.New(config.Env("LOG_LEVEL", "info"), config.Env("LOG_FORMAT", "json"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	file, err := config.Load(config.Env("CONFIG_PATH", ""))
	if err != nil {
		lg.Fatal("load config", zap.Error(err))
	}

	client, err := rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
		Host:     config.Env("RABBITMQ_HOST", "localhost"),
		Port:     config.EnvInt("RABBITMQ_PORT", 1883),
		User:     config.Env("RABBITMQ_USER", "guest"),
		Password: config.Env("RABBITMQ_PASSWORD", "guest"),
		ClientID: config.Env("RABBITMQ_CLIENTID", "provider-sim"),
	}, lg)
	if err != nil {
		lg.Fatal("mqtt connect", zap.Error(err))
	}
	defer rabbitmq.CloseRabbitMQConn(client)

	svc := device.NewDeviceService(file.Entities,
		config.EnvDuration("INTENSITY_RATE_LIMIT", 2*time.Minute),
		rabbitmq.NewPublisher(client, "", lg),
		config.Env("STATE_TOPIC_TEMPLATE", device.DefaultStateTopic), lg)
	svc.PublishAll()

	port := config.EnvInt("HTTP_PORT", 8123)
	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           handlers.LoggingHandler(os.Stdout, device.NewRouter(svc, os.Getenv("PROVIDER_TOKEN"))),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		lg.Info("provider simulator listening", zap.Int("port", port))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = hs.Shutdown(shCtx)
}
