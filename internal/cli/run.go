package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/config"
	"github.com/LeonardoBeccarini/climate_controller/internal/services/aggregator"
	climate "github.com/LeonardoBeccarini/climate_controller/internal/services/climate-controller"
	"github.com/LeonardoBeccarini/climate_controller/internal/services/event"
	"github.com/LeonardoBeccarini/climate_controller/internal/services/guardrail"
	"github.com/LeonardoBeccarini/climate_controller/pkg/actuator"
	"github.com/LeonardoBeccarini/climate_controller/pkg/cooldown"
	"github.com/LeonardoBeccarini/climate_controller/pkg/logging"
	"github.com/LeonardoBeccarini/climate_controller/pkg/rabbitmq"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/handlers"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// runConfig is read from the environment.
type runConfig struct {
	Rabbit rabbitmq.RabbitMQConfig

	Provider           actuator.HTTPConfig
	StatesFromProvider bool

	CycleInterval       time.Duration
	AggregationInterval time.Duration
	StaleAfter          time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	KafkaBrokers []string
	KafkaTopic   string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	HTTPPort int
	GRPCPort int

	LogLevel  string
	LogFormat string
}

func runConfigFromEnv() runConfig {
	return runConfig{
		Rabbit: rabbitmq.RabbitMQConfig{
			Host:     config.Env("RABBITMQ_HOST", "localhost"),
			Port:     config.EnvInt("RABBITMQ_PORT", 1883),
			User:     config.Env("RABBITMQ_USER", "guest"),
			Password: config.Env("RABBITMQ_PASSWORD", "guest"),
			ClientID: config.Env("RABBITMQ_CLIENTID", "climateController1"),
		},
		Provider: actuator.HTTPConfig{
			BaseURL:         config.Env("PROVIDER_URL", "http://localhost:8123"),
			Token:           os.Getenv("PROVIDER_TOKEN"),
			Timeout:         config.EnvDuration("PROVIDER_TIMEOUT", 10*time.Second),
			BreakerFailures: config.EnvInt("PROVIDER_BREAKER_FAILURES", 5),
			BreakerOpenFor:  config.EnvDuration("PROVIDER_BREAKER_OPEN_FOR", 30*time.Second),
		},
		StatesFromProvider: config.EnvBool("STATES_FROM_PROVIDER", false),

		CycleInterval:       config.EnvDuration("CYCLE_INTERVAL", 5*time.Minute),
		AggregationInterval: config.EnvDuration("AGGREGATION_INTERVAL", time.Minute),
		StaleAfter:          config.EnvDuration("STALE_AFTER", 10*time.Minute),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       config.EnvInt("REDIS_DB", 0),
		RedisPrefix:   config.Env("REDIS_COOLDOWN_PREFIX", "cooldown:"),

		KafkaBrokers: config.EnvList("KAFKA_BROKERS"),
		KafkaTopic:   config.Env("KAFKA_CYCLE_TOPIC", event.DefaultKafkaTopic),

		InfluxURL:    os.Getenv("INFLUX_URL"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    config.Env("INFLUX_ORG", "greenhouse"),
		InfluxBucket: config.Env("INFLUX_BUCKET", "events"),

		HTTPPort: config.EnvInt("HTTP_PORT", 8080),
		GRPCPort: config.EnvInt("GRPC_PORT", 9090),

		LogLevel:  config.Env("LOG_LEVEL", "info"),
		LogFormat: config.Env("LOG_FORMAT", "json"),
	}
}

func newRunCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the control loop with its HTTP API and gRPC guardrail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := runConfigFromEnv()
			lg, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = lg.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, configPath(), lg)
		},
	}
}

func run(ctx context.Context, cfg runConfig, configPath string, lg *zap.Logger) error {
	watcher, err := config.NewWatcher(configPath, lg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	file := watcher.Current()

	client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.Rabbit, lg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	agg := aggregator.NewSnapshotAggregator(
		rabbitmq.NewMultiConsumer(client, []string{aggregator.SensorTopicPrefix + "+", aggregator.ActuatorTopicPrefix + "+"}, nil, lg),
		rabbitmq.NewPublisher(client, config.Env("SNAPSHOT_TOPIC", "sensor/snapshot"), lg),
		cfg.AggregationInterval, cfg.StaleAfter, lg)

	invoker := actuator.NewHTTPInvoker(cfg.Provider)
	var states climate.StateReader = agg
	if cfg.StatesFromProvider {
		states = actuator.NewHTTPStateReader(cfg.Provider, file.Entities)
	}

	var store cooldown.Store = cooldown.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		store = cooldown.NewRedisStore(rdb, cfg.RedisPrefix)
		lg.Info("shared cooldown store", zap.String("addr", cfg.RedisAddr))
	}

	reporter, closeReporters := buildReporters(cfg, client, lg)
	defer closeReporters()

	metrics := climate.NewMetrics(reg)
	exec := climate.NewExecutor(invoker, states, store, file.Cooldowns, file.Entities, lg)
	ctrl, err := climate.NewController(agg, watcher, exec, reporter,
		climate.OwnershipMap(file.Ownership), cfg.CycleInterval, metrics, lg)
	if err != nil {
		return err
	}
	// hard limits are loaded once; the watcher only reloads the climate policy
	guard := guardrail.NewService(guardrail.StaticLimits(file.Limits()), invoker,
		rabbitmq.NewPublisher(client, "", lg), guardrail.DefaultEventTopic, reg, lg)

	ready := func() error {
		if !client.IsConnectionOpen() {
			return errors.New("mqtt not connected")
		}
		return agg.Ready()
	}
	router := climate.NewHTTPRouter(ctrl, guard, reg, ready, lg)
	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stdout, router)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	gs := grpc.NewServer()
	guardrail.RegisterGuardrailServer(gs, guardrail.NewGrpcHandler(guard))
	hsrv := health.NewServer()
	hsrv.SetServingStatus(guardrail.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hsrv)
	lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { agg.Start(gctx); return nil })
	g.Go(func() error { ctrl.Start(gctx); return nil })
	g.Go(func() error {
		lg.Info("http listening", zap.Int("port", cfg.HTTPPort))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("grpc listening", zap.Int("port", cfg.GRPCPort))
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")
		hsrv.Shutdown()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shCtx)
		gs.GracefulStop()
		return nil
	})

	err = g.Wait()
	rabbitmq.CloseRabbitMQConn(client)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildReporters always logs and publishes on the bus; Kafka and Influx are added when configured.
func buildReporters(cfg runConfig, client mqtt.Client, lg *zap.Logger) (event.Reporter, func()) {
	reps := event.MultiReporter{
		event.NewLogReporter(lg),
		event.NewMQTTReporter(rabbitmq.NewPublisher(client, "", lg), event.DefaultCycleTopic),
	}
	var closers []func()

	if len(cfg.KafkaBrokers) > 0 {
		kr := event.NewKafkaReporter(event.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), 5*time.Second)
		reps = append(reps, kr)
		closers = append(closers, func() { _ = kr.Close() })
		lg.Info("kafka reporting", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	if cfg.InfluxURL != "" {
		ic := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		w := event.NewWriter(ic.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket), lg)
		reps = append(reps, event.NewInfluxReporter(w))
		closers = append(closers, func() { w.Flush(); ic.Close() })
		lg.Info("influx reporting", zap.String("url", cfg.InfluxURL))
	}

	return reps, func() {
		for _, c := range closers {
			c()
		}
	}
}
