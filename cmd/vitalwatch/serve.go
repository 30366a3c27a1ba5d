package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/vitalwatch/internal/alerting"
	"github.com/good-yellow-bee/vitalwatch/internal/api"
	"github.com/good-yellow-bee/vitalwatch/internal/api/health"
	"github.com/good-yellow-bee/vitalwatch/internal/broker"
	"github.com/good-yellow-bee/vitalwatch/internal/ingest"
	"github.com/good-yellow-bee/vitalwatch/internal/lifecycle"
	"github.com/good-yellow-bee/vitalwatch/internal/logging"
	"github.com/good-yellow-bee/vitalwatch/internal/metrics"
	"github.com/good-yellow-bee/vitalwatch/internal/notifier"
	"github.com/good-yellow-bee/vitalwatch/internal/query"
	"github.com/good-yellow-bee/vitalwatch/pkg/config"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "vitalwatch")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting vitalwatch",
		zap.String("version", config.Version),
		zap.String("commit", config.Commit))

	return serve(ctx, cfg, logger)
}

// serve runs every component until ctx is cancelled or one of them fails.
func serve(ctx context.Context, cfg *Config, logger *zap.Logger) error {
	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("database ready", zap.String("driver", string(store.Dialect())))

	policy, err := cfg.Alerting.Resolve()
	if err != nil {
		return fmt.Errorf("resolve alerting policy: %w", err)
	}
	engine, err := alerting.NewEngine(store.Thresholds(), policy, logger)
	if err != nil {
		return fmt.Errorf("create alert engine: %w", err)
	}
	logger.Info("alerting policy", zap.Stringer("policy", policy))

	var mqttClient mqtt.Client
	if cfg.needsMQTT() {
		mqttClient, err = broker.ConnectMQTT(cfg.Brokers.MQTT, logger)
		if err != nil {
			return err
		}
		defer mqttClient.Disconnect(250)
	}

	var redisClient *redis.Client
	if cfg.Ingest.Redis.Enabled {
		redisClient, err = broker.NewRedis(ctx, cfg.Brokers.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	dispatcher, err := buildDispatcher(cfg, mqttClient, logger)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	manager := lifecycle.NewManager(store.Alerts(), store.Samples(), dispatcher, logger, lifecycle.Options{
		Topic:     cfg.Notify.Topic,
		AlertTTL:  cfg.Lifecycle.AlertTTL,
		SampleTTL: cfg.Lifecycle.SampleTTL,
	})
	scheduler, err := lifecycle.NewScheduler(manager, cfg.Lifecycle.ExpirySchedule, logger)
	if err != nil {
		return fmt.Errorf("create expiry scheduler: %w", err)
	}

	pipeline := ingest.NewPipeline(store.Samples(), engine, manager, logger)
	pool := ingest.NewPool(ingest.PoolConfig{
		Workers:   cfg.Ingest.Workers,
		QueueSize: cfg.Ingest.QueueSize,
	}, pipeline.Handle, logger)

	sources, err := buildSources(cfg, redisClient, mqttClient, logger)
	if err != nil {
		return err
	}

	apiServer, err := api.New(&api.Config{
		Address:         cfg.Server.Address,
		RequestTimeout:  cfg.Server.RequestTimeout,
		IngestRateLimit: cfg.Server.IngestRateLimit,
		Version:         config.Version,
		Verbose:         cfg.Verbose,
	}, api.Services{
		Vitals:  query.NewService(store.Samples(), store.Patients(), time.Now),
		Ingest:  pipeline,
		Alerts:  manager,
		Configs: query.NewConfigService(store.Thresholds(), store.Patients(), time.Now),
	}, logger)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	apiServer.RegisterHealthChecker(health.NewDBChecker("database", store.DB()))
	if redisClient != nil {
		apiServer.RegisterHealthChecker(health.NewFuncChecker("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}
	if mqttClient != nil {
		apiServer.RegisterHealthChecker(health.NewFuncChecker("mqtt", func(context.Context) error {
			if !mqttClient.IsConnectionOpen() {
				return errors.New("not connected")
			}
			return nil
		}))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return apiServer.Run(gctx) })
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	// A failed source stops the service; restarting is left to the
	// process supervisor.
	for _, src := range sources {
		g.Go(func() error {
			if err := src.Run(gctx, pool.Submit); err != nil {
				return fmt.Errorf("%s source: %w", src.Name(), err)
			}
			return nil
		})
	}

	if cfg.Server.MetricsAddress != "" {
		ms := metrics.NewServer(cfg.Server.MetricsAddress, logger)
		g.Go(ms.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	if cfg.Alerting.Watch {
		if configFile == "" {
			logger.Warn("alerting.watch is set but no config file was given")
		} else {
			watcher, err := alerting.NewPolicyWatcher(configFile, engine, logger)
			if err != nil {
				return err
			}
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	err = g.Wait()
	logger.Info("vitalwatch stopped")
	return err
}

// buildDispatcher registers every enabled notification channel.
func buildDispatcher(cfg *Config, mqttClient mqtt.Client, logger *zap.Logger) (*notifier.Dispatcher, error) {
	d := notifier.NewDispatcherWithRateLimit(*cfg.Notify.RateLimit)

	if cfg.Notify.Log.Enabled {
		d.Register(notifier.NewLogNotifier(logger))
	}
	if cfg.Notify.Email.Enabled {
		n, err := notifier.NewEmailNotifier(cfg.Notify.Email.EmailConfig)
		if err != nil {
			return nil, fmt.Errorf("create email notifier: %w", err)
		}
		d.Register(n)
	}
	if cfg.Notify.Webhook.Enabled {
		n, err := notifier.NewWebhookNotifier(cfg.Notify.Webhook.WebhookConfig)
		if err != nil {
			return nil, fmt.Errorf("create webhook notifier: %w", err)
		}
		d.Register(n)
	}
	if cfg.Notify.MQTT.Enabled {
		n, err := notifier.NewMQTTNotifier(mqttClient, cfg.Notify.MQTT.MQTTConfig)
		if err != nil {
			return nil, fmt.Errorf("create mqtt notifier: %w", err)
		}
		d.Register(n)
	}

	if names := d.Names(); len(names) > 0 {
		logger.Info("notification channels", zap.Strings("channels", names))
	} else {
		logger.Warn("no notification channels enabled, alerts are stored only")
	}
	return d, nil
}

// buildSources creates the enabled streaming sources. Clients are
// connected by the caller.
func buildSources(cfg *Config, redisClient redis.UniversalClient, mqttClient mqtt.Client, logger *zap.Logger) ([]ingest.Source, error) {
	var sources []ingest.Source

	if cfg.Ingest.Redis.Enabled {
		sources = append(sources, ingest.NewRedisSource(redisClient, cfg.Ingest.Redis.RedisConfig, logger))
	}
	if cfg.Ingest.Kafka.Enabled {
		src, err := ingest.NewKafkaSource(cfg.Ingest.Kafka.KafkaConfig, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if cfg.Ingest.MQTT.Enabled {
		sources = append(sources, ingest.NewMQTTSource(mqttClient, cfg.Ingest.MQTT.MQTTConfig, logger))
	}
	if cfg.Ingest.File.Enabled {
		src, err := ingest.NewFileSource(cfg.Ingest.File.FileConfig, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
