package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	appnotifications "rentme-realtime/internal/app/notifications"
	appoutbox "rentme-realtime/internal/app/outbox"
	"rentme-realtime/internal/auth"
	"rentme-realtime/internal/config"
	"rentme-realtime/internal/domain/notification"
	"rentme-realtime/internal/infra/broker/kafka"
	mongodb "rentme-realtime/internal/infra/db/mongo"
	ginserver "rentme-realtime/internal/infra/http/gin"
	"rentme-realtime/internal/infra/inbox"
	"rentme-realtime/internal/infra/messaging"
	"rentme-realtime/internal/infra/obs"
	infraoutbox "rentme-realtime/internal/infra/outbox"
	"rentme-realtime/internal/infra/storage/memory"
	"rentme-realtime/internal/infra/storage/s3"
	"rentme-realtime/internal/realtime/fanout"
	"rentme-realtime/internal/realtime/gateway"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		obs.NewLogger("dev").Error("env file load failed", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadGateway()
	if err != nil {
		obs.NewLogger("dev").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("realtime-gateway failed", "error", err)
		os.Exit(1)
	}
	logger.Info("realtime-gateway stopped")
}

func run(ctx context.Context, cfg config.Gateway, logger *slog.Logger) error {
	metrics := obs.NewMetrics()
	var probes []obs.Probe
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	broker, err := newBroker(cfg, logger)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, func() { _ = broker.Close() })
	hub := gateway.NewHub(broker, logger, metrics)
	if err := hub.Start(ctx); err != nil {
		return err
	}

	msgClient, err := messaging.NewClient(ctx, messaging.Config{
		Addr:        cfg.MessagingGRPCAddr,
		DialTimeout: cfg.MessagingGRPCDial,
		CallTimeout: cfg.MessagingGRPCTime,
	}, logger, func(method, code string, elapsed time.Duration) {
		metrics.RPCDuration.WithLabelValues(method, code).Observe(elapsed.Seconds())
	})
	if err != nil {
		return err
	}
	cleanups = append(cleanups, func() { _ = msgClient.Close() })
	probes = append(probes, obs.Probe{Name: "messaging", Check: msgClient.Ready})

	var (
		notifStore appnotifications.Store = memory.NewNotificationStore()
		eventInbox appnotifications.Inbox = memory.NewInbox()
		queue      infraoutbox.Queue
		box        appoutbox.Outbox
	)
	if cfg.NotificationStore == "mongo" {
		mc, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mc.Close(closeCtx)
		})
		probes = append(probes, obs.Probe{Name: "mongo", Check: mc.Ping})
		if notifStore, err = mongodb.NewNotificationStore(ctx, mc.DB); err != nil {
			return err
		}
		if eventInbox, err = inbox.NewStore(ctx, mc.DB, cfg.KafkaGroupID); err != nil {
			return err
		}
		outboxStore, err := infraoutbox.NewStore(ctx, mc.DB)
		if err != nil {
			return err
		}
		queue, box = outboxStore, outboxStore
	} else {
		mem := memory.NewOutbox(nil)
		queue, box = mem, mem
	}

	notifier := &appnotifications.Service{
		Store:    notifStore,
		Delivery: hub,
		Logger:   logger,
		OnStored: func(n notification.Notification) {
			metrics.Notifications.WithLabelValues(string(n.Type)).Inc()
		},
	}

	router := &gateway.Router{
		Hub:       hub,
		Messaging: msgClient,
		Notifier:  notifier,
		Logger:    logger,
		Metrics:   metrics,
		Timeout:   cfg.MessagingGRPCTime,
	}

	if cfg.KafkaEnabled() {
		router.Outbox = box
		if err := startKafka(ctx, cfg, logger, queue, box, notifier, eventInbox, msgClient, &cleanups); err != nil {
			return err
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set; notification ingestion and chat events are disabled")
	}

	chat := &ginserver.ChatHandler{Messaging: msgClient, MaxAttachment: cfg.MaxAttachment, Logger: logger}
	if cfg.AttachmentsEnabled() {
		store, err := s3.NewStore(s3.Config{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Bucket:         cfg.S3Bucket,
			UseSSL:         cfg.S3UseSSL,
		}, logger)
		if err != nil {
			return err
		}
		chat.Attachments = store
		probes = append(probes, obs.Probe{Name: "s3", Check: store.Ping})
	}

	resolver := newResolver(cfg)
	ws := gateway.NewServer(hub, router, resolver, gateway.OptionsFrom(cfg), logger)
	engine := ginserver.NewRouter(cfg, obs.Middleware{Logger: logger, Metrics: metrics},
		obs.HealthHandlers{Probes: probes},
		ginserver.Handlers{
			Chat:           chat,
			Notifications:  &ginserver.NotificationHandler{Service: notifier, Logger: logger},
			Me:             &ginserver.MeHandler{},
			WebSocket:      ws.ServeWS,
			Metrics:        metrics.Handler(),
			AuthMiddleware: ginserver.AuthMiddleware{Resolver: resolver, Logger: logger}.Handle,
		})
	server := ginserver.NewServer(cfg, engine)

	go func() {
		<-ctx.Done()
		ws.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("realtime-gateway starting", "addr", cfg.HTTPAddr, "env", cfg.Env, "fanout", cfg.FanoutMode, "auth", cfg.AuthMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newResolver(cfg config.Gateway) auth.Resolver {
	if cfg.AuthMode == "http" {
		return auth.NewHTTPResolver(cfg.AuthURL, cfg.AuthTimeout)
	}
	return auth.StaticResolver(cfg.StaticTokens)
}

func newBroker(cfg config.Gateway, logger *slog.Logger) (fanout.Broker, error) {
	switch cfg.FanoutMode {
	case "nats":
		nc, err := fanout.ConnectNATS(cfg.NATSURL, "rentme-realtime-gateway", logger)
		if err != nil {
			return nil, err
		}
		return closingBroker{Broker: fanout.NewNATS(nc, cfg.FanoutSubject, logger), close: func() error {
			return nc.Drain()
		}}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return closingBroker{Broker: fanout.NewRedis(client, cfg.FanoutSubject, logger), close: client.Close}, nil
	default:
		return fanout.NewMemory(), nil
	}
}

// closingBroker also releases the broker's underlying connection.
type closingBroker struct {
	fanout.Broker
	close func() error
}

func (b closingBroker) Close() error {
	return errors.Join(b.Broker.Close(), b.close())
}

func startKafka(ctx context.Context, cfg config.Gateway, logger *slog.Logger, queue infraoutbox.Queue, box appoutbox.Outbox,
	notifier *appnotifications.Service, eventInbox appnotifications.Inbox, opener appnotifications.ConversationOpener, cleanups *[]func()) error {
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
	if err != nil {
		return err
	}
	*cleanups = append(*cleanups, func() { _ = producer.Close() })
	worker := &infraoutbox.Worker{
		Queue:       queue,
		Producer:    producer,
		Logger:      logger,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Topics: map[string]string{
			"message":      cfg.ChatEventsTopic,
			"conversation": cfg.ChatEventsTopic,
		},
		Backoff: []time.Duration{time.Second, 5 * time.Second, 30 * time.Second, time.Minute},
	}
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox worker stopped", "error", err)
		}
	}()

	ingestor := &appnotifications.Ingestor{
		Notifier:      notifier,
		Inbox:         eventInbox,
		Conversations: opener,
		Outbox:        box,
		Logger:        logger,
	}
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, kafka.PayloadHandler(ingestor.Handle), logger)
	if err != nil {
		return err
	}
	*cleanups = append(*cleanups, func() { _ = consumer.Close() })
	topics := make([]string, 0, len(cfg.KafkaTopics))
	for _, t := range cfg.KafkaTopics {
		topics = append(topics, cfg.Topic(t))
	}
	go func() {
		if err := consumer.Run(ctx, topics); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("notification consumer stopped", "error", err)
		}
	}()
	logger.Info("kafka wired", "brokers", cfg.KafkaBrokers, "topics", topics)
	return nil
}
