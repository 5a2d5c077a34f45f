package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"wachat-ws/internal/auth"
	"wachat-ws/internal/config"
	"wachat-ws/internal/delivery"
	"wachat-ws/internal/domain"
	"wachat-ws/internal/infrastructure/kafka"
	"wachat-ws/internal/infrastructure/memstore"
	"wachat-ws/internal/infrastructure/mongostore"
	"wachat-ws/internal/infrastructure/redis"
	"wachat-ws/internal/logging"
	"wachat-ws/internal/realtime"
)

// memoryStoreURI keeps every record in process, for local runs without MongoDB.
const memoryStoreURI = "memory"

type stores struct {
	users         domain.UserDirectory
	messages      domain.MessageStore
	conversations domain.ConversationStore
	statuses      domain.StatusStore
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Interface("panic", r).Msg("application recovered from panic")
			os.Exit(1)
		}
	}()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logging.New(cfg.LogLevel, cfg.Environment)
	log.Info().
		Str("environment", cfg.Environment).
		Str("port", cfg.Port).
		Str("redis", cfg.RedisAddr()).
		Strs("kafka_brokers", cfg.KafkaBrokers).
		Bool("kafka_enabled", cfg.KafkaEnabled).
		Str("cors_origins", cfg.GetCORSOrigins()).
		Msg("starting WaChat WebSocket server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]delivery.Pinger{}

	st, closeStores := openStores(ctx, cfg, log, checks)

	redisClient := redis.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err := redisClient.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis connection failed, presence mirror will retry per write")
	} else {
		log.Info().Msg("redis connection successful")
	}
	checks["redis"] = redisClient

	var (
		events        realtime.EventPublisher
		kafkaProducer *kafka.KafkaProducer
		outbox        *realtime.Outbox
	)
	if cfg.KafkaEnabled {
		kafkaProducer = kafka.NewKafkaProducer(cfg.KafkaBrokers, log)
		outbox = realtime.NewOutbox(kafkaProducer, cfg.EventBufferSize, log)
		events = outbox
	}

	registry := realtime.NewRegistry(st.users, redisClient, events, log)
	wsManager := delivery.NewWSManager(delivery.Coordinators{
		Registry:  registry,
		Typing:    realtime.NewTyping(registry, redisClient, cfg.TypingTimeout, log),
		Delivery:  realtime.NewDeliveryTracker(st.messages, st.conversations, st.users, registry, events, log),
		Reactions: realtime.NewReactionSynchronizer(st.messages, registry, events, log),
		Statuses:  realtime.NewStatusBroadcaster(st.statuses, st.users, registry, events, cfg.StatusTTL, log),
	}, delivery.WSOptions{
		PongWait:        cfg.WSPongWait,
		PingPeriod:      cfg.PingPeriod(),
		WriteWait:       cfg.WSWriteWait,
		EventsPerSecond: cfg.WSEventsPerSecond,
		EventBurst:      cfg.WSEventBurst,
	}, log)

	var kafkaConsumer *kafka.KafkaConsumer
	if cfg.KafkaEnabled {
		kafkaConsumer = kafka.NewKafkaConsumer(
			cfg.KafkaBrokers,
			cfg.KafkaGroupID,
			[]string{kafka.TopicChatMessages, kafka.TopicMessageReads},
			wsManager,
			log,
		)
		if err := kafkaConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("kafka consumer error")
		}
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	if !verifier.Enabled() {
		log.Warn().Msg("JWT_SECRET_KEY not set, callers are identified by the X-User-ID header")
	}
	server := delivery.NewServer(cfg, wsManager, verifier, checks, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutting down")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down http server")
		}
		if kafkaConsumer != nil {
			if err := kafkaConsumer.Close(); err != nil {
				log.Error().Err(err).Msg("error closing kafka consumer")
			}
		}
		if outbox != nil {
			_ = outbox.Close()
		}
		if kafkaProducer != nil {
			if err := kafkaProducer.Close(); err != nil {
				log.Error().Err(err).Msg("error closing kafka producer")
			}
		}
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis client")
		}
		closeStores(shutdownCtx)
	}()

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger, checks map[string]delivery.Pinger) (stores, func(context.Context)) {
	if cfg.MongoURI == memoryStoreURI {
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return stores{
			users:         memstore.NewUsers(),
			messages:      memstore.NewMessages(),
			conversations: memstore.NewConversations(),
			statuses:      memstore.NewStatuses(),
		}, func(context.Context) {}
	}

	client, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	checks["mongo"] = client
	closeFn := func(ctx context.Context) {
		if err := client.Close(ctx); err != nil {
			log.Error().Err(err).Msg("error closing mongo client")
		}
	}
	return stores{
		users:         client.Users(),
		messages:      client.Messages(),
		conversations: client.Conversations(),
		statuses:      client.Statuses(),
	}, closeFn
}
