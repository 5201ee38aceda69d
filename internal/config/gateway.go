package config

import (
	"fmt"
	"strings"
	"time"
)

// Gateway configures the realtime gateway process.
type Gateway struct {
	Env            string
	HTTPAddr       string
	AllowedOrigins []string

	MessagingGRPCAddr string
	MessagingGRPCDial time.Duration
	MessagingGRPCTime time.Duration

	AuthMode     string
	AuthURL      string
	AuthTimeout  time.Duration
	StaticTokens map[string]string

	FanoutMode    string
	FanoutSubject string
	NATSURL       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers     []string
	KafkaGroupID     string
	KafkaTopicPrefix string
	KafkaTopics      []string
	ChatEventsTopic  string

	NotificationStore string
	MongoURI          string
	MongoDB           string

	S3Endpoint       string
	S3PublicEndpoint string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UseSSL         bool
	MaxAttachment    int64

	TypingRate      float64
	TypingBurst     int
	SendBuffer      int
	MaxMessageBytes int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
}

// LoadGateway parses gateway configuration from the current environment.
func LoadGateway() (Gateway, error) {
	cfg := Gateway{
		Env:               getEnv("APP_ENV", "dev"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8081"),
		AllowedOrigins:    splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		MessagingGRPCAddr: getEnv("MESSAGING_GRPC_ADDR", "localhost:9000"),
		AuthMode:          strings.ToLower(getEnv("AUTH_MODE", "static")),
		AuthURL:           getEnv("AUTH_URL", "http://localhost:8080/api/v1/auth/me"),
		FanoutMode:        strings.ToLower(getEnv("FANOUT_MODE", "memory")),
		FanoutSubject:     getEnv("FANOUT_SUBJECT", "rentme.realtime.deliveries"),
		NATSURL:           getEnv("NATS_URL", "nats://localhost:4222"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:      splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "rentme-realtime-notifications"),
		KafkaTopicPrefix:  getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaTopics:       splitAndTrim(getEnv("KAFKA_TOPICS", "booking.events.v1,payment.events.v1")),
		ChatEventsTopic:   getEnv("KAFKA_CHAT_TOPIC", "chat.events.v1"),
		NotificationStore: strings.ToLower(getEnv("NOTIFICATION_STORE", "memory")),
		MongoURI:          getEnv("MONGO_URI", ""),
		MongoDB:           getEnv("MONGO_DB", "rentals"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3PublicEndpoint:  getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:       getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:          getEnv("S3_BUCKET", "rentme-chat"),
	}

	if err := parseDurations([]durationSpec{
		{"MESSAGING_GRPC_DIAL_TIMEOUT", 3 * time.Second, &cfg.MessagingGRPCDial},
		{"MESSAGING_GRPC_TIMEOUT", 5 * time.Second, &cfg.MessagingGRPCTime},
		{"AUTH_TIMEOUT", 3 * time.Second, &cfg.AuthTimeout},
		{"WS_WRITE_WAIT", 10 * time.Second, &cfg.WriteWait},
		{"WS_PONG_WAIT", 60 * time.Second, &cfg.PongWait},
	}); err != nil {
		return Gateway{}, err
	}
	ping, err := parseDurationEnv("WS_PING_INTERVAL", cfg.PongWait*9/10)
	if err != nil {
		return Gateway{}, err
	}
	cfg.PingInterval = ping

	tokens, err := parseTokenTable(getEnv("AUTH_STATIC_TOKENS", ""))
	if err != nil {
		return Gateway{}, fmt.Errorf("invalid AUTH_STATIC_TOKENS: %w", err)
	}
	cfg.StaticTokens = tokens

	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return Gateway{}, err
	}
	if cfg.TypingRate, err = parseFloatEnv("TYPING_RATE", 2); err != nil {
		return Gateway{}, err
	}
	if cfg.TypingBurst, err = parseIntEnv("TYPING_BURST", 4); err != nil {
		return Gateway{}, err
	}
	if cfg.SendBuffer, err = parseIntEnv("WS_SEND_BUFFER", 256); err != nil {
		return Gateway{}, err
	}
	maxMsg, err := parseIntEnv("WS_MAX_MESSAGE_BYTES", 64*1024)
	if err != nil {
		return Gateway{}, err
	}
	cfg.MaxMessageBytes = int64(maxMsg)
	maxAttachment, err := parseIntEnv("MAX_ATTACHMENT_BYTES", 10<<20)
	if err != nil {
		return Gateway{}, err
	}
	cfg.MaxAttachment = int64(maxAttachment)
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Gateway{}, err
	}
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}

	if err := cfg.validate(); err != nil {
		return Gateway{}, err
	}
	return cfg, nil
}

func (cfg Gateway) validate() error {
	switch cfg.AuthMode {
	case "static":
		if len(cfg.StaticTokens) == 0 {
			return fmt.Errorf("AUTH_STATIC_TOKENS is required when AUTH_MODE=static")
		}
	case "http":
		if strings.TrimSpace(cfg.AuthURL) == "" {
			return fmt.Errorf("AUTH_URL is required when AUTH_MODE=http")
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE: %s", cfg.AuthMode)
	}
	switch cfg.FanoutMode {
	case "memory", "nats", "redis":
	default:
		return fmt.Errorf("unsupported FANOUT_MODE: %s", cfg.FanoutMode)
	}
	switch cfg.NotificationStore {
	case "memory":
	case "mongo":
		if cfg.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when NOTIFICATION_STORE=mongo")
		}
	default:
		return fmt.Errorf("unsupported NOTIFICATION_STORE: %s", cfg.NotificationStore)
	}
	if cfg.TypingRate <= 0 || cfg.TypingBurst < 1 {
		return fmt.Errorf("TYPING_RATE and TYPING_BURST must be positive")
	}
	if cfg.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if cfg.PingInterval >= cfg.PongWait {
		return fmt.Errorf("WS_PING_INTERVAL must be shorter than WS_PONG_WAIT")
	}
	return nil
}

// KafkaEnabled reports whether notification ingestion and chat events run.
func (cfg Gateway) KafkaEnabled() bool {
	return len(cfg.KafkaBrokers) > 0
}

// AttachmentsEnabled reports whether an S3 endpoint is configured.
func (cfg Gateway) AttachmentsEnabled() bool {
	return strings.TrimSpace(cfg.S3Endpoint) != ""
}

// Topic applies the configured prefix to a topic name.
func (cfg Gateway) Topic(name string) string {
	return cfg.KafkaTopicPrefix + name
}
