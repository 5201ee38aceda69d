package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Client configures a realtime chat session.
type Client struct {
	Env         string
	BaseURL     string
	WSURL       string
	Token       string
	HTTPTimeout time.Duration

	SendTimeout    time.Duration
	TypingTTL      time.Duration
	TypingSweep    time.Duration
	TypingThrottle time.Duration
	TypingSilence  time.Duration

	ReconnectBase   time.Duration
	ReconnectMax    time.Duration
	ReconnectFactor float64
	ReconnectJitter float64
	QueueLimit      int
}

// DefaultClient returns the timing defaults of a chat session.
func DefaultClient() Client {
	return Client{
		Env:             "dev",
		BaseURL:         "http://localhost:8081",
		HTTPTimeout:     10 * time.Second,
		SendTimeout:     10 * time.Second,
		TypingTTL:       5 * time.Second,
		TypingSweep:     time.Second,
		TypingThrottle:  2 * time.Second,
		TypingSilence:   3 * time.Second,
		ReconnectBase:   500 * time.Millisecond,
		ReconnectMax:    30 * time.Second,
		ReconnectFactor: 2,
		ReconnectJitter: 0.25,
		QueueLimit:      256,
	}
}

// LoadClient overlays RENTME_* environment variables on DefaultClient.
func LoadClient() (Client, error) {
	def := DefaultClient()
	cfg := Client{
		Env:     getEnv("APP_ENV", def.Env),
		BaseURL: strings.TrimRight(getEnv("RENTME_BASE_URL", def.BaseURL), "/"),
		WSURL:   getEnv("RENTME_WS_URL", ""),
		Token:   getEnv("RENTME_TOKEN", ""),
	}
	if err := parseDurations([]durationSpec{
		{"RENTME_HTTP_TIMEOUT", def.HTTPTimeout, &cfg.HTTPTimeout},
		{"RENTME_SEND_TIMEOUT", def.SendTimeout, &cfg.SendTimeout},
		{"RENTME_TYPING_TTL", def.TypingTTL, &cfg.TypingTTL},
		{"RENTME_TYPING_SWEEP", def.TypingSweep, &cfg.TypingSweep},
		{"RENTME_TYPING_THROTTLE", def.TypingThrottle, &cfg.TypingThrottle},
		{"RENTME_TYPING_SILENCE", def.TypingSilence, &cfg.TypingSilence},
		{"RENTME_RECONNECT_BASE", def.ReconnectBase, &cfg.ReconnectBase},
		{"RENTME_RECONNECT_MAX", def.ReconnectMax, &cfg.ReconnectMax},
	}); err != nil {
		return Client{}, err
	}
	var err error
	if cfg.ReconnectFactor, err = parseFloatEnv("RENTME_RECONNECT_FACTOR", def.ReconnectFactor); err != nil {
		return Client{}, err
	}
	if cfg.ReconnectJitter, err = parseFloatEnv("RENTME_RECONNECT_JITTER", def.ReconnectJitter); err != nil {
		return Client{}, err
	}
	if cfg.QueueLimit, err = parseIntEnv("RENTME_QUEUE_LIMIT", def.QueueLimit); err != nil {
		return Client{}, err
	}
	if err := cfg.Normalize(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// Normalize validates the config and derives WSURL from BaseURL when unset.
func (cfg *Client) Normalize() error {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.WSURL == "" {
		ws := *base
		switch base.Scheme {
		case "https":
			ws.Scheme = "wss"
		default:
			ws.Scheme = "ws"
		}
		ws.Path = strings.TrimRight(base.Path, "/") + "/ws"
		cfg.WSURL = ws.String()
	}
	if cfg.ReconnectBase <= 0 || cfg.ReconnectMax < cfg.ReconnectBase {
		return fmt.Errorf("reconnect base must be positive and not exceed max")
	}
	if cfg.ReconnectFactor < 1 {
		return fmt.Errorf("reconnect factor must be >= 1")
	}
	if cfg.ReconnectJitter < 0 || cfg.ReconnectJitter >= 1 {
		return fmt.Errorf("reconnect jitter must be in [0,1)")
	}
	if cfg.QueueLimit < 1 {
		return fmt.Errorf("queue limit must be positive")
	}
	if cfg.SendTimeout <= 0 || cfg.TypingTTL <= 0 || cfg.TypingSweep <= 0 {
		return fmt.Errorf("send timeout and typing intervals must be positive")
	}
	return nil
}
