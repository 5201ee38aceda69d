package gateway

import (
	"time"

	"rentme-realtime/internal/config"
)

// Options tunes per-connection behaviour.
type Options struct {
	SendBuffer      int
	MaxMessageBytes int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	TypingRate      float64
	TypingBurst     int
	AllowedOrigins  []string
}

// DefaultOptions matches the gateway's environment defaults.
func DefaultOptions() Options {
	return Options{
		SendBuffer:      256,
		MaxMessageBytes: 64 * 1024,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingInterval:    54 * time.Second,
		TypingRate:      2,
		TypingBurst:     4,
	}
}

// OptionsFrom copies the connection settings out of cfg.
func OptionsFrom(cfg config.Gateway) Options {
	opts := DefaultOptions()
	opts.SendBuffer = cfg.SendBuffer
	opts.MaxMessageBytes = cfg.MaxMessageBytes
	opts.WriteWait = cfg.WriteWait
	opts.PongWait = cfg.PongWait
	opts.PingInterval = cfg.PingInterval
	opts.TypingRate = cfg.TypingRate
	opts.TypingBurst = cfg.TypingBurst
	opts.AllowedOrigins = cfg.AllowedOrigins
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = def.SendBuffer
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = def.MaxMessageBytes
	}
	if o.WriteWait <= 0 {
		o.WriteWait = def.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = def.PongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.TypingRate <= 0 {
		o.TypingRate = def.TypingRate
	}
	if o.TypingBurst < 1 {
		o.TypingBurst = def.TypingBurst
	}
	return o
}

func (o Options) originAllowed(origin string) bool {
	if origin == "" || len(o.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range o.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
