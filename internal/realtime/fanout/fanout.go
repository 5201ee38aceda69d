// Package fanout carries gateway deliveries between gateway instances so
// that a room can span several processes. Every instance subscribes and
// delivers to its own connections, including the publishing instance.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"rentme-realtime/internal/realtime/wire"
)

var ErrClosed = errors.New("fanout: broker closed")

// Delivery is one encoded frame and its audience. The audience is the
// union of the room's members, the listed users and the notification
// subscribers of NotifyUser, minus ExcludeUser.
type Delivery struct {
	Origin      string          `json:"origin,omitempty"`
	Room        string          `json:"room,omitempty"`
	Users       []string        `json:"users,omitempty"`
	NotifyUser  string          `json:"notifyUser,omitempty"`
	ExcludeUser string          `json:"excludeUser,omitempty"`
	Event       wire.Name       `json:"event"`
	Frame       json.RawMessage `json:"frame"`
}

// Handler receives every published delivery.
type Handler func(Delivery)

type Broker interface {
	Publish(ctx context.Context, d Delivery) error
	// Subscribe installs h and returns once the subscription is live.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

func encode(d Delivery) ([]byte, error) {
	if len(d.Frame) == 0 {
		return nil, fmt.Errorf("fanout: empty frame for %s", d.Event)
	}
	return json.Marshal(d)
}

func decode(payload []byte) (Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(payload, &d); err != nil {
		return Delivery{}, fmt.Errorf("fanout: decode delivery: %w", err)
	}
	return d, nil
}
