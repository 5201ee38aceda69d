// Package kafka wraps sarama for event publication and consumption.
package kafka

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/IBM/sarama"
)

const cloudEventsContentType = "application/cloudevents+json"

// Producer publishes CloudEvents in structured mode: the envelope is the
// record value and its id, type and source are mirrored into ce_*
// headers so consumers can route without decoding the value.
type Producer struct {
	sync sarama.SyncProducer
}

func NewProducer(brokers []string, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Producer{sync: sync}, nil
}

// NewProducerFrom wraps an existing sync producer, e.g. a sarama mock.
func NewProducerFrom(sync sarama.SyncProducer) *Producer {
	return &Producer{sync: sync}
}

// Publish sends payload keyed by key, so every event of one
// conversation lands on the same partition.
func (p *Producer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.sync.SendMessage(buildMessage(topic, key, payload, headers))
	return err
}

func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}

type envelope struct {
	SpecVersion string `json:"specversion"`
	ID          string `json:"id"`
	Type        string `json:"type"`
	Source      string `json:"source"`
}

func buildMessage(topic, key string, payload []byte, headers map[string]string) *sarama.ProducerMessage {
	all := make(map[string]string, len(headers)+4)
	var env envelope
	if json.Unmarshal(payload, &env) == nil && env.SpecVersion != "" {
		all["content-type"] = cloudEventsContentType
		all["ce_specversion"] = env.SpecVersion
		all["ce_id"] = env.ID
		all["ce_type"] = env.Type
		all["ce_source"] = env.Source
	}
	for k, v := range headers {
		all[k] = v
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	hs := make([]sarama.RecordHeader, 0, len(keys))
	for _, k := range keys {
		hs = append(hs, sarama.RecordHeader{Key: []byte(k), Value: []byte(all[k])})
	}
	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Value:   sarama.ByteEncoder(payload),
		Headers: hs,
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	return msg
}
