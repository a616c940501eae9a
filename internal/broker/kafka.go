package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dujiao-next/checkout/internal/config"
	"github.com/dujiao-next/checkout/internal/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event 领域事件
type Event struct {
	EventID     string      `json:"event_id"`
	EventType   string      `json:"event_type"`
	AggregateID uint        `json:"aggregate_id"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Payload     interface{} `json:"payload"`
}

// NewEvent 创建事件
func NewEvent(eventType string, aggregateID uint, payload interface{}) Event {
	return Event{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 基于 kafka-go 的事件发布
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher 根据配置创建发布器，未启用时返回仅记录日志的实现
func NewPublisher(cfg config.KafkaConfig) Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return NoopPublisher{}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	return &KafkaPublisher{writer: writer, topic: cfg.Topic}
}

// Publish 发布事件，按聚合 ID 分区保证同一订单的事件有序
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%s-%d", event.EventType, event.AggregateID)),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message failed: %w", err)
	}
	logger.Debugw("broker_event_published",
		"topic", p.topic,
		"event_type", event.EventType,
		"aggregate_id", event.AggregateID,
		"event_id", event.EventID,
	)
	return nil
}

// Close 关闭发布器
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NoopPublisher 未配置 Kafka 时使用
type NoopPublisher struct{}

// Publish 仅记录日志
func (NoopPublisher) Publish(ctx context.Context, event Event) error {
	logger.Debugw("broker_event_skipped", "event_type", event.EventType, "aggregate_id", event.AggregateID)
	return nil
}

// Close 无操作
func (NoopPublisher) Close() error {
	return nil
}
