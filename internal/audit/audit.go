// Package audit は店舗・バウチャーの作成/更新を監査イベントとして配信する。
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic は監査イベントのデフォルトトピック。
const DefaultTopic = "vouchdesk.audit"

// batchTimeout はWriterがバッチを送るまでの待ち時間。Publishは同期で1件ずつ書き込む。
const batchTimeout = 10 * time.Millisecond

// Event は1件の監査イベント。
type Event struct {
	Action   string    `json:"action"` // create, update
	Entity   string    `json:"entity"` // establishment, voucher
	EntityID string    `json:"entity_id"`
	UserID   string    `json:"user_id"`
	At       time.Time `json:"at"`
}

// Publisher は監査イベントの配信先。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// messageWriter はkafka.Writerの部分集合。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher はKafkaへ監査イベントをJSONで書き込む。
// キーにはエンティティIDを使い、同じエンティティのイベントが同じパーティションに入るようにする。
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaPublisher はKafkaPublisherを生成する。
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           batchTimeout,
			AllowAutoTopicCreation: true,
		},
		topic:   topic,
		timeout: 5 * time.Second,
	}
}

// Publish はイベントを1件書き込む。
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	v, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.EntityID),
		Value: v,
		Time:  event.At,
	})
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close はWriterを閉じる。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher は何もしないPublisher。KAFKA_BROKERS未設定時に使う。
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Recorder はフォーム送信の成功を監査イベントにして配信する。
// 配信の失敗はログに残すだけで、呼び出し元には返さない。
type Recorder struct {
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewRecorder はRecorderを生成する。
func NewRecorder(publisher Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{publisher: publisher, logger: logger, now: time.Now}
}

// Submitted は作成/更新の成功を記録する。
func (r *Recorder) Submitted(ctx context.Context, userID, entity, action, entityID string) {
	event := Event{
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		UserID:   userID,
		At:       r.now().UTC(),
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Error("failed to publish audit event",
			slog.String("error", err.Error()),
			slog.String("entity", entity),
			slog.String("entity_id", entityID),
			slog.String("action", action),
		)
	}
}
