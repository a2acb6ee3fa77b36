package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AssetTaskPublisher отправляет задачи генерации ассетов воркеру.
type AssetTaskPublisher interface {
	PublishAssetTask(ctx context.Context, payload AssetTaskPayload) error
}

// DeclareAssetTopology объявляет DLX, DLQ и основную очередь задач.
// Параметры очереди одинаковы у API и воркера, поэтому объявлять может любой из них.
func DeclareAssetTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(AssetTaskDLXName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx '%s': %w", AssetTaskDLXName, err)
	}
	if _, err := ch.QueueDeclare(AssetTaskDLQName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq '%s': %w", AssetTaskDLQName, err)
	}
	if err := ch.QueueBind(AssetTaskDLQName, AssetTaskDLQRouteKey, AssetTaskDLXName, false, nil); err != nil {
		return fmt.Errorf("bind dlq '%s': %w", AssetTaskDLQName, err)
	}
	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    AssetTaskDLXName,
		"x-dead-letter-routing-key": AssetTaskDLQRouteKey,
	}
	if _, err := ch.QueueDeclare(AssetTaskQueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue '%s': %w", AssetTaskQueueName, err)
	}
	return nil
}

type rabbitMQPublisher struct {
	mu        sync.Mutex
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQAssetPublisher открывает канал и объявляет топологию очереди задач.
func NewRabbitMQAssetPublisher(conn *amqp.Connection, logger *zap.Logger) (AssetTaskPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("asset publisher: failed to open channel: %w", err)
	}
	if err := DeclareAssetTopology(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("asset publisher: %w", err)
	}
	logger.Info("Asset task queue declared", zap.String("queue", AssetTaskQueueName))
	return &rabbitMQPublisher{channel: ch, queueName: AssetTaskQueueName, logger: logger.Named("AssetPublisher")}, nil
}

func (p *rabbitMQPublisher) PublishAssetTask(ctx context.Context, payload AssetTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal asset task: %w", err)
	}

	// amqp.Channel не потокобезопасен для публикаций.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		"",          // exchange
		p.queueName, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    payload.TaskID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish asset task",
			zap.String("task_id", payload.TaskID),
			zap.String("kind", string(payload.Kind)),
			zap.Error(err))
		return fmt.Errorf("failed to publish asset task: %w", err)
	}
	p.logger.Debug("Asset task published",
		zap.String("task_id", payload.TaskID),
		zap.String("segment_id", payload.SegmentID),
		zap.String("kind", string(payload.Kind)))
	return nil
}

// DeliveryHandler обрабатывает одно сообщение. true означает ack.
type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, msg amqp.Delivery) bool
}

// Consume читает очередь задач до отмены контекста или закрытия канала.
// Необработанные сообщения уходят в DLQ без повторной постановки.
func Consume(ctx context.Context, conn *amqp.Connection, consumerTag string, prefetch int, handler DeliveryHandler, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := DeclareAssetTopology(ch); err != nil {
		return err
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(AssetTaskQueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	logger.Info("Consumer started, waiting for messages...", zap.String("queue", AssetTaskQueueName), zap.Int("prefetch", prefetch))

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				logger.Warn("Consumer channel closed by RabbitMQ")
				return nil
			}
			if handler.HandleDelivery(ctx, msg) {
				if ackErr := msg.Ack(false); ackErr != nil {
					logger.Error("Failed to ack message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(ackErr))
				}
			} else {
				if nackErr := msg.Nack(false, false); nackErr != nil {
					logger.Error("Failed to nack message", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(nackErr))
				}
			}
		case <-ctx.Done():
			logger.Info("Context cancelled, stopping consumer...")
			return nil
		}
	}
}

// Dial подключается к RabbitMQ с повторными попытками.
func Dial(ctx context.Context, url string, attempts int, delay time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			logger.Info("RabbitMQ connected successfully")
			return conn, nil
		}
		lastErr = err
		logger.Warn("Failed to connect to RabbitMQ", zap.Int("attempt", i), zap.Int("max_attempts", attempts), zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}
