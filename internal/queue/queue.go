package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/subsync/internal/config"
	"github.com/therealutkarshpriyadarshi/subsync/internal/logging"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

const (
	ExchangeName           = "subsync"
	EventsQueueName        = "subtitles_loaded"
	DeadLetterExchangeName = "subsync_dlq"
	DeadLetterQueueName    = "subtitles_loaded_dlq"
	RetryQueueName         = "subtitles_loaded_retry"
	MaxRetries             = 5

	retryCountHeader = "x-retry-count"
)

// EventHandler processes one subtitles-loaded event
type EventHandler func(ctx context.Context, event *models.SubtitlesLoadedEvent) error

// Queue provides message queue operations
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logging.Logger

	republish func(ctx context.Context, body []byte, retryCount int) error
}

// New creates a new queue client and declares the event topology: the
// events queue dead-letters into the DLQ, and the retry queue dead-letters
// back into the events queue once a message expires
func New(cfg config.QueueConfig, logger *logging.Logger) (*Queue, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	if logger == nil {
		logger = logging.Nop()
	}

	q := &Queue{conn: conn, channel: channel, logger: logger}
	q.republish = q.publishToRetryQueue
	return q, nil
}

func declareTopology(channel *amqp.Channel) error {
	for _, exchange := range []string{ExchangeName, DeadLetterExchangeName} {
		err := channel.ExchangeDeclare(
			exchange,
			"direct",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	queues := []struct {
		name     string
		exchange string
		args     amqp.Table
	}{
		{name: DeadLetterQueueName, exchange: DeadLetterExchangeName},
		{
			name:     EventsQueueName,
			exchange: ExchangeName,
			args: amqp.Table{
				"x-dead-letter-exchange":    DeadLetterExchangeName,
				"x-dead-letter-routing-key": DeadLetterQueueName,
			},
		},
		{
			name: RetryQueueName,
			args: amqp.Table{
				"x-dead-letter-exchange":    ExchangeName,
				"x-dead-letter-routing-key": EventsQueueName,
			},
		},
	}

	for _, queue := range queues {
		_, err := channel.QueueDeclare(
			queue.name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			queue.args,
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue.name, err)
		}

		if queue.exchange == "" {
			continue
		}
		if err := channel.QueueBind(queue.name, queue.name, queue.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queue.name, err)
		}
	}

	return nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishSubtitlesLoaded publishes an event for the history worker
func (q *Queue) PublishSubtitlesLoaded(ctx context.Context, event *models.SubtitlesLoadedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		ExchangeName,
		EventsQueueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    event.ID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// ConsumeSubtitlesLoaded starts consuming events until ctx is done. Failed
// events are retried with backoff and dead-lettered after MaxRetries.
func (q *Queue) ConsumeSubtitlesLoaded(ctx context.Context, prefetch int, handler EventHandler) error {
	if prefetch <= 0 {
		prefetch = 1
	}

	err := q.channel.Qos(
		prefetch, // prefetch count
		0,        // prefetch size
		false,    // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		EventsQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				q.process(ctx, msg, handler)
			}
		}
	}()

	return nil
}

func (q *Queue) process(ctx context.Context, msg amqp.Delivery, handler EventHandler) {
	var event models.SubtitlesLoadedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		q.logger.WithError(err).Warn("dropping malformed event")
		msg.Nack(false, false)
		return
	}

	err := handler(ctx, &event)
	if err == nil {
		msg.Ack(false)
		return
	}

	retries := retryCount(msg.Headers)
	logger := q.logger.WithSession(event.SessionID).WithError(err).WithField("retry", retries)

	if retries >= MaxRetries {
		logger.Error("event moved to dead letter queue")
		msg.Nack(false, false)
		return
	}

	if err := q.republish(ctx, msg.Body, retries); err != nil {
		q.logger.WithError(err).Error("failed to schedule retry")
		msg.Nack(false, true)
		return
	}

	logger.Warnf("event queued for retry #%d in %v", retries+1, calculateBackoffDelay(retries))
	msg.Ack(false)
}

func (q *Queue) publishToRetryQueue(ctx context.Context, body []byte, retries int) error {
	err := q.channel.PublishWithContext(ctx,
		"",
		RetryQueueName,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			Headers:      amqp.Table{retryCountHeader: int32(retries + 1)},
			Expiration:   fmt.Sprintf("%d", calculateBackoffDelay(retries).Milliseconds()),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to retry queue: %w", err)
	}
	return nil
}

// ConsumeDLQ consumes dead-lettered events for manual processing
func (q *Queue) ConsumeDLQ(ctx context.Context, handler EventHandler) error {
	msgs, err := q.channel.Consume(DeadLetterQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register DLQ consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var event models.SubtitlesLoadedEvent
				if err := json.Unmarshal(msg.Body, &event); err != nil {
					msg.Ack(false)
					continue
				}

				if err := handler(ctx, &event); err != nil {
					msg.Nack(false, true)
				} else {
					msg.Ack(false)
				}
			}
		}
	}()

	return nil
}

// GetQueueDepth returns the number of messages in the queue
func (q *Queue) GetQueueDepth() (int, error) {
	return q.depth(EventsQueueName)
}

// GetDLQDepth returns the number of messages in the dead letter queue
func (q *Queue) GetDLQDepth() (int, error) {
	return q.depth(DeadLetterQueueName)
}

func (q *Queue) depth(name string) (int, error) {
	info, err := q.channel.QueueInspect(name)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue %s: %w", name, err)
	}
	return info.Messages, nil
}

func retryCount(headers amqp.Table) int {
	switch v := headers[retryCountHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// calculateBackoffDelay doubles from 5s and caps at 5 minutes
func calculateBackoffDelay(retries int) time.Duration {
	delay := 5 * time.Second * time.Duration(1<<retries)
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}
