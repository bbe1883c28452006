// Package broker carries pipeline messages over RabbitMQ: cluster signals
// go out, embedding batch completions come in.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"feedsync/internal/domain"
)

var ErrClosed = errors.New("delivery channel closed")

type Config struct {
	URL             string
	Exchange        string
	SignalKey       string
	SignalQueue     string
	EmbeddingsKey   string
	EmbeddingsQueue string
}

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	logger  *slog.Logger
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	for queue, key := range map[string]string{
		cfg.SignalQueue:     cfg.SignalKey,
		cfg.EmbeddingsQueue: cfg.EmbeddingsKey,
	} {
		if err := declareAndBind(ch, cfg.Exchange, queue, key); err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"signal_queue", cfg.SignalQueue,
		"embeddings_queue", cfg.EmbeddingsQueue,
	)

	return &RabbitMQ{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		logger:  logger.With("component", "broker"),
	}, nil
}

func declareAndBind(ch *amqp.Channel, exchange, queue, key string) error {
	q, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	err = ch.QueueBind(
		q.Name,
		key,
		exchange,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

func (r *RabbitMQ) PublishClusterSignal(ctx context.Context, signal domain.ClusterSignal) error {
	if err := r.publish(ctx, r.cfg.SignalKey, signal); err != nil {
		return err
	}

	r.logger.DebugContext(ctx, "published cluster signal", "cycle", signal.Cycle)
	return nil
}

// PublishEmbeddingsCompleted is what the embedding worker sends when it has
// drained a batch.
func (r *RabbitMQ) PublishEmbeddingsCompleted(ctx context.Context, done domain.EmbeddingBatchCompleted) error {
	return r.publish(ctx, r.cfg.EmbeddingsKey, done)
}

func (r *RabbitMQ) publish(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.cfg.Exchange,
		key,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// ConsumeEmbeddingsCompleted delivers embedding completions to handle until
// ctx is done. Malformed messages are dropped, handler failures requeued.
func (r *RabbitMQ) ConsumeEmbeddingsCompleted(ctx context.Context, handle func(context.Context, domain.EmbeddingBatchCompleted) error) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, r.cfg.EmbeddingsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.cfg.EmbeddingsQueue, err)
	}

	r.logger.Info("consuming embedding completions", "queue", r.cfg.EmbeddingsQueue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrClosed
			}
			r.deliver(ctx, d, handle)
		}
	}
}

func (r *RabbitMQ) deliver(ctx context.Context, d amqp.Delivery, handle func(context.Context, domain.EmbeddingBatchCompleted) error) {
	var msg domain.EmbeddingBatchCompleted
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		r.logger.WarnContext(ctx, "dropping malformed embedding message", "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := handle(ctx, msg); err != nil {
		r.logger.ErrorContext(ctx, "failed to handle embedding message", "error", err)
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
