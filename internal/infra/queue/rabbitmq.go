package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"x-intel/internal/domain"
)

// RabbitIntelQueue реализует очередь задач анализа поверх AMQP.
// Сообщения публикуются персистентными в durable-очередь; обработка
// подтверждается вручную через возвращаемый IntelAckFunc.
type RabbitIntelQueue struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	queue      string
	deliveries <-chan amqp091.Delivery
}

var _ domain.IntelQueue = (*RabbitIntelQueue)(nil)

// NewRabbitIntelQueue подключается к брокеру и объявляет очередь.
func NewRabbitIntelQueue(amqpURL, queueName string) (*RabbitIntelQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("пустой amqp url")
	}
	if queueName == "" {
		return nil, errors.New("пустое имя очереди")
	}
	conn, err := amqp091.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("подключение к rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("открытие канала: %w", err)
	}
	if _, err := channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("объявление очереди: %w", err)
	}
	// Один неподтверждённый анализ на воркер: задачи тяжёлые.
	if err := channel.Qos(1, 0, false); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("настройка qos: %w", err)
	}
	deliveries, err := channel.Consume(
		queueName,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("подписка на очередь: %w", err)
	}
	return &RabbitIntelQueue{conn: conn, channel: channel, queue: queueName, deliveries: deliveries}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitIntelQueue) Enqueue(ctx context.Context, job domain.IntelJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.channel.PublishWithContext(ctx,
		"",      // exchange
		q.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// Receive блокирующе получает следующую задачу. Возвращённый ack
// подтверждает доставку либо возвращает сообщение в очередь.
func (q *RabbitIntelQueue) Receive(ctx context.Context) (domain.IntelJob, domain.IntelAckFunc, error) {
	select {
	case <-ctx.Done():
		return domain.IntelJob{}, nil, ctx.Err()
	case delivery, ok := <-q.deliveries:
		if !ok {
			return domain.IntelJob{}, nil, errors.New("канал доставки закрыт")
		}
		var job domain.IntelJob
		if err := json.Unmarshal(delivery.Body, &job); err != nil {
			// Некорректное сообщение переиграть нельзя.
			_ = delivery.Nack(false, false)
			return domain.IntelJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return delivery.Ack(false)
			}
			return delivery.Nack(false, true)
		}
		return job, ack, nil
	}
}

// Close освобождает канал и соединение.
func (q *RabbitIntelQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
