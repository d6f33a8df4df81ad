package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"sui-buybot/agent/internal/models"
	"sui-buybot/shared/logger"
)

// RabbitFeed mirrors every normalized buy onto a RabbitMQ queue so external
// consumers (analytics, audit tooling) get the same feed the dispatcher
// sees. Publishing is best effort: the pipeline never blocks on the broker.
type RabbitFeed struct {
	url   string
	queue string
	log   *logger.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitFeed(url, queue string, log *logger.Logger) (*RabbitFeed, error) {
	feed := &RabbitFeed{url: url, queue: queue, log: log}
	if err := feed.connect(); err != nil {
		return nil, err
	}
	return feed, nil
}

func (f *RabbitFeed) connect() error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = f.dial(); err == nil {
			return nil
		}
		f.log.Warn("RabbitMQ connection failed", "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return fmt.Errorf("connecting to rabbitmq: %w", err)
}

func (f *RabbitFeed) dial() error {
	conn, err := amqp.Dial(f.url)
	if err != nil {
		return err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if _, err := channel.QueueDeclare(f.queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return err
	}
	f.mu.Lock()
	f.conn, f.channel = conn, channel
	f.mu.Unlock()
	return nil
}

// Publish sends one buy as JSON. A closed connection triggers a single
// reconnect attempt before giving up; the caller treats failure as non-fatal.
func (f *RabbitFeed) Publish(ctx context.Context, buy models.Buy) error {
	body, err := json.Marshal(buy)
	if err != nil {
		return err
	}

	f.mu.Lock()
	channel := f.channel
	closed := f.conn == nil || f.conn.IsClosed()
	f.mu.Unlock()

	if closed {
		if err := f.dial(); err != nil {
			return err
		}
		f.mu.Lock()
		channel = f.channel
		f.mu.Unlock()
	}

	return channel.PublishWithContext(ctx, "", f.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    buy.Timestamp,
		Body:         body,
	})
}

func (f *RabbitFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channel != nil {
		f.channel.Close()
	}
	if f.conn != nil {
		f.conn.Close()
	}
}
