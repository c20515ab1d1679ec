// Package events publishes capture activity to a RabbitMQ exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bdougie/framegrab/internal/models"
)

const (
	DefaultExchange = "framegrab.frames"

	RoutingCaptured  = "frame.captured"
	RoutingDescribed = "frame.described"
	RoutingDeleted   = "frame.deleted"
)

// FrameMessage is the body of every frame event.
type FrameMessage struct {
	FrameID     string    `json:"frame_id"`
	Video       string    `json:"video"`
	Timestamp   float64   `json:"timestamp_seconds"`
	FileName    string    `json:"file_name,omitempty"`
	Target      string    `json:"target,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Description string    `json:"description,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewFrameMessage builds the event body for a catalog record.
func NewFrameMessage(rec models.FrameRecord, target string) FrameMessage {
	return FrameMessage{
		FrameID:     rec.ID,
		Video:       rec.Video,
		Timestamp:   rec.Timestamp,
		FileName:    rec.FileName,
		Target:      target,
		Width:       rec.Width,
		Height:      rec.Height,
		Description: rec.Description,
		OccurredAt:  time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, msg FrameMessage) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages on a topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}

	err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, msg FrameMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", routingKey, err)
	}
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    msg.FrameID,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	p.channel.Close()
	return p.conn.Close()
}

type nopPublisher struct{}

// NewNopPublisher returns a publisher that drops every event.
func NewNopPublisher() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, string, FrameMessage) error { return nil }
func (nopPublisher) Close() error                                        { return nil }

// Open connects to url, or returns a no-op publisher when url is empty.
func Open(url, exchange string) (Publisher, error) {
	if url == "" {
		return NewNopPublisher(), nil
	}
	p, err := NewAMQPPublisher(url, exchange)
	if err != nil {
		return nil, err
	}
	return p, nil
}
