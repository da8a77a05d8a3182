package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/talgya/speedrunner/internal/engine"
)

// AMQPConfig locates the broker. Events go to a durable topic exchange
// with the event kind as routing key.
type AMQPConfig struct {
	URL      string        `yaml:"url"`
	Exchange string        `yaml:"exchange"`
	Timeout  time.Duration `yaml:"timeout"`
	// Ticks also publishes every tick, not just run start and finish.
	Ticks bool `yaml:"ticks"`
}

// amqpChannel is the slice of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends run events to an AMQP exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	timeout  time.Duration
	ticks    bool
	now      func() time.Time
}

// NewPublisher dials the broker and declares the exchange.
func NewPublisher(cfg AMQPConfig) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is empty")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	p := newPublisher(ch, cfg)
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch amqpChannel, cfg AMQPConfig) *Publisher {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "speedrunner"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{ch: ch, exchange: exchange, timeout: timeout, ticks: cfg.Ticks, now: time.Now}
}

func (p *Publisher) StartRun(r engine.RunSummary) error {
	return p.send(runEvent(KindRunStarted, r, p.now()))
}

func (p *Publisher) RecordTick(t engine.TickRecord) error {
	if !p.ticks {
		return nil
	}
	return p.send(tickEvent(t, p.now()))
}

func (p *Publisher) FinishRun(r engine.RunSummary) error {
	return p.send(runEvent(KindRunFinished, r, p.now()))
}

func (p *Publisher) send(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, ev.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%s/%s/%d", ev.RunID, ev.Kind, ev.At.UnixNano()),
		Timestamp:    ev.At,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
