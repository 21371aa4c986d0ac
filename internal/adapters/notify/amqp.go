package notify

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    "github.com/streadway/amqp"

    "leakhound/internal/domain"
)

// Publisher sends events to a topic exchange for the CRM and other consumers.
// The routing key is the event kind.
type Publisher struct {
    mu       sync.Mutex
    conn     *amqp.Connection
    channel  *amqp.Channel
    exchange string
}

func NewPublisher(amqpURL, exchangeName string) (*Publisher, error) {
    conn, err := amqp.Dial(amqpURL)
    if err != nil {
        return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
    }
    channel, err := conn.Channel()
    if err != nil {
        conn.Close()
        return nil, fmt.Errorf("failed to open channel: %w", err)
    }
    err = channel.ExchangeDeclare(
        exchangeName, // name
        "topic",      // type
        true,         // durable
        false,        // auto-deleted
        false,        // internal
        false,        // no-wait
        nil,          // arguments
    )
    if err != nil {
        channel.Close()
        conn.Close()
        return nil, fmt.Errorf("failed to declare exchange: %w", err)
    }
    return &Publisher{conn: conn, channel: channel, exchange: exchangeName}, nil
}

func (p *Publisher) Name() string { return "amqp" }

func (p *Publisher) Notify(ctx context.Context, ev domain.Notification) error {
    publishing, err := encodeEvent(ev)
    if err != nil {
        return err
    }
    if err := ctx.Err(); err != nil {
        return err
    }
    // channels are not safe for concurrent publishing
    p.mu.Lock()
    defer p.mu.Unlock()
    if err := p.channel.Publish(
        p.exchange,      // exchange
        string(ev.Kind), // routing key
        false,           // mandatory
        false,           // immediate
        publishing,      // message
    ); err != nil {
        return fmt.Errorf("failed to publish message: %w", err)
    }
    return nil
}

func encodeEvent(ev domain.Notification) (amqp.Publishing, error) {
    body, err := json.Marshal(ev)
    if err != nil {
        return amqp.Publishing{}, fmt.Errorf("failed to marshal message to JSON: %w", err)
    }
    ts := ev.At
    if ts.IsZero() {
        ts = time.Now()
    }
    return amqp.Publishing{
        ContentType:  "application/json",
        Body:         body,
        DeliveryMode: amqp.Persistent,
        Timestamp:    ts,
        Type:         string(ev.Kind),
    }, nil
}

func (p *Publisher) Close() error {
    var err error
    if p.channel != nil {
        err = p.channel.Close()
    }
    if p.conn != nil {
        if cerr := p.conn.Close(); cerr != nil && err == nil {
            err = cerr
        }
    }
    return err
}
