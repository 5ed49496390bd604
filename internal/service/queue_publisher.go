// Package queue_publisher publishes workflow events to RabbitMQ.  Errors are
// logged and returned so callers can ignore failures without interrupting
// the main request flow.
package queue_publisher

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    q "github.com/iliyamo/ewaste-marketplace/internal/queue"
)

// Publisher sends events to the durable activity queue.  It dials per
// publish: workflow events are rare compared to requests, and a broker
// outage then costs one failed dial instead of a broken shared channel.
type Publisher struct {
    URL     string
    Log     *zap.Logger
    Timeout time.Duration
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
    if log == nil {
        log = zap.NewNop()
    }
    return &Publisher{URL: url, Log: log, Timeout: 3 * time.Second}
}

// PublishEvent marshals event and publishes it as a persistent message.
func (p *Publisher) PublishEvent(ctx context.Context, event q.WorkflowEvent) error {
    if p.Timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, p.Timeout)
        defer cancel()
    }

    body, err := json.Marshal(event)
    if err != nil {
        p.Log.Warn("rabbitmq: marshal event failed", zap.Error(err))
        return err
    }

    conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(p.dialTimeout())})
    if err != nil {
        p.Log.Warn("rabbitmq: dial failed", zap.String("event", event.Type), zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.Log.Warn("rabbitmq: channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(q.ActivityQueueName, true, false, false, false, nil); err != nil {
        p.Log.Warn("rabbitmq: queue declare failed", zap.Error(err))
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Type:         event.Type,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    // default exchange, routing key = queue name
    if err := ch.PublishWithContext(ctx, "", q.ActivityQueueName, false, false, pub); err != nil {
        p.Log.Warn("rabbitmq: publish failed", zap.String("event", event.Type), zap.Error(err))
        return err
    }
    return nil
}

func (p *Publisher) dialTimeout() time.Duration {
    if p.Timeout > 0 {
        return p.Timeout
    }
    return 30 * time.Second
}
