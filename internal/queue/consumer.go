package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// ActivityConsumer listens on the activity queue and appends every workflow
// event to <Dir>/activity.log in a single-line, human-friendly format.
type ActivityConsumer struct {
    URL string
    Dir string
    Log *zap.Logger
}

// Run connects to RabbitMQ, declares the activity queue (durable) and
// consumes messages until ctx is cancelled.  It reconnects with
// exponential backoff, so a broker outage never stops the server.
// Malformed messages are rejected without requeue to avoid tight loops.
func (c *ActivityConsumer) Run(ctx context.Context) {
    log := c.Log
    if log == nil {
        log = zap.NewNop()
    }
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return
        }
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            log.Warn("activity consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return
        }
        log.Warn("activity consumer: consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return
        }
    }
}

func (c *ActivityConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection, log *zap.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn("activity consumer: set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(ActivityQueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(ActivityQueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.HandleMessage(d.Body); err != nil {
                log.Error("activity consumer: handle message failed", zap.Error(err))
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// HandleMessage decodes one event and appends its log line.
func (c *ActivityConsumer) HandleMessage(body []byte) error {
    var ev WorkflowEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" {
        return errors.New("event without type")
    }
    dir := c.Dir
    if dir == "" {
        dir = "logs"
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(filepath.Join(dir, "activity.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatLine renders an event as one log line.  Empty fields are omitted.
func FormatLine(ev WorkflowEvent) string {
    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s | actor=%s(%s)", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.ActorID, ev.ActorRole)
    kv := func(k, v string) {
        if v != "" && v != "0" {
            fmt.Fprintf(&b, " | %s=%s", k, v)
        }
    }
    kv("request_id", fmt.Sprint(ev.RequestID))
    kv("request_code", ev.RequestCode)
    kv("status", ev.Status)
    kv("inventory_id", fmt.Sprint(ev.InventoryID))
    if ev.ItemName != "" {
        fmt.Fprintf(&b, " | item=%q", ev.ItemName)
    }
    kv("order_code", ev.OrderCode)
    kv("company_id", ev.CompanyID)
    kv("total", ev.TotalPrice)
    b.WriteByte('\n')
    return b.String()
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
