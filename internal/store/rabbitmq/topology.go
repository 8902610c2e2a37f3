package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queues names the three queues backing one job stream: the main work queue,
// a delay queue for transient failures, and a dead-letter queue for messages
// given up on.
type Queues struct {
	Main  string
	Retry string
	DLQ   string
}

func QueuesFor(main string) Queues {
	return Queues{
		Main:  main,
		Retry: main + ".retry",
		DLQ:   main + ".dlq",
	}
}

// Args returns the declaration arguments per queue. The main queue
// dead-letters rejected deliveries to the DLQ; the retry queue parks a
// message until its per-message TTL expires, then dead-letters it back to
// the main queue. The broker refuses to re-declare a queue with different
// arguments, so every process must declare through this table.
func (q Queues) Args() map[string]amqp.Table {
	return map[string]amqp.Table{
		q.DLQ: nil,
		q.Retry: {
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.Main,
		},
		q.Main: {
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.DLQ,
		},
	}
}

// Declare creates the three queues on ch. Safe to call from both the
// publisher and the worker, in any order.
func (q Queues) Declare(ch *amqp.Channel) error {
	args := q.Args()
	for _, name := range []string{q.DLQ, q.Retry, q.Main} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, args[name]); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}
	return nil
}

const retryCountHeader = "x-retry-count"

// RetryCount reports how many times a delivery has been through the retry
// queue. Brokers and clients disagree on the integer type of table values,
// so all of them are accepted.
func RetryCount(d amqp.Delivery) int {
	if d.Headers == nil {
		return 0
	}
	switch v := d.Headers[retryCountHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

// nextRetryHeaders copies the delivery's headers with the retry count
// incremented.
func nextRetryHeaders(d amqp.Delivery) amqp.Table {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryCountHeader] = int32(RetryCount(d) + 1)
	return headers
}

// PublishRetry re-publishes a delivery onto the retry queue with the given
// delay. When the per-message TTL expires the broker routes it back to the
// main queue. The caller still has to Ack the original delivery.
func PublishRetry(ctx context.Context, ch *amqp.Channel, q Queues, d amqp.Delivery, delay time.Duration) error {
	return ch.PublishWithContext(ctx,
		"",
		q.Retry,
		false,
		false,
		amqp.Publishing{
			ContentType:  d.ContentType,
			DeliveryMode: amqp.Persistent,
			Headers:      nextRetryHeaders(d),
			Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
			Body:         d.Body,
			Timestamp:    time.Now(),
		},
	)
}
