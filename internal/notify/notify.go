// Package notify publishes lifecycle events to interested parties. Delivery
// is fire-and-forget: the core never blocks on or retries a failed publish.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event is one lifecycle notification. Kind doubles as the routing key.
type Event struct {
	Kind          string    `json:"kind"`
	ReservationID string    `json:"reservation_id"`
	PaymentID     string    `json:"payment_id,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	At            time.Time `json:"at"`
}

const (
	KindPaymentAuthorized   = "payment.authorized"
	KindPaymentCaptured     = "payment.captured"
	KindHoldExpired         = "hold.expired"
	KindFulfillmentRejected = "fulfillment.rejected"
	KindRefundRequested     = "refund.requested"
	// KindRefundFailed escalates to operator attention; a failed refund
	// leaves money ambiguous and must be reconciled manually.
	KindRefundFailed = "refund.failed"
)

// Notifier is the narrow contract the services consume.
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

// AMQPNotifier publishes events to a durable RabbitMQ queue. Any error is
// logged and swallowed so the main request flow is never interrupted.
type AMQPNotifier struct {
	url    string
	queue  string
	logger *log.Logger
}

// NewAMQP returns a notifier publishing to the given queue.
func NewAMQP(url, queue string, logger *log.Logger) *AMQPNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &AMQPNotifier{url: url, queue: queue, logger: logger}
}

func (n *AMQPNotifier) Publish(ctx context.Context, ev Event) {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		n.logger.Printf("notify: dial failed kind=%s err=%v", ev.Kind, err)
		return
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		n.logger.Printf("notify: channel failed kind=%s err=%v", ev.Kind, err)
		return
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts; declare is idempotent.
	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		n.logger.Printf("notify: queue declare failed kind=%s err=%v", ev.Kind, err)
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		n.logger.Printf("notify: marshal failed kind=%s err=%v", ev.Kind, err)
		return
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", n.queue, false, false, pub); err != nil {
		n.logger.Printf("notify: publish failed kind=%s err=%v", ev.Kind, err)
	}
}

// Nop discards every event; used in tests and local setups without a broker.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
