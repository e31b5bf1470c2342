package queue

import (
	"context"
	"errors"
	"fmt"
)

const (
	// ReceiptQueue carries push delivery receipts into the worker.
	ReceiptQueue = "push.receipts"
	dlxExchange  = "shift.dlx"
)

// ErrRejectMessage marks a handler failure that retrying cannot fix; the
// message goes to the dead-letter queue instead of being requeued.
var ErrRejectMessage = errors.New("reject message")

// Publisher publishes receipt messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg ReceiptMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg ReceiptMessage) error

// Consumer consumes receipt messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.push.receipts.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns every work queue the topology declares.
func WorkQueueNames() []string {
	return []string{ReceiptQueue}
}
