package notify

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultQueueSize   = 256
	defaultMaxAttempts = 3
	defaultSendTimeout = 30 * time.Second
)

// Dispatcher decouples notification delivery from the request path. Send
// enqueues and returns immediately; a background worker drains the queue
// with bounded retry and backoff. When the queue is full the message is
// dropped and logged - callers have already committed their state transition
// and must not block.
type Dispatcher struct {
	inner       Notifier
	logger      *slog.Logger
	queue       chan Message
	maxAttempts int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDispatcher wraps inner with an async queue. queueSize <= 0 selects the
// default.
func NewDispatcher(inner Notifier, logger *slog.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Dispatcher{
		inner:       inner,
		logger:      logger,
		queue:       make(chan Message, queueSize),
		maxAttempts: defaultMaxAttempts,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the delivery worker. Non-blocking.
func (d *Dispatcher) Start() {
	go d.run()
	d.logger.Info("notification dispatcher started", "queue_size", cap(d.queue))
}

// Stop drains nothing further and waits for the in-flight delivery to finish.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
	d.logger.Info("notification dispatcher stopped")
}

// Send enqueues the message. It never blocks and never returns an error for
// delivery problems; the returned error is always nil and exists only to
// satisfy Notifier.
func (d *Dispatcher) Send(_ context.Context, msg Message) error {
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("notification queue full, dropping message",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
		)
	}
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)

	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		case <-d.stopCh:
			// Best-effort drain of whatever is already queued.
			for {
				select {
				case msg := <-d.queue:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

// deliver attempts delivery with linear backoff. Failures are logged and
// swallowed.
func (d *Dispatcher) deliver(msg Message) {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
		err = d.inner.Send(ctx, msg)
		cancel()
		if err == nil {
			return
		}

		d.logger.Warn("notification delivery failed",
			slog.String("to", msg.To),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)

		if attempt < d.maxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-d.stopCh:
				return
			}
		}
	}

	d.logger.Error("notification dropped after retries",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Any("error", err),
	)
}
