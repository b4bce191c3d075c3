package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultSendTimeout = 15 * time.Second

// Dispatcher hands messages to a Sender in the background. Delivery errors are
// logged and never returned to the caller.
type Dispatcher struct {
	sender  Sender
	logg    *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher wraps sender. A non-positive timeout uses the default.
func NewDispatcher(sender Sender, logg *logger.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Dispatcher{sender: sender, logg: logg, timeout: timeout}
}

// Notify queues msg for delivery and returns immediately.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	if d == nil || d.sender == nil {
		return
	}
	if err := msg.Validate(); err != nil {
		d.logg.Error(ctx, "notification dropped", err)
		return
	}

	sendCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(sendCtx, d.timeout)
		defer cancel()

		logCtx := d.logg.WithFields(ctx, map[string]any{
			"recipient": msg.To,
			"subject":   msg.Subject,
		})
		if err := d.sender.Send(ctx, msg); err != nil {
			d.logg.Error(logCtx, "notification delivery failed", err)
			return
		}
		d.logg.Debug(logCtx, "notification delivered")
	}()
}

// Wait blocks until queued deliveries finish or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSender writes messages to the log instead of delivering them. Used when
// no email provider is configured.
type LogSender struct {
	Logg *logger.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	if s.Logg == nil {
		return nil
	}
	ctx = s.Logg.WithFields(ctx, map[string]any{
		"recipient":   msg.To,
		"subject":     msg.Subject,
		"attachments": len(msg.Attachments),
	})
	s.Logg.Info(ctx, "email delivery disabled; message logged")
	return nil
}
