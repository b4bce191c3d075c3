package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func validMessage() Message {
	return Message{To: "buyer@example.com", Subject: "Order confirmed", HTMLBody: "<p>thanks</p>"}
}

func TestDispatcherDeliversInBackground(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, logger.Nop(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d.Notify(ctx, validMessage())
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, d.Wait(waitCtx))
	assert.Equal(t, 1, sender.count())
}

func TestDispatcherSwallowsSenderErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(sender, logger.Nop(), time.Second)

	assert.NotPanics(t, func() { d.Notify(context.Background(), validMessage()) })
	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, 1, sender.count())
}

func TestDispatcherDropsInvalidMessages(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, logger.Nop(), time.Second)

	d.Notify(context.Background(), Message{Subject: "no recipient", HTMLBody: "x"})
	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, 0, sender.count())
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() { d.Notify(context.Background(), validMessage()) })
}
