package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperline/ticketbridge/config"
	"github.com/copperline/ticketbridge/intercom"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := Connect(context.Background(), config.NATSConfig{Embedded: true}, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func notification(id, topic, convID string) intercom.Notification {
	var n intercom.Notification
	n.ID = id
	n.Topic = topic
	n.Data.ID = intercom.ID(convID)
	return n
}

func TestBus_PublishAndConsume(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	received := make(chan intercom.Notification, 1)
	cc, err := b.Consume(ctx, func(ctx context.Context, n intercom.Notification) error {
		received <- n
		return nil
	})
	require.NoError(t, err)
	defer cc.Stop()

	require.NoError(t, b.PublishNotification(ctx, notification("notif_1", "conversation.user.created", "42")))

	select {
	case n := <-received:
		assert.Equal(t, "conversation.user.created", n.Topic)
		assert.Equal(t, "42", n.ConversationID())
	case <-time.After(5 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestBus_DuplicateDeliveriesSuppressed(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	var count atomic.Int32
	cc, err := b.Consume(ctx, func(ctx context.Context, n intercom.Notification) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)
	defer cc.Stop()

	n := notification("notif_dup", "conversation.user.replied", "7")
	require.NoError(t, b.PublishNotification(ctx, n))
	require.NoError(t, b.PublishNotification(ctx, n))

	// Publish a distinct marker so we know the stream has drained.
	require.NoError(t, b.PublishNotification(ctx, notification("notif_other", "conversation.user.replied", "8")))

	require.Eventually(t, func() bool {
		return count.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(2), count.Load(), "duplicate delivery should have been dropped")
}

func TestBus_PermanentFailureIsAcked(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	var count atomic.Int32
	cc, err := b.Consume(ctx, func(ctx context.Context, n intercom.Notification) error {
		count.Add(1)
		return errors.New("permanent failure")
	})
	require.NoError(t, err)
	defer cc.Stop()

	require.NoError(t, b.PublishNotification(ctx, notification("notif_fail", "conversation.admin.closed", "9")))

	require.Eventually(t, func() bool {
		return count.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// No redelivery for non-transient failures.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestBus_TransientFailureIsRedelivered(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	var count atomic.Int32
	cc, err := b.Consume(ctx, func(ctx context.Context, n intercom.Notification) error {
		if count.Add(1) == 1 {
			return intercom.NewTransientError(errors.New("flaky downstream"))
		}
		return nil
	})
	require.NoError(t, err)
	defer cc.Stop()

	require.NoError(t, b.PublishNotification(ctx, notification("notif_retry", "conversation.user.created", "10")))

	// Redelivery happens after the NAK delay.
	require.Eventually(t, func() bool {
		return count.Load() >= 2
	}, 15*time.Second, 50*time.Millisecond)
}

func TestBus_CancellationIsRedelivered(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	// A handler interrupted by shutdown surfaces a bare context error. The
	// notification must survive for the next run instead of being acked.
	var count atomic.Int32
	cc, err := b.Consume(ctx, func(ctx context.Context, n intercom.Notification) error {
		if count.Add(1) == 1 {
			return fmt.Errorf("intercom GET /conversations/11: %w", context.Canceled)
		}
		return nil
	})
	require.NoError(t, err)
	defer cc.Stop()

	require.NoError(t, b.PublishNotification(ctx, notification("notif_shutdown", "conversation.user.created", "11")))

	require.Eventually(t, func() bool {
		return count.Load() >= 2
	}, 15*time.Second, 50*time.Millisecond)
}

func TestSubjectForTopic(t *testing.T) {
	assert.Equal(t, "intercom.conversation.user.created", SubjectForTopic("conversation.user.created"))
	assert.Equal(t, "intercom.ping", SubjectForTopic("ping"))
}
