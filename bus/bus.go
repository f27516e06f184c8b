// Package bus provides the internal NATS JetStream event bus that decouples
// webhook receipt from ticket processing.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/copperline/ticketbridge/config"
	"github.com/copperline/ticketbridge/intercom"
)

const (
	// StreamName is the JetStream stream buffering webhook notifications.
	StreamName = "TICKETBRIDGE_EVENTS"

	// subjectPrefix namespaces notification subjects, e.g.
	// intercom.conversation.user.created.
	subjectPrefix = "intercom."

	// ConsumerName is the durable consumer the bridge processes from.
	ConsumerName = "bridge"

	// dedupeWindow suppresses webhook redeliveries with the same delivery ID.
	dedupeWindow = 2 * time.Minute

	// maxEventAge bounds how long unprocessed notifications are kept.
	maxEventAge = 24 * time.Hour

	// nakDelay is how long a failed notification waits before redelivery.
	nakDelay = 10 * time.Second

	embeddedStartTimeout = 5 * time.Second
)

// Bus wraps the NATS connection, stream, and embedded server lifecycle.
type Bus struct {
	embeddedServer *server.Server
	conn           *nats.Conn
	js             jetstream.JetStream
	stream         jetstream.Stream
	logger         *slog.Logger
}

// Connect starts (or connects to) NATS and ensures the event stream exists.
func Connect(ctx context.Context, cfg config.NATSConfig, logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bus{logger: logger}

	if cfg.URL != "" && !cfg.Embedded {
		logger.Info("Connecting to NATS", slog.String("url", cfg.URL))
		conn, err := nats.Connect(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		b.conn = conn
	} else {
		logger.Info("Starting embedded NATS server")
		opts := &server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(embeddedStartTimeout) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded NATS server failed to start")
		}
		b.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return nil, fmt.Errorf("connect to embedded NATS: %w", err)
		}
		b.conn = conn
	}

	js, err := jetstream.New(b.conn)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	b.js = js

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Intercom webhook notifications",
		Subjects:    []string{subjectPrefix + ">"},
		MaxAge:      maxEventAge,
		Duplicates:  dedupeWindow,
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create event stream: %w", err)
	}
	b.stream = stream

	return b, nil
}

// Close drains the connection and stops the embedded server if one is running.
func (b *Bus) Close() {
	if b.conn != nil && !b.conn.IsClosed() {
		b.conn.Close()
	}
	if b.embeddedServer != nil {
		b.embeddedServer.Shutdown()
	}
}

// Connected reports whether the NATS connection is up.
func (b *Bus) Connected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// SubjectForTopic maps a webhook topic to its stream subject.
func SubjectForTopic(topic string) string {
	return subjectPrefix + topic
}

// PublishNotification puts a webhook notification on the event stream.
// The notification delivery ID doubles as the JetStream message ID so
// redelivered webhooks inside the dedupe window are dropped.
func (b *Bus) PublishNotification(ctx context.Context, n intercom.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msgID := n.ID
	if msgID == "" {
		msgID = uuid.New().String()
	}

	_, err = b.js.Publish(ctx, SubjectForTopic(n.Topic), data, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Handler processes one notification. Returning an error classified as
// transient (intercom.IsTransient) or caused by context cancellation makes
// the message redeliver after a delay; any other error acknowledges it so a
// poison event cannot wedge the stream.
type Handler func(ctx context.Context, n intercom.Notification) error

// Consume attaches the durable bridge consumer and dispatches notifications
// to handler until the returned ConsumeContext is stopped.
func (b *Bus) Consume(ctx context.Context, handler Handler) (jetstream.ConsumeContext, error) {
	cons, err := b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: subjectPrefix + ">",
	})
	if err != nil {
		return nil, fmt.Errorf("create bridge consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var n intercom.Notification
		if err := json.Unmarshal(msg.Data(), &n); err != nil {
			b.logger.Error("Dropping undecodable notification",
				slog.String("subject", msg.Subject()),
				slog.String("error", err.Error()))
			_ = msg.Ack()
			return
		}

		if err := handler(ctx, n); err != nil {
			// Cancellation means the process is shutting down mid-handle,
			// not that the notification is bad. Leave it for the next run.
			if intercom.IsTransient(err) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) {
				b.logger.Warn("Notification handling failed, will retry",
					slog.String("topic", n.Topic),
					slog.String("conversation_id", n.ConversationID()),
					slog.String("error", err.Error()))
				_ = msg.NakWithDelay(nakDelay)
				return
			}
			b.logger.Error("Notification handling failed permanently",
				slog.String("topic", n.Topic),
				slog.String("conversation_id", n.ConversationID()),
				slog.String("error", err.Error()))
		}
		_ = msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("start bridge consumer: %w", err)
	}

	return cc, nil
}
