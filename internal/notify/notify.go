// Package notify tells managers about booking activity over Telegram and
// Firebase Cloud Messaging.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bookingdesk/internal/events"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
)

const defaultTimeout = 10 * time.Second

// Broadcaster sends one text to several Telegram chats.
type Broadcaster interface {
	Broadcast(chatIDs []int64, text string) error
}

// PushSender is the part of the FCM client used for topic pushes.
type PushSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// NewPushClient returns the FCM client of the Firebase app.
func NewPushClient(ctx context.Context, app *firebase.App) (*messaging.Client, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("create messaging client: %w", err)
	}
	return client, nil
}

// Notifier reacts to booking events. Deliveries run in the background so the
// publishing request is never held up; Wait blocks until they finish.
type Notifier struct {
	telegram Broadcaster
	push     PushSender
	managers []int64
	topic    string
	timeout  time.Duration
	logger   *zerolog.Logger
	wg       sync.WaitGroup
}

// New builds a notifier. telegram and push may be nil to disable a channel.
func New(telegram Broadcaster, push PushSender, managers []int64, topic string, logger *zerolog.Logger) *Notifier {
	return &Notifier{
		telegram: telegram,
		push:     push,
		managers: managers,
		topic:    topic,
		timeout:  defaultTimeout,
		logger:   logger,
	}
}

// Register subscribes the notifier to booking events on bus.
func (n *Notifier) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingCreated, n.handle)
	bus.Subscribe(events.EventBookingStatusChanged, n.handle)
}

// Wait blocks until background deliveries are done.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) handle(event *events.Event) error {
	var payload events.BookingEventPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.deliver(ctx, event.Type, &payload); err != nil {
			n.logger.Error().Err(err).
				Str("event", event.Type).
				Str("booking_id", payload.BookingID).
				Msg("booking notification failed")
		}
	}()
	return nil
}

func (n *Notifier) deliver(ctx context.Context, eventType string, p *events.BookingEventPayload) error {
	var errs []error

	if n.telegram != nil && len(n.managers) > 0 {
		if err := n.telegram.Broadcast(n.managers, MessageText(eventType, p)); err != nil {
			errs = append(errs, fmt.Errorf("telegram: %w", err))
		}
	}

	if n.push != nil && n.topic != "" {
		if _, err := n.push.Send(ctx, PushMessage(n.topic, eventType, p)); err != nil {
			errs = append(errs, fmt.Errorf("fcm: %w", err))
		}
	}

	return errors.Join(errs...)
}

// MessageText renders the manager chat message for an event.
func MessageText(eventType string, p *events.BookingEventPayload) string {
	var sb strings.Builder
	switch eventType {
	case events.EventBookingCreated:
		sb.WriteString("🆕 New booking\n\n")
	case events.EventBookingStatusChanged:
		fmt.Fprintf(&sb, "🔄 Booking status: %s → %s\n\n", p.PreviousStatus, p.Status)
	default:
		fmt.Fprintf(&sb, "%s\n\n", eventType)
	}

	fmt.Fprintf(&sb, "Service: %s\n", p.ServiceName)
	fmt.Fprintf(&sb, "Date: %s %s\n", p.Date, p.Time)
	fmt.Fprintf(&sb, "Client: %s\n", p.ClientName)
	if p.ClientPhone != "" {
		fmt.Fprintf(&sb, "Phone: %s\n", p.ClientPhone)
	}
	if p.ClientEmail != "" {
		fmt.Fprintf(&sb, "Email: %s\n", p.ClientEmail)
	}
	fmt.Fprintf(&sb, "ID: %s", p.BookingID)
	return sb.String()
}

// PushMessage builds the FCM topic message for an event.
func PushMessage(topic, eventType string, p *events.BookingEventPayload) *messaging.Message {
	title := "New booking"
	if eventType == events.EventBookingStatusChanged {
		title = "Booking " + p.Status
	}
	return &messaging.Message{
		Topic: topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  fmt.Sprintf("%s, %s %s: %s", p.ServiceName, p.Date, p.Time, p.ClientName),
		},
		Data: map[string]string{
			"event":      eventType,
			"booking_id": p.BookingID,
			"date":       p.Date,
			"time":       p.Time,
			"status":     p.Status,
		},
	}
}
