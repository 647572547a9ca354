// Package notify tells users about marketplace activity outside the app.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"persian-connect/internal/market"
	"persian-connect/internal/metrics"
)

const (
	defaultQueueSize = 256
	sendTimeout      = 20 * time.Second
)

// TextSender delivers a text message to a phone number.
type TextSender interface {
	SendText(ctx context.Context, phone, text string) error
}

// Source is the part of the store the notifier reads from.
type Source interface {
	Subscribe(fn func(market.Event)) func()
	GetUser(id string) (market.User, bool)
}

type notification struct {
	kind  string
	phone string
	text  string
}

// Notifier turns store events into outgoing messages. Events are queued so that slow delivery
// never holds up the mutation that produced them; when the queue is full the notice is dropped.
type Notifier struct {
	source  Source
	sender  TextSender
	logger  *slog.Logger
	metrics *metrics.Metrics
	queue   chan notification
	cancel  func()
}

// New creates a notifier subscribed to source. Notices queue up until Run is called.
func New(source Source, sender TextSender, logger *slog.Logger, m *metrics.Metrics) *Notifier {
	n := &Notifier{
		source:  source,
		sender:  sender,
		logger:  logger.With("component", "notify"),
		metrics: m,
		queue:   make(chan notification, defaultQueueSize),
	}
	n.cancel = source.Subscribe(n.handle)
	return n
}

// Run delivers queued notifications until ctx is cancelled, then unsubscribes.
func (n *Notifier) Run(ctx context.Context) {
	defer n.cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			n.deliver(ctx, msg)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, msg notification) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := n.sender.SendText(sendCtx, msg.phone, msg.text); err != nil {
		n.logger.Warn("notification failed", "kind", msg.kind, "error", err)
		if n.metrics != nil {
			n.metrics.Errors.WithLabelValues("notify").Inc()
		}
		return
	}
	n.logger.Debug("notification sent", "kind", msg.kind)
}

func (n *Notifier) handle(evt market.Event) {
	switch e := evt.(type) {
	case market.MessageSent:
		from := e.Message.SenderName
		text := fmt.Sprintf("New message from %s: %s", from, truncate(e.Message.Content, 140))
		if e.Message.AdTitle != "" {
			text = fmt.Sprintf("New message from %s about \"%s\": %s", from, e.Message.AdTitle, truncate(e.Message.Content, 140))
		}
		n.enqueue(e.Message.ReceiverID, "message", text)
	case market.AdModerated:
		n.enqueue(e.Ad.UserID, "moderation", moderationText(e.Ad))
	case market.AdReviewed:
		n.enqueue(e.Ad.UserID, "review", moderationText(e.Ad))
	case market.PaymentFailedEvent:
		n.enqueue(e.Payment.UserID, "payment", fmt.Sprintf("Your payment of %.2f %s did not go through. Please try again.", e.Payment.Amount, e.Payment.Currency))
	case market.SupportUpdated:
		if e.Ticket.AdminResponse != "" {
			n.enqueue(e.Ticket.UserID, "support", fmt.Sprintf("Support replied to \"%s\": %s", e.Ticket.Subject, truncate(e.Ticket.AdminResponse, 280)))
		}
	}
}

func moderationText(ad market.Ad) string {
	title := ad.Title
	if title == "" {
		title = ad.TitlePersian
	}
	switch ad.Status {
	case market.StatusApproved:
		return fmt.Sprintf("Your ad \"%s\" is now live.", title)
	case market.StatusUnderReview:
		return fmt.Sprintf("Your ad \"%s\" is being reviewed by our team.", title)
	default:
		reason := ""
		if ad.Moderation != nil && ad.Moderation.RejectionReason != "" {
			reason = " Reason: " + ad.Moderation.RejectionReason
		}
		return fmt.Sprintf("Your ad \"%s\" was not approved.%s", title, reason)
	}
}

func (n *Notifier) enqueue(userID, kind, text string) {
	u, ok := n.source.GetUser(userID)
	if !ok || u.Phone == "" || u.IsBlocked {
		return
	}
	select {
	case n.queue <- notification{kind: kind, phone: u.Phone, text: text}:
	default:
		n.logger.Warn("notification queue full, dropping", "kind", kind, "user_id", userID)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
