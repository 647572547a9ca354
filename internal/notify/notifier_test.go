package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"persian-connect/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	market.Bus
	users map[string]market.User
}

func (f *fakeSource) GetUser(id string) (market.User, bool) {
	u, ok := f.users[id]
	return u, ok
}

type sent struct {
	phone string
	text  string
}

type fakeSender struct {
	mu   sync.Mutex
	out  []sent
	err  error
	done chan struct{}
}

func (f *fakeSender) SendText(_ context.Context, phone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{phone, text})
	if f.done != nil {
		f.done <- struct{}{}
	}
	return f.err
}

func (f *fakeSender) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.out...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture() (*fakeSource, *fakeSender) {
	src := &fakeSource{users: map[string]market.User{
		"seller":  {ID: "seller", Username: "seller", Phone: "+1 416 555 0100"},
		"buyer":   {ID: "buyer", Username: "buyer"},
		"blocked": {ID: "blocked", Phone: "+1 416 555 0199", IsBlocked: true},
	}}
	return src, &fakeSender{done: make(chan struct{}, 16)}
}

func waitFor(t *testing.T, s *fakeSender, n int) {
	t.Helper()
	for range n {
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d notifications, got %d", n, len(s.messages()))
		}
	}
}

func startNotifier(t *testing.T, src *fakeSource, sender *fakeSender) *Notifier {
	t.Helper()
	n := New(src, sender, testLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return n
}

func TestNotifierDeliversMessageToReceiver(t *testing.T) {
	src, sender := newFixture()
	startNotifier(t, src, sender)

	src.Publish(market.MessageSent{Message: market.Message{
		SenderID: "buyer", SenderName: "buyer", ReceiverID: "seller",
		Content: "Is the bike still available?", AdTitle: "Road bike",
	}})
	waitFor(t, sender, 1)

	got := sender.messages()
	require.Len(t, got, 1)
	assert.Equal(t, "+1 416 555 0100", got[0].phone)
	assert.Contains(t, got[0].text, "Road bike")
	assert.Contains(t, got[0].text, "still available")
}

func TestNotifierSkipsUsersWithoutPhoneOrBlocked(t *testing.T) {
	src, sender := newFixture()
	startNotifier(t, src, sender)

	src.Publish(
		market.MessageSent{Message: market.Message{SenderID: "seller", ReceiverID: "buyer", Content: "hi"}},
		market.MessageSent{Message: market.Message{SenderID: "seller", ReceiverID: "blocked", Content: "hi"}},
		market.MessageSent{Message: market.Message{SenderID: "seller", ReceiverID: "ghost", Content: "hi"}},
		market.AdModerated{Ad: market.Ad{UserID: "seller", Title: "Sofa", Status: market.StatusApproved}},
	)
	waitFor(t, sender, 1)

	got := sender.messages()
	require.Len(t, got, 1)
	assert.Equal(t, `Your ad "Sofa" is now live.`, got[0].text)
}

func TestModerationText(t *testing.T) {
	rejected := market.Ad{
		TitlePersian: "مبل",
		Status:       market.StatusRejected,
		Moderation:   &market.ModerationResult{RejectionReason: "prohibited item"},
	}
	assert.Equal(t, `Your ad "مبل" was not approved. Reason: prohibited item`, moderationText(rejected))
	assert.Contains(t, moderationText(market.Ad{Title: "Car", Status: market.StatusUnderReview}), "being reviewed")
}

func TestNotifierSurvivesSendErrors(t *testing.T) {
	src, sender := newFixture()
	sender.err = errors.New("offline")
	startNotifier(t, src, sender)

	src.Publish(
		market.SupportUpdated{Ticket: market.SupportMessage{UserID: "seller", Subject: "Refund", AdminResponse: "Done"}},
		market.PaymentFailedEvent{Payment: market.Payment{UserID: "seller", Amount: 5, Currency: "USD"}},
	)
	waitFor(t, sender, 2)
	got := sender.messages()
	assert.Contains(t, got[0].text, "Support replied")
	assert.Contains(t, got[1].text, "5.00 USD")
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	src, sender := newFixture()
	n := New(src, sender, testLogger(), nil)
	for range defaultQueueSize + 10 {
		src.Publish(market.AdReviewed{Ad: market.Ad{UserID: "seller", Title: "x", Status: market.StatusApproved}})
	}
	assert.Len(t, n.queue, defaultQueueSize)

	n.cancel()
	src.Publish(market.AdReviewed{Ad: market.Ad{UserID: "seller"}})
	assert.Len(t, n.queue, defaultQueueSize)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	long := strings.Repeat("ب", 20)
	assert.Equal(t, strings.Repeat("ب", 5)+"…", truncate(long, 5))
}
