package market

import "sync"

// EventKind names an event for kind-filtered subscriptions.
type EventKind string

const (
	KindUserRegistered    EventKind = "userRegistered"
	KindUserUpdated       EventKind = "userUpdated"
	KindUserDeleted       EventKind = "userDeleted"
	KindAdCreated         EventKind = "adCreated"
	KindAdUpdated         EventKind = "adUpdated"
	KindAdDeleted         EventKind = "adDeleted"
	KindAdBoosted         EventKind = "adBoosted"
	KindAdFeaturedExpired EventKind = "adFeaturedExpired"
	KindAdsExpired        EventKind = "adsExpired"
	KindAdModerated       EventKind = "adModerated"
	KindAdReviewed        EventKind = "adReviewed"
	KindMessageSent       EventKind = "messageSent"
	KindChatUpdated       EventKind = "chatUpdated"
	KindMessagesRead      EventKind = "messagesRead"
	KindPaymentCompleted  EventKind = "paymentCompleted"
	KindPaymentFailed     EventKind = "paymentFailed"
	KindSupportCreated    EventKind = "supportCreated"
	KindSupportUpdated    EventKind = "supportUpdated"
)

// Event is a change published by the store. The concrete types below are the only implementations.
type Event interface {
	Kind() EventKind
	isEvent()
}

type (
	UserRegistered    struct{ User User }
	UserUpdated       struct{ User User }
	UserDeleted       struct{ UserID string }
	AdCreated         struct{ Ad Ad }
	AdUpdated         struct{ Ad Ad }
	AdDeleted         struct{ AdID string }
	AdBoosted         struct{ Ad Ad }
	AdFeaturedExpired struct{ Ad Ad }
	AdsExpired        struct{ Ads []Ad }
	AdModerated       struct{ Ad Ad }
	AdReviewed        struct{ Ad Ad }
	MessageSent       struct{ Message Message }
	ChatUpdated       struct{ Chat Chat }
	MessagesRead      struct {
		ChatID string
		UserID string
		Count  int
	}
	PaymentCompletedEvent struct{ Payment Payment }
	PaymentFailedEvent    struct{ Payment Payment }
	SupportCreated        struct{ Ticket SupportMessage }
	SupportUpdated        struct{ Ticket SupportMessage }
)

// Kind identifies the concrete event for SubscribeKind filtering.
func (UserRegistered) Kind() EventKind        { return KindUserRegistered }
func (UserUpdated) Kind() EventKind           { return KindUserUpdated }
func (UserDeleted) Kind() EventKind           { return KindUserDeleted }
func (AdCreated) Kind() EventKind             { return KindAdCreated }
func (AdUpdated) Kind() EventKind             { return KindAdUpdated }
func (AdDeleted) Kind() EventKind             { return KindAdDeleted }
func (AdBoosted) Kind() EventKind             { return KindAdBoosted }
func (AdFeaturedExpired) Kind() EventKind     { return KindAdFeaturedExpired }
func (AdsExpired) Kind() EventKind            { return KindAdsExpired }
func (AdModerated) Kind() EventKind           { return KindAdModerated }
func (AdReviewed) Kind() EventKind            { return KindAdReviewed }
func (MessageSent) Kind() EventKind           { return KindMessageSent }
func (ChatUpdated) Kind() EventKind           { return KindChatUpdated }
func (MessagesRead) Kind() EventKind          { return KindMessagesRead }
func (PaymentCompletedEvent) Kind() EventKind { return KindPaymentCompleted }
func (PaymentFailedEvent) Kind() EventKind    { return KindPaymentFailed }
func (SupportCreated) Kind() EventKind        { return KindSupportCreated }
func (SupportUpdated) Kind() EventKind        { return KindSupportUpdated }

func (UserRegistered) isEvent()        {}
func (UserUpdated) isEvent()           {}
func (UserDeleted) isEvent()           {}
func (AdCreated) isEvent()             {}
func (AdUpdated) isEvent()             {}
func (AdDeleted) isEvent()             {}
func (AdBoosted) isEvent()             {}
func (AdFeaturedExpired) isEvent()     {}
func (AdsExpired) isEvent()            {}
func (AdModerated) isEvent()           {}
func (AdReviewed) isEvent()            {}
func (MessageSent) isEvent()           {}
func (ChatUpdated) isEvent()           {}
func (MessagesRead) isEvent()          {}
func (PaymentCompletedEvent) isEvent() {}
func (PaymentFailedEvent) isEvent()    {}
func (SupportCreated) isEvent()        {}
func (SupportUpdated) isEvent()        {}

type subscription struct {
	id   int
	kind EventKind
	fn   func(Event)
}

// Bus delivers events synchronously to subscribers in subscription order.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

// Subscribe registers fn for every event. The returned func removes the subscription.
func (b *Bus) Subscribe(fn func(Event)) func() {
	return b.add("", fn)
}

// SubscribeKind registers fn for events of one kind only.
func (b *Bus) SubscribeKind(kind EventKind, fn func(Event)) func() {
	return b.add(kind, fn)
}

func (b *Bus) add(kind EventKind, fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers events in order. Handlers may subscribe, unsubscribe or call back into the store.
func (b *Bus) Publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	for _, evt := range events {
		for _, s := range subs {
			if s.kind == "" || s.kind == evt.Kind() {
				s.fn(evt)
			}
		}
	}
}
