package market

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSendMessageCreatesAndUpdatesChat(t *testing.T) {
	ctx := context.Background()
	s, _, clock := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")
	buyer := mustRegister(t, s, "buyer@example.com")
	ad := mustCreateAd(t, s, seller, NewAd{Title: "Samovar"})

	var kinds []EventKind
	s.Subscribe(func(e Event) { kinds = append(kinds, e.Kind()) })

	first, err := s.SendMessage(ctx, NewMessage{ChatID: "chat-1", SenderID: buyer.ID, ReceiverID: seller.ID, Content: "Is it available?", AdID: ad.ID})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if first.IsRead || first.AdTitle != "Samovar" || first.SenderName != buyer.DisplayName {
		t.Fatalf("unexpected message %+v", first)
	}
	if len(kinds) != 2 || kinds[0] != KindMessageSent || kinds[1] != KindChatUpdated {
		t.Fatalf("events = %v, want messageSent then chatUpdated", kinds)
	}

	clock.Advance(time.Minute)
	reply, err := s.SendMessage(ctx, NewMessage{ChatID: "chat-1", SenderID: seller.ID, ReceiverID: buyer.ID, Content: "Yes"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}

	chat, ok := s.GetChat("chat-1")
	if !ok {
		t.Fatal("chat not created")
	}
	if len(chat.Participants) != 2 || !chat.HasParticipant(buyer.ID) || !chat.HasParticipant(seller.ID) {
		t.Fatalf("participants = %v", chat.Participants)
	}
	if chat.LastMessage == nil || chat.LastMessage.ID != reply.ID || !chat.LastActivity.Equal(reply.Timestamp) {
		t.Fatalf("chat not refreshed: %+v", chat)
	}
	if chat.AdID != ad.ID {
		t.Fatalf("chat adId = %q, want %q", chat.AdID, ad.ID)
	}

	msgs := s.GetChatMessages("chat-1")
	if len(msgs) != 2 || msgs[0].ID != first.ID || msgs[1].ID != reply.ID {
		t.Fatal("messages not in chronological order")
	}
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupTestStore(t)
	a := mustRegister(t, s, "a@example.com")
	b := mustRegister(t, s, "b@example.com")

	cases := map[string]NewMessage{
		"missing chat":  {SenderID: a.ID, ReceiverID: b.ID, Content: "x"},
		"empty content": {ChatID: "c", SenderID: a.ID, ReceiverID: b.ID, Content: "  "},
		"self message":  {ChatID: "c", SenderID: a.ID, ReceiverID: a.ID, Content: "x"},
	}
	for name, in := range cases {
		if _, err := s.SendMessage(ctx, in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: error = %v, want ErrInvalidInput", name, err)
		}
	}
	if _, err := s.SendMessage(ctx, NewMessage{ChatID: "c", SenderID: a.ID, ReceiverID: "ghost", Content: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown receiver: error = %v, want ErrNotFound", err)
	}
}

func TestUserChatsAndUnreadCounts(t *testing.T) {
	ctx := context.Background()
	s, _, clock := setupTestStore(t)
	me := mustRegister(t, s, "me@example.com")
	ali := mustRegister(t, s, "ali@example.com")
	nazanin := mustRegister(t, s, "nazanin@example.com")

	send := func(chatID string, from, to User) {
		t.Helper()
		clock.Advance(time.Minute)
		if _, err := s.SendMessage(ctx, NewMessage{ChatID: chatID, SenderID: from.ID, ReceiverID: to.ID, Content: "hi"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	send("with-ali", ali, me)
	send("with-ali", ali, me)
	send("with-nazanin", nazanin, me)
	send("with-nazanin", me, nazanin)

	chats := s.GetUserChats(me.ID)
	if len(chats) != 2 || chats[0].ID != "with-nazanin" {
		t.Fatalf("chats must be sorted by last activity, got %v", chatIDs(chats))
	}
	if n := s.GetUnreadCount(me.ID); n != 3 {
		t.Fatalf("unread = %d, want 3", n)
	}

	var read MessagesRead
	s.SubscribeKind(KindMessagesRead, func(e Event) { read = e.(MessagesRead) })
	n, err := s.MarkMessagesAsRead(ctx, "with-ali", me.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 2 || read.Count != 2 || read.ChatID != "with-ali" {
		t.Fatalf("marked %d (event %+v), want 2", n, read)
	}
	if n := s.GetUnreadCount(me.ID); n != 1 {
		t.Fatalf("unread after marking = %d, want 1", n)
	}
	read = MessagesRead{Count: -1}
	if n, _ := s.MarkMessagesAsRead(ctx, "with-ali", me.ID); n != 0 {
		t.Fatalf("second mark = %d, want 0", n)
	}
	if read.Count != 0 || read.UserID != me.ID {
		t.Fatalf("second mark event = %+v, want a zero-count event", read)
	}
	if n := s.GetUnreadCount(nazanin.ID); n != 1 {
		t.Fatalf("nazanin unread = %d, want 1", n)
	}
}

func TestSendMessageRejectsOutsidersOfExistingChat(t *testing.T) {
	ctx := context.Background()
	s, repository, _ := setupTestStore(t)
	a := mustRegister(t, s, "a@example.com")
	b := mustRegister(t, s, "b@example.com")
	c := mustRegister(t, s, "c@example.com")

	if _, err := s.SendMessage(ctx, NewMessage{ChatID: "chat-ab", SenderID: a.ID, ReceiverID: b.ID, Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	saves := repository.Saves()

	cases := map[string]NewMessage{
		"third-party receiver": {ChatID: "chat-ab", SenderID: a.ID, ReceiverID: c.ID, Content: "psst"},
		"third-party sender":   {ChatID: "chat-ab", SenderID: c.ID, ReceiverID: b.ID, Content: "psst"},
	}
	for name, in := range cases {
		if _, err := s.SendMessage(ctx, in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: error = %v, want ErrInvalidInput", name, err)
		}
	}

	if n := s.GetUnreadCount(c.ID); n != 0 {
		t.Fatalf("outsider unread = %d, want 0", n)
	}
	if msgs := s.GetChatMessages("chat-ab"); len(msgs) != 1 {
		t.Fatalf("chat has %d messages, want 1", len(msgs))
	}
	if repository.Saves() != saves {
		t.Fatal("rejected messages must not be saved")
	}
	if _, err := s.SendMessage(ctx, NewMessage{ChatID: "chat-ab", SenderID: b.ID, ReceiverID: a.ID, Content: "hello"}); err != nil {
		t.Fatalf("reply from participant: %v", err)
	}
}

func chatIDs(chats []Chat) []string {
	ids := make([]string, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	return ids
}
