package market

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// NewMessage is the input to SendMessage. ChatID identifies the conversation; the store does
// not derive it from the participants.
type NewMessage struct {
	ChatID     string
	SenderID   string
	ReceiverID string
	Content    string
	AdID       string
}

// SendMessage appends a message and creates or refreshes its chat.
func (s *Store) SendMessage(ctx context.Context, in NewMessage) (Message, error) {
	if strings.TrimSpace(in.ChatID) == "" {
		return Message{}, fmt.Errorf("chat id: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Content) == "" {
		return Message{}, fmt.Errorf("message content: %w", ErrInvalidInput)
	}
	if in.SenderID == in.ReceiverID {
		return Message{}, fmt.Errorf("sender and receiver are the same user: %w", ErrInvalidInput)
	}

	var sent Message
	err := s.mutate(ctx, "send_message", func() ([]Event, error) {
		si := s.userIndex(in.SenderID)
		if si < 0 {
			return nil, notFound("user", in.SenderID)
		}
		ri := s.userIndex(in.ReceiverID)
		if ri < 0 {
			return nil, notFound("user", in.ReceiverID)
		}
		sender, receiver := s.users[si], s.users[ri]

		ci := s.chatIndex(in.ChatID)
		if ci >= 0 && !s.chats[ci].isBetween(sender.ID, receiver.ID) {
			return nil, fmt.Errorf("chat %s is not between %s and %s: %w", in.ChatID, sender.ID, receiver.ID, ErrInvalidInput)
		}

		var adTitle string
		if in.AdID != "" {
			ai := s.adIndex(in.AdID)
			if ai < 0 {
				return nil, notFound("ad", in.AdID)
			}
			adTitle = firstNonEmpty(s.ads[ai].Title, s.ads[ai].TitlePersian)
		}

		sent = Message{
			ID:           newID(),
			ChatID:       in.ChatID,
			SenderID:     sender.ID,
			SenderName:   sender.DisplayName,
			ReceiverID:   receiver.ID,
			ReceiverName: receiver.DisplayName,
			Content:      in.Content,
			Timestamp:    s.clock(),
			AdID:         in.AdID,
			AdTitle:      adTitle,
		}
		s.messages = append(s.messages, sent)

		if ci < 0 {
			s.chats = append(s.chats, Chat{
				ID:               in.ChatID,
				Participants:     []string{sender.ID, receiver.ID},
				ParticipantNames: []string{sender.Username, receiver.Username},
				AdID:             in.AdID,
				IsActive:         true,
			})
			ci = len(s.chats) - 1
		}
		chat := &s.chats[ci]
		last := sent
		chat.LastMessage = &last
		chat.LastActivity = sent.Timestamp
		chat.IsActive = true

		return []Event{MessageSent{Message: sent}, ChatUpdated{Chat: chat.clone()}}, nil
	})
	if err != nil {
		return Message{}, err
	}
	s.logger.Debug("message sent", "chat_id", sent.ChatID, "message_id", sent.ID)
	return sent, nil
}

// GetChatMessages returns the messages of a chat in the order they were sent.
func (s *Store) GetChatMessages(chatID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0)
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b Message) int { return a.Timestamp.Compare(b.Timestamp) })
	return out
}

// GetUserChats returns the chats userID takes part in, most recently active first.
func (s *Store) GetUserChats(userID string) []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chat, 0)
	for i := range s.chats {
		if s.chats[i].HasParticipant(userID) {
			out = append(out, s.chats[i].clone())
		}
	}
	slices.SortStableFunc(out, func(a, b Chat) int { return b.LastActivity.Compare(a.LastActivity) })
	return out
}

// GetChat returns the chat with id.
func (s *Store) GetChat(id string) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.chatIndex(id); idx >= 0 {
		return s.chats[idx].clone(), true
	}
	return Chat{}, false
}

// GetUnreadCount returns how many messages addressed to userID are unread.
func (s *Store) GetUnreadCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if m.ReceiverID == userID && !m.IsRead {
			n++
		}
	}
	return n
}

// MarkMessagesAsRead flags every message in the chat addressed to userID as read and returns
// how many changed. It saves and emits MessagesRead even when the count is zero.
func (s *Store) MarkMessagesAsRead(ctx context.Context, chatID, userID string) (int, error) {
	var count int
	err := s.mutate(ctx, "mark_read", func() ([]Event, error) {
		for i := range s.messages {
			m := &s.messages[i]
			if m.ChatID == chatID && m.ReceiverID == userID && !m.IsRead {
				m.IsRead = true
				count++
			}
		}
		if ci := s.chatIndex(chatID); ci >= 0 {
			if last := s.chats[ci].LastMessage; last != nil && last.ReceiverID == userID {
				last.IsRead = true
			}
		}
		return []Event{MessagesRead{ChatID: chatID, UserID: userID, Count: count}}, nil
	})
	return count, err
}
