package market

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// NewSupportMessage is the input to CreateSupportMessage.
type NewSupportMessage struct {
	UserID   string
	Subject  string
	Message  string
	Priority SupportPriority
}

// CreateSupportMessage opens a ticket. Priority defaults to medium.
func (s *Store) CreateSupportMessage(ctx context.Context, in NewSupportMessage) (SupportMessage, error) {
	if strings.TrimSpace(in.Subject) == "" || strings.TrimSpace(in.Message) == "" {
		return SupportMessage{}, fmt.Errorf("support subject and message: %w", ErrInvalidInput)
	}
	priority := in.Priority
	switch priority {
	case "":
		priority = PriorityMedium
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return SupportMessage{}, fmt.Errorf("support priority %q: %w", priority, ErrInvalidInput)
	}

	var ticket SupportMessage
	err := s.mutate(ctx, "create_support", func() ([]Event, error) {
		if s.userIndex(in.UserID) < 0 {
			return nil, notFound("user", in.UserID)
		}
		now := s.clock()
		ticket = SupportMessage{
			ID:        newID(),
			UserID:    in.UserID,
			Subject:   in.Subject,
			Message:   in.Message,
			Status:    SupportOpen,
			Priority:  priority,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.support = append(s.support, ticket)
		return []Event{SupportCreated{Ticket: ticket}}, nil
	})
	return ticket, err
}

// GetSupportMessages returns every ticket, newest first.
func (s *Store) GetSupportMessages() []SupportMessage {
	return s.selectSupport(func(SupportMessage) bool { return true })
}

// GetUserSupportMessages returns the tickets raised by userID, newest first.
func (s *Store) GetUserSupportMessages(userID string) []SupportMessage {
	return s.selectSupport(func(m SupportMessage) bool { return m.UserID == userID })
}

func (s *Store) selectSupport(keep func(SupportMessage) bool) []SupportMessage {
	s.mu.RLock()
	out := make([]SupportMessage, 0)
	for _, m := range s.support {
		if keep(m) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()
	slices.SortStableFunc(out, func(a, b SupportMessage) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

// RespondToSupportMessage stores an admin response and moves the ticket to status.
func (s *Store) RespondToSupportMessage(ctx context.Context, id, adminID, response string, status SupportStatus) (SupportMessage, error) {
	switch status {
	case SupportOpen, SupportInProgress, SupportResolved:
	default:
		return SupportMessage{}, fmt.Errorf("support status %q: %w", status, ErrInvalidInput)
	}
	var ticket SupportMessage
	err := s.mutate(ctx, "respond_support", func() ([]Event, error) {
		idx := slices.IndexFunc(s.support, func(m SupportMessage) bool { return m.ID == id })
		if idx < 0 {
			return nil, notFound("support message", id)
		}
		m := &s.support[idx]
		m.AdminResponse = response
		m.AdminID = adminID
		m.Status = status
		m.UpdatedAt = s.clock()
		ticket = *m
		return []Event{SupportUpdated{Ticket: ticket}}, nil
	})
	return ticket, err
}
