package httpserver

import (
	"net/http"
	"strings"

	"persian-connect/internal/market"

	"github.com/google/uuid"
)

// conversationID derives a stable chat id for two users talking about an ad, so that either
// side starting the conversation lands in the same chat.
func conversationID(adID, a, b string) string {
	if b < a {
		a, b = b, a
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join([]string{adID, a, b}, "|"))).String()
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	var req struct {
		ChatID     string `json:"chatId"`
		ReceiverID string `json:"receiverId"`
		Content    string `json:"content"`
		AdID       string `json:"adId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	u, _ := currentUser(r.Context())
	if req.ChatID == "" {
		req.ChatID = conversationID(req.AdID, u.ID, req.ReceiverID)
	} else if chat, found := st.GetChat(req.ChatID); found && !chat.HasParticipant(u.ID) {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	if receiver, found := st.GetUser(req.ReceiverID); found && receiver.IsBlocked {
		writeError(w, http.StatusForbidden, "recipient is not available")
		return
	}
	msg, err := st.SendMessage(r.Context(), market.NewMessage{
		ChatID:     req.ChatID,
		SenderID:   u.ID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		AdID:       req.AdID,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, msg)
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	u, _ := currentUser(r.Context())
	writeJSON(w, st.GetUserChats(u.ID))
}

func (s *Server) participantChat(w http.ResponseWriter, r *http.Request, st *market.Store) (market.Chat, bool) {
	chat, found := st.GetChat(r.PathValue("id"))
	u, _ := currentUser(r.Context())
	if !found || !chat.HasParticipant(u.ID) {
		writeError(w, http.StatusNotFound, "chat not found")
		return market.Chat{}, false
	}
	return chat, true
}

func (s *Server) chatMessages(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	chat, ok := s.participantChat(w, r, st)
	if !ok {
		return
	}
	writeJSON(w, st.GetChatMessages(chat.ID))
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	chat, ok := s.participantChat(w, r, st)
	if !ok {
		return
	}
	u, _ := currentUser(r.Context())
	n, err := st.MarkMessagesAsRead(r.Context(), chat.ID, u.ID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"marked": n})
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	u, _ := currentUser(r.Context())
	writeJSON(w, map[string]int{"unread": st.GetUnreadCount(u.ID)})
}
