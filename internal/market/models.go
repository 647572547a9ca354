package market

import (
	"maps"
	"slices"
	"time"
)

// Role is the access level of a user account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AuthProvider records how the account signs in.
type AuthProvider string

const (
	ProviderEmail  AuthProvider = "email"
	ProviderGoogle AuthProvider = "google"
)

// AdStatus is the lifecycle state of an ad.
type AdStatus string

const (
	StatusPending     AdStatus = "pending"
	StatusApproved    AdStatus = "approved"
	StatusRejected    AdStatus = "rejected"
	StatusUnderReview AdStatus = "under_review"
	StatusExpired     AdStatus = "expired"
)

// PaymentStatus is shared by ads (posting fee state) and payment records.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PriceType describes whether the asking price is fixed.
type PriceType string

const (
	PriceFixed      PriceType = "fixed"
	PriceNegotiable PriceType = "negotiable"
)

// PaymentType distinguishes posting fees from boosts.
type PaymentType string

const (
	PaymentAdPosting PaymentType = "ad_posting"
	PaymentAdBoost   PaymentType = "ad_boost"
)

// SupportStatus is the state of a support ticket.
type SupportStatus string

const (
	SupportOpen       SupportStatus = "open"
	SupportInProgress SupportStatus = "in-progress"
	SupportResolved   SupportStatus = "resolved"
)

// SupportPriority orders support tickets.
type SupportPriority string

const (
	PriorityLow    SupportPriority = "low"
	PriorityMedium SupportPriority = "medium"
	PriorityHigh   SupportPriority = "high"
)

// TermsAcceptance records which terms version a user accepted and when.
type TermsAcceptance struct {
	Version    string    `json:"version"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// User is a marketplace account.
type User struct {
	ID              string           `json:"id"`
	Username        string           `json:"username"`
	Email           string           `json:"email"`
	DisplayName     string           `json:"displayName"`
	Role            Role             `json:"role"`
	AuthProvider    AuthProvider     `json:"authProvider"`
	CreatedAt       time.Time        `json:"createdAt"`
	IsBlocked       bool             `json:"isBlocked,omitempty"`
	Avatar          string           `json:"avatar,omitempty"`
	Phone           string           `json:"phone,omitempty"`
	TermsAcceptance *TermsAcceptance `json:"termsAcceptance,omitempty"`
	PasswordHash    string           `json:"passwordHash,omitempty"`
}

// IsAdmin reports whether the user has the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u User) clone() User {
	if u.TermsAcceptance != nil {
		t := *u.TermsAcceptance
		u.TermsAcceptance = &t
	}
	return u
}

// Location is where the advertised item is.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// ContactInfo is how buyers reach the seller outside the in-app chat.
type ContactInfo struct {
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	WhatsApp string `json:"whatsapp,omitempty"`
}

// ModerationResult is the stored outcome of automated and manual review.
type ModerationResult struct {
	AIScore              float64    `json:"aiScore"`
	FlaggedContent       []string   `json:"flaggedContent"`
	RequiresManualReview bool       `json:"requiresManualReview"`
	RejectionReason      string     `json:"rejectionReason,omitempty"`
	ModeratedAt          time.Time  `json:"moderatedAt"`
	ReviewedBy           string     `json:"reviewedBy,omitempty"`
	ReviewedAt           *time.Time `json:"reviewedAt,omitempty"`
}

// Ad is a classified listing.
type Ad struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	TitlePersian       string            `json:"titlePersian"`
	Description        string            `json:"description"`
	DescriptionPersian string            `json:"descriptionPersian"`
	Price              float64           `json:"price"`
	PriceType          PriceType         `json:"priceType"`
	Currency           string            `json:"currency"`
	Category           string            `json:"category"`
	Subcategory        string            `json:"subcategory,omitempty"`
	Location           Location          `json:"location"`
	Images             []string          `json:"images"`
	UserID             string            `json:"userId"`
	UserName           string            `json:"userName,omitempty"`
	Status             AdStatus          `json:"status"`
	Featured           bool              `json:"featured"`
	FeaturedUntil      *time.Time        `json:"featuredUntil,omitempty"`
	Urgent             bool              `json:"urgent"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
	ExpiresAt          time.Time         `json:"expiresAt"`
	Views              int               `json:"views"`
	ContactInfo        ContactInfo       `json:"contactInfo"`
	Condition          string            `json:"condition,omitempty"`
	Brand              string            `json:"brand,omitempty"`
	Model              string            `json:"model,omitempty"`
	Specs              map[string]string `json:"specs,omitempty"`
	PaymentStatus      PaymentStatus     `json:"paymentStatus"`
	PaymentID          string            `json:"paymentId,omitempty"`
	Moderation         *ModerationResult `json:"moderation,omitempty"`
}

// Visible reports whether the ad may appear in public listings at now.
func (a Ad) Visible(now time.Time) bool {
	return a.Status == StatusApproved && a.PaymentStatus == PaymentCompleted && now.Before(a.ExpiresAt)
}

func (a Ad) clone() Ad {
	a.Images = slices.Clone(a.Images)
	a.Specs = maps.Clone(a.Specs)
	if a.FeaturedUntil != nil {
		t := *a.FeaturedUntil
		a.FeaturedUntil = &t
	}
	if a.Moderation != nil {
		m := *a.Moderation
		m.FlaggedContent = slices.Clone(m.FlaggedContent)
		if m.ReviewedAt != nil {
			t := *m.ReviewedAt
			m.ReviewedAt = &t
		}
		a.Moderation = &m
	}
	return a
}

// Message is a single chat line between two users.
type Message struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chatId"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	ReceiverID   string    `json:"receiverId"`
	ReceiverName string    `json:"receiverName"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	IsRead       bool      `json:"isRead"`
	AdID         string    `json:"adId,omitempty"`
	AdTitle      string    `json:"adTitle,omitempty"`
}

// Chat is a conversation between exactly two users.
type Chat struct {
	ID               string    `json:"id"`
	Participants     []string  `json:"participants"`
	ParticipantNames []string  `json:"participantNames"`
	LastMessage      *Message  `json:"lastMessage,omitempty"`
	LastActivity     time.Time `json:"lastActivity"`
	AdID             string    `json:"adId,omitempty"`
	IsActive         bool      `json:"isActive"`
}

// HasParticipant reports whether userID takes part in the chat.
func (c Chat) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

func (c Chat) isBetween(a, b string) bool {
	return len(c.Participants) == 2 && c.HasParticipant(a) && c.HasParticipant(b)
}

func (c Chat) clone() Chat {
	c.Participants = slices.Clone(c.Participants)
	c.ParticipantNames = slices.Clone(c.ParticipantNames)
	if c.LastMessage != nil {
		m := *c.LastMessage
		c.LastMessage = &m
	}
	return c
}

// Payment records a fee paid for posting or boosting an ad.
type Payment struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	AdID        string        `json:"adId"`
	Amount      float64       `json:"amount"`
	Currency    string        `json:"currency"`
	Type        PaymentType   `json:"type"`
	Status      PaymentStatus `json:"status"`
	SessionID   string        `json:"sessionId,omitempty"`
	CheckoutURL string        `json:"checkoutUrl,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

func (p Payment) clone() Payment {
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		p.CompletedAt = &t
	}
	return p
}

// SupportMessage is a ticket raised by a user for the admins.
type SupportMessage struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Subject       string          `json:"subject"`
	Message       string          `json:"message"`
	Status        SupportStatus   `json:"status"`
	Priority      SupportPriority `json:"priority"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	AdminResponse string          `json:"adminResponse,omitempty"`
	AdminID       string          `json:"adminId,omitempty"`
}
