package market

const (
	autoApproveBelow  = 0.3
	autoRejectAtLeast = 0.7
)

// Analytics is an admin dashboard summary computed from the current collections.
type Analytics struct {
	TotalUsers     int              `json:"totalUsers"`
	TotalAds       int              `json:"totalAds"`
	AdsByStatus    map[AdStatus]int `json:"adsByStatus"`
	AdsByCategory  map[string]int   `json:"adsByCategory"`
	Revenue        Revenue          `json:"revenue"`
	SignupsByMonth map[string]int   `json:"signupsByMonth"`
	Moderation     ModerationStats  `json:"moderation"`
	OpenTickets    int              `json:"openTickets"`
	UnreadMessages int              `json:"unreadMessages"`
}

// Revenue is the posting-fee income of ads whose payment completed.
type Revenue struct {
	Total     float64            `json:"total"`
	Currency  string             `json:"currency"`
	ByCountry map[string]float64 `json:"byCountry"`
}

// ModerationStats summarises automated moderation results.
type ModerationStats struct {
	Moderated     int     `json:"moderated"`
	AutoApproved  int     `json:"autoApproved"`
	AutoRejected  int     `json:"autoRejected"`
	ManualReview  int     `json:"manualReview"`
	PendingReview int     `json:"pendingReview"`
	AverageScore  float64 `json:"averageScore"`
}

// GetAnalytics aggregates counts, revenue, signups and moderation statistics.
func (s *Store) GetAnalytics() Analytics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Analytics{
		TotalUsers:     len(s.users),
		TotalAds:       len(s.ads),
		AdsByStatus:    make(map[AdStatus]int),
		AdsByCategory:  make(map[string]int),
		SignupsByMonth: make(map[string]int),
		Revenue: Revenue{
			Currency:  s.fees.Currency,
			ByCountry: make(map[string]float64),
		},
	}

	for _, u := range s.users {
		out.SignupsByMonth[u.CreatedAt.UTC().Format("2006-01")]++
	}

	var scoreSum float64
	for _, a := range s.ads {
		out.AdsByStatus[a.Status]++
		out.AdsByCategory[a.Category]++

		if a.PaymentStatus == PaymentCompleted {
			out.Revenue.Total += s.fees.AdPosting
			out.Revenue.ByCountry[a.Location.Country] += s.fees.AdPosting
		}
		if a.Status == StatusUnderReview {
			out.Moderation.PendingReview++
		}

		m := a.Moderation
		if m == nil || m.ModeratedAt.IsZero() {
			continue
		}
		out.Moderation.Moderated++
		scoreSum += m.AIScore
		switch {
		case m.AIScore >= autoRejectAtLeast:
			out.Moderation.AutoRejected++
		case m.AIScore < autoApproveBelow && !m.RequiresManualReview && m.ReviewedBy == "" && a.Status != StatusRejected:
			out.Moderation.AutoApproved++
		}
		if m.RequiresManualReview {
			out.Moderation.ManualReview++
		}
	}
	if out.Moderation.Moderated > 0 {
		out.Moderation.AverageScore = scoreSum / float64(out.Moderation.Moderated)
	}

	for _, t := range s.support {
		if t.Status != SupportResolved {
			out.OpenTickets++
		}
	}
	for _, m := range s.messages {
		if !m.IsRead {
			out.UnreadMessages++
		}
	}
	return out
}
