// Package moderation checks ad content before it becomes publicly visible.
package moderation

import "context"

// Request carries the ad content to check.
type Request struct {
	Title              string   `json:"title"`
	TitlePersian       string   `json:"titlePersian"`
	Description        string   `json:"description"`
	DescriptionPersian string   `json:"descriptionPersian"`
	Images             []string `json:"images"`
	Category           string   `json:"category"`
	Price              float64  `json:"price"`
}

// Result is the verdict for one request. Score runs from 0 (clean) to 1 (certainly unsafe).
type Result struct {
	Score                float64  `json:"score"`
	FlaggedContent       []string `json:"flaggedContent"`
	RequiresManualReview bool     `json:"requiresManualReview"`
	Approved             bool     `json:"approved"`
	RejectionReason      string   `json:"rejectionReason,omitempty"`
}

// Moderator evaluates ad content.
type Moderator interface {
	Moderate(ctx context.Context, req Request) (*Result, error)
}

// Func adapts a plain function to the Moderator interface.
type Func func(ctx context.Context, req Request) (*Result, error)

// Moderate calls f.
func (f Func) Moderate(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
