package moderation

import (
	"context"
	"strings"
	"testing"
)

func TestRulesApprovesCleanContent(t *testing.T) {
	res, err := NewRules().Moderate(context.Background(), Request{
		Title:       "Used bicycle",
		Description: "Good condition, pickup in Toronto",
		Price:       120,
	})
	if err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if !res.Approved || res.RequiresManualReview {
		t.Fatalf("expected approval, got %+v", res)
	}
	if len(res.FlaggedContent) != 0 {
		t.Fatalf("expected no flags, got %v", res.FlaggedContent)
	}
}

func TestRulesRejectsWeaponsInPersian(t *testing.T) {
	res, err := NewRules().Moderate(context.Background(), Request{
		Title:        "Hunting gear",
		TitlePersian: "فروش اسلحه",
		Price:        500,
	})
	if err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if res.Approved {
		t.Fatal("expected rejection")
	}
	if res.Score < rejectAtOrAbove {
		t.Fatalf("expected score >= %.1f, got %.2f", rejectAtOrAbove, res.Score)
	}
	if !strings.Contains(res.RejectionReason, "weapons") {
		t.Fatalf("expected weapons in reason, got %q", res.RejectionReason)
	}
}

func TestRulesSendsBorderlineToManualReview(t *testing.T) {
	res, err := NewRules().Moderate(context.Background(), Request{
		Title:       "Investment opportunity",
		Description: "Guaranteed profit every month",
		Price:       10,
	})
	if err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if res.Approved || !res.RequiresManualReview {
		t.Fatalf("expected manual review, got %+v", res)
	}
}

func TestRulesCustomRuleSet(t *testing.T) {
	m := NewRules(Rule{Name: "banned", Weight: 1, Terms: []string{"forbidden"}})
	res, err := m.Moderate(context.Background(), Request{Title: "Forbidden fruit"})
	if err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if res.Score != 1 {
		t.Fatalf("expected score capped at 1, got %.2f", res.Score)
	}
}

func TestRulesIgnoreTermsInsideOtherWords(t *testing.T) {
	cases := []Request{
		{Title: "Selling something nice", Price: 40},
		{Title: "2012 Ford Escort", Description: "One owner, winter tires", Price: 3500},
		{Title: "Burgundy leather sofa, barely begun", Price: 300},
		{Title: "Glue gun and craft supplies", Price: 15},
		{Title: "Methodology textbook", Description: "Research methods, 3rd edition", Price: 25},
	}
	for _, req := range cases {
		t.Run(req.Title, func(t *testing.T) {
			res, err := NewRules().Moderate(context.Background(), req)
			if err != nil {
				t.Fatalf("moderate: %v", err)
			}
			if !res.Approved || len(res.FlaggedContent) != 0 {
				t.Fatalf("expected clean approval, got %+v", res)
			}
		})
	}
}

func TestRulesMatchWholeWordsAndPhrases(t *testing.T) {
	cases := []struct {
		req  Request
		flag string
	}{
		{Request{Title: "Rifle for sale", Price: 400}, "weapons: rifle"},
		{Request{Title: "Party supplies", Description: "Also METH, message me"}, "drugs: meth"},
		{Request{Title: "Evening company", Description: "Discreet escort\n service downtown"}, "adult: escort service"},
		{Request{Title: "Phone case", Description: "More at t.me/caseshop"}, "contact_spam: t.me"},
	}
	for _, tc := range cases {
		t.Run(tc.flag, func(t *testing.T) {
			res, err := NewRules().Moderate(context.Background(), tc.req)
			if err != nil {
				t.Fatalf("moderate: %v", err)
			}
			if len(res.FlaggedContent) != 1 || res.FlaggedContent[0] != tc.flag {
				t.Fatalf("flags = %v, want [%s]", res.FlaggedContent, tc.flag)
			}
		})
	}
}
