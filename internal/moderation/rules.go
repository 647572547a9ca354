package moderation

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

const (
	approveBelow    = 0.3
	rejectAtOrAbove = 0.7
)

// Rule flags content that contains any of its terms. Terms match whole words or phrases, so
// "meth" does not flag "something" and a phrase matches across any run of whitespace.
type Rule struct {
	Name   string
	Weight float64
	Terms  []string
}

// DefaultRules covers the content classes the marketplace never allows, in English and Persian.
var DefaultRules = []Rule{
	{Name: "weapons", Weight: 0.8, Terms: []string{"pistol", "handgun", "shotgun", "rifle", "firearm", "ammunition", "اسلحه", "تفنگ", "فشنگ"}},
	{Name: "drugs", Weight: 0.8, Terms: []string{"cocaine", "heroin", "meth", "methamphetamine", "opium", "مواد مخدر", "تریاک", "هروئین"}},
	{Name: "adult", Weight: 0.7, Terms: []string{"escort service", "escort services", "xxx", "adult service", "adult services"}},
	{Name: "scam", Weight: 0.4, Terms: []string{"wire transfer only", "western union", "guaranteed profit", "crypto doubling"}},
	{Name: "contact_spam", Weight: 0.2, Terms: []string{"telegram.me", "t.me", "wa.me", "whatsapp.com"}},
}

type term struct {
	text    string
	pattern *regexp.Regexp
}

type compiledRule struct {
	name   string
	weight float64
	terms  []term
}

// Rules is a local term-matching moderator used when no moderation service is configured.
type Rules struct {
	rules []compiledRule
}

// NewRules returns a moderator over the given rules, DefaultRules when none are passed.
func NewRules(rules ...Rule) *Rules {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		cr := compiledRule{name: rule.Name, weight: rule.Weight}
		for _, t := range rule.Terms {
			if p := termPattern(t); p != nil {
				cr.terms = append(cr.terms, term{text: t, pattern: p})
			}
		}
		compiled = append(compiled, cr)
	}
	return &Rules{rules: compiled}
}

// termPattern matches t as a whole word or phrase. Letters and digits of any script count as
// word characters, so Persian terms get the same boundaries as Latin ones.
func termPattern(t string) *regexp.Regexp {
	words := strings.Fields(strings.ToLower(t))
	if len(words) == 0 {
		return nil
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}])` + strings.Join(words, `\s+`) + `(?:[^\p{L}\p{N}]|$)`)
}

// Moderate scores the request by the combined weight of matched rules.
func (r *Rules) Moderate(_ context.Context, req Request) (*Result, error) {
	text := strings.ToLower(strings.Join([]string{req.Title, req.TitlePersian, req.Description, req.DescriptionPersian}, "\n"))

	res := &Result{FlaggedContent: []string{}}
	for _, rule := range r.rules {
		for _, t := range rule.terms {
			if t.pattern.MatchString(text) {
				res.Score += rule.weight
				res.FlaggedContent = append(res.FlaggedContent, fmt.Sprintf("%s: %s", rule.name, t.text))
				break
			}
		}
	}

	if req.Price < 0 {
		res.Score += 0.3
		res.FlaggedContent = append(res.FlaggedContent, "price: negative")
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.TitlePersian) == "" {
		res.Score += 0.3
		res.FlaggedContent = append(res.FlaggedContent, "title: missing")
	}
	res.Score = math.Min(res.Score, 1)

	switch {
	case res.Score < approveBelow:
		res.Approved = true
	case res.Score >= rejectAtOrAbove:
		res.RejectionReason = "content violates marketplace policy: " + strings.Join(slices.Compact(ruleNames(res.FlaggedContent)), ", ")
	default:
		res.RequiresManualReview = true
	}
	return res, nil
}

func ruleNames(flags []string) []string {
	names := make([]string, 0, len(flags))
	for _, f := range flags {
		name, _, _ := strings.Cut(f, ":")
		names = append(names, name)
	}
	return names
}
