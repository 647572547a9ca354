// Package market is the marketplace data store: users, ads, chats, payments and support tickets,
// the rules that decide what buyers may see, and the events emitted when any of it changes.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"persian-connect/internal/metrics"
	"persian-connect/internal/moderation"
	"persian-connect/internal/repo"

	"github.com/google/uuid"
)

const (
	adLifetime       = 30 * 24 * time.Hour
	boostDuration    = 7 * 24 * time.Hour
	saveTimeout      = 10 * time.Second
	defaultAdminMail = "admin@persianconnect.com"
)

// Fees are the flat prices charged per ad.
type Fees struct {
	AdPosting float64
	AdBoost   float64
	Currency  string
}

// DefaultFees are used when WithFees is not given.
var DefaultFees = Fees{AdPosting: 5, AdBoost: 10, Currency: "USD"}

// SeedAccount describes the admin account created when the user collection is empty.
type SeedAccount struct {
	Email       string
	Username    string
	DisplayName string
	Password    string
}

// Store owns every marketplace collection. Create it with New and share the instance.
type Store struct {
	mu        sync.RWMutex
	repo      repo.Repository
	logger    *slog.Logger
	metrics   *metrics.Metrics
	moderator moderation.Moderator
	now       func() time.Time
	fees      Fees
	seed      SeedAccount
	bus       Bus

	users    []User
	ads      []Ad
	messages []Message
	chats    []Chat
	payments []Payment
	support  []SupportMessage
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger; the default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger.With("component", "market") }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithModerator sets the content moderation collaborator used by ProcessAdModeration.
func WithModerator(m moderation.Moderator) Option {
	return func(s *Store) { s.moderator = m }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithFees sets posting and boost prices.
func WithFees(f Fees) Option {
	return func(s *Store) { s.fees = f }
}

// WithSeedAdmin overrides the default admin account seeded into an empty store.
func WithSeedAdmin(acc SeedAccount) Option {
	return func(s *Store) { s.seed = acc }
}

// New loads every collection from the repository and seeds the admin account when there are
// no users yet. A collection that fails to parse is logged and starts empty.
func New(ctx context.Context, repository repo.Repository, opts ...Option) (*Store, error) {
	s := &Store{
		repo:   repository,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		fees:   DefaultFees,
		seed: SeedAccount{
			Email:       defaultAdminMail,
			Username:    "admin",
			DisplayName: "Persian Connect Admin",
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	snapshot, err := repository.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}
	s.decode(snapshot)

	if len(s.users) == 0 {
		if err := s.seedDefaults(ctx); err != nil {
			return nil, err
		}
	}

	s.logger.Info("store loaded",
		"users", len(s.users),
		"ads", len(s.ads),
		"messages", len(s.messages),
		"chats", len(s.chats),
		"payments", len(s.payments),
		"support_messages", len(s.support),
	)
	return s, nil
}

func (s *Store) decode(snapshot repo.Snapshot) {
	decodeInto(s.logger, snapshot, repo.KeyUsers, &s.users)
	decodeInto(s.logger, snapshot, repo.KeyAds, &s.ads)
	decodeInto(s.logger, snapshot, repo.KeyMessages, &s.messages)
	decodeInto(s.logger, snapshot, repo.KeyChats, &s.chats)
	decodeInto(s.logger, snapshot, repo.KeyPayments, &s.payments)
	decodeInto(s.logger, snapshot, repo.KeySupportMessages, &s.support)
}

func decodeInto[T any](logger *slog.Logger, snapshot repo.Snapshot, key string, dest *[]T) {
	raw, ok := snapshot[key]
	if !ok || len(raw) == 0 {
		return
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		logger.Error("failed parsing stored collection", "key", key, "error", err)
		return
	}
	*dest = items
}

func (s *Store) encode() (repo.Snapshot, error) {
	snapshot := make(repo.Snapshot, len(repo.Keys))
	collections := map[string]any{
		repo.KeyUsers:           nonNil(s.users),
		repo.KeyAds:             nonNil(s.ads),
		repo.KeyMessages:        nonNil(s.messages),
		repo.KeyChats:           nonNil(s.chats),
		repo.KeyPayments:        nonNil(s.payments),
		repo.KeySupportMessages: nonNil(s.support),
	}
	for key, items := range collections {
		data, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", key, err)
		}
		snapshot[key] = data
	}
	return snapshot, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// saveAll writes every collection. Failures are logged and swallowed; memory stays authoritative.
// Callers hold s.mu.
func (s *Store) saveAll(ctx context.Context) {
	if err := s.persist(ctx); err != nil {
		s.logger.Error("failed saving collections", "error", err)
	}
}

func (s *Store) persist(ctx context.Context) error {
	start := time.Now()
	snapshot, err := s.encode()
	if err == nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		err = s.repo.SaveAll(saveCtx, snapshot)
		cancel()
	}
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
			s.metrics.Errors.WithLabelValues("store_save").Inc()
		}
		s.metrics.StoreSaves.WithLabelValues(status).Inc()
		s.metrics.StoreSaveLatency.Observe(time.Since(start).Seconds())
	}
	return err
}

// Flush saves all collections and reports the error instead of swallowing it.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persist(ctx)
}

// mutate runs fn under the write lock, saves when fn succeeds, then publishes the events fn
// returned after the lock is released. fn returns errUnchanged to skip both.
func (s *Store) mutate(ctx context.Context, op string, fn func() ([]Event, error)) error {
	s.mu.Lock()
	events, err := fn()
	if err == nil {
		s.saveAll(ctx)
	}
	s.mu.Unlock()

	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.StoreMutations.WithLabelValues(op).Inc()
	}
	s.bus.Publish(events...)
	return nil
}

// Subscribe registers fn for every store event and returns the unsubscribe func.
func (s *Store) Subscribe(fn func(Event)) func() {
	return s.bus.Subscribe(fn)
}

// SubscribeKind registers fn for one event kind.
func (s *Store) SubscribeKind(kind EventKind, fn func(Event)) func() {
	return s.bus.SubscribeKind(kind, fn)
}

// clock returns the current time in UTC at millisecond precision, the resolution records keep.
func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func (s *Store) userIndex(id string) int {
	for i := range s.users {
		if s.users[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) adIndex(id string) int {
	for i := range s.ads {
		if s.ads[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) chatIndex(id string) int {
	for i := range s.chats {
		if s.chats[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) paymentIndex(id string) int {
	for i := range s.payments {
		if s.payments[i].ID == id {
			return i
		}
	}
	return -1
}
