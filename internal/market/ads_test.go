package market

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateAdStartsPendingWithThirtyDayExpiry(t *testing.T) {
	s, _, _ := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")

	ad := mustCreateAd(t, s, seller, NewAd{Price: 100, Currency: "USD", Category: "home"})
	if ad.Status != StatusPending || ad.PaymentStatus != PaymentPending {
		t.Fatalf("status = %s/%s, want pending/pending", ad.Status, ad.PaymentStatus)
	}
	if got := ad.ExpiresAt.Sub(ad.CreatedAt); got != 30*24*time.Hour {
		t.Fatalf("expiresAt - createdAt = %v, want 720h", got)
	}
	if ad.Views != 0 || !ad.UpdatedAt.Equal(ad.CreatedAt) {
		t.Fatalf("unexpected fresh ad %+v", ad)
	}
	if len(s.GetApprovedAds(AdFilters{})) != 0 {
		t.Fatal("a new ad must not be public")
	}
}

func TestCreateAdValidation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")

	if _, err := s.CreateAd(ctx, NewAd{UserID: seller.ID}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing title: error = %v, want ErrInvalidInput", err)
	}
	if _, err := s.CreateAd(ctx, NewAd{UserID: seller.ID, Title: "x", Price: -1}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative price: error = %v, want ErrInvalidInput", err)
	}
	if _, err := s.CreateAd(ctx, NewAd{UserID: "ghost", Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown owner: error = %v, want ErrNotFound", err)
	}
}

func TestGetApprovedAdsVisibility(t *testing.T) {
	ctx := context.Background()
	s, _, clock := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")

	visible := publish(t, s, mustCreateAd(t, s, seller, NewAd{Title: "visible"}))

	unpaid := mustCreateAd(t, s, seller, NewAd{Title: "unpaid"})
	if _, err := s.AdminReviewAd(ctx, unpaid.ID, StatusApproved, "admin", ""); err != nil {
		t.Fatalf("approve unpaid: %v", err)
	}

	paidPending := mustCreateAd(t, s, seller, NewAd{Title: "paid but pending"})
	paid := PaymentCompleted
	if _, err := s.UpdateAd(ctx, paidPending.ID, AdUpdate{PaymentStatus: &paid}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	got := s.GetApprovedAds(AdFilters{})
	if len(got) != 1 || got[0].ID != visible.ID {
		t.Fatalf("expected only the visible ad, got %d ads", len(got))
	}

	if !s.IsPublic(visible) || s.IsPublic(unpaid) {
		t.Fatal("IsPublic must agree with the listing")
	}

	clock.Advance(30 * 24 * time.Hour)
	if got := s.GetApprovedAds(AdFilters{}); len(got) != 0 {
		t.Fatalf("ad must disappear once now reaches expiresAt, got %d", len(got))
	}
	if s.IsPublic(visible) {
		t.Fatal("IsPublic must use the store clock")
	}
}

func TestGetApprovedAdsOrdering(t *testing.T) {
	ctx := context.Background()
	s, _, clock := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")

	create := func(title string, featured, urgent bool) Ad {
		clock.Advance(time.Minute)
		a := publish(t, s, mustCreateAd(t, s, seller, NewAd{Title: title, Urgent: urgent}))
		if featured {
			if _, err := s.BoostAd(ctx, a.ID); err != nil {
				t.Fatalf("boost: %v", err)
			}
		}
		return a
	}
	create("plain old", false, false)
	create("featured old", true, false)
	create("urgent", false, true)
	create("featured urgent", true, true)
	create("plain new", false, false)
	create("featured new", true, false)

	want := []string{"featured urgent", "featured new", "featured old", "urgent", "plain new", "plain old"}
	got := s.GetApprovedAds(AdFilters{})
	if len(got) != len(want) {
		t.Fatalf("got %d ads, want %d", len(got), len(want))
	}
	for i, a := range got {
		if a.Title != want[i] {
			t.Fatalf("position %d = %q, want %q", i, a.Title, want[i])
		}
	}
}

func TestFeaturedBeatsUrgent(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")

	urgent := publish(t, s, mustCreateAd(t, s, seller, NewAd{Title: "urgent", Urgent: true}))
	featured := publish(t, s, mustCreateAd(t, s, seller, NewAd{Title: "featured"}))
	if _, err := s.BoostAd(ctx, featured.ID); err != nil {
		t.Fatalf("boost: %v", err)
	}

	got := s.GetApprovedAds(AdFilters{})
	if len(got) != 2 || got[0].ID != featured.ID || got[1].ID != urgent.ID {
		t.Fatalf("featured ad must come first, got %q then %q", got[0].Title, got[1].Title)
	}
}

func TestGetApprovedAdsFilters(t *testing.T) {
	s, _, _ := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")

	publish(t, s, mustCreateAd(t, s, seller, NewAd{
		Title: "Sofa", TitlePersian: "مبل", Category: "home", Subcategory: "furniture",
		Location: Location{Country: "Canada", City: "Toronto"}, Price: 300,
	}))
	publish(t, s, mustCreateAd(t, s, seller, NewAd{
		Title: "Honda Civic", Description: "Low mileage", Category: "vehicles",
		Location: Location{Country: "USA", City: "Los Angeles"}, Price: 9000,
	}))

	lo, hi := 100.0, 1000.0
	cases := []struct {
		name   string
		filter AdFilters
		want   int
	}{
		{"no filter", AdFilters{}, 2},
		{"category ignores case", AdFilters{Category: "HOME"}, 1},
		{"subcategory", AdFilters{Subcategory: "furniture"}, 1},
		{"country", AdFilters{Location: "usa"}, 1},
		{"city", AdFilters{Location: "toronto"}, 1},
		{"search english description", AdFilters{Search: "MILEAGE"}, 1},
		{"search persian title", AdFilters{Search: "مبل"}, 1},
		{"price range", AdFilters{MinPrice: &lo, MaxPrice: &hi}, 1},
		{"featured only", AdFilters{FeaturedOnly: true}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(s.GetApprovedAds(tc.filter)); got != tc.want {
				t.Fatalf("got %d ads, want %d", got, tc.want)
			}
		})
	}
	if got := len(s.GetAdsByCategory("vehicles")); got != 1 {
		t.Fatalf("GetAdsByCategory = %d ads, want 1", got)
	}
}

func TestUpdateAdMergesAndRefreshesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s, _, clock := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")
	ad := mustCreateAd(t, s, seller, NewAd{Title: "Lamp", Price: 20, Category: "home"})

	clock.Advance(time.Hour)
	price := 15.0
	got, err := s.UpdateAd(ctx, ad.ID, AdUpdate{Price: &price, Images: []string{"a.jpg"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Price != 15 || got.Title != "Lamp" || got.Category != "home" || len(got.Images) != 1 {
		t.Fatalf("unexpected merge result %+v", got)
	}
	if !got.UpdatedAt.Equal(clock.Now()) || !got.CreatedAt.Equal(ad.CreatedAt) {
		t.Fatalf("updatedAt = %v createdAt = %v", got.UpdatedAt, got.CreatedAt)
	}
}

func TestReturnedAdsAreCopies(t *testing.T) {
	s, _, _ := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")
	ad := mustCreateAd(t, s, seller, NewAd{Images: []string{"a.jpg"}})

	ad.Images[0] = "changed.jpg"
	got, _ := s.GetAd(ad.ID)
	if got.Images[0] != "a.jpg" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestIncrementViews(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")
	ad := mustCreateAd(t, s, seller, NewAd{})

	for range 3 {
		if err := s.IncrementViews(ctx, ad.ID); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if got, _ := s.GetAd(ad.ID); got.Views != 3 {
		t.Fatalf("views = %d, want 3", got.Views)
	}
}

func TestDeleteAdCascadesToMessagesAndChats(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")
	buyer := mustRegister(t, s, "buyer@example.com")
	rug := mustCreateAd(t, s, seller, NewAd{Title: "rug"})
	lamp := mustCreateAd(t, s, seller, NewAd{Title: "lamp"})

	send := func(chatID, adID string) {
		if _, err := s.SendMessage(ctx, NewMessage{ChatID: chatID, SenderID: buyer.ID, ReceiverID: seller.ID, Content: "hi", AdID: adID}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	send("rug-chat", rug.ID)
	send("lamp-chat", lamp.ID)

	if err := s.DeleteAd(ctx, rug.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.GetAd(rug.ID); ok {
		t.Fatal("ad still present")
	}
	if n := len(s.GetChatMessages("rug-chat")); n != 0 {
		t.Fatalf("%d messages about the deleted ad remain", n)
	}
	if _, ok := s.GetChat("rug-chat"); ok {
		t.Fatal("chat about the deleted ad remains")
	}
	if n := len(s.GetChatMessages("lamp-chat")); n != 1 {
		t.Fatalf("unrelated chat lost messages, have %d", n)
	}
}

func TestCleanupExpiredAds(t *testing.T) {
	ctx := context.Background()
	s, mem, clock := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")

	live := publish(t, s, mustCreateAd(t, s, seller, NewAd{Title: "live"}))
	pending := mustCreateAd(t, s, seller, NewAd{Title: "pending"})
	rejected := mustCreateAd(t, s, seller, NewAd{Title: "rejected"})
	if _, err := s.AdminReviewAd(ctx, rejected.ID, StatusRejected, "admin", "spam"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if n, err := s.CleanupExpiredAds(ctx); err != nil || n != 0 {
		t.Fatalf("early cleanup = %d, %v; want 0", n, err)
	}

	var batch []Ad
	s.SubscribeKind(KindAdsExpired, func(e Event) { batch = e.(AdsExpired).Ads })
	clock.Advance(31 * 24 * time.Hour)
	saves := mem.Saves()

	n, err := s.CleanupExpiredAds(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 2 || len(batch) != 2 {
		t.Fatalf("expired %d ads (event batch %d), want 2", n, len(batch))
	}
	if mem.Saves() != saves+1 {
		t.Fatalf("cleanup should save once, saves %d -> %d", saves, mem.Saves())
	}
	for id, want := range map[string]AdStatus{live.ID: StatusExpired, pending.ID: StatusExpired, rejected.ID: StatusRejected} {
		if got, _ := s.GetAd(id); got.Status != want {
			t.Fatalf("ad %s status = %s, want %s", got.Title, got.Status, want)
		}
	}
	if n, _ := s.CleanupExpiredAds(ctx); n != 0 {
		t.Fatalf("second cleanup expired %d ads, want 0", n)
	}
}
