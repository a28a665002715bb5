package models

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func testCampaign(id int, status string) Campaign {
	now := time.Now()
	return Campaign{
		ID:          id,
		ClientID:    1,
		Name:        "camp",
		Type:        TypeBanner,
		PricingMode: PricingCPM,
		Status:      status,
		Currency:    "USD",
		BudgetTotal: 1000,
		StartDate:   now.Add(-time.Hour),
		EndDate:     now.Add(time.Hour),
		CreatedAt:   now,
	}
}

func TestStoreCampaignCRUD(t *testing.T) {
	s := NewInMemoryCampaignStore()

	c := testCampaign(1, StatusDraft)
	if err := s.InsertCampaign(&c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertCampaign(&c); err == nil {
		t.Fatal("expected duplicate insert to fail")
	}

	got := s.GetCampaign(1)
	if got == nil || got.Status != StatusDraft {
		t.Fatalf("unexpected campaign: %+v", got)
	}

	if err := s.UpdateCampaignStatus(1, StatusActive); err != nil {
		t.Fatalf("status update: %v", err)
	}
	if got := s.GetCampaign(1); got.Status != StatusActive {
		t.Fatalf("status = %q, want active", got.Status)
	}

	if err := s.UpdateCampaignStatus(99, StatusActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStorePrimaryCreative(t *testing.T) {
	s := NewInMemoryCampaignStore()
	if err := s.SetCreatives([]Creative{
		{ID: 1, CampaignID: 7, Active: true},
		{ID: 2, CampaignID: 7, Active: true, Primary: true},
		{ID: 3, CampaignID: 7, Active: false, Primary: true},
	}); err != nil {
		t.Fatalf("set creatives: %v", err)
	}

	got := s.GetPrimaryCreative(7)
	if got == nil || got.ID != 2 {
		t.Fatalf("primary creative = %+v, want ID 2", got)
	}

	// Without a primary flag the first active creative wins.
	if err := s.SetCreatives([]Creative{
		{ID: 4, CampaignID: 7, Active: false},
		{ID: 5, CampaignID: 7, Active: true},
	}); err != nil {
		t.Fatalf("set creatives: %v", err)
	}
	if got := s.GetPrimaryCreative(7); got == nil || got.ID != 5 {
		t.Fatalf("fallback creative = %+v, want ID 5", got)
	}
}

func TestStoreReloadAllAtomic(t *testing.T) {
	s := NewInMemoryCampaignStore()
	if err := s.ReloadAll(
		[]Campaign{testCampaign(1, StatusActive)},
		[]Creative{{ID: 10, CampaignID: 1, Active: true}},
		[]Placement{{ID: "homepage", Multiplier: 2.0}},
	); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if s.GetCampaign(1) == nil || s.GetCreative(10) == nil || s.GetPlacement("homepage") == nil {
		t.Fatal("reload dropped entities")
	}

	// Readers must always see campaign and creative together or not at all.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			c := s.GetCampaign(1)
			if c == nil {
				continue
			}
			if len(s.GetCreativesByCampaign(1)) == 0 {
				t.Error("campaign visible without its creatives")
				return
			}
		}
	}()
	for i := 0; i < 100; i++ {
		if err := s.ReloadAll(
			[]Campaign{testCampaign(1, StatusActive)},
			[]Creative{{ID: 10, CampaignID: 1, Active: true}},
			nil,
		); err != nil {
			t.Fatalf("reload: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestStoreCreativeSwap(t *testing.T) {
	s := NewInMemoryCampaignStore()
	cr := Creative{ID: 1, CampaignID: 2, AssetURL: "https://cdn/a.png", Active: true}
	if err := s.InsertCreative(&cr); err != nil {
		t.Fatalf("insert: %v", err)
	}

	cr.AssetURL = "https://cdn/b.png"
	if err := s.UpdateCreative(cr); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.GetCreative(1); got.AssetURL != "https://cdn/b.png" {
		t.Fatalf("asset = %q", got.AssetURL)
	}

	if err := s.UpdateCreative(Creative{ID: 42}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
