package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/jobdeck/adengine/internal/models"
)

var _ Service = (*MockAnalytics)(nil)

// MockAnalytics is an in-memory Service implementation for tests. It keeps
// every recorded event and derives totals on demand.
type MockAnalytics struct {
	mu     sync.Mutex
	Events []models.Event
	// Err, when set, is returned by RecordEvent to exercise failure paths.
	Err error
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

func (m *MockAnalytics) RecordEvent(ctx context.Context, ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m.Events = append(m.Events, ev)
	return nil
}

func (m *MockAnalytics) CampaignTotals(ctx context.Context, campaignID, days int) (Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().AddDate(0, 0, -days)
	var t Totals
	for _, ev := range m.Events {
		if ev.CampaignID != campaignID || ev.Timestamp.Before(cutoff) {
			continue
		}
		switch ev.Type {
		case models.EventImpression:
			t.Impressions++
		case models.EventClick:
			t.Clicks++
		case models.EventConversion:
			t.Conversions++
			t.ConversionValue += ev.ConversionValue
		}
		t.Spent += ev.Cost
	}
	return t, nil
}

func (m *MockAnalytics) DailyMetrics(ctx context.Context, campaignID, days int) ([]DailyMetrics, error) {
	return nil, nil
}

// EventsOfType returns recorded events matching the given type.
func (m *MockAnalytics) EventsOfType(eventType string) []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, ev := range m.Events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
