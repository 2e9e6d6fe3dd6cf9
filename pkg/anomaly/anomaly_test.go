package anomaly

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/privata-io/consent-service/pkg/notification"
)

type staticSource struct {
	records []AccessRecord
}

func (s staticSource) RequestsByOwner(ctx context.Context, owner string, since time.Time) ([]AccessRecord, error) {
	return s.records, nil
}

func TestRiskFor(t *testing.T) {
	cases := map[string]struct {
		score int
		risk  RiskLevel
	}{
		"zero":            {0, RiskLow},
		"just below low":  {49, RiskLow},
		"medium":          {50, RiskMedium},
		"high":            {75, RiskHigh},
		"critical":        {90, RiskCritical},
		"capped critical": {100, RiskCritical},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.risk, RiskFor(tc.score))
		})
	}
}

func TestEvaluateRules(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	at := func(hour int) time.Time {
		return time.Date(2026, time.March, 10, hour, 0, 0, 0, time.UTC)
	}

	t.Run("quiet window raises nothing", func(t *testing.T) {
		records := []AccessRecord{
			{Category: "medical", CreatedAt: at(10), Status: "approved", Fields: 2},
			{Category: "medical", CreatedAt: at(11), Status: "pending", Fields: 1},
		}
		pattern := buildPattern(records)
		alerts := evaluateRules(cfg, pattern, records, now)
		assert.Empty(t, alerts)
		assert.Equal(t, 0, scoreFor(cfg, pattern, alerts))
	})

	t.Run("burst plus night access", func(t *testing.T) {
		var records []AccessRecord
		for i := 0; i < 6; i++ {
			records = append(records, AccessRecord{Category: "medical", CreatedAt: at(10), Status: "pending", Fields: 1})
		}
		records = append(records, AccessRecord{Category: "medical", CreatedAt: at(3), Status: "pending", Fields: 1})

		pattern := buildPattern(records)
		alerts := evaluateRules(cfg, pattern, records, now)

		types := map[AlertType]bool{}
		for _, a := range alerts {
			types[a.Type] = true
		}
		assert.True(t, types[AlertHighFrequency])
		assert.True(t, types[AlertOffHours])
		assert.GreaterOrEqual(t, len(alerts), 2)
		assert.GreaterOrEqual(t, scoreFor(cfg, pattern, alerts), 20)
	})

	t.Run("off-hours accesses raise one alert, not one per record", func(t *testing.T) {
		records := []AccessRecord{
			{Category: "medical", CreatedAt: at(2), Status: "pending", Fields: 1},
			{Category: "medical", CreatedAt: at(3), Status: "pending", Fields: 1},
			{Category: "medical", CreatedAt: at(4), Status: "pending", Fields: 1},
		}
		alerts := evaluateRules(cfg, buildPattern(records), records, now)
		assert.Len(t, alerts, 1)
		assert.Equal(t, AlertOffHours, alerts[0].Type)
	})

	t.Run("high denial rate", func(t *testing.T) {
		records := []AccessRecord{
			{Category: "medical", CreatedAt: at(10), Status: "denied", Fields: 1},
			{Category: "medical", CreatedAt: at(11), Status: "denied", Fields: 1},
			{Category: "medical", CreatedAt: at(12), Status: "approved", Fields: 1},
		}
		alerts := evaluateRules(cfg, buildPattern(records), records, now)
		assert.Len(t, alerts, 1)
		assert.Equal(t, AlertHighDenialRate, alerts[0].Type)
		assert.Equal(t, SeverityError, alerts[0].Severity)
	})

	t.Run("score is capped at 100", func(t *testing.T) {
		var alerts []Alert
		for i := 0; i < 10; i++ {
			alerts = append(alerts, Alert{Severity: SeverityCritical})
		}
		assert.Equal(t, 100, scoreFor(cfg, AccessPattern{}, alerts))
	})

	t.Run("extreme frequency and volume add bonuses", func(t *testing.T) {
		pattern := AccessPattern{Requests: 2*cfg.FrequencyThreshold + 1, Volume: 2*cfg.VolumeThreshold + 1}
		alerts := []Alert{{Severity: SeverityWarning}}
		assert.Equal(t, 10+10+10, scoreFor(cfg, pattern, alerts))
	})
}

func TestGenerateInsights(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()

	var records []AccessRecord
	for i := 0; i < 6; i++ {
		records = append(records, AccessRecord{Category: "medical", CreatedAt: now, Status: "approved", Fields: 1})
	}
	records = append(records, AccessRecord{Category: "medical", CreatedAt: now, Status: "denied", Fields: 1})

	pattern := buildPattern(records)
	insights := generateInsights(cfg, "alice", "medical", pattern, 80, RiskHigh, records, now)

	types := map[string]bool{}
	for _, i := range insights {
		types[i.Type] = true
		assert.NotEmpty(t, i.Text)
		assert.Greater(t, i.Confidence, 0.0)
	}
	assert.True(t, types["frequency"])
	assert.True(t, types["risk"])
	assert.True(t, types["compliance"])
}

func TestMonitor_Tick(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	var records []AccessRecord
	for i := 0; i < 6; i++ {
		records = append(records, AccessRecord{Category: "medical", CreatedAt: now.Add(-time.Hour), Status: "pending", Fields: 1})
	}
	records = append(records, AccessRecord{
		Category:  "medical",
		CreatedAt: time.Date(2026, time.March, 10, 3, 0, 0, 0, time.UTC),
		Status:    "pending",
		Fields:    1,
	})

	store := NewStore()
	store.Ensure("alice", "medical")
	sink := notification.NewMemorySink()

	monitor := NewMonitor(store, staticSource{records: records}, sink, cfg)
	monitor.Now = func() time.Time { return now }

	assert.NoError(t, monitor.Tick(context.Background()))

	profile, ok := store.Get("alice", "medical")
	assert.True(t, ok)
	assert.GreaterOrEqual(t, len(profile.Alerts), 2)
	assert.GreaterOrEqual(t, profile.Score, 20)
	assert.Equal(t, 7, profile.Pattern.Requests)

	alerts := sink.ByType("anomaly.alert")
	assert.GreaterOrEqual(t, len(alerts), 2)

	t.Run("alerts accumulate, never overwrite", func(t *testing.T) {
		before := len(profile.Alerts)
		assert.NoError(t, monitor.Tick(context.Background()))
		after, _ := store.Get("alice", "medical")
		assert.GreaterOrEqual(t, len(after.Alerts), before)
	})

	t.Run("deactivated profiles are skipped", func(t *testing.T) {
		store.Deactivate("alice", "medical")
		before, _ := store.Get("alice", "medical")
		assert.NoError(t, monitor.Tick(context.Background()))
		after, _ := store.Get("alice", "medical")
		assert.Equal(t, len(before.Alerts), len(after.Alerts))
	})
}

func TestMonitor_TickSingleFlight(t *testing.T) {
	store := NewStore()
	monitor := NewMonitor(store, staticSource{}, nil, DefaultConfig())

	// hold the token to simulate a sweep in flight
	<-monitor.token

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, monitor.Tick(context.Background()))
		}()
	}
	wg.Wait()

	monitor.token <- struct{}{}
	assert.NoError(t, monitor.Tick(context.Background()))
}
