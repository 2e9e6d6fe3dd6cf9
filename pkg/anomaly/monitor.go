package anomaly

import (
	"context"
	"time"

	"github.com/privata-io/consent-service/pkg/logger"
	"github.com/privata-io/consent-service/pkg/notification"
)

// RequestSource feeds the monitor with an owner's recent consent requests.
type RequestSource interface {
	RequestsByOwner(ctx context.Context, owner string, since time.Time) ([]AccessRecord, error)
}

// Monitor runs the periodic anomaly sweep. Ticks are single-flight: a sweep
// still running when the next interval fires is not doubled up. One profile's
// failure never aborts the sweep for the others.
type Monitor struct {
	profiles *Store
	source   RequestSource
	sink     notification.Sink
	cfg      Config

	token  chan struct{}
	cancel context.CancelFunc

	Now func() time.Time
}

func NewMonitor(profiles *Store, source RequestSource, sink notification.Sink, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg = DefaultConfig()
	}
	m := &Monitor{
		profiles: profiles,
		source:   source,
		sink:     sink,
		cfg:      cfg,
		token:    make(chan struct{}, 1),
		Now:      time.Now,
	}
	m.token <- struct{}{}
	return m
}

// Start launches the sweep loop on its own goroutine until the context is
// cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Tick(ctx); err != nil {
					logger.Logger().WithError(err).Error("anomaly sweep failed")
				}
			}
		}
	}()
}

// Stop cancels the sweep loop.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Tick runs one sweep over every active profile. It is idempotent and safe
// to call directly; overlapping calls are skipped.
func (m *Monitor) Tick(ctx context.Context) error {
	select {
	case <-m.token:
	default:
		logger.Logger().Debug("anomaly sweep already in flight, skipping tick")
		return nil
	}
	defer func() { m.token <- struct{}{} }()

	for _, p := range m.profiles.Active() {
		if err := m.sweepProfile(ctx, p.OwnerID, p.Category); err != nil {
			logger.Logger().WithError(err).Errorf("sweep failed for owner %s category %s", p.OwnerID, p.Category)
		}
	}
	return nil
}

func (m *Monitor) sweepProfile(ctx context.Context, owner, category string) error {
	now := m.Now()
	records, err := m.source.RequestsByOwner(ctx, owner, now.Add(-m.cfg.Window))
	if err != nil {
		return err
	}
	var scoped []AccessRecord
	for _, r := range records {
		if r.Category == category {
			scoped = append(scoped, r)
		}
	}

	pattern := buildPattern(scoped)
	alerts := evaluateRules(m.cfg, pattern, scoped, now)
	score := scoreFor(m.cfg, pattern, alerts)
	risk := RiskFor(score)
	insights := generateInsights(m.cfg, owner, category, pattern, score, risk, scoped, now)

	m.profiles.update(owner, category, func(p *Profile) {
		p.Pattern = pattern
		p.Score = score
		p.Risk = risk
		p.Alerts = append(p.Alerts, alerts...)
		p.Insights = append(p.Insights, insights...)
	})

	for _, a := range alerts {
		m.publish(owner, "anomaly.alert", map[string]interface{}{
			"alertId":  a.ID,
			"type":     string(a.Type),
			"severity": string(a.Severity),
			"message":  a.Message,
			"category": category,
		})
	}
	for _, i := range insights {
		m.publish(owner, "anomaly.insight", map[string]interface{}{
			"insightId":  i.ID,
			"type":       i.Type,
			"text":       i.Text,
			"confidence": i.Confidence,
			"category":   category,
		})
	}
	return nil
}

func (m *Monitor) publish(recipient, eventType string, payload map[string]interface{}) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Publish(recipient, eventType, payload); err != nil {
		logger.Logger().WithError(err).Warnf("could not publish %s", eventType)
	}
}
