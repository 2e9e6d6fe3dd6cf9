package anomaly

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AccessRecord is the monitor's view of one consent request inside the
// trailing window.
type AccessRecord struct {
	Category  string
	CreatedAt time.Time
	Status    string
	Fields    int
}

// Config carries the sweep thresholds.
type Config struct {
	Interval             time.Duration
	Window               time.Duration
	FrequencyThreshold   int
	VolumeThreshold      int
	DeniedRatioThreshold float64
	NormalHoursStart     int
	NormalHoursEnd       int
}

func DefaultConfig() Config {
	return Config{
		Interval:             5 * time.Minute,
		Window:               24 * time.Hour,
		FrequencyThreshold:   5,
		VolumeThreshold:      50,
		DeniedRatioThreshold: 0.5,
		NormalHoursStart:     6,
		NormalHoursEnd:       22,
	}
}

// buildPattern summarizes the records: distinct hours and days touched,
// request count, approximate volume (scope fields asked for) and duration.
func buildPattern(records []AccessRecord) AccessPattern {
	hours := map[int]bool{}
	days := map[string]bool{}
	volume := 0
	for _, r := range records {
		hours[r.CreatedAt.Hour()] = true
		days[r.CreatedAt.Format("2006-01-02")] = true
		if r.Fields > 0 {
			volume += r.Fields
		} else {
			volume++
		}
	}

	pattern := AccessPattern{
		Requests: len(records),
		Volume:   volume,
		// rough estimate, the source does not track session lengths
		Duration: time.Duration(len(records)) * 15 * time.Minute,
	}
	for h := range hours {
		pattern.Hours = append(pattern.Hours, h)
	}
	sort.Ints(pattern.Hours)
	for d := range days {
		pattern.Days = append(pattern.Days, d)
	}
	sort.Strings(pattern.Days)
	return pattern
}

// evaluateRules runs the four independent anomaly rules over the window.
func evaluateRules(cfg Config, pattern AccessPattern, records []AccessRecord, now time.Time) []Alert {
	var alerts []Alert
	add := func(t AlertType, severity Severity, msg string) {
		alerts = append(alerts, Alert{
			ID:       uuid.New().String(),
			Type:     t,
			Severity: severity,
			Message:  msg,
			At:       now,
		})
	}

	if pattern.Requests > cfg.FrequencyThreshold {
		add(AlertHighFrequency, SeverityWarning,
			fmt.Sprintf("%d consent requests in the trailing window exceed the threshold of %d", pattern.Requests, cfg.FrequencyThreshold))
	}

	if pattern.Volume > cfg.VolumeThreshold {
		add(AlertHighVolume, SeverityError,
			fmt.Sprintf("estimated data volume %d exceeds the threshold of %d", pattern.Volume, cfg.VolumeThreshold))
	}

	for _, r := range records {
		h := r.CreatedAt.Hour()
		if h < cfg.NormalHoursStart || h >= cfg.NormalHoursEnd {
			add(AlertOffHours, SeverityWarning,
				fmt.Sprintf("access at %02d:00 falls outside normal hours %02d:00-%02d:00", h, cfg.NormalHoursStart, cfg.NormalHoursEnd))
			break
		}
	}

	denied := 0
	responded := 0
	for _, r := range records {
		switch r.Status {
		case "denied":
			denied++
			responded++
		case "approved", "revoked":
			responded++
		}
	}
	if responded > 0 {
		ratio := float64(denied) / float64(responded)
		if ratio > cfg.DeniedRatioThreshold {
			add(AlertHighDenialRate, SeverityError,
				fmt.Sprintf("denied ratio %.2f exceeds the threshold of %.2f", ratio, cfg.DeniedRatioThreshold))
		}
	}

	return alerts
}

// scoreFor sums the per-alert severity weights plus fixed bonuses for
// extreme frequency or volume, capped at 100.
func scoreFor(cfg Config, pattern AccessPattern, alerts []Alert) int {
	score := 0
	for _, a := range alerts {
		score += severityWeights[a.Severity]
	}
	if pattern.Requests > 2*cfg.FrequencyThreshold {
		score += 10
	}
	if pattern.Volume > 2*cfg.VolumeThreshold {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}
