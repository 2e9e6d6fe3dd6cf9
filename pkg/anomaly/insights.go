package anomaly

import (
	"fmt"
	"time"

	"github.com/cbroglie/mustache"
	"github.com/google/uuid"

	"github.com/privata-io/consent-service/pkg/logger"
)

const frequencyInsightTemplate = `{{owner}} received {{requests}} consent requests for {{category}} data in the trailing window. Consider narrowing default access scopes.`

const riskInsightTemplate = `The anomaly score for {{category}} data reached {{score}} ({{risk}} risk). Review the open alerts before approving further requests.`

const complianceInsightTemplate = `{{approved}} of {{responded}} responded requests were approved, a consent compliance rate of {{rate}}%.`

// generateInsights is the separate pass deriving recommendations from
// frequency, risk level and the consent compliance rate.
func generateInsights(cfg Config, owner, category string, pattern AccessPattern, score int, risk RiskLevel, records []AccessRecord, now time.Time) []Insight {
	var insights []Insight
	add := func(insightType, template string, confidence float64, ctx map[string]interface{}) {
		text, err := mustache.Render(template, ctx)
		if err != nil {
			logger.Logger().WithError(err).Warnf("could not render %s insight", insightType)
			return
		}
		insights = append(insights, Insight{
			ID:         uuid.New().String(),
			Type:       insightType,
			Text:       text,
			Confidence: confidence,
			At:         now,
		})
	}

	if pattern.Requests > cfg.FrequencyThreshold {
		add("frequency", frequencyInsightTemplate, 0.8, map[string]interface{}{
			"owner":    owner,
			"requests": pattern.Requests,
			"category": category,
		})
	}

	if risk == RiskHigh || risk == RiskCritical {
		add("risk", riskInsightTemplate, 0.9, map[string]interface{}{
			"category": category,
			"score":    score,
			"risk":     string(risk),
		})
	}

	approved := 0
	responded := 0
	for _, r := range records {
		switch r.Status {
		case "approved", "revoked":
			approved++
			responded++
		case "denied":
			responded++
		}
	}
	if responded > 0 {
		rate := 100 * approved / responded
		add("compliance", complianceInsightTemplate, 0.7, map[string]interface{}{
			"approved":  approved,
			"responded": responded,
			"rate":      fmt.Sprintf("%d", rate),
		})
	}

	return insights
}
