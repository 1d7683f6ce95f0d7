// Package anomaly scores freshly aggregated hours against a per-site rolling
// baseline and emits signals through the finding channel.
package anomaly

import (
	"fmt"
	"math"
	"time"

	constants "logamizer/config"
	"logamizer/internal/model"
	"logamizer/internal/security"
)

// Detector holds one site's anomaly parameters.
type Detector struct {
	siteID string
	params model.AnomalyParams
}

// New creates a detector for a site. Unset parameters fall back to the
// shipped defaults.
func New(siteID string, params model.AnomalyParams) *Detector {
	if params.BaselineDays <= 0 {
		params.BaselineDays = constants.DEFAULT_BASELINE_DAYS
	}
	if params.MinBaselineHours <= 0 {
		params.MinBaselineHours = constants.DEFAULT_MIN_BASELINE_HOURS
	}
	if params.ZThreshold <= 0 {
		params.ZThreshold = constants.DEFAULT_Z_THRESHOLD
	}
	if params.NewPathMinCount <= 0 {
		params.NewPathMinCount = constants.DEFAULT_NEW_PATH_MIN_COUNT
	}
	return &Detector{siteID: siteID, params: params}
}

// Examine scores each freshly touched hour against the baseline drawn from
// history. History must contain the site's stored rows covering the baseline
// window; rows for the touched hours themselves are excluded automatically.
// Signals are idempotent by (site, hour, type, subject).
func (d *Detector) Examine(touched, history []model.HourlyAggregate) []model.Finding {
	byHour := make(map[time.Time]*model.HourlyAggregate, len(history))
	for i := range history {
		byHour[history[i].HourBucket] = &history[i]
	}

	var out []model.Finding
	for i := range touched {
		out = append(out, d.examineHour(&touched[i], byHour)...)
	}
	return out
}

func (d *Detector) examineHour(hour *model.HourlyAggregate, byHour map[time.Time]*model.HourlyAggregate) []model.Finding {
	h := hour.HourBucket
	start := h.Add(-time.Duration(d.params.BaselineDays) * 24 * time.Hour)

	var baseline []*model.HourlyAggregate
	for ts, row := range byHour {
		if !ts.Before(start) && ts.Before(h) {
			baseline = append(baseline, row)
		}
	}
	// Too little history to call anything anomalous.
	if len(baseline) < d.params.MinBaselineHours {
		return nil
	}

	var out []model.Finding

	requests := make([]float64, len(baseline))
	errors := make([]float64, len(baseline))
	for i, row := range baseline {
		requests[i] = float64(row.RequestsCount)
		errors[i] = float64(row.Status4xx + row.Status5xx)
	}

	reqValue := float64(hour.RequestsCount)
	if z := zScore(reqValue, requests); z >= d.params.ZThreshold && hour.RequestsCount >= constants.ANOMALY_REQUEST_FLOOR {
		out = append(out, d.signal(h, "anomaly.traffic_spike", model.SeverityHigh,
			"Traffic spike", "requests",
			fmt.Sprintf("%d requests in the hour, z=%.1f against the %d-hour baseline", hour.RequestsCount, z, len(baseline)),
			map[string]any{"value": hour.RequestsCount, "z_score": round1(z)}))
	}

	errValue := float64(hour.Status4xx + hour.Status5xx)
	if z := zScore(errValue, errors); z >= d.params.ZThreshold && int64(errValue) >= constants.ANOMALY_ERROR_FLOOR {
		out = append(out, d.signal(h, "anomaly.error_spike", model.SeverityCritical,
			"Error rate spike", "errors",
			fmt.Sprintf("%d 4xx+5xx responses in the hour, z=%.1f against the %d-hour baseline", int64(errValue), z, len(baseline)),
			map[string]any{"value": int64(errValue), "z_score": round1(z)}))
	}

	// Paths that show up in this hour's top list but never in the baseline's.
	known := make(map[string]struct{})
	for _, row := range baseline {
		for _, e := range row.TopPaths {
			known[e.Key] = struct{}{}
		}
	}
	for _, e := range hour.TopPaths {
		if _, seen := known[e.Key]; seen {
			continue
		}
		if e.Count < int64(d.params.NewPathMinCount) {
			continue
		}
		out = append(out, d.signal(h, "anomaly.new_path", model.SeverityMedium,
			"New heavily requested path", e.Key,
			fmt.Sprintf("path %s first seen this hour with %d requests", e.Key, e.Count),
			map[string]any{"count": e.Count}))
	}

	return out
}

func (d *Detector) signal(hour time.Time, anomalyType string, severity model.Severity, title, subject, description string, metadata map[string]any) model.Finding {
	key := hour.UTC().Format(time.RFC3339)
	metadata["hour_bucket"] = key
	return model.Finding{
		SiteID:      d.siteID,
		Type:        anomalyType,
		Severity:    severity,
		Title:       title,
		Description: description,
		Subject:     subject,
		Metadata:    metadata,
		Fingerprint: security.Fingerprint(anomalyType, d.siteID, subject, key),
	}
}

// zScore is (value - mean) / max(stddev, epsilon) with population stddev.
func zScore(value float64, baseline []float64) float64 {
	if len(baseline) == 0 {
		return 0
	}
	var sum float64
	for _, v := range baseline {
		sum += v
	}
	mean := sum / float64(len(baseline))

	var variance float64
	for _, v := range baseline {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(baseline))

	sigma := math.Sqrt(variance)
	if sigma < constants.ANOMALY_SIGMA_EPSILON {
		sigma = constants.ANOMALY_SIGMA_EPSILON
	}
	return (value - mean) / sigma
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
