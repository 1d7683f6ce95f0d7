package security

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"logamizer/internal/logger"
	"logamizer/internal/model"
)

// Engine steps every registered rule once per event in a fixed registration
// order. Rules keep their own state; nothing is shared between them.
type Engine struct {
	siteID string
	rules  []Rule
}

// NewEngine builds the engine with the built-in rule set. Registration order
// is fixed so runs over the same input produce findings in the same order.
func NewEngine(siteID string) *Engine {
	return &Engine{
		siteID: siteID,
		rules: []Rule{
			newScannerRule(),
			newAdminProbeRule(),
			newInjectionRule(),
			newBruteForceRule(),
			newBadUARule(),
			newSensitiveFileRule(),
			newTraversalRule(),
			newClient5xxRule(),
			newSuspiciousMethodRule(),
			newMissingUARule(),
		},
	}
}

// Step feeds one event to every rule. A panicking rule skips this event only;
// the stream continues.
func (g *Engine) Step(e *model.NormalizedEvent) {
	for _, r := range g.rules {
		g.stepRule(r, e)
	}
}

func (g *Engine) stepRule(r Rule, e *model.NormalizedEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Rule %s failed on line %d: %v", r.ID(), e.LineNumber, rec)
		}
	}()
	r.Step(e)
}

// Finish collects findings from all rules, stamps site and fingerprint, and
// drops duplicate fingerprints inside the run. Ordering is deterministic:
// registration order, then subject.
func (g *Engine) Finish() []model.Finding {
	var out []model.Finding
	seen := make(map[string]struct{})
	for _, r := range g.rules {
		findings := r.Findings()
		sort.Slice(findings, func(i, j int) bool {
			return findings[i].Subject < findings[j].Subject
		})
		for _, f := range findings {
			f.SiteID = g.siteID
			f.Fingerprint = Fingerprint(f.Type, g.siteID, f.Subject, windowKey(f))
			if _, dup := seen[f.Fingerprint]; dup {
				continue
			}
			seen[f.Fingerprint] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// windowKey anchors the fingerprint in time using the first evidence hour, so
// re-ingesting the same file reproduces the fingerprint while the same
// subject in a different week yields a fresh finding.
func windowKey(f model.Finding) string {
	first, ok := f.Metadata["first_seen"].(string)
	if !ok {
		return ""
	}
	ts, err := time.Parse(time.RFC3339, first)
	if err != nil {
		return ""
	}
	return ts.UTC().Truncate(time.Hour).Format(time.RFC3339)
}

// Fingerprint is the stable identity of a finding: the first 16 bytes of
// SHA-256 over the rule id, site, canonical subject, and time window key.
func Fingerprint(ruleID, siteID, subject, windowKey string) string {
	h := sha256.New()
	for _, part := range []string{ruleID, siteID, subject, windowKey} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
