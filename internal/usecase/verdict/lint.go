package verdict

import (
	"fmt"
	"sort"
	"strings"

	"inquest/internal/domain"
)

// elevatedScore is the level at which a score materially contradicts a
// narrative claiming low or no risk.
const elevatedScore = 0.5

// downplayPhrases mark a narrative as claiming low, no or insufficient risk.
var downplayPhrases = []string{"low risk", "no risk", "insufficient"}

// Lint reports contradictions across a set of domain results. It inspects
// the results as given, before validation, and never fixes anything:
// insufficient evidence carrying a score, a narrative downplaying risk
// against a materially higher score, an elevated score with no supporting
// signals, and domains disagreeing on a deterministic fact. finalRisk, when
// known, stands in for the score of domains that carry none. Issue order is
// deterministic.
func (a *Aggregator) Lint(domains []domain.DomainResult, finalRisk *float64) []string {
	issues := []string{}

	for _, d := range domains {
		if d.Status == domain.StatusInsufficientEvidence && d.Score != nil {
			issues = append(issues, fmt.Sprintf(
				"%s: insufficient evidence but carries score %.2f", d.Name, *d.Score))
		}

		effective := d.Score
		if effective == nil {
			effective = finalRisk
		}
		if effective != nil && *effective >= elevatedScore && downplaysRisk(d.Narrative) {
			issues = append(issues, fmt.Sprintf(
				"%s: narrative downplays risk against score %.2f", d.Name, *effective))
		}

		if d.Score != nil && *d.Score >= elevatedScore && len(d.Signals) == 0 {
			issues = append(issues, fmt.Sprintf(
				"%s: elevated score %.2f with no supporting signals", d.Name, *d.Score))
		}
	}

	issues = append(issues, factDisagreements(domains)...)
	return issues
}

func downplaysRisk(narrative string) bool {
	n := strings.ToLower(narrative)
	for _, p := range downplayPhrases {
		if strings.Contains(n, p) {
			return true
		}
	}
	return false
}

// factDisagreements flags every deterministic fact reported with different
// values by different domains. Facts are computed, not judged, so any
// disagreement is a defect upstream.
func factDisagreements(domains []domain.DomainResult) []string {
	type claim struct {
		domain string
		value  string
	}
	claims := map[string][]claim{}
	for _, d := range domains {
		for k, v := range d.Facts {
			claims[k] = append(claims[k], claim{domain: d.Name, value: v})
		}
	}

	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var issues []string
	for _, k := range keys {
		cs := claims[k]
		agreed := true
		for _, c := range cs[1:] {
			if c.value != cs[0].value {
				agreed = false
				break
			}
		}
		if agreed {
			continue
		}
		parts := make([]string, len(cs))
		for i, c := range cs {
			parts[i] = fmt.Sprintf("%s=%s", c.domain, c.value)
		}
		issues = append(issues, fmt.Sprintf(
			"fact %q disagrees across domains: %s", k, strings.Join(parts, ", ")))
	}
	return issues
}
