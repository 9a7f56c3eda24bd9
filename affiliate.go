package infergate

import (
	"net/url"
	"strings"
)

const defaultOfferBaseURL = "https://example.com"

// Enrich appends offer links for every affiliate rule whose keyword appears
// in text (case-insensitive). When no rule matches and a default tracker is
// configured, a tracked default offer is appended instead.
func (c AffiliateConfig) Enrich(text string) (string, []string) {
	var (
		b     strings.Builder
		links []string
	)
	b.WriteString(text)

	lower := strings.ToLower(text)
	for _, r := range c.Rules {
		if strings.Contains(lower, strings.ToLower(r.Keyword)) {
			links = append(links, r.URL)
			b.WriteString("\nRecommended offer: ")
			b.WriteString(r.URL)
		}
	}

	if len(links) == 0 && c.DefaultTracker != "" {
		link := defaultOfferBaseURL + "?trk=" + url.QueryEscape(c.DefaultTracker)
		links = append(links, link)
		b.WriteString("\nDefault offer: ")
		b.WriteString(link)
	}

	return b.String(), links
}
