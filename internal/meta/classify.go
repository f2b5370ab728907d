package meta

import "strings"

var (
	premierMarkers  = []string{"ycs", "championship", "wcq"}
	regionalMarkers = []string{"regional", "major"}
)

// ClassifyEvent buckets an event by its name. hint is the listing tier label
// when the source has one; a "Premier" hint promotes the event to premier.
func ClassifyEvent(name, hint string) EventTier {
	lower := strings.ToLower(name)
	for _, m := range premierMarkers {
		if strings.Contains(lower, m) {
			return TierPremier
		}
	}
	if strings.EqualFold(strings.TrimSpace(hint), "premier") {
		return TierPremier
	}
	for _, m := range regionalMarkers {
		if strings.Contains(lower, m) {
			return TierRegional
		}
	}
	return TierOther
}
