package assembler

import "strings"

// Tier is a firm-selected detail level.
type Tier string

const (
	TierFocused    Tier = "focused"
	TierStandard   Tier = "standard"
	TierEnterprise Tier = "enterprise"
)

// Tiers lists the detail levels from least to most detailed.
var Tiers = []Tier{TierFocused, TierStandard, TierEnterprise}

// ParseTier maps an answer value to a Tier. Unknown values map to
// TierStandard.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFocused:
		return TierFocused
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierStandard
	}
}

// Caps holds per-section static clause caps for the capped tiers.
// Sections missing from a tier's map use that tier's default; a zero or
// negative default means uncapped. TierEnterprise is never capped.
type Caps struct {
	Focused         map[string]int
	Standard        map[string]int
	DefaultFocused  int
	DefaultStandard int
}

// Limit returns the cap for sectionID at tier. The focused cap never
// exceeds the standard cap, so a focused list is always a prefix of the
// standard list.
func (c Caps) Limit(tier Tier, sectionID string) (int, bool) {
	switch tier {
	case TierStandard:
		return lookupCap(c.Standard, c.DefaultStandard, sectionID)
	case TierFocused:
		n, ok := lookupCap(c.Focused, c.DefaultFocused, sectionID)
		std, stdOK := lookupCap(c.Standard, c.DefaultStandard, sectionID)
		switch {
		case ok && stdOK:
			return min(n, std), true
		case ok:
			return n, true
		default:
			return std, stdOK
		}
	}
	return 0, false
}

func lookupCap(table map[string]int, def int, sectionID string) (int, bool) {
	if n, ok := table[sectionID]; ok {
		return max(n, 0), true
	}
	if def > 0 {
		return def, true
	}
	return 0, false
}

// Truncate returns a copy of the first n ids. Lists already within n are
// returned unchanged, so Truncate is idempotent.
func Truncate(ids []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if len(ids) <= n {
		return ids
	}
	return append([]string{}, ids[:n]...)
}
