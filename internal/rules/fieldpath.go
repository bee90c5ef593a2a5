// internal/rules/fieldpath.go
package rules

import (
	"strconv"
	"strings"

	"github.com/solatis/policysmith/internal/types"
)

/*
 * Key resolution against the two input bags.
 *
 * A condition's q key resolves against answers first, then firm attributes.
 * A key present in neither bag is absent and the condition fails closed;
 * that contract is enforced here, once, rather than in every comparator.
 *
 * Dotted keys: when the literal key is absent from a bag, a dotted key
 * ("ownership.ubo_count", "channels.0") is walked through nested objects
 * and arrays of that bag. The literal key always wins so authored keys that
 * contain dots keep working. Depth is capped at MaxPathDepth.
 */

// MaxPathDepth bounds dotted-key traversal.
const MaxPathDepth = 16

// Lookup resolves condition keys against answers, then attributes.
type Lookup struct {
	answers    map[string]any
	attributes map[string]any
}

// NewLookup builds a Lookup over the two bags. Nil bags are treated as empty.
func NewLookup(answers types.Answers, attributes types.FirmAttributes) Lookup {
	return Lookup{answers: answers, attributes: attributes}
}

// Resolve returns the value bound to key and whether it was found.
// A null value counts as absent, so a null answer falls through to the
// attribute of the same key.
func (l Lookup) Resolve(key string) (any, bool) {
	if key == "" {
		return nil, false
	}
	if v, ok := resolveIn(l.answers, key); ok && v != nil {
		return v, true
	}
	if v, ok := resolveIn(l.attributes, key); ok && v != nil {
		return v, true
	}
	return nil, false
}

// Answers exposes the answers bag to expr predicates.
func (l Lookup) Answers() map[string]any {
	if l.answers == nil {
		return map[string]any{}
	}
	return l.answers
}

// Attributes exposes the attributes bag to expr predicates.
func (l Lookup) Attributes() map[string]any {
	if l.attributes == nil {
		return map[string]any{}
	}
	return l.attributes
}

// resolveIn checks the literal key, then the dotted path.
func resolveIn(bag map[string]any, key string) (any, bool) {
	if bag == nil {
		return nil, false
	}
	if v, ok := bag[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}
	segments := strings.Split(key, ".")
	if len(segments) > MaxPathDepth {
		return nil, false
	}
	return resolvePath(segments, bag)
}

// resolvePath walks nested objects and arrays following segments.
// Numeric segments index arrays; anything else keys objects.
func resolvePath(segments []string, current any) (any, bool) {
	if len(segments) == 0 {
		return current, true
	}
	seg := segments[0]
	remaining := segments[1:]

	switch v := current.(type) {
	case map[string]any:
		val, ok := v[seg]
		if !ok {
			return nil, false
		}
		return resolvePath(remaining, val)
	case types.Answers:
		return resolvePath(segments, map[string]any(v))
	case types.FirmAttributes:
		return resolvePath(segments, map[string]any(v))
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, false
		}
		return resolvePath(remaining, v[idx])
	default:
		// Scalar or nil value but path continues
		return nil, false
	}
}
