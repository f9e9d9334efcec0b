// Package wish decides which standing wishes a purchased item satisfies.
package wish

import (
	"fmt"

	"market_client/internal/core"
)

// Policy picks one wish when several are satisfied by the same item
type Policy string

const (
	// PolicyHighestMax removes the most permissive wish, the one most likely to have
	// triggered a marketplace-side automatic purchase.
	PolicyHighestMax Policy = "highest_max"
	// PolicyLowestMax removes the tightest satisfied wish.
	PolicyLowestMax Policy = "lowest_max"
	// PolicyFirst removes the earliest satisfied wish in list order.
	PolicyFirst Policy = "first"
)

// ParsePolicy validates a policy name, empty selects PolicyHighestMax
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return PolicyHighestMax, nil
	case PolicyHighestMax, PolicyLowestMax, PolicyFirst:
		return p, nil
	default:
		return "", fmt.Errorf("unknown wish policy %q", s)
	}
}

// Satisfies reports whether item fulfils w: same category and price at or below the maximum.
func Satisfies(item core.Item, w core.ItemWish) bool {
	return item.Category == w.Category && item.Price.LessThanOrEqual(w.MaxPrice)
}

// Matcher applies a Policy. The zero value uses PolicyHighestMax.
type Matcher struct {
	Policy Policy
}

// NewMatcher creates a matcher for policy
func NewMatcher(policy Policy) Matcher {
	return Matcher{Policy: policy}
}

// Match removes at most one wish satisfied by item. It returns a fresh slice holding the
// remaining wishes in their original order together with the removed entries.
// The input slice is never modified. Ties go to the earliest entry.
func (m Matcher) Match(item core.Item, wishes []core.ItemWish) (remaining, removed []core.ItemWish) {
	idx := m.pick(item, wishes)

	remaining = make([]core.ItemWish, 0, len(wishes))
	for i, w := range wishes {
		if i == idx {
			removed = append(removed, w)
			continue
		}
		remaining = append(remaining, w)
	}
	return remaining, removed
}

func (m Matcher) pick(item core.Item, wishes []core.ItemWish) int {
	best := -1
	for i, w := range wishes {
		if !Satisfies(item, w) {
			continue
		}
		if best < 0 {
			best = i
			if m.Policy == PolicyFirst {
				return best
			}
			continue
		}

		switch m.Policy {
		case PolicyLowestMax:
			if w.MaxPrice.LessThan(wishes[best].MaxPrice) {
				best = i
			}
		default:
			if w.MaxPrice.GreaterThan(wishes[best].MaxPrice) {
				best = i
			}
		}
	}
	return best
}
