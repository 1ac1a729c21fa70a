package contextload

import (
	"sort"
)

// keepMask marks, per candidate, which messages survive truncation.
type keepMask [][]bool

func newKeepMask(candidates []*candidate, keep bool) keepMask {
	mask := make(keepMask, len(candidates))
	for i, c := range candidates {
		mask[i] = make([]bool, c.messageCount())
		if keep {
			for j := range mask[i] {
				mask[i][j] = true
			}
		}
	}
	return mask
}

// truncateRecent pools all candidates' messages and keeps the most recent
// ones until the budget is filled. The cut is strict: the first message that
// does not fit ends the fill, so an older message never displaces a more
// recent one. Ties on equal timestamps resolve to candidate order, then
// original message order.
func truncateRecent(candidates []*candidate, budget int) keepMask {
	type entry struct {
		ci, mi int
	}
	var pool []entry
	for ci, c := range candidates {
		for mi := range c.conv.Messages {
			pool = append(pool, entry{ci: ci, mi: mi})
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		ta := candidates[a.ci].conv.Messages[a.mi].Time
		tb := candidates[b.ci].conv.Messages[b.mi].Time
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		if a.ci != b.ci {
			return a.ci < b.ci
		}
		return a.mi < b.mi
	})

	mask := newKeepMask(candidates, false)
	remaining := budget
	for _, e := range pool {
		cost := candidates[e.ci].tokens[e.mi]
		if cost > remaining {
			break
		}
		mask[e.ci][e.mi] = true
		remaining -= cost
	}
	return mask
}

// truncateRelevant is the heuristic stand-in for relevance ranking: without
// an embedding signal, smaller conversations are weighted as more likely
// pointed at the current topic, so sources are filled smallest-first, most
// recent messages first within each source.
func truncateRelevant(candidates []*candidate, budget int) keepMask {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return candidates[order[i]].messageCount() < candidates[order[j]].messageCount()
	})

	mask := newKeepMask(candidates, false)
	remaining := budget
	for _, ci := range order {
		remaining -= fillRecentWithin(candidates[ci], mask[ci], remaining)
	}
	return mask
}

// truncateBalanced gives every candidate an even share of the budget, then
// water-fills: candidates that fit entirely inside their share release the
// surplus, which is split again across the candidates still over theirs.
// Each over-budget candidate is finally cut to its allocation, most recent
// messages first.
func truncateBalanced(candidates []*candidate, budget int) keepMask {
	mask := newKeepMask(candidates, false)

	active := make([]int, 0, len(candidates))
	for ci := range candidates {
		active = append(active, ci)
	}

	remaining := budget
	for len(active) > 0 {
		share := remaining / len(active)
		var over []int
		settled := false
		for _, ci := range active {
			if candidates[ci].total <= share {
				// Fits inside its share: keep everything, release the rest.
				for mi := range mask[ci] {
					mask[ci][mi] = true
				}
				remaining -= candidates[ci].total
				settled = true
			} else {
				over = append(over, ci)
			}
		}
		active = over
		if !settled {
			break
		}
	}

	if len(active) > 0 {
		share := remaining / len(active)
		for _, ci := range active {
			fillRecentWithin(candidates[ci], mask[ci], share)
		}
	}
	return mask
}

// fillRecentWithin keeps a candidate's most recent messages within the given
// allocation and returns the tokens consumed. Messages are assumed to be in
// conversational order, so recency is iteration from the end.
func fillRecentWithin(c *candidate, mask []bool, allocation int) int {
	used := 0
	for mi := c.messageCount() - 1; mi >= 0; mi-- {
		cost := c.tokens[mi]
		if cost > allocation-used {
			break
		}
		mask[mi] = true
		used += cost
	}
	return used
}
