package allocation

import "sort"

// MembershipDiff compares two portfolio membership snapshots and returns the
// securities that left (old - new) and joined (new - old), both ascending.
func MembershipDiff(oldIDs, newIDs []int64) (removed, added []int64) {
	oldSet := toSet(oldIDs)
	newSet := toSet(newIDs)

	for id := range oldSet {
		if _, ok := newSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	for id := range newSet {
		if _, ok := oldSet[id]; !ok {
			added = append(added, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	return removed, added
}

// ApplyMembershipChange updates the stock map after the portfolio's members changed.
//
// Removed securities are dropped without redistributing their share. When
// securities are added and some survive, every survivor is scaled by
// survivors/(survivors+added) and each newcomer gets 100/(survivors+added).
// With no survivors the newcomers split 100% equally. The uniform rescale is
// an approximation and is kept as is.
func (p *PortfolioAllocation) ApplyMembershipChange(removed, added []int64) {
	if p.StockAllocations == nil {
		p.StockAllocations = make(map[int64]float64)
	}

	for _, id := range removed {
		delete(p.StockAllocations, id)
	}

	if len(added) == 0 {
		return
	}

	survivors := p.SecurityIDs()
	total := float64(len(survivors) + len(added))

	if len(survivors) > 0 {
		scale := float64(len(survivors)) / total
		for _, id := range survivors {
			p.StockAllocations[id] *= scale
		}
		share := 100.0 / total
		for _, id := range added {
			p.StockAllocations[id] = share
		}
		return
	}

	share := 100.0 / float64(len(added))
	for _, id := range added {
		p.StockAllocations[id] = share
	}
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
