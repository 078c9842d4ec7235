package portfolio

import "sort"

// HoldingIndex groups a strategy's holding rows by security.
//
// Decisions use the aggregate quantity across all rows of a security.
// Mutations go to one representative row, the one with the lowest id;
// other rows of the same security are never touched by execute or undo.
type HoldingIndex struct {
	bySecurity map[int64][]Holding
}

// NewHoldingIndex builds an index over rows of a single strategy.
func NewHoldingIndex(holdings []Holding) *HoldingIndex {
	idx := &HoldingIndex{bySecurity: make(map[int64][]Holding)}
	for _, h := range holdings {
		idx.bySecurity[h.SecurityID] = append(idx.bySecurity[h.SecurityID], h)
	}
	for _, rows := range idx.bySecurity {
		sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	}
	return idx
}

// Quantity returns the total shares held of a security across all rows.
func (x *HoldingIndex) Quantity(securityID int64) int64 {
	var total int64
	for _, h := range x.bySecurity[securityID] {
		total += h.Quantity
	}
	return total
}

// Representative returns the row mutations are applied to.
func (x *HoldingIndex) Representative(securityID int64) (Holding, bool) {
	rows := x.bySecurity[securityID]
	if len(rows) == 0 {
		return Holding{}, false
	}
	return rows[0], true
}

// Rows returns every row of a security, lowest id first.
func (x *HoldingIndex) Rows(securityID int64) []Holding {
	return x.bySecurity[securityID]
}

// SecurityIDs returns the held security ids in ascending order.
func (x *HoldingIndex) SecurityIDs() []int64 {
	ids := make([]int64, 0, len(x.bySecurity))
	for id := range x.bySecurity {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of distinct securities held.
func (x *HoldingIndex) Len() int {
	return len(x.bySecurity)
}
