package rebalancing

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/rebalancer/internal/modules/allocation"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
)

// PlanInput is everything the action generator reads
type PlanInput struct {
	Allocations   allocation.Allocations
	Holdings      *portfolio.HoldingIndex
	Prices        map[int64]float64
	RemainingCash float64
}

// Plan is the generator's decision for one strategy
type Plan struct {
	CurrentValue   float64
	AvailableFunds float64
	TargetValue    float64
	Turnover       float64
	Actions        []Action
	// Suppressed is set when the materiality gate discarded every action
	Suppressed bool
	// MissingPrices lists allocated or held securities without a price
	MissingPrices []int64
}

// TurnoverPercent is turnover as a percentage of available funds
func (p *Plan) TurnoverPercent() float64 {
	if p.AvailableFunds <= 0 {
		return 0
	}
	return p.Turnover / p.AvailableFunds * 100
}

// GeneratePlan nets target quantities against current holdings.
//
// Buys pass when idle cash is significant or when they clear both the
// quantity and value thresholds. Sells always need both thresholds.
// Held securities no longer named by any allocation are sold in full
// regardless of size. When the plan is small relative to available funds
// and cash cannot buy a minimum lot of the cheapest target, the whole plan
// is discarded.
func GeneratePlan(in PlanInput, th Thresholds) (*Plan, error) {
	holdings := in.Holdings
	if holdings == nil {
		holdings = portfolio.NewHoldingIndex(nil)
	}

	missing := make(map[int64]struct{})
	var heldValues []float64
	for _, id := range holdings.SecurityIDs() {
		price, ok := in.Prices[id]
		if !ok {
			missing[id] = struct{}{}
			continue
		}
		heldValues = append(heldValues, float64(holdings.Quantity(id))*price)
	}

	plan := &Plan{CurrentValue: floats.Sum(heldValues)}
	plan.AvailableFunds = plan.CurrentValue + in.RemainingCash

	targets, err := CalculateTargets(plan.AvailableFunds, in.Allocations, in.Prices)
	if err != nil {
		return nil, err
	}
	for _, id := range targets.Missing {
		missing[id] = struct{}{}
	}
	plan.TargetValue = targets.TotalValue()

	cashUtilization := in.RemainingCash > plan.CurrentValue*th.CashUtilizationRatio

	for _, id := range targets.Order {
		t := targets.Targets[id]
		diff := t.Quantity - holdings.Quantity(id)
		switch {
		case diff > 0:
			value := float64(diff) * t.Price
			if cashUtilization || th.material(diff, value) {
				plan.Actions = append(plan.Actions, Action{Kind: ActionBuy, SecurityID: id, Quantity: diff, Price: t.Price})
			}
		case diff < 0:
			value := float64(-diff) * t.Price
			if th.material(-diff, value) {
				plan.Actions = append(plan.Actions, Action{Kind: ActionSell, SecurityID: id, Quantity: -diff, Price: t.Price})
			}
		}
	}

	// Full exits. A held security that is still allocated but unpriced is
	// left alone rather than sold.
	for _, id := range holdings.SecurityIDs() {
		if in.Allocations.ReferencesSecurity(id) {
			continue
		}
		price, ok := in.Prices[id]
		qty := holdings.Quantity(id)
		if !ok || qty <= 0 {
			continue
		}
		plan.Actions = append(plan.Actions, Action{Kind: ActionSell, SecurityID: id, Quantity: qty, Price: price})
	}

	values := make([]float64, len(plan.Actions))
	for i, a := range plan.Actions {
		values[i] = a.Value()
	}
	plan.Turnover = floats.Sum(values)

	canUtilizeCash := len(targets.Targets) > 0 &&
		in.RemainingCash >= targets.Cheapest()*float64(th.MinActionQuantity)
	if plan.AvailableFunds > 0 && !canUtilizeCash && plan.TurnoverPercent() < th.RebalancingThresholdPercent {
		plan.Suppressed = len(plan.Actions) > 0
		plan.Actions = nil
	}

	for id := range missing {
		plan.MissingPrices = append(plan.MissingPrices, id)
	}
	sort.Slice(plan.MissingPrices, func(i, j int) bool { return plan.MissingPrices[i] < plan.MissingPrices[j] })

	return plan, nil
}

func (t Thresholds) material(quantity int64, value float64) bool {
	return quantity >= t.MinActionQuantity && value >= t.MinActionValue
}
