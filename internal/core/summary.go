package core

// Costed is implemented by the item variants that carry a monetary value.
// Task deliberately does not implement it.
type Costed interface {
	Annualized() Money
	Done() bool
}

// Totals is the aggregate for one category.
type Totals struct {
	Budget    Money
	Spent     Money
	Remaining Money
}

// Aggregate computes budget, spent and remaining over a list of items.
// Pure function; an empty list yields zero totals. Remaining may go
// negative when a category is overspent and is never clamped.
func Aggregate[T Costed](items []T) Totals {
	var budget, spent Money
	for _, it := range items {
		amount := it.Annualized()
		budget = budget.Add(amount)
		if it.Done() {
			spent = spent.Add(amount)
		}
	}
	return Totals{Budget: budget, Spent: spent, Remaining: budget.Sub(spent)}
}

// PercentSpent returns spent as a share of budget in whole percent,
// zero when the budget is zero.
func (t Totals) PercentSpent() int {
	if t.Budget.Cents == 0 {
		return 0
	}
	return int(t.Spent.Cents * 100 / t.Budget.Cents)
}

// Overview is the dashboard summary across all categories.
type Overview struct {
	Fees       Totals
	Uniforms   Totals
	Stationery Totals
	Grand      Totals
	OpenTasks  int
}

// Summarize computes the full dashboard overview for a state. Aggregates
// are recomputed on every call; callers must not assume memoization.
func Summarize(state BudgetState) Overview {
	ov := Overview{
		Fees:       Aggregate(state.Fees),
		Uniforms:   Aggregate(state.Uniforms),
		Stationery: Aggregate(state.Stationery),
	}
	ov.Grand.Budget = ov.Fees.Budget.Add(ov.Uniforms.Budget).Add(ov.Stationery.Budget)
	ov.Grand.Spent = ov.Fees.Spent.Add(ov.Uniforms.Spent).Add(ov.Stationery.Spent)
	ov.Grand.Remaining = ov.Grand.Budget.Sub(ov.Grand.Spent)
	for _, t := range state.AdminTasks {
		if !t.Completed {
			ov.OpenTasks++
		}
	}
	return ov
}
