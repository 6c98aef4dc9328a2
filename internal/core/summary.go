package core

import "slices"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// MonthOverview is a compact summary of one ledger for a specific month.
type MonthOverview struct {
	Month        YearMonth
	Deposits     Money
	Expenditures Money
	// ByCategory holds expenditure totals, largest first.
	ByCategory []CategoryAmount
}

// Net returns deposits minus expenditures.
func (o MonthOverview) Net() Money { return o.Deposits.Sub(o.Expenditures) }

// MonthOverview summarizes the records dated in ym.
func (l *Ledger) MonthOverview(ym YearMonth) MonthOverview {
	ov := MonthOverview{
		Month:        ym,
		Deposits:     l.SumInMonth(ym, Deposits),
		Expenditures: l.SumInMonth(ym, Expenditures),
	}
	byCat := map[string]int{}
	for _, tx := range l.items {
		if !tx.debit || !ym.Contains(tx.Date) {
			continue
		}
		i, ok := byCat[tx.Category]
		if !ok {
			i = len(ov.ByCategory)
			byCat[tx.Category] = i
			ov.ByCategory = append(ov.ByCategory, CategoryAmount{Name: tx.Category})
		}
		ov.ByCategory[i].Amount = ov.ByCategory[i].Amount.Add(tx.Amount)
	}
	slices.SortStableFunc(ov.ByCategory, func(a, b CategoryAmount) int {
		switch {
		case a.Amount.Cents > b.Amount.Cents:
			return -1
		case a.Amount.Cents < b.Amount.Cents:
			return 1
		}
		return 0
	})
	return ov
}
