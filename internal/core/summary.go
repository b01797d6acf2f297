package core

// PeriodTotals holds raw (not annualized) sums per period bucket.
type PeriodTotals struct {
	Month float64 `json:"month"`
	Year  float64 `json:"year"`
}

// LocalSummary is the client-side aggregate over loaded events.
type LocalSummary struct {
	Total    float64      `json:"total"`
	Count    int          `json:"count"`
	ByPeriod PeriodTotals `json:"byPeriod"`
}

// AggregateLocally sums raw amounts, optionally restricted to one period.
// It does not annualize; see AnnualSum for the displayed estimate.
func AggregateLocally(events []SavingsEvent, period *Period) LocalSummary {
	var all, month, year []float64
	for _, e := range events {
		if period != nil && e.Period != *period {
			continue
		}
		all = append(all, e.Amount)
		switch e.Period {
		case PeriodMonth:
			month = append(month, e.Amount)
		case PeriodYear:
			year = append(year, e.Amount)
		}
	}
	return LocalSummary{
		Total: sum(all),
		Count: len(all),
		ByPeriod: PeriodTotals{
			Month: sum(month),
			Year:  sum(year),
		},
	}
}

// AnnualSum is the sum of annualized amounts.
func AnnualSum(events []SavingsEvent) float64 {
	values := make([]float64, 0, len(events))
	for _, e := range events {
		values = append(values, e.Annualized())
	}
	return sum(values)
}

// DisplayedEstimate never lets a lagging server figure hide savings the
// user just logged, and never drops below what the server confirmed.
func DisplayedEstimate(serverEstimate, localAnnualSum float64) float64 {
	if localAnnualSum > serverEstimate {
		return localAnnualSum
	}
	return serverEstimate
}
