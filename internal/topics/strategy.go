package topics

import (
	"context"

	"market-digest/internal/budget"
	"market-digest/internal/outcome"
)

// Input is what every strategy sees.
type Input struct {
	Texts  []string
	Budget *budget.TimeBudget
}

// Strategy produces candidate clusters from filtered text.
type Strategy interface {
	Name() string
	Candidates(ctx context.Context, in Input) outcome.Outcome[[]Cluster]
}
