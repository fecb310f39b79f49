// Package odds applies the per-tick bounded random walk to open markets.
package odds

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

var (
	binaryStep   = 0.02
	threeWayStep = 0.01
)

// Fluctuator perturbs market prices. Each instance owns its random source, so
// one fluctuator must not be shared across goroutines.
type Fluctuator struct {
	rng *rand.Rand
}

// New returns a fluctuator drawing from rng. A nil rng is seeded randomly.
func New(rng *rand.Rand) *Fluctuator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Fluctuator{rng: rng}
}

// NewSeeded returns a deterministic fluctuator.
func NewSeeded(seed uint64) *Fluctuator {
	return New(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Fluctuate moves the prices of an OPEN market. Other statuses are left
// untouched.
func (f *Fluctuator) Fluctuate(m *domain.Market) {
	if m == nil || m.Status != domain.MarketOpen || len(m.Prices) == 0 {
		return
	}
	switch m.Kind.Family() {
	case domain.FamilyWinner3Way:
		for _, sel := range []domain.Selection{domain.SelectionHome, domain.SelectionDraw, domain.SelectionAway} {
			if p, ok := m.Prices[sel]; ok {
				m.Prices[sel] = clamp(p.Add(f.delta(threeWayStep)))
			}
		}
	case domain.FamilyOverUnder:
		f.pair(m.Prices, domain.SelectionOver, domain.SelectionUnder)
	case domain.FamilyGoalYesNo, domain.FamilyStoppageGoal, domain.FamilyStoppageCard:
		f.pair(m.Prices, domain.SelectionYes, domain.SelectionNo)
	}
}

func (f *Fluctuator) pair(prices domain.PriceSet, up, down domain.Selection) {
	d := f.delta(binaryStep)
	if p, ok := prices[up]; ok {
		prices[up] = clamp(p.Add(d))
	}
	if p, ok := prices[down]; ok {
		prices[down] = clamp(p.Sub(d))
	}
}

// delta draws uniformly from [-step, step).
func (f *Fluctuator) delta(step float64) decimal.Decimal {
	return decimal.NewFromFloat(f.rng.Float64()*2*step - step)
}

func clamp(p decimal.Decimal) decimal.Decimal {
	p = p.Round(2)
	if p.LessThan(domain.MinOdds) {
		return domain.MinOdds
	}
	return p
}
