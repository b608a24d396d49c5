// Package economy holds the resource formulas: soil costs, the
// capacity reward curve, and recovery-rate constants.
//
// Everything here is pure arithmetic over its inputs. The derivation
// engine is the only caller that combines these with event history.
package economy

import "github.com/roach88/grove/internal/event"

const (
	// BaselineCapacity is the soil capacity every log starts from.
	BaselineCapacity = 10.0

	// MaxCapacity is the hard ceiling on soil capacity, 120% of
	// baseline. The reward curve reaches zero here, so recovery
	// fractions are the only way to brush against it.
	MaxCapacity = 12.0

	// WaterRecovery is the fractional capacity gained per watering.
	WaterRecovery = 0.05

	// SunRecovery is the fractional capacity gained per sun reflection.
	SunRecovery = 0.1

	// UprootRefundFraction is the share of a sprout's soil cost
	// returned when it is uprooted.
	UprootRefundFraction = 0.5

	// WaterPerDay is the fixed daily check-in allowance.
	WaterPerDay = 3

	// SunPerWeek is the fixed weekly reflection allowance.
	SunPerWeek = 1
)

// costKey indexes the soil cost table.
type costKey struct {
	season event.Season
	env    event.Environment
}

// soilCosts covers all 15 (season, environment) combinations.
// Longer seasons and harsher environments cost more soil up front.
var soilCosts = map[costKey]float64{
	{event.SeasonTwoWeeks, event.EnvFertile}:    1,
	{event.SeasonTwoWeeks, event.EnvFirm}:       2,
	{event.SeasonTwoWeeks, event.EnvBarren}:     3,
	{event.SeasonOneMonth, event.EnvFertile}:    2,
	{event.SeasonOneMonth, event.EnvFirm}:       3,
	{event.SeasonOneMonth, event.EnvBarren}:     4,
	{event.SeasonThreeMonths, event.EnvFertile}: 3,
	{event.SeasonThreeMonths, event.EnvFirm}:    4,
	{event.SeasonThreeMonths, event.EnvBarren}:  6,
	{event.SeasonSixMonths, event.EnvFertile}:   4,
	{event.SeasonSixMonths, event.EnvFirm}:      6,
	{event.SeasonSixMonths, event.EnvBarren}:    8,
	{event.SeasonOneYear, event.EnvFertile}:     6,
	{event.SeasonOneYear, event.EnvFirm}:        8,
	{event.SeasonOneYear, event.EnvBarren}:      10,
}

// SoilCost looks up the planting cost for a (season, environment) pair.
// ok is false for combinations outside the fixed table.
func SoilCost(season event.Season, env event.Environment) (cost float64, ok bool) {
	cost, ok = soilCosts[costKey{season, env}]
	return cost, ok
}

// resultFactors scales the reward by harvest outcome. Monotone in the
// 1-5 rating; a flourishing harvest earns six times a withered one.
var resultFactors = [6]float64{0, 0.1, 0.2, 0.3, 0.45, 0.6}

// CapacityReward computes the soil-capacity reward for harvesting a
// sprout, with diminishing returns as currentCapacity approaches
// MaxCapacity.
//
// The curve is base * resultFactor * headroom, where headroom ramps
// linearly from 1 at baseline capacity to 0 at the ceiling. It is
// continuous, non-negative, and strictly increasing in result while
// headroom remains positive.
func CapacityReward(season event.Season, env event.Environment, result int, currentCapacity float64) float64 {
	base, ok := SoilCost(season, env)
	if !ok {
		return 0
	}
	if result < 1 {
		result = 1
	}
	if result > 5 {
		result = 5
	}

	headroom := (MaxCapacity - currentCapacity) / (MaxCapacity - BaselineCapacity)
	if headroom < 0 {
		headroom = 0
	}
	if headroom > 1 {
		headroom = 1
	}

	return base * resultFactors[result] * headroom
}

// ClampCapacity bounds a capacity value to [0, MaxCapacity].
func ClampCapacity(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > MaxCapacity {
		return MaxCapacity
	}
	return c
}
