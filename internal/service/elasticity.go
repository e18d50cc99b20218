package service

import "math"

// ─── Elasticity Constants ───────────────────────────────────
//
// The elasticity curve maps a supply/demand ratio to a bounded
// multiplicative price adjustment. It is a logistic curve centred at
// ratio 1.0 (balanced market): steepness 2.0, amplitude ±35%, with a
// hard clamp at [0.80, 1.50].
//
//	multiplier = 1.0 + 0.35·(2/(1+e^(−2·(ratio−1))) − 1)

const (
	ElasticityAmplitude = 0.35
	ElasticitySteepness = 2.0
	ElasticityFloor     = 0.80
	ElasticityCeiling   = 1.50

	// zeroSupplyDemandRatio stands in for demand/0 when demand exists:
	// a clearly over-demanded market, well past the curve's knee.
	zeroSupplyDemandRatio = 2.0
)

// ElasticityMultiplier returns the price multiplier for a demand/supply
// ratio. A balanced market (ratio 1.0) yields exactly 1.0.
func ElasticityMultiplier(demandRatio float64) float64 {
	logistic := 2.0/(1.0+math.Exp(-ElasticitySteepness*(demandRatio-1.0))) - 1.0
	return clamp(1.0+ElasticityAmplitude*logistic, ElasticityFloor, ElasticityCeiling)
}

// DemandRatio converts raw demand and supply counts into a ratio. With no
// supply, the market is treated as strongly over-demanded when demand
// exists, balanced otherwise.
func DemandRatio(demand, supply int) float64 {
	if supply <= 0 {
		if demand > 0 {
			return zeroSupplyDemandRatio
		}
		return 1.0
	}
	return float64(demand) / float64(supply)
}
