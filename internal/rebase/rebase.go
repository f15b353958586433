/*

Elastic/base share accounting. A Rebase tracks how many underlying tokens
(elastic) a pool of issued shares (base) represents; profit and loss move
elastic without touching base, so the share price floats.

*/

package rebase

import (
	sdkmath "cosmossdk.io/math"
)

// Rebase is a share pool: Base is the total shares issued, Elastic the total
// underlying tokens those shares represent.
type Rebase struct {
	Base    sdkmath.Int `json:"base"`
	Elastic sdkmath.Int `json:"elastic"`
}

// New returns an empty pool.
func New() Rebase {
	return Rebase{Base: sdkmath.ZeroInt(), Elastic: sdkmath.ZeroInt()}
}

// IsEmpty reports whether no shares are outstanding.
func (r Rebase) IsEmpty() bool {
	return r.Base.IsZero() && r.Elastic.IsZero()
}

// ToBase converts an elastic amount into shares at the current ratio. On an
// empty pool the conversion is the identity. Rounding up adds one share when
// the division leaves a remainder, so the pool never undercharges.
func (r Rebase) ToBase(elastic sdkmath.Int, roundUp bool) sdkmath.Int {
	if r.Elastic.IsZero() {
		return elastic
	}
	product := r.Base.Mul(elastic)
	base := product.Quo(r.Elastic)
	if roundUp && !product.Mod(r.Elastic).IsZero() {
		base = base.AddRaw(1)
	}
	return base
}

// ToElastic converts shares back into an underlying amount at the current
// ratio, the symmetric inverse of ToBase.
func (r Rebase) ToElastic(base sdkmath.Int, roundUp bool) sdkmath.Int {
	if r.Base.IsZero() {
		return base
	}
	product := r.Elastic.Mul(base)
	elastic := product.Quo(r.Base)
	if roundUp && !product.Mod(r.Base).IsZero() {
		elastic = elastic.AddRaw(1)
	}
	return elastic
}

// AddElastic grows the pool by an elastic amount, issuing the matching shares.
// Returns the share amount issued.
func (r *Rebase) AddElastic(elastic sdkmath.Int, roundUp bool) sdkmath.Int {
	base := r.ToBase(elastic, roundUp)
	r.Elastic = r.Elastic.Add(elastic)
	r.Base = r.Base.Add(base)
	return base
}

// SubBase shrinks the pool by a share amount, releasing the matching elastic
// amount. Returns the elastic amount released.
func (r *Rebase) SubBase(base sdkmath.Int, roundUp bool) sdkmath.Int {
	elastic := r.ToElastic(base, roundUp)
	r.Elastic = r.Elastic.Sub(elastic)
	r.Base = r.Base.Sub(base)
	return elastic
}

// Add grows both sides by explicit amounts, bypassing the ratio.
func (r *Rebase) Add(elastic, base sdkmath.Int) {
	r.Elastic = r.Elastic.Add(elastic)
	r.Base = r.Base.Add(base)
}

// Sub shrinks both sides by explicit amounts, bypassing the ratio.
func (r *Rebase) Sub(elastic, base sdkmath.Int) {
	r.Elastic = r.Elastic.Sub(elastic)
	r.Base = r.Base.Sub(base)
}
