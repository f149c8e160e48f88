// Package profile implements the link-profile controller (§4.6,
// SPEC_FULL §4.10): it EMA-smooths the PER and Eb/N0 observables the
// radio driver reports and maps them onto one of four link profiles
// of increasing robustness.
package profile

import "github.com/kgustafson/satlink/internal/channel/fec"

// Profile is one of the four operating points the controller selects
// among (§4.6). P0 is the fastest/least robust, P3 the most robust.
type Profile int

const (
	P0 Profile = iota
	P1
	P2
	P3
)

func (p Profile) String() string {
	switch p {
	case P0:
		return "P0"
	case P1:
		return "P1"
	case P2:
		return "P2"
	case P3:
		return "P3"
	default:
		return "P?"
	}
}

// Params is the tuple of radio/channel parameters a profile maps to
// (bandwidth, spreading factor, coding rate, FEC mode, interleave
// depth). The spec names the dimensions but not concrete values for
// each profile; these are chosen here as a
// monotonically more robust ladder, narrowing bandwidth and raising
// spreading factor, coding overhead, FEC strength and interleave depth
// as the profile number increases.
type Params struct {
	BandwidthKHz  float64
	SpreadingFactor int
	CodingRate4x  int // denominator*4 form, e.g. 5 means 4/5
	FECMode       fec.Mode
	InterleaveDepth int
}

var profileParams = map[Profile]Params{
	P0: {BandwidthKHz: 500, SpreadingFactor: 7, CodingRate4x: 5, FECMode: fec.ModeNone, InterleaveDepth: 1},
	P1: {BandwidthKHz: 250, SpreadingFactor: 8, CodingRate4x: 6, FECMode: fec.ModeLDPC, InterleaveDepth: 4},
	P2: {BandwidthKHz: 125, SpreadingFactor: 10, CodingRate4x: 7, FECMode: fec.ModeRS, InterleaveDepth: 8},
	P3: {BandwidthKHz: 62.5, SpreadingFactor: 12, CodingRate4x: 8, FECMode: fec.ModeRS, InterleaveDepth: 16},
}

func (p Profile) Params() Params {
	return profileParams[p]
}

// EMA is the minimal interface Controller needs from metrics.EMA,
// letting tests swap in a fake.
type EMA interface {
	Observe(sample float64) float64
	Value() float64
}

// Controller tracks smoothed PER/Eb-N0 and derives the current
// Profile from the threshold bands in §4.6. Selection has no
// hysteresis band: Tick picks the band the current smoothed values
// fall in, so the profile changes on the first Tick after a smoothed
// value crosses a threshold, in either direction.
type Controller struct {
	per  EMA
	ebn0 EMA

	current   Profile
	overrides map[Profile]Params
}

func New(perEMA, ebn0EMA EMA) *Controller {
	return &Controller{per: perEMA, ebn0: ebn0EMA, current: P0}
}

// SetParams overrides the radio parameter tuple for a single profile,
// letting a deployment retune the P0..P3 ladder from a config file
// (internal/config) without a rebuild.
func (c *Controller) SetParams(p Profile, params Params) {
	if c.overrides == nil {
		c.overrides = make(map[Profile]Params)
	}
	c.overrides[p] = params
}

// ParamsFor returns the radio parameter tuple for p, preferring a
// configured override over the built-in ladder.
func (c *Controller) ParamsFor(p Profile) Params {
	if c.overrides != nil {
		if params, ok := c.overrides[p]; ok {
			return params
		}
	}
	return p.Params()
}

// Observe folds a new PER/Eb-N0 sample pair into the smoothed state.
func (c *Controller) Observe(per, ebn0 float64) {
	c.per.Observe(per)
	c.ebn0.Observe(ebn0)
}

// Tick applies the §4.6 thresholds to the current smoothed values and
// returns the resulting profile plus whether it changed since the
// last Tick.
func (c *Controller) Tick() (Profile, bool) {
	per := c.per.Value()
	ebn0 := c.ebn0.Value()

	next := selectProfile(per, ebn0)
	changed := next != c.current
	c.current = next
	return next, changed
}

// selectProfile implements the §4.6 threshold table. Conditions are
// evaluated from the most robust requirement down, since a reading
// that satisfies more than one band (PER and Eb/N0 disagreeing about
// which profile applies) should pick the more conservative one.
func selectProfile(per, ebn0 float64) Profile {
	switch {
	case per >= 0.30 || ebn0 < 3:
		return P3
	case per >= 0.20 || ebn0 < 5:
		return P2
	case per >= 0.10 || ebn0 < 8:
		return P1
	default:
		return P0
	}
}

func (c *Controller) Current() Profile {
	return c.current
}
