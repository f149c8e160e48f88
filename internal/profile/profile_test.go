package profile

import (
	"testing"

	"github.com/kgustafson/satlink/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func newTestController() *Controller {
	return New(metrics.NewEMA(1), metrics.NewEMA(1)) // alpha=1: Value() == latest sample
}

func TestSelectProfileThresholds(t *testing.T) {
	cases := []struct {
		per, ebn0 float64
		want      Profile
	}{
		{0.01, 10, P0},
		{0.15, 9, P1},
		{0.01, 6, P1},
		{0.25, 9, P2},
		{0.01, 4, P2},
		{0.50, 9, P3},
		{0.01, 1, P3},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, selectProfile(c.per, c.ebn0), "per=%v ebn0=%v", c.per, c.ebn0)
	}
}

func TestControllerTickReportsChange(t *testing.T) {
	c := newTestController()
	c.Observe(0.01, 10)
	p, changed := c.Tick()
	assert.Equal(t, P0, p)
	assert.False(t, changed) // starts at P0, no change

	c.Observe(0.5, 1)
	p, changed = c.Tick()
	assert.Equal(t, P3, p)
	assert.True(t, changed)

	p, changed = c.Tick()
	assert.Equal(t, P3, p)
	assert.False(t, changed)
}

func TestProfileParamsMonotonicRobustness(t *testing.T) {
	depths := []int{P0.Params().InterleaveDepth, P1.Params().InterleaveDepth, P2.Params().InterleaveDepth, P3.Params().InterleaveDepth}
	for i := 1; i < len(depths); i++ {
		assert.GreaterOrEqual(t, depths[i], depths[i-1])
	}
}
