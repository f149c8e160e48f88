package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersSnapshot(t *testing.T) {
	var c Counters
	c.RxCRCFail.Add(3)
	c.AckSeen.Add(1)

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.RxCRCFail)
	assert.Equal(t, int64(1), snap.AckSeen)
	assert.Equal(t, int64(0), snap.DecFailTag)
}

func TestEMASeedsOnFirstObserve(t *testing.T) {
	e := NewEMA(DefaultChannelEMAAlpha)
	assert.Equal(t, 0.1, e.Observe(0.1))
}

func TestEMASmooths(t *testing.T) {
	e := NewEMA(0.5)
	e.Observe(1.0)
	got := e.Observe(0.0)
	assert.InDelta(t, 0.5, got, 1e-9)
	got = e.Observe(1.0)
	assert.InDelta(t, 0.75, got, 1e-9)
}
