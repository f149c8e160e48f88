package tx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgustafson/satlink/internal/aead"
	"github.com/kgustafson/satlink/internal/cache"
	"github.com/kgustafson/satlink/internal/channel"
	"github.com/kgustafson/satlink/internal/frame"
	"github.com/kgustafson/satlink/internal/metrics"
	"github.com/kgustafson/satlink/internal/radio"
	"github.com/kgustafson/satlink/internal/scheduler"
)

// fakeDriver records every SendRaw call; the parameter setters/getters
// are no-ops since the ARQ tests below never exercise profile pushes.
type fakeDriver struct {
	sent [][]byte
}

func (d *fakeDriver) SendRaw(ctx context.Context, frame []byte, qos cache.QoS) (bool, error) {
	d.sent = append(d.sent, frame)
	return true, nil
}
func (d *fakeDriver) ForceRX(ctx context.Context, window time.Duration) error { return nil }
func (d *fakeDriver) SetFrequency(hz uint64) error                            { return nil }
func (d *fakeDriver) SetBandwidth(khz float64) error                         { return nil }
func (d *fakeDriver) SetSpreadingFactor(sf int) error                        { return nil }
func (d *fakeDriver) SetCodingRate(cr4x int) error                           { return nil }
func (d *fakeDriver) SetTXPower(dBm int) error                               { return nil }
func (d *fakeDriver) GetSNR() (float64, error)                               { return 0, nil }
func (d *fakeDriver) GetEbN0() (float64, error)                              { return 0, nil }
func (d *fakeDriver) GetRSSI() (float64, error)                              { return 0, nil }

// alwaysTX is a PhaseSource stub that keeps the pipeline perpetually in
// the TX phase, since Tick is a no-op outside it.
type alwaysTX struct{}

func (alwaysTX) Phase(t time.Time) scheduler.Phase { return scheduler.TX }

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *fakeDriver) {
	t.Helper()
	c := cache.New(cache.Strict)
	codec := channel.NewCodec(channel.DefaultConfig())
	formatter := NewFormatter(codec, aead.NewMapKeyStore(), cfg.HeaderDup)
	driver := &fakeDriver{}
	lock := &radio.Lock{}
	p := New(c, formatter, driver, lock, alwaysTX{}, nil, &metrics.Counters{}, nil, cfg)
	return p, driver
}

func TestPipelineEnqueueAndEmitOneFragment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InterFrameGap = 0
	p, driver := newTestPipeline(t, cfg)

	id := p.Enqueue([]byte("hi"), true, cache.High)
	require.NotZero(t, id)

	now := time.Unix(0, 0)
	p.Tick(context.Background(), now)
	require.Len(t, driver.sent, 1)
	assert.Equal(t, 1, p.PendingLen())
}

func TestPipelineRetriesOnAckTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InterFrameGap = 0
	cfg.BaseAckTimeout = 10 * time.Millisecond
	cfg.MaxRetries = 2
	p, driver := newTestPipeline(t, cfg)

	p.Enqueue([]byte("retry me"), true, cache.High)

	base := time.Unix(0, 0)
	p.Tick(context.Background(), base)
	require.Len(t, driver.sent, 1)

	// Advance well past the ack timeout without ever acking; the
	// pipeline should resend.
	p.Tick(context.Background(), base.Add(100*time.Millisecond))
	assert.True(t, len(driver.sent) >= 2)
}

func TestPipelineArchivesAfterRetriesExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InterFrameGap = 0
	cfg.BaseAckTimeout = 5 * time.Millisecond
	cfg.MaxAckTimeout = 5 * time.Millisecond
	cfg.MaxRetries = 1
	m := &metrics.Counters{}

	c := cache.New(cache.Strict)
	codec := channel.NewCodec(channel.DefaultConfig())
	formatter := NewFormatter(codec, aead.NewMapKeyStore(), cfg.HeaderDup)
	driver := &fakeDriver{}
	lock := &radio.Lock{}
	p := New(c, formatter, driver, lock, alwaysTX{}, nil, m, nil, cfg)

	p.Enqueue([]byte("doomed"), true, cache.High)

	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		p.Tick(context.Background(), now)
		now = now.Add(20 * time.Millisecond)
	}

	assert.Equal(t, 0, p.PendingLen())
	assert.Equal(t, int64(1), m.AckFail.Load())
}

func TestPipelineOnAckClearsPending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InterFrameGap = 0
	p, driver := newTestPipeline(t, cfg)

	id := p.Enqueue([]byte("ack me"), true, cache.High)
	now := time.Unix(0, 0)
	p.Tick(context.Background(), now)
	require.Len(t, driver.sent, 1)
	require.Equal(t, 1, p.PendingLen())

	ema := metrics.NewEMA(metrics.AckTimeEMAAlpha)
	p.OnAck(id, 0, now.UnixMilli()+50, ema)
	assert.Equal(t, 0, p.PendingLen())
}

func TestPipelineRespectsBurstLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InterFrameGap = 0
	cfg.BurstLimit = 1
	cfg.Window = 4
	p, driver := newTestPipeline(t, cfg)

	for i := 0; i < 3; i++ {
		p.Enqueue([]byte("msg"), true, cache.High)
	}

	now := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		p.Tick(context.Background(), now)
		now = now.Add(10 * time.Millisecond)
	}
	// Each tick admits one message, so all three are pending after three
	// ticks; with a burst limit of 1 and no ACK, only the first
	// message's fragment goes out.
	assert.Len(t, driver.sent, 1)
}

func TestComputeTimeoutCapsAtMax(t *testing.T) {
	cfg := Config{BaseAckTimeout: 100 * time.Millisecond, MaxAckTimeout: 300 * time.Millisecond}
	assert.Equal(t, int64(100), computeTimeout(cfg, 0))
	assert.Equal(t, int64(200), computeTimeout(cfg, 1))
	assert.Equal(t, int64(300), computeTimeout(cfg, 2))
	assert.Equal(t, int64(300), computeTimeout(cfg, 10))
}

func TestAckedIDsUsedByOnAckDecodesFrameBitmap(t *testing.T) {
	ids := frame.AckedIDs(10, 0b101)
	assert.ElementsMatch(t, []uint32{10, 9, 7}, ids)
}
