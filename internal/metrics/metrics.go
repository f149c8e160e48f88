// Package metrics collects the counters and exponentially-weighted
// averages the link engine's pipelines feed into, and that the
// profile controller consumes (§7, §4.6).
package metrics

import "sync/atomic"

// Counters holds every counter named in the error-handling table
// (§7) plus the success/seen counters referenced elsewhere in §4.
// Every field is an atomic.Int64: rx.Pipeline.OnReceive runs in its
// own driver-interrupt context and may race with tx.Pipeline.Tick on
// the event-loop thread (§5), even though in practice most builds run
// single-threaded-cooperative.
type Counters struct {
	RxCRCFail           atomic.Int64
	RxDropLenMismatch   atomic.Int64
	DecFailTag          atomic.Int64
	DecFailOther        atomic.Int64
	RxAssemDropOverflow atomic.Int64
	RxAssemDropTTL      atomic.Int64
	RxDupMsgs           atomic.Int64
	AckFail             atomic.Int64
	EncFail             atomic.Int64
	TxRetries           atomic.Int64
	AckSeen             atomic.Int64
	RxMsgsOK            atomic.Int64
	TxFrames            atomic.Int64
	TxBytes             atomic.Int64
}

// Snapshot is a point-in-time, non-atomic copy of Counters suitable
// for logging or a diagnostics endpoint.
type Snapshot struct {
	RxCRCFail           int64
	RxDropLenMismatch   int64
	DecFailTag          int64
	DecFailOther        int64
	RxAssemDropOverflow int64
	RxAssemDropTTL      int64
	RxDupMsgs           int64
	AckFail             int64
	EncFail             int64
	TxRetries           int64
	AckSeen             int64
	RxMsgsOK            int64
	TxFrames            int64
	TxBytes             int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		RxCRCFail:           c.RxCRCFail.Load(),
		RxDropLenMismatch:   c.RxDropLenMismatch.Load(),
		DecFailTag:          c.DecFailTag.Load(),
		DecFailOther:        c.DecFailOther.Load(),
		RxAssemDropOverflow: c.RxAssemDropOverflow.Load(),
		RxAssemDropTTL:      c.RxAssemDropTTL.Load(),
		RxDupMsgs:           c.RxDupMsgs.Load(),
		AckFail:             c.AckFail.Load(),
		EncFail:             c.EncFail.Load(),
		TxRetries:           c.TxRetries.Load(),
		AckSeen:             c.AckSeen.Load(),
		RxMsgsOK:            c.RxMsgsOK.Load(),
		TxFrames:            c.TxFrames.Load(),
		TxBytes:             c.TxBytes.Load(),
	}
}

// EMA is an exponentially-weighted moving average with a configurable
// smoothing factor. The zero value is "no observation yet"; the first
// Observe seeds the average directly rather than blending against 0.
type EMA struct {
	alpha   float64
	value   float64
	primed  bool
}

// NewEMA returns an EMA with smoothing factor alpha (0 < alpha <= 1).
func NewEMA(alpha float64) *EMA {
	return &EMA{alpha: alpha}
}

// DefaultChannelEMAAlpha is the default smoothing factor for PER and
// Eb/N0 observations feeding the profile controller (§4.10), distinct
// from the ARQ ack-time EWMA's alpha=1/4 (§4.6).
const DefaultChannelEMAAlpha = 1.0 / 8.0

// AckTimeEMAAlpha is the ARQ ack-time EWMA's smoothing factor (§4.6).
const AckTimeEMAAlpha = 1.0 / 4.0

func (e *EMA) Observe(sample float64) float64 {
	if !e.primed {
		e.value = sample
		e.primed = true
		return e.value
	}
	e.value = e.alpha*sample + (1-e.alpha)*e.value
	return e.value
}

func (e *EMA) Value() float64 {
	return e.value
}
