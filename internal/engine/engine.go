// Package engine wires the cache, TX pipeline, RX pipeline, channel
// codec, AEAD and TDD scheduler into the single-threaded cooperative
// event loop §5 describes: Engine.Tick is the loop's tick(), and
// Engine.OnReceive is the radio driver's interrupt-context callback.
// ACK frames decoded in OnReceive never call into the TX pipeline
// directly — they're pushed onto a small buffered channel and drained
// at the top of Tick, exactly matching §5's ordering guarantee.
package engine

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kgustafson/satlink/internal/aead"
	"github.com/kgustafson/satlink/internal/cache"
	"github.com/kgustafson/satlink/internal/channel"
	"github.com/kgustafson/satlink/internal/metrics"
	"github.com/kgustafson/satlink/internal/profile"
	"github.com/kgustafson/satlink/internal/radio"
	"github.com/kgustafson/satlink/internal/rx"
	"github.com/kgustafson/satlink/internal/scheduler"
	"github.com/kgustafson/satlink/internal/tx"
)

// ackEventQueueCap bounds the ACK-event queue §5 calls "a small queue".
const ackEventQueueCap = 32

type ackEvent struct {
	highest uint32
	bitmap  uint32
	nowMs   int64
}

// Config bundles the construction-time options for a complete Engine.
type Config struct {
	SchedPolicy cache.SchedPolicy
	TX          tx.Config
	RX          rx.Config
	Channel     channel.Config
	Origin      time.Time
}

// Engine owns one side of a point-to-point link.
type Engine struct {
	cache     *cache.Cache
	tx        *tx.Pipeline
	rx        *rx.Pipeline
	scheduler *scheduler.Scheduler
	driver    radio.Driver
	lock      *radio.Lock
	metrics   *metrics.Counters
	profile   *profile.Controller
	log       *log.Logger

	ackQueue   chan ackEvent
	ackTimeEMA *metrics.EMA
}

// New builds a fully wired Engine. onMessage is the application
// callback invoked with every reassembled, decrypted message (§1).
func New(cfg Config, driver radio.Driver, keyStore aead.KeyStore, logger *log.Logger, onMessage rx.MessageFunc) *Engine {
	m := &metrics.Counters{}
	c := cache.New(cfg.SchedPolicy)
	lock := &radio.Lock{}
	sched := scheduler.New(cfg.Origin)
	codec := channel.NewCodec(cfg.Channel)
	formatter := tx.NewFormatter(codec, keyStore, cfg.TX.HeaderDup)
	profileCtrl := profile.New(metrics.NewEMA(metrics.DefaultChannelEMAAlpha), metrics.NewEMA(metrics.DefaultChannelEMAAlpha))

	e := &Engine{
		cache:      c,
		scheduler:  sched,
		driver:     driver,
		lock:       lock,
		metrics:    m,
		profile:    profileCtrl,
		log:        logger,
		ackQueue:   make(chan ackEvent, ackEventQueueCap),
		ackTimeEMA: metrics.NewEMA(metrics.AckTimeEMAAlpha),
	}

	e.tx = tx.New(c, formatter, driver, lock, sched, profileCtrl, m, logger, cfg.TX)
	e.rx = rx.New(codec, keyStore, m, logger, cfg.RX, onMessage, e.enqueueAck)
	return e
}

// enqueueAck is the callback rx.Pipeline invokes from OnReceive; it
// only ever writes to a buffered channel, per §5's prohibition on
// calling back into the cache/TX pipeline from the receive context.
// A full queue drops the event rather than blocking the caller —
// the TDD ACK phase and aggregation timer mean a dropped ACK is
// recovered by the next one, never a correctness issue.
func (e *Engine) enqueueAck(highest, bitmap uint32) {
	select {
	case e.ackQueue <- ackEvent{highest: highest, bitmap: bitmap, nowMs: time.Now().UnixMilli()}:
	default:
		if e.log != nil {
			e.log.Warn("ack queue full, dropping ack event")
		}
	}
}

// OnReceive is the radio driver's callback (§6), invoked from its own
// context at arbitrary times, including outside the TX phase (§4.8).
func (e *Engine) OnReceive(buf []byte, now time.Time) {
	e.rx.OnReceive(buf, now.UnixMilli())
}

// Enqueue appends an application message to the cache (§4.6).
func (e *Engine) Enqueue(data []byte, ackRequired bool, qos cache.QoS) uint32 {
	return e.tx.Enqueue(data, ackRequired, qos)
}

// Tick drains queued ACK events, advances the TX pipeline, and emits
// an ACK frame when the scheduler is in the ACK phase (§4.6, §4.8,
// §4.9, §5). It never blocks beyond the radio driver's own SendRaw
// call.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.drainAcks()
	e.tx.Tick(ctx, now)
	e.maybeSendAck(ctx, now)

	phase := e.scheduler.Phase(now)
	if phase.InRX() {
		_ = e.driver.ForceRX(ctx, e.scheduler.Remaining(now))
	}
}

func (e *Engine) drainAcks() {
	for {
		select {
		case evt := <-e.ackQueue:
			e.tx.OnAck(evt.highest, evt.bitmap, evt.nowMs, e.ackTimeEMA)
		default:
			return
		}
	}
}

func (e *Engine) maybeSendAck(ctx context.Context, now time.Time) {
	phase := e.scheduler.Phase(now)
	onAir, ok := e.rx.MaybeEmitAck(phase, now.UnixMilli())
	if !ok {
		return
	}
	if _, err := e.lock.SendRaw(ctx, e.driver, onAir, cache.High); err != nil && e.log != nil {
		e.log.Warn("ack send_raw failed", "err", err)
	}
}

// ProfileController exposes the engine's link-profile controller so
// callers can seed config-file overrides (internal/config) or feed it
// PER/Eb-N0 samples directly in tests.
func (e *Engine) ProfileController() *profile.Controller { return e.profile }

// Metrics returns a point-in-time snapshot of the engine's counters.
func (e *Engine) Metrics() metrics.Snapshot { return e.metrics.Snapshot() }

// Profile observes a fresh PER/Eb-N0 sample pair, feeding the
// profile controller's EMAs (§4.10). Callers typically source these
// from the radio driver's GetSNR/GetEbN0/packet-loss bookkeeping.
func (e *Engine) Profile(per, ebn0 float64) { e.profile.Observe(per, ebn0) }
