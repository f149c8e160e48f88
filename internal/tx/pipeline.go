package tx

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kgustafson/satlink/internal/cache"
	"github.com/kgustafson/satlink/internal/frame"
	"github.com/kgustafson/satlink/internal/logging"
	"github.com/kgustafson/satlink/internal/metrics"
	"github.com/kgustafson/satlink/internal/profile"
	"github.com/kgustafson/satlink/internal/radio"
	"github.com/kgustafson/satlink/internal/scheduler"
)

// Config holds the TX pipeline's tunables (§6 Defaults).
type Config struct {
	Window         int
	BurstLimit     int
	HeaderDup      bool
	InterFrameGap  time.Duration
	BaseAckTimeout time.Duration
	MaxAckTimeout  time.Duration
	MaxRetries     int
}

// DefaultConfig matches §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		Window:         8,
		BurstLimit:     8,
		HeaderDup:      true,
		InterFrameGap:  25 * time.Millisecond,
		BaseAckTimeout: 1200 * time.Millisecond,
		MaxAckTimeout:  5000 * time.Millisecond,
		MaxRetries:     3,
	}
}

// pendingEntry is §3's Pending ARQ entry, plus the already-prepared
// frames and how many of them have gone out in the current attempt.
type pendingEntry struct {
	msg          *cache.OutgoingMessage
	frames       []PreparedFrame
	nextFrame    int
	retriesLeft  int
	backoffStage int
	firstSentMs  int64
	lastSentMs   int64
	timeoutMs    int64
}

// PhaseSource is the subset of *scheduler.Scheduler the pipeline
// needs — narrow so tests can fake it without a real wall clock.
type PhaseSource interface {
	Phase(t time.Time) scheduler.Phase
}

// Pipeline implements §4.6's tick()-driven TX state machine: ARQ
// timers with capped exponential backoff, burst/window control, and
// profile adaptation, all mutated only from Tick (§5: "all state
// mutations on TX-pipeline and cache structures occur inside tick()
// on the loop thread").
type Pipeline struct {
	cache     *cache.Cache
	formatter *Formatter
	driver    radio.Driver
	lock      *radio.Lock
	phases    PhaseSource
	profile   *profile.Controller
	metrics   *metrics.Counters
	log       *log.Logger

	cfg Config

	pending      map[uint32]*pendingEntry
	burstCount   int
	lastTxMs     int64
	ackRequired  bool
	lastProfile  profile.Profile
}

func New(c *cache.Cache, f *Formatter, driver radio.Driver, lock *radio.Lock, phases PhaseSource, profileCtrl *profile.Controller, m *metrics.Counters, logger *log.Logger, cfg Config) *Pipeline {
	return &Pipeline{
		cache:     c,
		formatter: f,
		driver:    driver,
		lock:      lock,
		phases:    phases,
		profile:   profileCtrl,
		metrics:   m,
		log:       logger,
		cfg:       cfg,
		pending:   make(map[uint32]*pendingEntry),
		ackRequired: true,
	}
}

// Enqueue appends a message to the cache for later transmission
// (§4.6). Returns 0 if the cache rejects it for capacity.
func (p *Pipeline) Enqueue(data []byte, ackRequired bool, qos cache.QoS) uint32 {
	return p.cache.Enqueue(qos, data, ackRequired)
}

func (p *Pipeline) SetAck(v bool)          { p.ackRequired = v }
func (p *Pipeline) SetWindow(n int)        { p.cfg.Window = n }
func (p *Pipeline) SetBurst(n int)         { p.cfg.BurstLimit = n }
func (p *Pipeline) SetHeaderDup(v bool)    { p.cfg.HeaderDup = v; p.formatter.SetHeaderDup(v) }

// SetProfile pushes the bandwidth, spreading factor and coding rate
// from params to the radio driver, ignoring driver errors. The channel
// codec is not reconfigured: params' FEC mode and interleave depth are
// not applied.
func (p *Pipeline) SetProfile(params profile.Params) {
	_ = p.driver.SetBandwidth(params.BandwidthKHz)
	_ = p.driver.SetSpreadingFactor(params.SpreadingFactor)
	_ = p.driver.SetCodingRate(params.CodingRate4x)
}

func computeTimeout(cfg Config, backoffStage int) int64 {
	t := cfg.BaseAckTimeout.Milliseconds() << uint(backoffStage)
	max := cfg.MaxAckTimeout.Milliseconds()
	if t > max {
		t = max
	}
	return t
}

// Tick advances the TX state machine by one step (§4.6). It never
// blocks: the inter-frame gap and burst-ACK wait are both early
// returns, not sleeps (§5).
func (p *Pipeline) Tick(ctx context.Context, now time.Time) {
	if p.phases.Phase(now) != scheduler.TX {
		return
	}
	nowMs := now.UnixMilli()

	p.checkProfile()
	p.runARQTimers(nowMs)
	p.maybeAdmitNewMessage(nowMs)
	p.maybeEmitOne(ctx, now, nowMs)
}

func (p *Pipeline) checkProfile() {
	if p.profile == nil {
		return
	}
	next, changed := p.profile.Tick()
	if changed {
		p.SetProfile(p.profile.ParamsFor(next))
		p.lastProfile = next
		if p.log != nil {
			p.log.Info("link profile changed", "profile", next.String())
		}
	}
}

// runARQTimers rewinds a message whose ACK timeout has expired so its
// already-prepared frames are sent again, or archives it on retry
// exhaustion (§4.6).
func (p *Pipeline) runARQTimers(nowMs int64) {
	for id, pe := range p.pending {
		if pe.nextFrame == 0 {
			continue // never actually sent a fragment yet this attempt
		}
		if nowMs-pe.lastSentMs < pe.timeoutMs {
			continue
		}
		if pe.retriesLeft > 0 {
			pe.retriesLeft--
			pe.backoffStage++
			pe.timeoutMs = computeTimeout(p.cfg, pe.backoffStage)
			pe.nextFrame = 0
			pe.lastSentMs = 0
			if p.metrics != nil {
				p.metrics.TxRetries.Add(1)
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.AckFail.Add(1)
		}
		p.cache.Archive(id)
		delete(p.pending, id)
	}
}

// maybeAdmitNewMessage peeks the cache when there's a free window
// slot and formats the result into a new pending entry (§4.6 step e).
func (p *Pipeline) maybeAdmitNewMessage(nowMs int64) {
	if len(p.pending) >= p.cfg.Window {
		return
	}
	msg := p.cache.Peek()
	if msg == nil {
		return
	}
	if !p.ackRequired {
		msg.AckRequired = false
	}

	var encFailed int
	frames, _ := p.formatter.Prepare(msg, &encFailed)
	if p.metrics != nil && encFailed > 0 {
		p.metrics.EncFail.Add(int64(encFailed))
	}

	p.pending[msg.ID] = &pendingEntry{
		msg:         msg,
		frames:      frames,
		retriesLeft: p.cfg.MaxRetries,
		timeoutMs:   computeTimeout(p.cfg, 0),
		firstSentMs: nowMs,
	}
}

// maybeEmitOne sends at most one fragment this tick, honoring the
// inter-frame gap and burst limit (§4.6 step c/d/e).
func (p *Pipeline) maybeEmitOne(ctx context.Context, now time.Time, nowMs int64) {
	if nowMs-p.lastTxMs < p.cfg.InterFrameGap.Milliseconds() {
		return
	}
	if p.burstCount >= p.cfg.BurstLimit {
		return
	}

	pe := p.nextReadyEntry()
	if pe == nil {
		return
	}

	pf := pe.frames[pe.nextFrame]
	ok, err := p.lock.SendRaw(ctx, p.driver, pf.Bytes, pe.msg.QoS)
	if err != nil || !ok {
		if p.log != nil {
			p.log.Warn("send_raw failed", "msg_id", pe.msg.ID, "err", err)
		}
		return
	}

	if p.log != nil {
		p.log.Debug("tx frame", "ts", logging.FrameTimestamp(now), "msg_id", pf.Header.MsgID, "frag_idx", pf.Header.FragIdx, "frag_cnt", pf.Header.FragCnt)
	}
	if p.metrics != nil {
		p.metrics.TxFrames.Add(1)
		p.metrics.TxBytes.Add(int64(len(pf.Bytes)))
	}

	pe.nextFrame++
	pe.lastSentMs = nowMs
	p.lastTxMs = nowMs
	p.burstCount++
}

// nextReadyEntry returns the lowest-msg_id pending entry with unsent
// fragments, giving a stable, deterministic emission order.
func (p *Pipeline) nextReadyEntry() *pendingEntry {
	var ids []uint32
	for id, pe := range p.pending {
		if pe.nextFrame < len(pe.frames) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return p.pending[ids[0]]
}

// OnAck processes a cumulative ACK (§4.6): every id the bitmap covers
// that is still pending gets marked acked, its EWMA ack time updated,
// and one archived message restored. Processing is idempotent —
// acking an id twice, or one no longer pending, is a no-op for that
// id.
func (p *Pipeline) OnAck(highest, bitmap uint32, nowMs int64, ackTimeEMA *metrics.EMA) {
	for _, id := range frame.AckedIDs(highest, bitmap) {
		pe, ok := p.pending[id]
		if !ok {
			continue
		}
		if ackTimeEMA != nil {
			ackTimeEMA.Observe(float64(nowMs - pe.firstSentMs))
		}
		if p.metrics != nil {
			p.metrics.AckSeen.Add(1)
		}
		p.cache.MarkAcked(id)
		delete(p.pending, id)
		p.burstCount = 0
		p.cache.RestoreArchived(1)
	}
}

// PendingLen reports the number of in-flight messages awaiting ACK.
func (p *Pipeline) PendingLen() int { return len(p.pending) }
