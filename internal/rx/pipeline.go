// Package rx implements the receive pipeline (§4.8): frame parsing,
// header/frame CRC validation, channel decode, AEAD decryption,
// fragment reassembly, duplicate suppression and cumulative-ACK
// generation. OnReceive is the single entry point the radio driver
// calls, possibly from its own context concurrently with the TX
// pipeline's Tick (§5); it never calls back into the cache or TX
// pipeline directly — ACK arrivals are handed to the engine, which
// queues them for the top of Tick.
package rx

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kgustafson/satlink/internal/aead"
	"github.com/kgustafson/satlink/internal/channel"
	"github.com/kgustafson/satlink/internal/frame"
	"github.com/kgustafson/satlink/internal/logging"
	"github.com/kgustafson/satlink/internal/metrics"
	"github.com/kgustafson/satlink/internal/scheduler"
)

// Config holds the RX pipeline's tunables (§4.8, §6 Defaults).
type Config struct {
	HeaderDup        bool
	DupWindowCap     int
	MaxAssemblers    int
	PerMsgCapBytes   int
	AggregateCapBytes int
	AssemblerTTLMs   int64
	AckAggregationMs int64
}

func DefaultConfig() Config {
	return Config{
		HeaderDup:         true,
		DupWindowCap:      64,
		MaxAssemblers:     8,
		PerMsgCapBytes:    8 * 1024,
		AggregateCapBytes: 64 * 1024,
		AssemblerTTLMs:    15000,
		AckAggregationMs:  50,
	}
}

// MessageFunc receives a fully reassembled, decrypted message.
type MessageFunc func(data []byte)

// AckFunc receives a decoded cumulative ACK.
type AckFunc func(highest, bitmap uint32)

// Pipeline implements OnReceive and ACK scheduling.
type Pipeline struct {
	codec    *channel.Codec
	keyStore aead.KeyStore
	metrics  *metrics.Counters
	log      *log.Logger
	cfg      Config

	onMessage MessageFunc
	onAck     AckFunc

	dup         *dupWindow
	assemblers  map[uint32]*assembler
	aggregate   int

	haveAck     bool
	ackHighest  uint32
	ackBitmap   uint32
	ackDirty    bool
	lastAckMs   int64
}

func New(codec *channel.Codec, keyStore aead.KeyStore, m *metrics.Counters, logger *log.Logger, cfg Config, onMessage MessageFunc, onAck AckFunc) *Pipeline {
	return &Pipeline{
		codec:      codec,
		keyStore:   keyStore,
		metrics:    m,
		log:        logger,
		cfg:        cfg,
		onMessage:  onMessage,
		onAck:      onAck,
		dup:        newDupWindow(cfg.DupWindowCap),
		assemblers: make(map[uint32]*assembler),
	}
}

// OnReceive processes one demodulated frame (§4.8 steps 1-11),
// followed by a GC pass (TTL eviction of stale assemblers).
func (p *Pipeline) OnReceive(buf []byte, nowMs int64) {
	h, payload, err := frame.Decode(buf, p.cfg.HeaderDup)
	if err != nil {
		p.countDecodeError(err)
		p.gc(nowMs)
		return
	}

	if p.log != nil {
		p.log.Debug("rx frame", "ts", logging.FrameTimestamp(time.UnixMilli(nowMs)), "msg_id", h.MsgID, "frag_idx", h.FragIdx, "frag_cnt", h.FragCnt, "flags", h.Flags)
	}

	if h.HasFlag(frame.FlagAck) {
		highest, bitmap, ok := frame.DecodeAck(payload)
		if ok && p.onAck != nil {
			p.onAck(highest, bitmap)
		}
		p.gc(nowMs)
		return
	}

	coded, _, err := p.codec.Decode(h.MsgID, payload)
	if err != nil {
		if p.metrics != nil {
			p.metrics.DecFailOther.Add(1)
		}
		p.gc(nowMs)
		return
	}

	plaintext := coded
	if h.HasFlag(frame.FlagEnc) {
		aad := frame.EncodeAAD(frame.Header{Flags: h.Flags, MsgID: h.MsgID, FragIdx: h.FragIdx, FragCnt: h.FragCnt, PayloadLen: uint16(len(coded))})
		hf := aead.HeaderFieldsFromFrame(frame.Header{Flags: h.Flags, MsgID: h.MsgID, FragIdx: h.FragIdx, FragCnt: h.FragCnt}, uint16(len(coded)))
		pt, err := aead.Decrypt(p.keyStore, hf, coded, aad)
		if err != nil {
			if p.metrics != nil {
				p.metrics.DecFailTag.Add(1)
			}
			p.gc(nowMs)
			return
		}
		plaintext = pt
	}

	if !h.HasFlag(frame.FlagFrag) {
		p.deliverSingle(h, plaintext)
	} else {
		p.deliverFragment(h, plaintext, nowMs)
	}

	p.gc(nowMs)
}

func (p *Pipeline) countDecodeError(err error) {
	if p.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, frame.ErrHeaderCRC), errors.Is(err, frame.ErrFrameCRC):
		p.metrics.RxCRCFail.Add(1)
	case errors.Is(err, frame.ErrLengthMismatch):
		p.metrics.RxDropLenMismatch.Add(1)
	default:
		// short buffer / version mismatch: silent drop (§4.8 steps 1-2).
	}
}

func (p *Pipeline) deliverSingle(h frame.Header, plaintext []byte) {
	if p.dup.Contains(h.MsgID) {
		if p.metrics != nil {
			p.metrics.RxDupMsgs.Add(1)
		}
		return
	}
	p.dup.Insert(h.MsgID)
	if p.onMessage != nil {
		p.onMessage(plaintext)
	}
	if p.metrics != nil {
		p.metrics.RxMsgsOK.Add(1)
	}
	if h.HasFlag(frame.FlagAckReq) {
		p.recordAck(h.MsgID)
	}
}

func (p *Pipeline) deliverFragment(h frame.Header, plaintext []byte, nowMs int64) {
	asm, ok := p.assemblers[h.MsgID]
	if !ok {
		if len(p.assemblers) >= p.cfg.MaxAssemblers {
			if p.metrics != nil {
				p.metrics.RxAssemDropOverflow.Add(1)
			}
			return
		}
		asm = newAssembler(h.MsgID, int(h.FragCnt), nowMs)
		p.assemblers[h.MsgID] = asm
	}

	if p.aggregate+len(plaintext) > p.cfg.AggregateCapBytes {
		if p.metrics != nil {
			p.metrics.RxAssemDropOverflow.Add(1)
		}
		p.aggregate -= asm.totalBytes
		delete(p.assemblers, h.MsgID)
		return
	}

	if !asm.Store(int(h.FragIdx), plaintext, h.HasFlag(frame.FlagAckReq), p.cfg.PerMsgCapBytes) {
		if p.metrics != nil {
			p.metrics.RxAssemDropOverflow.Add(1)
		}
		p.aggregate -= asm.totalBytes
		delete(p.assemblers, h.MsgID)
		return
	}
	p.aggregate += len(plaintext)

	if !asm.Complete() {
		return
	}

	delete(p.assemblers, h.MsgID)
	p.aggregate -= asm.totalBytes

	if p.dup.Contains(asm.msgID) {
		if p.metrics != nil {
			p.metrics.RxDupMsgs.Add(1)
		}
		return
	}
	p.dup.Insert(asm.msgID)
	data := asm.Concat()
	if p.onMessage != nil {
		p.onMessage(data)
	}
	if p.metrics != nil {
		p.metrics.RxMsgsOK.Add(1)
	}
	if asm.ackRequired {
		p.recordAck(asm.msgID)
	}
}

// gc evicts assemblers older than the TTL (§4.8, §7).
func (p *Pipeline) gc(nowMs int64) {
	for id, asm := range p.assemblers {
		if nowMs-asm.firstSeenMs > p.cfg.AssemblerTTLMs {
			p.aggregate -= asm.totalBytes
			delete(p.assemblers, id)
			if p.metrics != nil {
				p.metrics.RxAssemDropTTL.Add(1)
			}
		}
	}
}

// recordAck folds a newly-acknowledged msg_id into the cumulative
// (ack_highest, ack_bitmap) state (§4.8 "ACK generation").
func (p *Pipeline) recordAck(msgID uint32) {
	switch {
	case !p.haveAck:
		p.ackHighest = msgID
		p.haveAck = true
	case msgID > p.ackHighest:
		shift := msgID - p.ackHighest
		if shift > 32 {
			p.ackBitmap = 0
		} else {
			p.ackBitmap <<= shift
			p.ackBitmap |= 1 << (shift - 1)
		}
		p.ackHighest = msgID
	case msgID < p.ackHighest:
		delta := p.ackHighest - msgID
		if delta >= 1 && delta <= 32 {
			p.ackBitmap |= 1 << (delta - 1)
		}
	}
	p.ackDirty = true
}

// MaybeEmitAck returns an on-air ACK frame when the scheduler is in
// the ACK phase and either an ACK-required message completed since
// the last emission or the aggregation timer elapsed (§4.8). Emission
// is idempotent: repeating the same (highest, bitmap) is always safe.
func (p *Pipeline) MaybeEmitAck(phase scheduler.Phase, nowMs int64) ([]byte, bool) {
	if phase != scheduler.Ack || !p.haveAck {
		return nil, false
	}
	if !p.ackDirty && nowMs-p.lastAckMs < p.cfg.AckAggregationMs {
		return nil, false
	}

	payload := frame.EncodeAck(p.ackHighest, p.ackBitmap)
	hdr := frame.Header{Flags: frame.FlagAck, MsgID: p.ackHighest, PayloadLen: uint16(len(payload))}
	hdrBuf := frame.Encode(hdr, payload)
	onAir := frame.BuildFrame(hdrBuf, p.cfg.HeaderDup, payload)

	p.lastAckMs = nowMs
	p.ackDirty = false
	return onAir, true
}
