// Package loopback implements an in-process radio.Driver pair for
// the engine's own integration tests and for cmd/satlink-linktest
// (§8 end-to-end scenarios need a radio without real hardware).
// Grounded on kiss.go's use of github.com/creack/pty to give a test
// harness something that behaves like a real serial link; here the
// "wire" is a Go channel instead of a pty by default, with an
// optional real pty pair available for exercising serialradio too.
package loopback

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/creack/pty"

	"github.com/kgustafson/satlink/internal/cache"
)

// Impairment lets tests inject packet loss and corruption (§8
// scenario 3/4's "drop the first TX" / "drop all attempts").
type Impairment struct {
	// LossProb is the probability (0..1) a frame is dropped entirely.
	LossProb float64
	// CorruptProb is the probability a delivered frame has one byte
	// flipped, independent of LossProb.
	CorruptProb float64
	Rand        *rand.Rand
}

func (im Impairment) roll(p float64) bool {
	if p <= 0 {
		return false
	}
	if im.Rand == nil {
		return rand.Float64() < p
	}
	return im.Rand.Float64() < p
}

// Peer is one side of a loopback pair. It implements radio.Driver;
// SendRaw hands frames to the other Peer's receive callback on a
// goroutine, simulating the radio's own propagation delay as an
// immediate (synchronous-enough-for-tests) delivery.
type Peer struct {
	name       string
	inbox      chan []byte
	other      *Peer
	impairment Impairment

	freq      uint64
	bwKHz     float64
	sf        int
	cr4x      int
	txPowerDB int

	onReceive func(frame []byte)
}

// NewPair returns two Peers wired to each other. impairment applies
// to frames sent from a to b and from b to a equally.
func NewPair(impairment Impairment) (a, b *Peer) {
	a = &Peer{name: "a", inbox: make(chan []byte, 64), impairment: impairment}
	b = &Peer{name: "b", inbox: make(chan []byte, 64), impairment: impairment}
	a.other = b
	b.other = a
	return a, b
}

// SetOnReceive registers the callback invoked for every frame that
// survives impairment, matching the radio driver's on_receive(bytes)
// contract (§6). Callers typically wire this to engine.Engine.OnReceive.
func (p *Peer) SetOnReceive(fn func(frame []byte)) { p.onReceive = fn }

// Run drains incoming frames and dispatches them to onReceive until
// ctx is canceled. It must be started before the peer can receive.
func (p *Peer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-p.inbox:
			if p.onReceive != nil {
				p.onReceive(f)
			}
		}
	}
}

func (p *Peer) SendRaw(ctx context.Context, f []byte, _ cache.QoS) (bool, error) {
	if p.impairment.roll(p.impairment.LossProb) {
		return true, nil // the frame left the antenna; it just never arrives
	}
	out := make([]byte, len(f))
	copy(out, f)
	if p.impairment.roll(p.impairment.CorruptProb) && len(out) > 0 {
		out[0] ^= 0xFF
	}
	select {
	case p.other.inbox <- out:
	case <-ctx.Done():
		return false, ctx.Err()
	default:
		return false, nil // other peer's inbox is full, simulating a missed frame
	}
	return true, nil
}

func (p *Peer) ForceRX(ctx context.Context, window time.Duration) error { return nil }
func (p *Peer) SetFrequency(hz uint64) error                           { p.freq = hz; return nil }
func (p *Peer) SetBandwidth(khz float64) error                         { p.bwKHz = khz; return nil }
func (p *Peer) SetSpreadingFactor(sf int) error                        { p.sf = sf; return nil }
func (p *Peer) SetCodingRate(cr4x int) error                           { p.cr4x = cr4x; return nil }
func (p *Peer) SetTXPower(dBm int) error                               { p.txPowerDB = dBm; return nil }
func (p *Peer) GetSNR() (float64, error)                               { return 20, nil }
func (p *Peer) GetEbN0() (float64, error)                              { return 10, nil }
func (p *Peer) GetRSSI() (float64, error)                              { return -60, nil }

// NewPTYPair allocates a real master/slave pty pair, for exercising
// internal/radio/serialradio against a loopback-style counterpart
// instead of the pure in-memory channel above (the slave side's path
// is what a serialradio.Driver would open as its "serial port").
func NewPTYPair() (master, slave *os.File, err error) {
	return pty.Open()
}
