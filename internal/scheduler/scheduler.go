// Package scheduler implements the TDD (time-division-duplex) cycle
// that gates every transmission (§4.9): a fixed TX / GUARD / ACK /
// GUARD cycle read off a wall-clock source, with no drift correction
// — the protocol tolerates phase skew up to one GUARD interval and
// leaves cycle-origin synchronization between peers to an external
// concern, exactly as §4.9 specifies.
package scheduler

import (
	"time"

	"golang.org/x/sys/unix"
)

// Phase is one quarter of the TDD cycle.
type Phase int

const (
	TX Phase = iota
	Guard1
	Ack
	Guard2
)

func (p Phase) String() string {
	switch p {
	case TX:
		return "TX"
	case Guard1:
		return "GUARD1"
	case Ack:
		return "ACK"
	case Guard2:
		return "GUARD2"
	default:
		return "?"
	}
}

// Cycle durations (§4.9). CycleDuration = TX + GUARD + ACK + GUARD =
// 1400ms.
const (
	TXDuration     = 1000 * time.Millisecond
	GuardDuration  = 50 * time.Millisecond
	AckDuration    = 300 * time.Millisecond
	CycleDuration  = TXDuration + GuardDuration + AckDuration + GuardDuration
)

// Scheduler computes the current TDD phase relative to a fixed cycle
// origin. It holds no other state: phase is a pure function of wall
// time, matching §9's "no real timers; every tick() reads a monotonic
// clock and compares against stored deadlines" guidance applied to the
// scheduler itself.
type Scheduler struct {
	origin time.Time
}

// New returns a Scheduler whose cycle begins at origin. Two peers are
// assumed to share this origin within one GUARD interval (§4.9); how
// they agree on it is outside this package.
func New(origin time.Time) *Scheduler {
	return &Scheduler{origin: origin}
}

// Phase returns the TDD phase at time t.
func (s *Scheduler) Phase(t time.Time) Phase {
	elapsed := t.Sub(s.origin) % CycleDuration
	if elapsed < 0 {
		elapsed += CycleDuration
	}
	switch {
	case elapsed < TXDuration:
		return TX
	case elapsed < TXDuration+GuardDuration:
		return Guard1
	case elapsed < TXDuration+GuardDuration+AckDuration:
		return Ack
	default:
		return Guard2
	}
}

// Remaining returns how much of the cycle is left before the phase at
// time t changes, for callers (the engine's RX-arming call) that need
// to know how long to listen for.
func (s *Scheduler) Remaining(t time.Time) time.Duration {
	elapsed := t.Sub(s.origin) % CycleDuration
	if elapsed < 0 {
		elapsed += CycleDuration
	}
	bounds := [...]time.Duration{TXDuration, TXDuration + GuardDuration, TXDuration + GuardDuration + AckDuration, CycleDuration}
	for _, b := range bounds {
		if elapsed < b {
			return b - elapsed
		}
	}
	return 0
}

// InRX reports whether the radio should be in listen mode at phase p
// (§4.9: "Outside TX, the scheduler demands the radio be placed in
// RX" — and the ACK phase listens too, since a peer's ACK phase lines
// up with the other peer's post-TX guard in the simplest shared-origin
// case, so the receiver must always be ready to hear one).
func (p Phase) InRX() bool {
	return p != TX
}

// MonotonicNow reads CLOCK_MONOTONIC directly rather than going
// through time.Now(), for a caller driving the scheduler off a clock
// immune to wall-clock adjustments (NTP steps, an operator's `date`
// call mid-cycle) — the same concern cm108.go/ptt.go address with a
// raw ioctl instead of a higher-level time source. Falls back to
// time.Now() if the syscall itself fails.
func MonotonicNow() time.Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Now()
	}
	return time.Unix(int64(ts.Sec), int64(ts.Nsec))
}
