// Package gpioptt keys a PTT GPIO line around radio.Driver.SendRaw,
// gated so the line is only asserted during the TDD scheduler's TX
// phase. Grounded on ptt.go's GPIO-keying support, reimplemented
// against the character-device API (github.com/warthog618/go-gpiocdev)
// instead of ptt.go's /sys/class/gpio sysfs writes.
package gpioptt

import (
	"context"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/kgustafson/satlink/internal/cache"
	"github.com/kgustafson/satlink/internal/radio"
	"github.com/kgustafson/satlink/internal/scheduler"
)

// Driver decorates another radio.Driver, asserting a PTT GPIO line
// for the duration of each SendRaw call. phases is consulted so a
// caller never has to coordinate PTT timing with the TDD scheduler
// itself — SendRaw is only ever invoked during TX per §4.6/§4.9, so
// gating here is a belt-and-suspenders check, not the primary
// enforcement point.
type Driver struct {
	radio.Driver
	line   *gpiocdev.Line
	phases interface{ Phase(t time.Time) scheduler.Phase }
}

// Open requests chip/offset as an output line, initially deasserted,
// and wraps inner with PTT keying.
func Open(chip string, offset int, inner radio.Driver, phases interface{ Phase(t time.Time) scheduler.Phase }) (*Driver, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("gpioptt: request %s:%d: %w", chip, offset, err)
	}
	return &Driver{Driver: inner, line: line, phases: phases}, nil
}

func (d *Driver) Close() error { return d.line.Close() }

func (d *Driver) SendRaw(ctx context.Context, frame []byte, qos cache.QoS) (bool, error) {
	if d.phases != nil && d.phases.Phase(time.Now()) != scheduler.TX {
		return false, fmt.Errorf("gpioptt: refusing to key PTT outside TX phase")
	}
	if err := d.line.SetValue(1); err != nil {
		return false, err
	}
	defer d.line.SetValue(0)
	return d.Driver.SendRaw(ctx, frame, qos)
}
