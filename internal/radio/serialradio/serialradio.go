// Package serialradio implements a byte-oriented radio.Driver over a
// USB-serial-attached transceiver, grounded on serial_port.go's use
// of github.com/pkg/term and kissserial.go's framing-over-serial
// read loop. Frequency/bandwidth/SF/CR/power setters are no-ops here
// (a plain serial TNC has no CAT control of its own); pair this
// adapter with internal/radio/hamlibradio when the same link also
// needs CAT control.
package serialradio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
	"github.com/pkg/term"

	"github.com/kgustafson/satlink/internal/cache"
)

// Driver is a length-prefixed framed byte stream over a serial port.
// Framing (a 2-byte big-endian length prefix) is this adapter's own
// choice — the radio driver contract (§6) only requires SendRaw to
// transmit exactly the given bytes and on_receive to deliver exactly
// what came back, so the wire delimiter is an implementation detail
// on this side of the boundary, not part of the link protocol itself.
type Driver struct {
	port      *term.Term
	log       *log.Logger
	onReceive func([]byte)
}

// Open opens devicename at baud and starts the background read loop.
func Open(devicename string, baud int, logger *log.Logger) (*Driver, error) {
	t, err := term.Open(devicename, term.Speed(baud), term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("serialradio: open %s: %w", devicename, err)
	}
	d := &Driver{port: t, log: logger}
	go d.readLoop()
	return d, nil
}

func (d *Driver) SetOnReceive(fn func([]byte)) { d.onReceive = fn }

func (d *Driver) readLoop() {
	var lenBuf [2]byte
	for {
		if _, err := io.ReadFull(d.port, lenBuf[:]); err != nil {
			if d.log != nil {
				d.log.Warn("serialradio: read length prefix failed", "err", err)
			}
			return
		}
		n := binary.BigEndian.Uint16(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(d.port, buf); err != nil {
			if d.log != nil {
				d.log.Warn("serialradio: read frame body failed", "err", err)
			}
			return
		}
		if d.onReceive != nil {
			d.onReceive(buf)
		}
	}
}

func (d *Driver) SendRaw(ctx context.Context, frame []byte, _ cache.QoS) (bool, error) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(frame)))
	if _, err := d.port.Write(lenBuf[:]); err != nil {
		return false, err
	}
	if _, err := d.port.Write(frame); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Driver) ForceRX(ctx context.Context, window time.Duration) error { return nil }
func (d *Driver) SetFrequency(hz uint64) error                           { return nil }
func (d *Driver) SetBandwidth(khz float64) error                        { return nil }
func (d *Driver) SetSpreadingFactor(sf int) error                       { return nil }
func (d *Driver) SetCodingRate(cr4x int) error                          { return nil }
func (d *Driver) SetTXPower(dBm int) error                              { return nil }
func (d *Driver) GetSNR() (float64, error)                              { return 0, nil }
func (d *Driver) GetEbN0() (float64, error)                             { return 0, nil }
func (d *Driver) GetRSSI() (float64, error)                             { return 0, nil }

// WatchHotplug logs serial device add/remove events via udev, for an
// operator to notice a transceiver reattached on a new /dev/ttyUSBn
// node (grounded on the teacher's go.mod dependency on
// github.com/jochenvg/go-udev for device hotplug detection).
func WatchHotplug(ctx context.Context, logger *log.Logger) error {
	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("tty"); err != nil {
		return fmt.Errorf("serialradio: udev filter: %w", err)
	}
	ch, errCh, err := mon.DeviceChan(ctx)
	if err != nil {
		return fmt.Errorf("serialradio: udev monitor: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case dev := <-ch:
				if logger != nil {
					logger.Info("serialradio: tty hotplug", "action", dev.Action(), "devnode", dev.Devnode())
				}
			case err := <-errCh:
				if logger != nil {
					logger.Warn("serialradio: udev monitor error", "err", err)
				}
			}
		}
	}()
	return nil
}
