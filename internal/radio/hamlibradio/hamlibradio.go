// Package hamlibradio CAT-controls a real or rigctld-emulated radio
// via github.com/xylo04/goHamlib, implementing the frequency,
// bandwidth (as passband width) and power setters, plus the SNR/RSSI
// getters. This adapter targets conventional CAT-controlled rigs, not
// a native LoRa chipset: spreading factor and coding rate have no
// hamlib analogue and are only stored locally. Byte-level
// SendRaw/ForceRX/OnReceive are delegated to an inner radio.Driver
// (typically internal/radio/serialradio) since hamlib itself only
// ever does rig control, never packet I/O.
package hamlibradio

import (
	"context"
	"math"
	"time"

	"github.com/xylo04/goHamlib"

	"github.com/kgustafson/satlink/internal/cache"
	"github.com/kgustafson/satlink/internal/radio"
)

// Driver wraps an inner byte-level radio.Driver with hamlib CAT
// control for the parameter setters and quality getters.
type Driver struct {
	radio.Driver
	rig *gohamlib.Rig

	sf   int
	cr4x int
}

// Open initializes hamlib for rigModel over a rigctld/serial port
// path and wraps inner for the byte-level contract.
func Open(rigModel int, port string, inner radio.Driver) (*Driver, error) {
	rig := gohamlib.NewRig(rigModel)
	if err := rig.SetConf("rig_pathname", port); err != nil {
		return nil, err
	}
	if err := rig.Open(); err != nil {
		return nil, err
	}
	return &Driver{Driver: inner, rig: rig}, nil
}

func (d *Driver) Close() error { return d.rig.Close() }

func (d *Driver) SendRaw(ctx context.Context, frame []byte, qos cache.QoS) (bool, error) {
	return d.Driver.SendRaw(ctx, frame, qos)
}

func (d *Driver) ForceRX(ctx context.Context, window time.Duration) error {
	return d.Driver.ForceRX(ctx, window)
}

func (d *Driver) SetFrequency(hz uint64) error {
	return d.rig.SetFreq(gohamlib.VFOCurrent, float64(hz))
}

// SetBandwidth sets the receiver passband width in kHz via hamlib's
// mode/passband call, keeping the rig's current mode.
func (d *Driver) SetBandwidth(khz float64) error {
	mode, _, err := d.rig.GetMode(gohamlib.VFOCurrent)
	if err != nil {
		return err
	}
	return d.rig.SetMode(gohamlib.VFOCurrent, mode, int(khz*1000))
}

// SetSpreadingFactor has no hamlib equivalent; it's tracked so the
// profile controller's push still round-trips for adapters layered
// atop this one (e.g. a future native LoRa transceiver driver).
func (d *Driver) SetSpreadingFactor(sf int) error { d.sf = sf; return nil }

// SetCodingRate has no hamlib equivalent either; the value is only
// stored locally, as SetSpreadingFactor's is.
func (d *Driver) SetCodingRate(cr4x int) error { d.cr4x = cr4x; return nil }

func (d *Driver) SetTXPower(dBm int) error {
	milliwatts := dbmToMilliwatts(dBm)
	return d.rig.SetLevel(gohamlib.VFOCurrent, gohamlib.LevelRFPower, float64(milliwatts)/1000.0)
}

func (d *Driver) GetSNR() (float64, error) {
	return d.rig.GetLevel(gohamlib.VFOCurrent, gohamlib.LevelSNR)
}

func (d *Driver) GetEbN0() (float64, error) {
	// hamlib has no native Eb/N0 reading; approximate from SNR, which
	// is the closest level it exposes.
	return d.GetSNR()
}

func (d *Driver) GetRSSI() (float64, error) {
	return d.rig.GetLevel(gohamlib.VFOCurrent, gohamlib.LevelRawStrength)
}

func dbmToMilliwatts(dBm int) float64 {
	return math.Pow(10, float64(dBm)/10)
}
