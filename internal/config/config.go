// Package config loads the engine's YAML-backed configuration: the
// §6 defaults, the four link profiles P0..P3, and (for demo/test use
// only — production key material is external per §1) a seed set of
// AEAD keys. Grounded on deviceid.go's yaml.v3 table load, generalized
// from a single tocalls table to the engine's handful of config
// sections.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kgustafson/satlink/internal/aead"
	"github.com/kgustafson/satlink/internal/cache"
	"github.com/kgustafson/satlink/internal/channel"
	"github.com/kgustafson/satlink/internal/channel/fec"
	"github.com/kgustafson/satlink/internal/profile"
	"github.com/kgustafson/satlink/internal/rx"
	"github.com/kgustafson/satlink/internal/tx"
)

// Defaults mirrors §6's "Defaults (configurable by the surrounding
// system)" table.
type Defaults struct {
	AckOn              bool          `yaml:"ack_on"`
	EncOn              bool          `yaml:"enc_on"`
	FECOn              bool          `yaml:"fec_on"`
	InterleaveDepth    int           `yaml:"interleave_depth"`
	Window             int           `yaml:"window"`
	HeaderDup          bool          `yaml:"header_dup"`
	Burst              int           `yaml:"burst"`
	PilotInterval      int           `yaml:"pilot_interval"`
	AckTimeoutMs       int           `yaml:"ack_timeout_ms"`
	MaxAckTimeoutMs    int           `yaml:"max_ack_timeout_ms"`
	MaxRetries         int           `yaml:"max_retries"`
	AckAggregationMs   int           `yaml:"ack_aggregation_ms"`
	InterFrameGapMs    int           `yaml:"inter_frame_gap_ms"`
	MTU                int           `yaml:"mtu"`
	SchedPolicy        string        `yaml:"sched_policy"`
}

// DefaultDefaults returns the §6 literal defaults: ACK off, ENC off,
// FEC off, interleave=1, window=8, header-dup=true, burst=window,
// pilot interval=64, ACK timeout=1200ms (cap 5000ms), max retries=3,
// ACK aggregation=50ms, inter-frame gap=25ms, MTU=255.
func DefaultDefaults() Defaults {
	return Defaults{
		AckOn:            false,
		EncOn:            false,
		FECOn:            false,
		InterleaveDepth:  1,
		Window:           8,
		HeaderDup:        true,
		Burst:            8,
		PilotInterval:    64,
		AckTimeoutMs:     1200,
		MaxAckTimeoutMs:  5000,
		MaxRetries:       3,
		AckAggregationMs: 50,
		InterFrameGapMs:  25,
		MTU:              255,
		SchedPolicy:      "strict",
	}
}

// TXConfig translates Defaults into an internal/tx.Config.
func (d Defaults) TXConfig() tx.Config {
	return tx.Config{
		Window:         d.Window,
		BurstLimit:     d.Burst,
		HeaderDup:      d.HeaderDup,
		InterFrameGap:  time.Duration(d.InterFrameGapMs) * time.Millisecond,
		BaseAckTimeout: time.Duration(d.AckTimeoutMs) * time.Millisecond,
		MaxAckTimeout:  time.Duration(d.MaxAckTimeoutMs) * time.Millisecond,
		MaxRetries:     d.MaxRetries,
	}
}

// RXConfig translates Defaults into an internal/rx.Config, keeping
// rx's own §4.8 capacity bounds (window/burst/timeouts are TX-only
// concerns) and overriding only what the defaults table names.
func (d Defaults) RXConfig() rx.Config {
	cfg := rx.DefaultConfig()
	cfg.HeaderDup = d.HeaderDup
	cfg.AckAggregationMs = int64(d.AckAggregationMs)
	return cfg
}

// ChannelConfig translates the FEC-on, interleave-depth and
// pilot-interval defaults into an internal/channel.Config, keeping the
// codec's own ASM default (§9's Open Question resolutions aren't
// surfaced here).
func (d Defaults) ChannelConfig() channel.Config {
	cfg := channel.DefaultConfig()
	cfg.InterleaveDepth = d.InterleaveDepth
	cfg.PilotInterval = d.PilotInterval
	if !d.FECOn {
		cfg.FECMode = fec.ModeNone
	}
	return cfg
}

// SchedPolicyValue maps the YAML string to a cache.SchedPolicy.
func (d Defaults) SchedPolicyValue() cache.SchedPolicy {
	if d.SchedPolicy == "weighted421" {
		return cache.Weighted421
	}
	return cache.Strict
}

// ProfileTable is the YAML-loadable form of the four link profiles
// (§4.6/4.10). Values mirror internal/profile.profileParams; a
// config file lets a deployment retune the ladder without a rebuild.
type ProfileTable struct {
	Profiles map[string]ProfileEntry `yaml:"profiles"`
}

type ProfileEntry struct {
	BandwidthKHz    float64 `yaml:"bandwidth_khz"`
	SpreadingFactor int     `yaml:"spreading_factor"`
	CodingRate4x    int     `yaml:"coding_rate_4x"`
	FEC             string  `yaml:"fec"`
	InterleaveDepth int     `yaml:"interleave_depth"`
}

// ApplyProfileOverrides pushes every named entry in a config file's
// profiles section into ctrl, keyed by the YAML profile name ("p0"
// .. "p3"). Unknown names are ignored.
func ApplyProfileOverrides(ctrl *profile.Controller, profiles map[string]ProfileEntry) {
	names := map[string]profile.Profile{"p0": profile.P0, "p1": profile.P1, "p2": profile.P2, "p3": profile.P3}
	for name, entry := range profiles {
		p, ok := names[name]
		if !ok {
			continue
		}
		ctrl.SetParams(p, entry.toParams())
	}
}

func (e ProfileEntry) toParams() profile.Params {
	return profile.Params{
		BandwidthKHz:    e.BandwidthKHz,
		SpreadingFactor: e.SpreadingFactor,
		CodingRate4x:    e.CodingRate4x,
		FECMode:         fecModeFromString(e.FEC),
		InterleaveDepth: e.InterleaveDepth,
	}
}

func fecModeFromString(s string) fec.Mode {
	switch s {
	case "ldpc":
		return fec.ModeLDPC
	case "rs":
		return fec.ModeRS
	default:
		return fec.ModeNone
	}
}

// File is the top-level shape of an engine config file.
type File struct {
	Defaults Defaults                `yaml:"defaults"`
	Profiles map[string]ProfileEntry `yaml:"profiles"`
	Keys     []KeyEntry              `yaml:"keys"`
}

// KeyEntry seeds a demo/test KeyStore (§4.12: production key material
// is external — this exists only for satlink-linktest and tests).
type KeyEntry struct {
	KID    byte   `yaml:"kid"`
	KeyHex string `yaml:"key_hex"`
	Active bool   `yaml:"active"`
}

// SeedKeyStore populates a demo/test MapKeyStore from a config file's
// keys section (§4.12's KeyStore contract is an external collaborator
// in production; this exists for satlink-linktest and tests only).
func SeedKeyStore(entries []KeyEntry) (*aead.MapKeyStore, error) {
	ks := aead.NewMapKeyStore()
	for _, e := range entries {
		raw, err := hex.DecodeString(e.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("config: key %d: %w", e.KID, err)
		}
		if len(raw) != aead.KeySize {
			return nil, fmt.Errorf("config: key %d: want %d bytes, got %d", e.KID, aead.KeySize, len(raw))
		}
		var key [aead.KeySize]byte
		copy(key[:], raw)
		if err := ks.SetKey(e.KID, key); err != nil {
			return nil, err
		}
		if e.Active {
			if err := ks.SetActiveKID(e.KID); err != nil {
				return nil, err
			}
		}
	}
	return ks, nil
}

// Load reads and parses a YAML config file from path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if f.Defaults == (Defaults{}) {
		f.Defaults = DefaultDefaults()
	}
	return f, nil
}
