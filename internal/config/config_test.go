package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgustafson/satlink/internal/aead"
	"github.com/kgustafson/satlink/internal/cache"
	"github.com/kgustafson/satlink/internal/channel/fec"
	"github.com/kgustafson/satlink/internal/profile"
)

func TestDefaultDefaultsTranslateToSubsystemConfigs(t *testing.T) {
	d := DefaultDefaults()

	txCfg := d.TXConfig()
	assert.Equal(t, 8, txCfg.Window)
	assert.Equal(t, 3, txCfg.MaxRetries)

	rxCfg := d.RXConfig()
	assert.True(t, rxCfg.HeaderDup)
	assert.Equal(t, int64(50), rxCfg.AckAggregationMs)

	chCfg := d.ChannelConfig()
	assert.Equal(t, fec.ModeNone, chCfg.FECMode) // FECOn defaults false

	assert.Equal(t, cache.Strict, d.SchedPolicyValue())
}

func TestSchedPolicyValueWeighted(t *testing.T) {
	d := DefaultDefaults()
	d.SchedPolicy = "weighted421"
	assert.Equal(t, cache.Weighted421, d.SchedPolicyValue())
}

func TestApplyProfileOverrides(t *testing.T) {
	ctrl := profile.New(nil, nil)
	profiles := map[string]ProfileEntry{
		"p2": {BandwidthKHz: 100, SpreadingFactor: 9, CodingRate4x: 6, FEC: "ldpc", InterleaveDepth: 2},
	}
	ApplyProfileOverrides(ctrl, profiles)

	got := ctrl.ParamsFor(profile.P2)
	assert.Equal(t, 100.0, got.BandwidthKHz)
	assert.Equal(t, fec.ModeLDPC, got.FECMode)

	// P0 untouched, falls back to the built-in ladder.
	assert.Equal(t, profile.P0.Params(), ctrl.ParamsFor(profile.P0))
}

func TestSeedKeyStore(t *testing.T) {
	entries := []KeyEntry{
		{KID: 1, KeyHex: "000102030405060708090a0b0c0d0e0f", Active: true},
	}
	ks, err := SeedKeyStore(entries)
	require.NoError(t, err)

	kid, ok := ks.ActiveKID()
	require.True(t, ok)
	assert.Equal(t, byte(1), kid)

	key, ok := ks.GetKey(1)
	require.True(t, ok)
	assert.Equal(t, byte(0x0f), key[aead.KeySize-1])
}

func TestSeedKeyStoreRejectsBadHex(t *testing.T) {
	_, err := SeedKeyStore([]KeyEntry{{KID: 1, KeyHex: "zz"}})
	assert.Error(t, err)
}

func TestSeedKeyStoreRejectsWrongLength(t *testing.T) {
	_, err := SeedKeyStore([]KeyEntry{{KID: 1, KeyHex: "0011"}})
	assert.Error(t, err)
}

func TestLoadParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	contents := `
defaults:
  ack_on: true
  enc_on: true
  window: 4
  sched_policy: weighted421
profiles:
  p1:
    bandwidth_khz: 200
    spreading_factor: 9
    coding_rate_4x: 5
    fec: rs
    interleave_depth: 2
keys:
  - kid: 1
    key_hex: "00112233445566778899aabbccddeeff"
    active: true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.True(t, f.Defaults.AckOn)
	assert.Equal(t, 4, f.Defaults.Window)
	assert.Equal(t, "weighted421", f.Defaults.SchedPolicy)
	require.Contains(t, f.Profiles, "p1")
	assert.Equal(t, 200.0, f.Profiles["p1"].BandwidthKHz)
	require.Len(t, f.Keys, 1)
	assert.Equal(t, byte(1), f.Keys[0].KID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/engine.yaml")
	assert.Error(t, err)
}
