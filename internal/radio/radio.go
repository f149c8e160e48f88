// Package radio defines the two external-collaborator contracts the
// engine consumes but never implements itself: the radio driver (§6)
// and the AEAD key store (§4.3, §4.12). Both live here because §1/§6
// treat them the same way — boundaries the core module depends on
// without owning, the way the teacher repository separates its TNC
// transports from the packet engine itself.
package radio

import (
	"context"
	"sync"
	"time"

	"github.com/kgustafson/satlink/internal/cache"
)

// Driver is the byte-level radio contract (§6). SendRaw MUST NOT
// transmit during non-TX phases; the TDD scheduler and TX pipeline
// enforce that above this interface, not the driver itself.
type Driver interface {
	SendRaw(ctx context.Context, frame []byte, qos cache.QoS) (bool, error)
	ForceRX(ctx context.Context, window time.Duration) error
	SetFrequency(hz uint64) error
	SetBandwidth(khz float64) error
	SetSpreadingFactor(sf int) error
	SetCodingRate(cr4x int) error
	SetTXPower(dBm int) error
	GetSNR() (float64, error)
	GetEbN0() (float64, error)
	GetRSSI() (float64, error)
}

// KeyStore is the AEAD key-material contract (§4.12). Key management
// and rotation happen outside the module (§6); this is deliberately
// narrow (no way to read back the active KID) because a production
// store may not expose one. The engine's encrypting path takes an
// aead.KeyStore, which adds ActiveKID to this contract.
type KeyStore interface {
	SetKey(kid byte, key [16]byte) error
	SetActiveKID(kid byte) error
	GetKey(kid byte) ([16]byte, bool)
}

// Lock is the single mutual-exclusion primitive both TX emission and
// ACK emission acquire for the duration of a SendRaw call (§5:
// "both TX emission and ACK emission acquire a single radio lock").
// Frequency changes are serialized through the same lock.
type Lock struct {
	mu sync.Mutex
}

func (l *Lock) SendRaw(ctx context.Context, d Driver, frame []byte, qos cache.QoS) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return d.SendRaw(ctx, frame, qos)
}

func (l *Lock) SetFrequency(d Driver, hz uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return d.SetFrequency(hz)
}
