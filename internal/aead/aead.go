// Package aead implements the link's authenticated encryption: AES in
// CCM mode with 128-bit keys and an 8-byte tag, keyed by a one-byte
// KID (§4.3). The standard library has no CCM mode (crypto/cipher
// ships GCM/CFB/CTR/OFB but nothing named NewCCM), and the retrieved
// corpus carries no independent third-party CCM package either
// (DESIGN.md records the search), so ccm.go hand-rolls RFC 3610's
// Counter-with-CBC-MAC construction directly over crypto/aes — the
// same "textbook algorithm by hand" texture the channel package
// already uses for its Hamming(12,8)/Reed-Solomon FEC.
package aead

import (
	"errors"

	"github.com/kgustafson/satlink/internal/frame"
)

// TagSize is the CCM authentication tag length (§4.3: "tag length 8").
const TagSize = 8

// NonceSize is the CCM nonce length (§4.3).
const NonceSize = 12

// KeySize is the AES key length (§4.3: "128-bit keys").
const KeySize = 16

var (
	// ErrUnknownKID means the wire KID byte has no registered key.
	ErrUnknownKID = errors.New("aead: unknown key id")
	// ErrShortCiphertext means the input is too short to contain
	// even a KID byte and a tag.
	ErrShortCiphertext = errors.New("aead: ciphertext shorter than kid+tag")
	// ErrAuthFailed means CCM tag verification failed.
	ErrAuthFailed = errors.New("aead: authentication failed")
)

// KeyStore resolves key ids to key material and tracks which KID is
// active for outbound frames (§4.3, §4.12). It is internal/radio's
// KeyStore contract plus ActiveKID, which the TX formatter uses to
// decide whether to encrypt; MapKeyStore here is the in-memory
// implementation used by tests and satlink-linktest.
type KeyStore interface {
	SetKey(kid byte, key [KeySize]byte) error
	SetActiveKID(kid byte) error
	GetKey(kid byte) ([KeySize]byte, bool)
	ActiveKID() (byte, bool)
}

// MapKeyStore is a minimal in-memory KeyStore.
type MapKeyStore struct {
	keys      map[byte][KeySize]byte
	active    byte
	hasActive bool
}

func NewMapKeyStore() *MapKeyStore {
	return &MapKeyStore{keys: make(map[byte][KeySize]byte)}
}

func (m *MapKeyStore) SetKey(kid byte, key [KeySize]byte) error {
	m.keys[kid] = key
	return nil
}

func (m *MapKeyStore) SetActiveKID(kid byte) error {
	if _, ok := m.keys[kid]; !ok {
		return ErrUnknownKID
	}
	m.active = kid
	m.hasActive = true
	return nil
}

func (m *MapKeyStore) GetKey(kid byte) ([KeySize]byte, bool) {
	k, ok := m.keys[kid]
	return k, ok
}

func (m *MapKeyStore) ActiveKID() (byte, bool) {
	return m.active, m.hasActive
}

// HeaderFields is the subset of the frame header the nonce is derived
// from (§4.3): ver, flags, frag_idx, frag_cnt, msg_id, payload_len.
type HeaderFields struct {
	Ver        byte
	Flags      byte
	FragIdx    uint16
	FragCnt    uint16
	MsgID      uint32
	PayloadLen uint16
}

// HeaderFieldsFromFrame lifts a frame.Header into the subset of
// fields the nonce is derived from. payloadLen overrides
// h.PayloadLen: the formatter and the RX pipeline both need to derive
// a nonce from the pre-channel-coding payload length, which differs
// from the on-air header's own PayloadLen field (§4.3 discussion in
// internal/tx and internal/rx).
func HeaderFieldsFromFrame(h frame.Header, payloadLen uint16) HeaderFields {
	return HeaderFields{
		Ver:        frame.Version,
		Flags:      h.Flags,
		FragIdx:    h.FragIdx,
		FragCnt:    h.FragCnt,
		MsgID:      h.MsgID,
		PayloadLen: payloadLen,
	}
}

// deriveNonce builds the 12-byte CCM nonce exactly per §4.3's byte
// layout, which is little-endian for each multi-byte sub-field
// (distinct from the header's own big-endian wire order).
func deriveNonce(h HeaderFields) [NonceSize]byte {
	var n [NonceSize]byte
	n[0] = h.Ver
	n[1] = h.Flags
	n[2] = byte(h.FragIdx)
	n[3] = byte(h.FragIdx >> 8)
	n[4] = byte(h.FragCnt)
	n[5] = byte(h.FragCnt >> 8)
	n[6] = byte(h.MsgID)
	n[7] = byte(h.MsgID >> 8)
	n[8] = byte(h.MsgID >> 16)
	n[9] = byte(h.MsgID >> 24)
	n[10] = byte(h.PayloadLen)
	n[11] = byte(h.PayloadLen >> 8)
	return n
}

// Encrypt seals plaintext under the key store's active KID, returning
// the wire layout [KID ‖ ciphertext ‖ tag] (§4.3). aad is the encoded
// header with both CRC fields zeroed.
func Encrypt(ks KeyStore, h HeaderFields, plaintext, aad []byte) ([]byte, error) {
	kid, ok := ks.ActiveKID()
	if !ok {
		return nil, ErrUnknownKID
	}
	key, ok := ks.GetKey(kid)
	if !ok {
		return nil, ErrUnknownKID
	}
	nonce := deriveNonce(h)
	sealed, err := ccmEncrypt(key, nonce, plaintext, aad, TagSize)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1+len(sealed))
	out[0] = kid
	copy(out[1:], sealed)
	return out, nil
}

// Decrypt opens a [KID ‖ ciphertext ‖ tag] blob. Each failure has its
// own sentinel error: ErrShortCiphertext for input shorter than
// KID+tag, ErrUnknownKID for an unregistered KID, and ErrAuthFailed
// for a tag mismatch. The RX pipeline counts all three alike under
// dec_fail_tag (§4.3, §7).
func Decrypt(ks KeyStore, h HeaderFields, wire, aad []byte) ([]byte, error) {
	if len(wire) < 1+TagSize {
		return nil, ErrShortCiphertext
	}
	kid := wire[0]
	key, ok := ks.GetKey(kid)
	if !ok {
		return nil, ErrUnknownKID
	}
	nonce := deriveNonce(h)
	plaintext, err := ccmDecrypt(key, nonce, wire[1:], aad, TagSize)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
