package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

// This file hand-rolls RFC 3610 Counter-with-CBC-MAC over crypto/aes:
// AES-CTR for confidentiality, AES-CBC-MAC for authentication. The Go
// standard library has no CCM mode (there is no `cipher.NewCCM`,
// unlike the GCM/CFB/CTR families it does ship), and the retrieved
// corpus carries no independent third-party CCM package either
// (DESIGN.md records the search), so this follows the RFC directly —
// the same "textbook algorithm by hand" texture the channel package
// already uses for its Hamming(12,8)/Reed-Solomon FEC.

// ccmL is the RFC's length-field size, fixed by this package's fixed
// 12-byte nonce: L = 15 - NonceSize = 3 bytes, good for payloads up to
// 2^24-1 bytes — far beyond this link's MTU-bounded fragments.
const ccmL = 15 - NonceSize

var errCCMMessageTooLong = errors.New("aead: plaintext too long for ccm length field")

// ccmEncrypt seals plaintext under key/nonce, authenticating aad, and
// returns ciphertext‖tag (tag is tagSize bytes).
func ccmEncrypt(key [KeySize]byte, nonce [NonceSize]byte, plaintext, aad []byte, tagSize int) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	if len(plaintext) >= 1<<(8*ccmL) {
		return nil, errCCMMessageTooLong
	}

	mac := ccmCBCMAC(block, nonce, plaintext, aad, tagSize)

	s0 := ccmCounterBlock(nonce, 0)
	block.Encrypt(s0[:], s0[:])

	ciphertext := make([]byte, len(plaintext)+tagSize)
	ccmCTRXOR(block, nonce, plaintext, ciphertext)

	tag := ciphertext[len(plaintext):]
	subtle.XORBytes(tag, mac, s0[:tagSize])
	return ciphertext, nil
}

// ccmDecrypt opens ciphertext‖tag under key/nonce, verifying aad, and
// returns the plaintext or an authentication error.
func ccmDecrypt(key [KeySize]byte, nonce [NonceSize]byte, sealed, aad []byte, tagSize int) ([]byte, error) {
	if len(sealed) < tagSize {
		return nil, ErrAuthFailed
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	ciphertext := sealed[:len(sealed)-tagSize]
	gotTag := sealed[len(sealed)-tagSize:]

	if len(ciphertext) >= 1<<(8*ccmL) {
		return nil, errCCMMessageTooLong
	}

	plaintext := make([]byte, len(ciphertext))
	ccmCTRXOR(block, nonce, ciphertext, plaintext)

	s0 := ccmCounterBlock(nonce, 0)
	block.Encrypt(s0[:], s0[:])

	mac := ccmCBCMAC(block, nonce, plaintext, aad, tagSize)
	wantTag := make([]byte, tagSize)
	subtle.XORBytes(wantTag, mac, s0[:tagSize])

	if subtle.ConstantTimeCompare(wantTag, gotTag) != 1 {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// ccmCounterBlock builds the 16-byte A_i counter block: flags byte
// carrying L-1 (no Adata, no M field — both reserved-zero for counter
// blocks per RFC 3610 §2.3), the nonce, and the big-endian counter in
// the trailing ccmL bytes.
func ccmCounterBlock(nonce [NonceSize]byte, counter uint64) [16]byte {
	var blk [16]byte
	blk[0] = byte(ccmL - 1)
	copy(blk[1:1+NonceSize], nonce[:])
	putUintCCM(blk[1+NonceSize:], counter, ccmL)
	return blk
}

// ccmCTRXOR XORs src with the AES-CTR keystream starting at counter 1
// (counter 0 is reserved to mask the MAC tag) into dst.
func ccmCTRXOR(block cipher.Block, nonce [NonceSize]byte, src, dst []byte) {
	var ks [16]byte
	counter := uint64(1)
	for len(src) > 0 {
		a := ccmCounterBlock(nonce, counter)
		block.Encrypt(ks[:], a[:])
		n := len(src)
		if n > 16 {
			n = 16
		}
		subtle.XORBytes(dst[:n], src[:n], ks[:n])
		src = src[n:]
		dst = dst[n:]
		counter++
	}
}

// ccmCBCMAC computes the RFC 3610 CBC-MAC over B0 ‖ (length-prefixed
// AAD, zero-padded to a block boundary) ‖ (payload, zero-padded),
// returning the first tagSize bytes.
func ccmCBCMAC(block cipher.Block, nonce [NonceSize]byte, payload, aad []byte, tagSize int) []byte {
	var b0 [16]byte
	var flags byte
	if len(aad) > 0 {
		flags |= 1 << 6
	}
	flags |= byte((tagSize-2)/2) << 3
	flags |= byte(ccmL - 1)
	b0[0] = flags
	copy(b0[1:1+NonceSize], nonce[:])
	putUintCCM(b0[1+NonceSize:], uint64(len(payload)), ccmL)

	var y [16]byte
	block.Encrypt(y[:], b0[:])

	if len(aad) > 0 {
		for _, blk := range ccmBlocks(ccmEncodeAADLen(aad)) {
			xorBlock(&y, blk)
			block.Encrypt(y[:], y[:])
		}
	}
	for _, blk := range ccmBlocks(payload) {
		xorBlock(&y, blk)
		block.Encrypt(y[:], y[:])
	}
	return y[:tagSize]
}

// ccmEncodeAADLen prefixes aad with its RFC 3610 §2.2 length encoding.
// A 2-byte big-endian length covers every AAD this link ever builds
// (a zero-CRC 16-byte header), so the 6-byte and 10-byte escape
// encodings for larger lengths aren't implemented.
func ccmEncodeAADLen(aad []byte) []byte {
	out := make([]byte, 2+len(aad))
	binary.BigEndian.PutUint16(out, uint16(len(aad)))
	copy(out[2:], aad)
	return out
}

// ccmBlocks splits data into zero-padded 16-byte blocks.
func ccmBlocks(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	n := (len(data) + 15) / 16
	blocks := make([][]byte, n)
	padded := data
	if len(data)%16 != 0 {
		padded = make([]byte, n*16)
		copy(padded, data)
	}
	for i := 0; i < n; i++ {
		blocks[i] = padded[i*16 : i*16+16]
	}
	return blocks
}

func xorBlock(y *[16]byte, blk []byte) {
	for i := 0; i < 16; i++ {
		y[i] ^= blk[i]
	}
}

func putUintCCM(dst []byte, v uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}
