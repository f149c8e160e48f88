// Package tx implements the transmit pipeline (§4.6, §4.7): the
// packet formatter that turns an outgoing message into wire-ready
// frames, and the pipeline that schedules their emission under ARQ,
// burst/window control and backoff.
package tx

import (
	"errors"

	"github.com/kgustafson/satlink/internal/aead"
	"github.com/kgustafson/satlink/internal/cache"
	"github.com/kgustafson/satlink/internal/channel"
	"github.com/kgustafson/satlink/internal/fragment"
	"github.com/kgustafson/satlink/internal/frame"
)

// MTU is the on-air frame budget the formatter fragments against (§6).
const MTU = 255

// AEADOverhead is the KID byte plus CCM tag the formatter reserves
// from the effective payload cap whenever encryption is active: the
// cap is MTU − frame.Size (16) − 9 when encryption is ready, else
// MTU − frame.Size.
const AEADOverhead = 1 + aead.TagSize

// ErrNoMessage is returned by Prepare when msg is nil.
var ErrNoMessage = errors.New("tx: nil message")

// PreparedFrame is one on-air-ready fragment produced by Prepare.
type PreparedFrame struct {
	Header frame.Header
	Bytes  []byte
}

// Formatter runs §4.7's prepare() pipeline: fragment, AEAD, channel
// code, pilot, dual-CRC header, optional header duplication.
type Formatter struct {
	codec     *channel.Codec
	keyStore  aead.KeyStore
	headerDup bool
}

func NewFormatter(codec *channel.Codec, keyStore aead.KeyStore, headerDup bool) *Formatter {
	return &Formatter{codec: codec, keyStore: keyStore, headerDup: headerDup}
}

func (f *Formatter) SetHeaderDup(v bool) { f.headerDup = v }

// encryptionReady reports whether the formatter has an active KID to
// encrypt under; Prepare falls back to unencrypted frames when it
// doesn't, exactly as the spec's "if enc-ready" qualifier implies.
func (f *Formatter) encryptionReady() bool {
	if f.keyStore == nil {
		return false
	}
	_, ok := f.keyStore.ActiveKID()
	return ok
}

func (f *Formatter) effectivePayloadMax() int {
	max := MTU - frame.Size
	if f.encryptionReady() {
		max -= AEADOverhead
	}
	return max
}

// Prepare fragments msg and formats each fragment into a complete
// on-air frame (§4.7). A fragment whose AEAD encrypt call fails is
// skipped — not retried, not fatal to the others — per §7's "AEAD
// encrypt fail ... fragment skipped; message advances".
func (f *Formatter) Prepare(msg *cache.OutgoingMessage, encFailed *int) ([]PreparedFrame, error) {
	if msg == nil {
		return nil, ErrNoMessage
	}

	payloadMax := f.effectivePayloadMax()
	frags := fragment.Split(msg.ID, msg.Data, msg.AckRequired, payloadMax)

	enc := f.encryptionReady()
	out := make([]PreparedFrame, 0, len(frags))
	for _, frag := range frags {
		pf, ok := f.formatOne(frag, enc)
		if !ok {
			if encFailed != nil {
				*encFailed++
			}
			continue
		}
		out = append(out, pf)
	}
	return out, nil
}

func (f *Formatter) formatOne(frag fragment.Fragment, enc bool) (PreparedFrame, bool) {
	flags := frag.Flags
	if enc {
		flags |= frame.FlagEnc
	}

	// nonceHdr carries the AEAD layer's notion of PayloadLen — the
	// length of the payload as it exists before channel coding — so
	// the RX pipeline can reconstruct the identical AAD/nonce once it
	// has inverted channel coding but before it has decrypted
	// anything (see frame.EncodeAAD's doc comment). When encryption
	// is active that's the wire-layout length (KID ‖ ciphertext ‖
	// tag), which is computable up front without running the cipher
	// first, since CCM ciphertext length always equals plaintext
	// length.
	preChannel := frag.Data
	nonceHdr := frame.Header{
		Flags:      flags,
		MsgID:      frag.MsgID,
		FragIdx:    frag.FragIdx,
		FragCnt:    frag.FragCnt,
		PayloadLen: uint16(len(frag.Data)),
	}

	if enc {
		nonceHdr.PayloadLen = uint16(len(frag.Data) + AEADOverhead)
		aad := frame.EncodeAAD(nonceHdr)
		wire, err := aead.Encrypt(f.keyStore, aead.HeaderFieldsFromFrame(nonceHdr, nonceHdr.PayloadLen), frag.Data, aad)
		if err != nil {
			return PreparedFrame{}, false
		}
		preChannel = wire
	}

	coded := f.codec.Encode(frag.MsgID, preChannel)

	finalHdr := nonceHdr
	finalHdr.PayloadLen = uint16(len(coded))

	hdrBuf := frame.Encode(finalHdr, coded)
	onAir := frame.BuildFrame(hdrBuf, f.headerDup, coded)

	return PreparedFrame{Header: finalHdr, Bytes: onAir}, true
}
