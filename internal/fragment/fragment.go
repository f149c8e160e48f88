// Package fragment splits a message into on-air-sized fragments
// (§4.4). It knows nothing about AEAD, channel coding or headers —
// those are the formatter's job (internal/tx) — it only decides where
// fragment boundaries fall and which header flags each one carries.
package fragment

// Flag bit values, matching internal/frame so callers can pass a
// fragment's Flags straight into frame.Header without translation.
const (
	FlagAckReq byte = 0x01
	FlagFrag   byte = 0x08
	FlagLast   byte = 0x10
)

// Fragment is one slice of a split message, already carrying the
// flag bits the header will need.
type Fragment struct {
	MsgID    uint32
	FragIdx  uint16
	FragCnt  uint16
	Flags    byte
	Data     []byte
}

// Split divides data into fragments of at most payloadMax bytes.
// ACK_REQ is set on every fragment when ackRequired; FRAG is set
// whenever more than one fragment results; LAST marks the final one.
// Empty input yields no fragments (§4.4: "Empty input yields no
// fragments").
func Split(msgID uint32, data []byte, ackRequired bool, payloadMax int) []Fragment {
	if len(data) == 0 || payloadMax <= 0 {
		return nil
	}

	fragCnt := (len(data) + payloadMax - 1) / payloadMax
	frags := make([]Fragment, 0, fragCnt)

	var baseFlags byte
	if ackRequired {
		baseFlags |= FlagAckReq
	}
	if fragCnt > 1 {
		baseFlags |= FlagFrag
	}

	for i := 0; i < fragCnt; i++ {
		start := i * payloadMax
		end := start + payloadMax
		if end > len(data) {
			end = len(data)
		}

		flags := baseFlags
		if i == fragCnt-1 {
			flags |= FlagLast
		}

		chunk := make([]byte, end-start)
		copy(chunk, data[start:end])

		frags = append(frags, Fragment{
			MsgID:   msgID,
			FragIdx: uint16(i),
			FragCnt: uint16(fragCnt),
			Flags:   flags,
			Data:    chunk,
		})
	}
	return frags
}
