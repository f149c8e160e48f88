package rx

// assembler holds the in-progress state for one fragmented incoming
// message (§3 "Assembler state"): one slot per fragment, filled as
// fragments arrive in any order, completing when every slot is
// non-nil.
type assembler struct {
	msgID       uint32
	fragCnt     int
	frags       [][]byte
	received    int
	firstSeenMs int64
	totalBytes  int
	ackRequired bool
}

func newAssembler(msgID uint32, fragCnt int, nowMs int64) *assembler {
	return &assembler{
		msgID:       msgID,
		fragCnt:     fragCnt,
		frags:       make([][]byte, fragCnt),
		firstSeenMs: nowMs,
	}
}

// Store places data at fragIdx. It returns false if doing so would
// push the message past perMsgCap, in which case the fragment is
// rejected and the assembler is unchanged (the caller drops the whole
// assembler on this signal — §4.8 "per-message cap 8 KiB").
func (a *assembler) Store(fragIdx int, data []byte, ackReq bool, perMsgCap int) bool {
	if fragIdx < 0 || fragIdx >= len(a.frags) {
		return false
	}
	if a.frags[fragIdx] != nil {
		return true // duplicate fragment within the same message, harmless
	}
	if a.totalBytes+len(data) > perMsgCap {
		return false
	}
	a.frags[fragIdx] = data
	a.totalBytes += len(data)
	a.received++
	if ackReq {
		a.ackRequired = true
	}
	return true
}

func (a *assembler) Complete() bool { return a.received == a.fragCnt }

// Concat returns the fragments joined in frag_idx order. Only valid
// once Complete reports true.
func (a *assembler) Concat() []byte {
	out := make([]byte, 0, a.totalBytes)
	for _, f := range a.frags {
		out = append(out, f...)
	}
	return out
}
