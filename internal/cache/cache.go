// Package cache implements the message cache and scheduler (§4.5):
// three per-QoS FIFOs, an in-flight map, and an archive list, all
// mutated only from the TX pipeline's tick() on the event-loop thread
// (§5) — no internal locking, by design.
package cache

// QoS is the outgoing message's priority class.
type QoS int

const (
	High QoS = iota
	Normal
	Low
)

// SchedPolicy selects how peek chooses among the three queues.
type SchedPolicy int

const (
	Strict SchedPolicy = iota
	Weighted421
)

// Capacity caps (§4.5).
const (
	TotalCapBytes  = 48 * 1024
	HighCapBytes   = 24 * 1024
	NormalCapBytes = 16 * 1024
	LowCapBytes    = 12 * 1024
	MaxMessages    = 256
)

// weightedSlots is the 7-slot weighted-4:2:1 round-robin pattern
// (§4.5): four High, two Normal, one Low.
var weightedSlots = [7]QoS{High, High, High, High, Normal, Normal, Low}

// OutgoingMessage is an application-enqueued message awaiting
// transmission or already acknowledged/archived (§3).
type OutgoingMessage struct {
	ID          uint32
	AckRequired bool
	QoS         QoS
	Data        []byte
}

// Cache holds the three queues, the in-flight map and the archive
// list, and allocates monotonic msg_ids.
type Cache struct {
	policy SchedPolicy

	queues map[QoS][]*OutgoingMessage
	bytes  map[QoS]int

	inflight map[uint32]*OutgoingMessage
	archive  []*OutgoingMessage

	nextID     uint32
	slotCursor int
}

func New(policy SchedPolicy) *Cache {
	return &Cache{
		policy: policy,
		queues: map[QoS][]*OutgoingMessage{
			High:   nil,
			Normal: nil,
			Low:    nil,
		},
		bytes:    map[QoS]int{High: 0, Normal: 0, Low: 0},
		inflight: make(map[uint32]*OutgoingMessage),
		nextID:   1,
	}
}

func (c *Cache) totalBytes() int {
	return c.bytes[High] + c.bytes[Normal] + c.bytes[Low]
}

func (c *Cache) totalMessages() int {
	n := len(c.inflight) + len(c.archive)
	for _, q := range c.queues {
		n += len(q)
	}
	return n
}

func (c *Cache) qosCapBytes(qos QoS) int {
	switch qos {
	case High:
		return HighCapBytes
	case Normal:
		return NormalCapBytes
	default:
		return LowCapBytes
	}
}

// Enqueue appends a new message, allocating a globally monotonic
// msg_id. Returns 0 (and allocates no id) if any capacity cap would be
// exceeded — msg_id allocation itself never reuses an id even when
// the enqueue is rejected for a LATER message, since ids are only ever
// handed out on acceptance (§8: "ids issued by enqueue are strictly
// increasing, never repeated, even across dropLast or ARQ failure").
func (c *Cache) Enqueue(qos QoS, data []byte, ackRequired bool) uint32 {
	n := len(data)
	if c.totalBytes()+n > TotalCapBytes {
		return 0
	}
	if c.bytes[qos]+n > c.qosCapBytes(qos) {
		return 0
	}
	if c.totalMessages()+1 > MaxMessages {
		return 0
	}

	id := c.nextID
	c.nextID++

	msg := &OutgoingMessage{ID: id, AckRequired: ackRequired, QoS: qos, Data: data}
	c.queues[qos] = append(c.queues[qos], msg)
	c.bytes[qos] += n
	return id
}

// Peek selects the next message per the configured scheduling policy,
// moves it into the in-flight map, and drains it from its queue.
// Returns nil if every queue is empty.
func (c *Cache) Peek() *OutgoingMessage {
	var qos QoS
	var ok bool
	switch c.policy {
	case Strict:
		qos, ok = c.peekStrict()
	default:
		qos, ok = c.peekWeighted()
	}
	if !ok {
		return nil
	}

	q := c.queues[qos]
	msg := q[0]
	c.queues[qos] = q[1:]
	c.bytes[qos] -= len(msg.Data)
	c.inflight[msg.ID] = msg
	return msg
}

func (c *Cache) peekStrict() (QoS, bool) {
	for _, qos := range [3]QoS{High, Normal, Low} {
		if len(c.queues[qos]) > 0 {
			return qos, true
		}
	}
	return High, false
}

func (c *Cache) peekWeighted() (QoS, bool) {
	anyNonEmpty := false
	for _, q := range c.queues {
		if len(q) > 0 {
			anyNonEmpty = true
			break
		}
	}
	if !anyNonEmpty {
		return High, false
	}

	for i := 0; i < len(weightedSlots); i++ {
		slot := weightedSlots[(c.slotCursor+i)%len(weightedSlots)]
		if len(c.queues[slot]) > 0 {
			c.slotCursor = (c.slotCursor + i + 1) % len(weightedSlots)
			return slot, true
		}
	}
	return High, false
}

// MarkAcked removes id from the in-flight map and from the archive
// (a message can only be in one of the two, but both are checked so
// callers don't need to know which).
func (c *Cache) MarkAcked(id uint32) {
	delete(c.inflight, id)
	for i, m := range c.archive {
		if m.ID == id {
			c.archive = append(c.archive[:i], c.archive[i+1:]...)
			break
		}
	}
}

// Archive moves an in-flight message (identified by id) to the
// archive list on ARQ exhaustion, retaining its bytes for restore.
func (c *Cache) Archive(id uint32) {
	msg, ok := c.inflight[id]
	if !ok {
		return
	}
	delete(c.inflight, id)
	c.archive = append(c.archive, msg)
}

// RestoreArchived returns up to k archived messages to the head of
// their original queue, preserving msg_id, and removes them from the
// archive. Restoration is only ever called after a positive ACK event
// removed an in-flight entry (§3 invariant) — callers, not Cache,
// enforce that ordering.
func (c *Cache) RestoreArchived(k int) []*OutgoingMessage {
	if k > len(c.archive) {
		k = len(c.archive)
	}
	restored := c.archive[:k]
	c.archive = c.archive[k:]

	for _, msg := range restored {
		c.queues[msg.QoS] = append([]*OutgoingMessage{msg}, c.queues[msg.QoS]...)
		c.bytes[msg.QoS] += len(msg.Data)
	}
	return restored
}

// InflightLen is the number of messages currently awaiting ACK.
func (c *Cache) InflightLen() int {
	return len(c.inflight)
}

// ArchiveLen is the number of archived messages awaiting restore.
func (c *Cache) ArchiveLen() int {
	return len(c.archive)
}
