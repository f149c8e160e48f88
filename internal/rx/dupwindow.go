package rx

// dupWindow is the insertion-ordered, fixed-capacity duplicate
// suppression window (§4.8, §9 design note: "an ordered ring plus a
// set; or a fixed-capacity linked hash set"). On overflow the oldest
// id is evicted from both the order slice and the membership set.
type dupWindow struct {
	cap   int
	order []uint32
	seen  map[uint32]struct{}
}

func newDupWindow(cap int) *dupWindow {
	return &dupWindow{cap: cap, seen: make(map[uint32]struct{}, cap)}
}

func (d *dupWindow) Contains(id uint32) bool {
	_, ok := d.seen[id]
	return ok
}

// Insert adds id, evicting the oldest entry if the window is full.
// Inserting an id already present is a no-op (it doesn't move to the
// back — a message only completes reassembly once).
func (d *dupWindow) Insert(id uint32) {
	if d.Contains(id) {
		return
	}
	d.order = append(d.order, id)
	d.seen[id] = struct{}{}
	if len(d.order) > d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
}

func (d *dupWindow) Len() int { return len(d.order) }
