package mqtt

import "go.uber.org/zap"

// pending is a serialized publish held back while the broker is
// unreachable.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of pending publishes. When full the
// oldest entry is overwritten. Not safe for concurrent use.
type outbox struct {
	items   []pending
	next    int // write position
	size    int
	dropped int // overwritten since the last drain
	log     *zap.Logger
}

func newOutbox(capacity int, log *zap.Logger) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{items: make([]pending, capacity), log: log}
}

func (o *outbox) push(p pending) {
	if o.size == len(o.items) {
		if o.dropped == 0 {
			o.log.Warn("mqtt outbox full, dropping oldest", zap.Int("capacity", len(o.items)))
		}
		o.dropped++
	} else {
		o.size++
	}
	o.items[o.next] = p
	o.next = (o.next + 1) % len(o.items)
}

// drain returns the held publishes oldest first and empties the outbox.
func (o *outbox) drain() []pending {
	if o.size == 0 {
		return nil
	}
	out := make([]pending, 0, o.size)
	first := (o.next - o.size + len(o.items)) % len(o.items)
	for i := 0; i < o.size; i++ {
		out = append(out, o.items[(first+i)%len(o.items)])
	}
	if o.dropped > 0 {
		o.log.Warn("mqtt outbox overflowed while disconnected", zap.Int("dropped", o.dropped))
	}
	o.next, o.size, o.dropped = 0, 0, 0
	return out
}

func (o *outbox) len() int {
	return o.size
}
