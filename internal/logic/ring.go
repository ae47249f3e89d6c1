package logic

// ring is a fixed-capacity FIFO of gas readings. Once full, each push
// overwrites the oldest value. Not safe for concurrent use.
type ring struct {
	buf      []float64
	capacity int
	head     int // next write position
	count    int
}

func newRing(capacity int) *ring {
	return &ring{
		buf:      make([]float64, capacity),
		capacity: capacity,
	}
}

func (r *ring) push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
}

func (r *ring) len() int {
	return r.count
}

// mean returns the arithmetic mean of the stored values, or 0 when empty.
func (r *ring) mean() float64 {
	if r.count == 0 {
		return 0
	}
	var sum float64
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		sum += r.buf[(start+i)%r.capacity]
	}
	return sum / float64(r.count)
}
