package mqtt

import (
	"testing"

	"go.uber.org/zap"
)

func payloads(ps []pending) []byte {
	var out []byte
	for _, p := range ps {
		out = append(out, p.payload[0])
	}
	return out
}

func TestOutboxDrainEmpty(t *testing.T) {
	o := newOutbox(4, zap.NewNop())
	if got := o.drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestOutboxKeepsOrder(t *testing.T) {
	o := newOutbox(4, zap.NewNop())
	for i := 0; i < 3; i++ {
		o.push(pending{topic: "t", payload: []byte{byte(i)}})
	}
	if o.len() != 3 {
		t.Fatalf("len: got %d, want 3", o.len())
	}

	got := payloads(o.drain())
	want := []byte{0, 1, 2}
	if string(got) != string(want) {
		t.Errorf("drain order: got %v, want %v", got, want)
	}
	if o.len() != 0 {
		t.Errorf("len after drain: got %d, want 0", o.len())
	}
}

func TestOutboxOverwritesOldest(t *testing.T) {
	o := newOutbox(3, zap.NewNop())
	for i := 0; i < 7; i++ {
		o.push(pending{topic: "t", payload: []byte{byte(i)}})
	}
	if o.dropped != 4 {
		t.Errorf("dropped: got %d, want 4", o.dropped)
	}

	got := payloads(o.drain())
	want := []byte{4, 5, 6}
	if string(got) != string(want) {
		t.Errorf("drain after overflow: got %v, want %v", got, want)
	}
	if o.dropped != 0 {
		t.Errorf("dropped not reset by drain: %d", o.dropped)
	}
}

func TestOutboxReuseAfterDrain(t *testing.T) {
	o := newOutbox(3, zap.NewNop())
	o.push(pending{payload: []byte{1}})
	o.push(pending{payload: []byte{2}})
	o.drain()

	for i := 10; i < 13; i++ {
		o.push(pending{payload: []byte{byte(i)}})
	}
	got := payloads(o.drain())
	want := []byte{10, 11, 12}
	if string(got) != string(want) {
		t.Errorf("second cycle: got %v, want %v", got, want)
	}
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(2, zap.NewNop())
	o.push(pending{topic: "energy/fancoil/system", payload: []byte(`{"x":1}`), qos: 1, retained: true})

	got := o.drain()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	p := got[0]
	if p.topic != "energy/fancoil/system" || string(p.payload) != `{"x":1}` || p.qos != 1 || !p.retained {
		t.Errorf("fields not preserved: %+v", p)
	}
}

func TestOutboxMinimumCapacity(t *testing.T) {
	o := newOutbox(0, zap.NewNop())
	o.push(pending{payload: []byte{1}})
	o.push(pending{payload: []byte{2}})
	if got := payloads(o.drain()); string(got) != string([]byte{2}) {
		t.Errorf("got %v, want [2]", got)
	}
}
