package logic

import (
	"math"
	"testing"
	"time"
)

var primeStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// feed ingests n samples one second apart starting at from, returning the
// time after the last sample.
func feed(p *Primer, from time.Time, n int, gas, humidity float64, stable bool) time.Time {
	t := from
	for i := 0; i < n; i++ {
		p.Ingest(Sample{Time: t, GasResistance: gas, Humidity: humidity, HeatStable: stable})
		t = t.Add(time.Second)
	}
	return t
}

func TestPrimerNotReadyDuringBurnIn(t *testing.T) {
	p := NewPrimer(5*time.Minute, primeStart)

	feed(p, primeStart, 120, 100000, 40, true)

	if p.IsReady() {
		t.Error("should not be ready before burn-in elapses")
	}
	if aq := p.EstimateAirQuality(); aq.Known {
		t.Errorf("air quality before ready: got %v, want unknown", aq)
	}
	if _, ok := p.Baseline(); ok {
		t.Error("baseline should be unset")
	}
}

func TestPrimerReadyAfterBurnIn(t *testing.T) {
	p := NewPrimer(60*time.Second, primeStart)

	next := feed(p, primeStart, 60, 100000, 40, true)
	if p.IsReady() {
		t.Fatal("should not be ready at 59s")
	}

	p.Ingest(Sample{Time: next, GasResistance: 100000, Humidity: 40, HeatStable: true})
	if !p.IsReady() {
		t.Fatal("should be ready once burn-in elapsed with enough samples")
	}

	baseline, ok := p.Baseline()
	if !ok || baseline != 100000 {
		t.Errorf("baseline: got %v (set=%v), want 100000", baseline, ok)
	}
}

func TestPrimerBaselineUsesLastFiftySamples(t *testing.T) {
	p := NewPrimer(100*time.Second, primeStart)

	// 50 early samples at 50k, then 50 at 150k: only the latter count.
	next := feed(p, primeStart, 50, 50000, 40, true)
	next = feed(p, next, 50, 150000, 40, true)
	p.Ingest(Sample{Time: next, GasResistance: 150000, Humidity: 40, HeatStable: true})

	baseline, ok := p.Baseline()
	if !ok {
		t.Fatal("expected baseline")
	}
	if baseline != 150000 {
		t.Errorf("baseline: got %v, want 150000", baseline)
	}
}

func TestPrimerIgnoresUnstableSamples(t *testing.T) {
	p := NewPrimer(10*time.Second, primeStart)

	next := feed(p, primeStart, 200, 1, 40, false)
	if p.IsReady() {
		t.Fatal("unstable samples must not build a baseline")
	}
	if p.Collected() != 0 {
		t.Errorf("collected: got %d, want 0", p.Collected())
	}

	feed(p, next, 10, 80000, 40, true)
	if p.Collected() != 10 {
		t.Errorf("collected: got %d, want 10", p.Collected())
	}
}

func TestPrimerWaitsForFiftySamplesPastBurnIn(t *testing.T) {
	p := NewPrimer(10*time.Second, primeStart)

	next := feed(p, primeStart, 30, 90000, 40, true)
	if p.IsReady() {
		t.Fatal("30 samples must not be enough")
	}

	next = feed(p, next, 19, 90000, 40, true)
	if p.IsReady() {
		t.Fatal("49 samples must not be enough")
	}

	feed(p, next, 1, 90000, 40, true)
	if !p.IsReady() {
		t.Fatal("expected ready at 50 samples")
	}
}

func TestPrimerBaselineInvariantOnceSet(t *testing.T) {
	p := NewPrimer(10*time.Second, primeStart)
	next := feed(p, primeStart, 60, 100000, 40, true)

	before, _ := p.Baseline()
	feed(p, next, 500, 20000, 40, true)
	after, _ := p.Baseline()

	if before != after {
		t.Errorf("baseline moved after ready: %v -> %v", before, after)
	}
}

func TestAirQualityScore(t *testing.T) {
	tests := []struct {
		name     string
		gas      float64
		humidity float64
		want     int
	}{
		// Perfect humidity, gas at or above baseline: 25 + 75.
		{"ideal", 100000, 40, 100},
		{"cleaner than baseline", 120000, 40, 100},
		// Gas at half baseline: 25 + 37.5.
		{"half gas", 50000, 40, 62},
		// Humidity 70%: offset 30, (60-30)/60*25 = 12.5.
		{"humid", 100000, 70, 87},
		// Humidity 20%: offset -20, (40-20)/40*25 = 12.5.
		{"dry", 100000, 20, 87},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPrimer(time.Second, primeStart)
			next := feed(p, primeStart, 50, 100000, 40, true)
			p.Ingest(Sample{Time: next, GasResistance: tt.gas, Humidity: tt.humidity, HeatStable: true})

			aq := p.EstimateAirQuality()
			if !aq.Known {
				t.Fatal("expected known air quality")
			}
			if aq.Score != tt.want {
				t.Errorf("score: got %d, want %d", aq.Score, tt.want)
			}
		})
	}
}

func TestAirQualityUnknownForUnstableSample(t *testing.T) {
	p := NewPrimer(time.Second, primeStart)
	next := feed(p, primeStart, 60, 100000, 40, true)
	p.Ingest(Sample{Time: next, GasResistance: 100000, Humidity: 40, HeatStable: false})

	if aq := p.EstimateAirQuality(); aq.Known {
		t.Errorf("got %v, want unknown", aq)
	}
}

func TestAirQualityStringAndJSON(t *testing.T) {
	if got := UnknownAirQuality.String(); got != "-" {
		t.Errorf("unknown String: got %q, want -", got)
	}
	b, _ := UnknownAirQuality.MarshalJSON()
	if string(b) != "null" {
		t.Errorf("unknown JSON: got %s, want null", b)
	}
	b, _ = AirQuality{Score: 87, Known: true}.MarshalJSON()
	if string(b) != "87" {
		t.Errorf("known JSON: got %s, want 87", b)
	}

	var a AirQuality
	if err := a.UnmarshalJSON([]byte("64")); err != nil || a != (AirQuality{Score: 64, Known: true}) {
		t.Errorf("decode 64: got %+v, %v", a, err)
	}
	if err := a.UnmarshalJSON([]byte("null")); err != nil || a.Known {
		t.Errorf("decode null: got %+v, %v", a, err)
	}
	if err := a.UnmarshalJSON([]byte(`"x"`)); err == nil {
		t.Error("decode string: expected error")
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	r := newRing(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		r.push(v)
	}
	if r.len() != 3 {
		t.Fatalf("len: got %d, want 3", r.len())
	}
	if got := r.mean(); math.Abs(got-4) > 1e-9 {
		t.Errorf("mean: got %v, want 4", got)
	}
}

func TestRingEmptyMean(t *testing.T) {
	if got := newRing(5).mean(); got != 0 {
		t.Errorf("mean: got %v, want 0", got)
	}
}
