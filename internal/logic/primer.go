package logic

import (
	"math"
	"time"
)

// BaselineSamples is the number of stable gas readings averaged into the baseline.
const BaselineSamples = 50

const (
	// humidityBaseline is the optimal indoor relative humidity.
	humidityBaseline = 40.0
	// humidityWeighting sets the humidity:gas balance of the score (25:75).
	humidityWeighting = 0.25
)

// Primer builds the gas-resistance baseline during the sensor burn-in and
// scores air quality against it once ready.
type Primer struct {
	burnIn    time.Duration
	startedAt time.Time
	history   *ring
	baseline  float64
	ready     bool
	last      Sample
	seen      bool
}

// NewPrimer creates a primer whose burn-in period starts at startedAt.
func NewPrimer(burnIn time.Duration, startedAt time.Time) *Primer {
	return &Primer{
		burnIn:    burnIn,
		startedAt: startedAt,
		history:   newRing(BaselineSamples),
	}
}

// Ingest records a raw sample. Before the baseline is ready, heat-stable
// gas readings are collected. The baseline is fixed once the burn-in has
// elapsed and at least BaselineSamples stable readings exist; if the
// burn-in ends with fewer, collection continues until the count is met.
func (p *Primer) Ingest(s Sample) {
	p.last = s
	p.seen = true

	if p.ready {
		return
	}

	if s.HeatStable {
		p.history.push(s.GasResistance)
	}

	if s.Time.Sub(p.startedAt) < p.burnIn {
		return
	}

	if p.history.len() >= BaselineSamples {
		p.baseline = p.history.mean()
		p.ready = true
	}
}

// IsReady reports whether the gas baseline has been computed.
func (p *Primer) IsReady() bool {
	return p.ready
}

// Baseline returns the gas baseline and whether it is set.
func (p *Primer) Baseline() (float64, bool) {
	return p.baseline, p.ready
}

// Collected returns the number of stable samples currently held for the baseline.
func (p *Primer) Collected() int {
	return p.history.len()
}

// EstimateAirQuality scores the most recent sample. The result is unknown
// until the baseline is ready, and for samples whose heater was not stable.
func (p *Primer) EstimateAirQuality() AirQuality {
	if !p.ready || !p.seen || !p.last.HeatStable {
		return UnknownAirQuality
	}
	return AirQuality{Score: airQualityScore(p.baseline, p.last.GasResistance, p.last.Humidity), Known: true}
}

func airQualityScore(baseline, gas, humidity float64) int {
	humOffset := humidity - humidityBaseline

	var humScore float64
	if humOffset > 0 {
		humScore = (100 - humidityBaseline - humOffset) / (100 - humidityBaseline) * (humidityWeighting * 100)
	} else {
		humScore = (humidityBaseline + humOffset) / humidityBaseline * (humidityWeighting * 100)
	}

	gasOffset := baseline - gas
	gasScore := 100 - humidityWeighting*100
	if gasOffset > 0 {
		gasScore = gas / baseline * (100 - humidityWeighting*100)
	}

	return int(math.Floor(humScore + gasScore))
}
