// Package kalman implements the per-axis 1-D filters used to smooth raw GPS
// fixes. Latitude, longitude and altitude are filtered independently; there is
// no velocity state. Filter state lives for a single correction request and is
// re-seeded from the incoming measurement on the next one.
package kalman

// Default noise parameters. Positions are in degrees, altitude in metres.
const (
	DefaultProcessNoisePos     = 1e-3
	DefaultMeasurementNoisePos = 1e-2
	DefaultProcessNoiseAlt     = 1e-2
	DefaultMeasurementNoiseAlt = 2.0
)

// Filter is a single-axis scalar Kalman filter.
type Filter struct {
	x           float64 // state estimate
	p           float64 // estimate covariance
	q           float64 // process noise
	r           float64 // default measurement noise
	initialized bool
}

// NewFilter builds a filter with the given process and measurement noise.
func NewFilter(processNoise, measurementNoise float64) *Filter {
	return &Filter{q: processNoise, r: measurementNoise}
}

// Initialized reports whether the filter has consumed a measurement.
func (f *Filter) Initialized() bool { return f.initialized }

// Estimate returns the current state estimate.
func (f *Filter) Estimate() float64 { return f.x }

// Covariance returns the current estimate covariance.
func (f *Filter) Covariance() float64 { return f.p }

// Seed sets the state directly, as done for the first fix of a request or
// when carrying over a previously corrected coordinate.
func (f *Filter) Seed(z float64) {
	f.x = z
	f.p = f.r
	f.initialized = true
}

// Update runs one predict/update cycle with the effective measurement noise r
// and returns the new estimate. The first call seeds the state instead.
func (f *Filter) Update(z, r float64) float64 {
	if !f.initialized {
		f.Seed(z)
		return f.x
	}

	// predict
	pPred := f.p + f.q

	// update
	k := pPred / (pPred + r)
	f.x = f.x + k*(z-f.x)
	f.p = (1 - k) * pPred
	return f.x
}

// PositionSmoother bundles the three axis filters for one participant.
type PositionSmoother struct {
	lat *Filter
	lon *Filter
	alt *Filter
}

// NewPositionSmoother builds a smoother with the default noise profile.
func NewPositionSmoother() *PositionSmoother {
	return &PositionSmoother{
		lat: NewFilter(DefaultProcessNoisePos, DefaultMeasurementNoisePos),
		lon: NewFilter(DefaultProcessNoisePos, DefaultMeasurementNoisePos),
		alt: NewFilter(DefaultProcessNoiseAlt, DefaultMeasurementNoiseAlt),
	}
}

// Seed initializes the position axes, typically from the previously corrected
// coordinates. Altitude is seeded only when supplied.
func (s *PositionSmoother) Seed(lat, lon float64, alt *float64) {
	s.lat.Seed(lat)
	s.lon.Seed(lon)
	if alt != nil {
		s.alt.Seed(*alt)
	}
}

// Smooth filters one measurement. accuracy (metres, nil if unreported) scales
// the measurement noise up for poor fixes; confidence in [0.1, 1.0] scales it
// down for trusted ones. It returns the filtered coordinates, with altitude
// nil when the measurement carried none.
func (s *PositionSmoother) Smooth(lat, lon float64, alt, accuracy *float64, confidence float64) (float64, float64, *float64) {
	rPos := DefaultMeasurementNoisePos
	rAlt := DefaultMeasurementNoiseAlt
	if accuracy != nil && *accuracy > 0 {
		if v := *accuracy / 10; v > rPos {
			rPos = v
		}
		if v := *accuracy / 5; v > rAlt {
			rAlt = v
		}
	}
	if confidence < 0.1 {
		confidence = 0.1
	} else if confidence > 1.0 {
		confidence = 1.0
	}
	rPos /= confidence
	rAlt /= confidence

	outLat := s.lat.Update(lat, rPos)
	outLon := s.lon.Update(lon, rPos)

	var outAlt *float64
	if alt != nil {
		v := s.alt.Update(*alt, rAlt)
		outAlt = &v
	}
	return outLat, outLon, outAlt
}
