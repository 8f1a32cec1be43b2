// Package passes predicts when a satellite is visible from a ground site.
// The resulting timestamps are the candidate collection times fed into the
// window optimizer.
package passes

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/collection-planner/model"
)

// earthRadiusKm is the mean Earth radius used for the spherical
// site-position model (kilometres).
const earthRadiusKm = 6371.0

// DefaultStep is the sampling interval used when the caller passes a
// non-positive step.
const DefaultStep = time.Minute

// Site is a ground observation site in geodetic coordinates.
type Site struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKm   float64
}

// Validate checks the site coordinates are on the globe.
func (s Site) Validate() error {
	if s.LatitudeDeg < -90 || s.LatitudeDeg > 90 {
		return model.Validationf("site latitude %v out of range [-90, 90]", s.LatitudeDeg)
	}
	if s.LongitudeDeg < -180 || s.LongitudeDeg > 180 {
		return model.Validationf("site longitude %v out of range [-180, 180]", s.LongitudeDeg)
	}
	if s.AltitudeKm < 0 {
		return model.Validationf("site altitude %v must be non-negative", s.AltitudeKm)
	}
	return nil
}

// Predictor propagates a satellite from a TLE with SGP4 and reports the
// sample times at which it clears a site's minimum elevation.
type Predictor struct {
	sat satellite.Satellite
}

// NewPredictor constructs a predictor from TLE lines.
func NewPredictor(line1, line2 string) (*Predictor, error) {
	if line1 == "" || line2 == "" {
		return nil, model.Validationf("both TLE lines are required")
	}
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &Predictor{sat: sat}, nil
}

// PredictTimes samples the interval [start, end] at the given step and
// returns, in ascending order, every sample time at which the satellite sits
// at or above minElevationDeg as seen from site. A non-positive step uses
// DefaultStep.
func (p *Predictor) PredictTimes(site Site, start, end time.Time, step time.Duration, minElevationDeg float64) ([]time.Time, error) {
	if err := site.Validate(); err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, model.Validationf("prediction start %v must be before end %v", start, end)
	}
	if minElevationDeg < -90 || minElevationDeg > 90 {
		return nil, model.Validationf("minimum elevation %v out of range [-90, 90]", minElevationDeg)
	}
	if step <= 0 {
		step = DefaultStep
	}

	sitePos := siteECEF(site)
	var times []time.Time
	for t := start; !t.After(end); t = t.Add(step) {
		satPos := p.positionECEF(t)
		if elevationDegrees(sitePos, satPos) >= minElevationDeg {
			times = append(times, t)
		}
	}
	return times, nil
}

// positionECEF propagates the satellite to t and rotates the ECI position
// into the Earth-fixed frame. All values in kilometres.
func (p *Predictor) positionECEF(t time.Time) vec3 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)
	return vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
}

// siteECEF converts geodetic site coordinates to an ECEF vector on a
// spherical Earth, which is accurate enough for elevation thresholding.
func siteECEF(site Site) vec3 {
	lat := site.LatitudeDeg * math.Pi / 180.0
	lon := site.LongitudeDeg * math.Pi / 180.0
	r := earthRadiusKm + site.AltitudeKm
	return vec3{
		X: r * math.Cos(lat) * math.Cos(lon),
		Y: r * math.Cos(lat) * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

// vec3 is an ECEF-style vector in kilometres.
type vec3 struct {
	X, Y, Z float64
}

func (v vec3) sub(other vec3) vec3 {
	return vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

func (v vec3) dot(other vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

func (v vec3) norm() float64 {
	return math.Sqrt(v.dot(v))
}

// elevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func elevationDegrees(observer, target vec3) float64 {
	v := target.sub(observer)
	vNorm := v.norm()
	if vNorm == 0 {
		return 90
	}

	r := observer.norm()
	if r == 0 {
		return 90
	}
	zenith := vec3{
		X: observer.X / r,
		Y: observer.Y / r,
		Z: observer.Z / r,
	}

	cosGamma := v.dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	gammaDeg := math.Acos(cosGamma) * 180.0 / math.Pi

	return 90.0 - gammaDeg
}
