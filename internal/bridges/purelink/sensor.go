package purelink

import "time"

// AirQuality is the composite air-quality index. Zero means unknown; 1-5
// is an increasingly poor ordinal scale.
type AirQuality int

// Air quality bands.
const (
	AirQualityUnknown AirQuality = iota
	AirQualityExcellent
	AirQualityGood
	AirQualityFair
	AirQualityInferior
	AirQualityPoor
)

func (q AirQuality) String() string {
	switch q {
	case AirQualityExcellent:
		return "EXCELLENT"
	case AirQualityGood:
		return "GOOD"
	case AirQualityFair:
		return "FAIR"
	case AirQualityInferior:
		return "INFERIOR"
	case AirQualityPoor:
		return "POOR"
	default:
		return "UNKNOWN"
	}
}

// Telemetry field codes. Newer firmware reports raw PM densities as
// p25r/p10r alongside or instead of pm25/pm10.
var (
	pm25Fields = []string{"pm25", "p25r"}
	pm10Fields = []string{"pm10", "p10r"}
	vocFields  = []string{"va10"}
	no2Fields  = []string{"noxl"}
)

// SensorReading is the normalized environmental state of one appliance.
type SensorReading struct {
	UpdatedAt   time.Time  `json:"updated_at"`
	Temperature float64    `json:"temperature"`
	Humidity    int        `json:"humidity"`
	AirQuality  AirQuality `json:"air_quality"`

	PM25 int `json:"pm25"`
	PM10 int `json:"pm10"`
	VOC  int `json:"voc"`
	NO2  int `json:"no2"`

	// HasPollutants is set when the appliance reports per-pollutant codes.
	HasPollutants bool `json:"has_pollutants"`
}

// BucketPollutant maps a raw 0-100 pollutant value to a band in
// GOOD..POOR.
func BucketPollutant(raw int) AirQuality {
	switch v := raw / 10; {
	case v <= 3:
		return AirQualityGood
	case v <= 6:
		return AirQualityFair
	case v <= 8:
		return AirQualityInferior
	default:
		return AirQualityPoor
	}
}

// ApplyTelemetry builds a reading from an ENVIRONMENTAL-CURRENT-SENSOR-DATA
// message. received is the local receipt time, which drives freshness.
//
// Missing or unparsable fields become 0. The composite index is the worst
// band over the pollutant codes present; an unparsable code contributes 0
// and never raises or lowers the result. Appliances without pollutant codes
// fall back to clamp(floor((pact+vact)/2), 1, 5).
func ApplyTelemetry(raw map[string]any, received time.Time) SensorReading {
	fields := fieldSet(raw)
	r := SensorReading{UpdatedAt: received}

	if t, ok := fieldFloat(fields, "tact"); ok {
		r.Temperature = decikelvinToCelsius(t)
	}
	r.Humidity, _ = fieldInt(fields, "hact")

	groups := []struct {
		keys []string
		dst  *int
	}{
		{pm25Fields, &r.PM25},
		{pm10Fields, &r.PM10},
		{vocFields, &r.VOC},
		{no2Fields, &r.NO2},
	}

	worst := AirQualityUnknown
	for _, g := range groups {
		if !hasAny(fields, g.keys...) {
			continue
		}
		r.HasPollutants = true
		v, ok := firstInt(fields, g.keys...)
		if !ok {
			continue
		}
		*g.dst = v
		if band := BucketPollutant(v); band > worst {
			worst = band
		}
	}

	if r.HasPollutants {
		r.AirQuality = clampQuality(worst, AirQualityUnknown)
		return r
	}

	r.AirQuality = legacyAirQuality(fields)
	return r
}

// legacyAirQuality averages dust and VOC on appliances without pollutant
// codes. Unknown when neither is parseable.
func legacyAirQuality(fields map[string]any) AirQuality {
	dust, dustOK := fieldInt(fields, "pact")
	voc, vocOK := fieldInt(fields, "vact")
	if !dustOK && !vocOK {
		return AirQualityUnknown
	}
	return clampQuality(AirQuality((dust+voc)/2), AirQualityExcellent)
}

func clampQuality(q, lowest AirQuality) AirQuality {
	if q < lowest {
		return lowest
	}
	if q > AirQualityPoor {
		return AirQualityPoor
	}
	return q
}
