// Package health defines the measurement record model and the provider reader.
package health

import (
	"errors"
	"fmt"
)

// ErrInvalidKind is returned when a caller asks for a measurement kind the
// provider does not know about.
var ErrInvalidKind = errors.New("invalid measurement kind")

// Kind identifies a category of health measurement.
type Kind string

const (
	KindBasalBodyTemperature Kind = "basal_body_temperature"
	KindBasalMetabolicRate   Kind = "basal_metabolic_rate"
	KindBodyFat              Kind = "body_fat"
	KindBodyTemperature      Kind = "body_temperature"
	KindDistance             Kind = "distance"
	KindHeartRate            Kind = "heart_rate"
	KindHeartRateVariability Kind = "heart_rate_variability"
	KindOxygenSaturation     Kind = "oxygen_saturation"
	KindRespiratoryRate      Kind = "respiratory_rate"
	KindRestingHeartRate     Kind = "resting_heart_rate"
	KindSleep                Kind = "sleep"
	KindSteps                Kind = "steps"
	KindVO2Max               Kind = "vo2_max"
)

// Kinds lists every supported measurement kind in stable order.
func Kinds() []Kind {
	return []Kind{
		KindBasalBodyTemperature,
		KindBasalMetabolicRate,
		KindBodyFat,
		KindBodyTemperature,
		KindDistance,
		KindHeartRate,
		KindHeartRateVariability,
		KindOxygenSaturation,
		KindRespiratoryRate,
		KindRestingHeartRate,
		KindSleep,
		KindSteps,
		KindVO2Max,
	}
}

// ParseKind validates a kind name coming from configuration or the API.
func ParseKind(name string) (Kind, error) {
	k := Kind(name)
	switch k {
	case KindBasalBodyTemperature, KindBasalMetabolicRate, KindBodyFat,
		KindBodyTemperature, KindDistance, KindHeartRate,
		KindHeartRateVariability, KindOxygenSaturation, KindRespiratoryRate,
		KindRestingHeartRate, KindSleep, KindSteps, KindVO2Max:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, name)
}

// Sampled reports whether records of this kind carry a list of timestamped
// samples instead of a single value.
func (k Kind) Sampled() bool {
	return k == KindHeartRate || k == KindSleep
}

// Interval reports whether records of this kind span a start/end period
// rather than a single instant.
func (k Kind) Interval() bool {
	return k == KindDistance || k == KindSleep || k == KindSteps
}

func (k Kind) String() string { return string(k) }
