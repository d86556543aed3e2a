package fhir

import (
	"time"

	"github.com/rs/zerolog"

	"example.com/healthsync/internal/health"
)

// Mapper converts raw health records into FHIR Observations.
type Mapper struct {
	logger zerolog.Logger
}

// NewMapper constructs a Mapper.
func NewMapper(logger zerolog.Logger) *Mapper {
	return &Mapper{logger: logger.With().Str("component", "observation_mapper").Logger()}
}

// MapRecord converts one record into zero or more Observations for the given
// patient. A record whose runtime shape does not match its declared kind, or
// whose kind is unrecognized, maps to an empty slice; this is logged and never
// an error.
func (m *Mapper) MapRecord(patientID string, record health.Record) []Observation {
	switch record.Kind {
	case health.KindBasalBodyTemperature:
		return m.vital(patientID, record, "8310-5", "Basal body temperature", "°C")
	case health.KindBasalMetabolicRate:
		return m.vital(patientID, record, "69429-9", "Basal metabolic rate", "kcal/day")
	case health.KindBodyFat:
		return m.vital(patientID, record, "41982-0", "Body fat", "%")
	case health.KindBodyTemperature:
		return m.vital(patientID, record, "8310-5", "Body temperature", "°C")
	case health.KindDistance:
		return m.activity(patientID, record, "55430-3", "Distance traveled", "meters")
	case health.KindHeartRate:
		return m.heartRate(patientID, record)
	case health.KindHeartRateVariability:
		return m.vital(patientID, record, "80404-7", "Heart rate variability", "ms")
	case health.KindOxygenSaturation:
		return m.vital(patientID, record, "59408-5", "Oxygen saturation", "%")
	case health.KindRespiratoryRate:
		return m.vital(patientID, record, "9279-1", "Respiratory rate", "breaths/min")
	case health.KindRestingHeartRate:
		return m.vital(patientID, record, "40443-4", "Resting heart rate", "beats/minute")
	case health.KindSleep:
		return m.sleep(patientID, record)
	case health.KindSteps:
		return m.activity(patientID, record, "55423-8", "Step count", "steps")
	case health.KindVO2Max:
		return m.vital(patientID, record, "60842-2", "VO2 max", "mL/kg/min")
	default:
		m.logger.Warn().Str("kind", record.Kind.String()).Str("record_id", record.ID).
			Msg("unrecognized kind, record skipped")
		return nil
	}
}

// vital maps an instant-valued record to a single vital-signs Observation.
func (m *Mapper) vital(patientID string, record health.Record, code, display, unit string) []Observation {
	if record.Time.IsZero() {
		m.mismatch(record, "missing instant time")
		return nil
	}
	return []Observation{newVital(patientID, code, display, unit, record.Value, record.Time)}
}

// activity maps a period-valued record to a single activity Observation.
func (m *Mapper) activity(patientID string, record health.Record, code, display, unit string) []Observation {
	if record.StartTime.IsZero() || record.EndTime.IsZero() {
		m.mismatch(record, "missing period bounds")
		return nil
	}
	return []Observation{newActivity(patientID, code, display, unit, record.Value, record.StartTime, record.EndTime)}
}

// heartRate expands each sample into its own vital-signs Observation.
func (m *Mapper) heartRate(patientID string, record health.Record) []Observation {
	if len(record.Samples) == 0 {
		m.mismatch(record, "no heart rate samples")
		return nil
	}
	observations := make([]Observation, 0, len(record.Samples))
	for _, sample := range record.Samples {
		if sample.Time.IsZero() {
			m.mismatch(record, "heart rate sample missing time")
			return nil
		}
		observations = append(observations, newVital(patientID, "8867-4", "Heart rate", "beats/minute", sample.Value, sample.Time))
	}
	return observations
}

// sleep expands each stage into its own activity Observation spanning the
// stage period; the value carries the provider's stage code.
func (m *Mapper) sleep(patientID string, record health.Record) []Observation {
	if len(record.Samples) == 0 {
		m.mismatch(record, "no sleep stages")
		return nil
	}
	observations := make([]Observation, 0, len(record.Samples))
	for _, stage := range record.Samples {
		if stage.Time.IsZero() || stage.EndTime.IsZero() {
			m.mismatch(record, "sleep stage missing period bounds")
			return nil
		}
		observations = append(observations, newActivity(patientID, "93832-4", "Sleep session", "sleep stage", stage.Value, stage.Time, stage.EndTime))
	}
	return observations
}

func (m *Mapper) mismatch(record health.Record, reason string) {
	m.logger.Warn().
		Str("kind", record.Kind.String()).
		Str("record_id", record.ID).
		Str("reason", reason).
		Msg("record shape does not match kind, skipped")
}

func newVital(patientID, code, display, unit string, value float64, at time.Time) Observation {
	obs := newObservation(patientID, code, display, unit, value, "vital-signs", "Vital Signs")
	obs.EffectiveDateTime = at.UTC().Format(time.RFC3339)
	return obs
}

func newActivity(patientID, code, display, unit string, value float64, start, end time.Time) Observation {
	obs := newObservation(patientID, code, display, unit, value, "activity", "Activity")
	obs.EffectivePeriod = &Period{
		Start: start.UTC().Format(time.RFC3339),
		End:   end.UTC().Format(time.RFC3339),
	}
	return obs
}

func newObservation(patientID, code, display, unit string, value float64, category, categoryDisplay string) Observation {
	return Observation{
		ResourceType: "Observation",
		Status:       "final",
		Category: []CodeableConcept{{
			Coding: []Coding{{System: categorySystem, Code: category, Display: categoryDisplay}},
		}},
		Code: CodeableConcept{
			Coding: []Coding{{System: loincSystem, Code: code, Display: display}},
		},
		Subject: Reference{Reference: "Patient/" + patientID},
		ValueQuantity: Quantity{
			Value:  value,
			Unit:   unit,
			System: unitSystem,
			Code:   unit,
		},
	}
}
