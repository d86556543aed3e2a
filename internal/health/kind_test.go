package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseKindAcceptsEveryKnownKind(t *testing.T) {
	for _, kind := range Kinds() {
		parsed, err := ParseKind(string(kind))
		require.NoError(t, err)
		require.Equal(t, kind, parsed)
	}
}

func TestParseKindRejectsUnknownNames(t *testing.T) {
	for _, name := range []string{"", "blood_pressure", "Steps", "heart-rate"} {
		_, err := ParseKind(name)
		require.ErrorIs(t, err, ErrInvalidKind)
	}
}

func TestKindShapePredicates(t *testing.T) {
	require.True(t, KindHeartRate.Sampled())
	require.True(t, KindSleep.Sampled())
	require.False(t, KindSteps.Sampled())

	require.True(t, KindDistance.Interval())
	require.True(t, KindSleep.Interval())
	require.True(t, KindSteps.Interval())
	require.False(t, KindBodyTemperature.Interval())
}

func TestMeasuredAtUsesFirstSampleForSampledKinds(t *testing.T) {
	first := time.Date(2026, time.March, 1, 22, 15, 0, 0, time.UTC)
	record := Record{
		Kind: KindHeartRate,
		ID:   "hr-1",
		Samples: []Sample{
			{Time: first, Value: 62},
			{Time: first.Add(time.Minute), Value: 64},
		},
	}

	millis, ok := record.MeasuredAt()
	require.True(t, ok)
	require.Equal(t, first.UnixMilli(), millis)
}

func TestMeasuredAtUsesPeriodStartForIntervalKinds(t *testing.T) {
	start := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	record := Record{
		Kind:      KindSteps,
		ID:        "steps-1",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Value:     4200,
	}

	millis, ok := record.MeasuredAt()
	require.True(t, ok)
	require.Equal(t, start.UnixMilli(), millis)
}

func TestMeasuredAtUsesInstantForScalarKinds(t *testing.T) {
	at := time.Date(2026, time.March, 3, 6, 30, 0, 0, time.UTC)
	record := Record{Kind: KindBodyTemperature, ID: "temp-1", Time: at, Value: 36.6}

	millis, ok := record.MeasuredAt()
	require.True(t, ok)
	require.Equal(t, at.UnixMilli(), millis)
}

func TestMeasuredAtReportsMissingTime(t *testing.T) {
	cases := []Record{
		{Kind: KindHeartRate, ID: "hr-2"},
		{Kind: KindHeartRate, ID: "hr-3", Samples: []Sample{{Value: 70}}},
		{Kind: KindSteps, ID: "steps-2", Value: 100},
		{Kind: KindBodyFat, ID: "fat-1", Value: 21.5},
	}
	for _, record := range cases {
		_, ok := record.MeasuredAt()
		require.False(t, ok, "record %s should have no measured-at time", record.ID)
	}
}
