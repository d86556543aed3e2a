package health

import "time"

// Sample is one timestamped measurement inside a multi-sample record.
// EndTime is set only for stage samples (sleep), which span a period.
type Sample struct {
	Time    time.Time `json:"time"`
	EndTime time.Time `json:"endTime,omitempty"`
	Value   float64   `json:"value"`
}

// Record is a raw measurement as read from the provider. Exactly one shape is
// populated depending on Kind: an instant Time with a scalar Value, a
// StartTime/EndTime period with a scalar Value, or a list of Samples.
type Record struct {
	Kind      Kind      `json:"kind"`
	ID        string    `json:"id,omitempty"`
	Time      time.Time `json:"time,omitempty"`
	StartTime time.Time `json:"startTime,omitempty"`
	EndTime   time.Time `json:"endTime,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Samples   []Sample  `json:"samples,omitempty"`
}

// MeasuredAt derives the timestamp used for dedup marks: the first sample time
// for multi-sample kinds, the period start for interval kinds, the instant
// otherwise. ok is false when the record carries no usable time.
func (r Record) MeasuredAt() (millis int64, ok bool) {
	switch {
	case r.Kind.Sampled():
		if len(r.Samples) == 0 || r.Samples[0].Time.IsZero() {
			return 0, false
		}
		return r.Samples[0].Time.UnixMilli(), true
	case r.Kind.Interval():
		if r.StartTime.IsZero() {
			return 0, false
		}
		return r.StartTime.UnixMilli(), true
	default:
		if r.Time.IsZero() {
			return 0, false
		}
		return r.Time.UnixMilli(), true
	}
}
