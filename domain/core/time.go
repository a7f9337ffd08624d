package core

import (
	"time"
)

// Timestamp is a UTC instant stamped on results and comparison tables
type Timestamp time.Time

// Now returns the current timestamp in UTC
func Now() Timestamp {
	return Timestamp(time.Now().UTC())
}

// Time returns the underlying time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// String formats the timestamp as RFC3339 with nanoseconds
func (t Timestamp) String() string {
	return time.Time(t).Format(time.RFC3339Nano)
}

// MarshalJSON always renders nanosecond RFC3339 in UTC so serialized results
// sort lexically
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(time.RFC3339Nano) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var tm time.Time
	if err := tm.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = Timestamp(tm.UTC())
	return nil
}
