// Package naming derives artifact and log file names for a run.
//
// All names of one run share the extract name and the run timestamp, which is
// captured once when the run starts:
//
//	Sales_20240501_120000_0001.parquet
//	Sales_20240501_120000_0002.parquet
//	pipeline_Sales_20240501_120000.log
package naming

import (
	"errors"
	"fmt"
	"time"
)

// TimestampLayout formats the run timestamp.
const TimestampLayout = "20060102_150405"

// MaxSequence is the highest batch sequence that fits the four-digit suffix.
const MaxSequence = 9999

// ErrSequenceRange is returned for sequences outside 1..MaxSequence.
var ErrSequenceRange = errors.New("batch sequence out of range")

// Timestamp formats t as the run timestamp in t's own location.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ArtifactName returns the file name of batch seq.
func ArtifactName(extract, ts string, seq int) (string, error) {
	if seq < 1 || seq > MaxSequence {
		return "", fmt.Errorf("%w: %d (want 1..%d)", ErrSequenceRange, seq, MaxSequence)
	}
	return fmt.Sprintf("%s_%s_%04d.parquet", extract, ts, seq), nil
}

// LogName returns the file name of the run log.
func LogName(extract, ts string) string {
	return fmt.Sprintf("pipeline_%s_%s.log", extract, ts)
}
