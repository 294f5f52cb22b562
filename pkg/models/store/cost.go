package store

import "time"

// IngestStats summarizes what the record store currently holds, used to
// decide collection windows and to report store health.
type IngestStats struct {
	RecordCount     int64
	SignalCount     int64
	FirstRecordDate *time.Time
	LastRecordDate  *time.Time
}
