package health

import "sync/atomic"

// Counters aggregates engine-wide throughput and failure totals. All fields
// are updated atomically from room goroutines and connection handlers.
type Counters struct {
	EventsReceived  atomic.Int64
	EventsApplied   atomic.Int64
	EventsDuplicate atomic.Int64
	Conflicts       atomic.Int64
	Escalations     atomic.Int64
	Resolutions     atomic.Int64
	Broadcasts      atomic.Int64
	OfflineQueued   atomic.Int64
	Errors          atomic.Int64
	Evictions       atomic.Int64
}

// CounterTotals is a point-in-time copy of every counter.
type CounterTotals struct {
	EventsReceived  int64 `json:"eventsReceived"`
	EventsApplied   int64 `json:"eventsApplied"`
	EventsDuplicate int64 `json:"eventsDuplicate"`
	Conflicts       int64 `json:"conflicts"`
	Escalations     int64 `json:"escalations"`
	Resolutions     int64 `json:"resolutions"`
	Broadcasts      int64 `json:"broadcasts"`
	OfflineQueued   int64 `json:"offlineQueued"`
	Errors          int64 `json:"errors"`
	Evictions       int64 `json:"evictions"`
}

// Totals copies the current counter values.
func (c *Counters) Totals() CounterTotals {
	return CounterTotals{
		EventsReceived:  c.EventsReceived.Load(),
		EventsApplied:   c.EventsApplied.Load(),
		EventsDuplicate: c.EventsDuplicate.Load(),
		Conflicts:       c.Conflicts.Load(),
		Escalations:     c.Escalations.Load(),
		Resolutions:     c.Resolutions.Load(),
		Broadcasts:      c.Broadcasts.Load(),
		OfflineQueued:   c.OfflineQueued.Load(),
		Errors:          c.Errors.Load(),
		Evictions:       c.Evictions.Load(),
	}
}
