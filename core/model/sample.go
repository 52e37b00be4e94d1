package model

import "time"

// PowerSample is one meter reading. It is folded into energy buckets and
// never stored on its own.
type PowerSample struct {
	Timestamp        time.Time
	TotalPowerW      float64
	ControlledPowerW *float64
}
