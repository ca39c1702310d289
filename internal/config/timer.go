package config

import "time"

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

func (t Timer) IsZero() bool {
	return t == Timer{}
}

// Duration converts the timer, falling back when it is unset.
func (t Timer) Duration(fallback time.Duration) time.Duration {
	ms := CalculateMilliseconds(t)
	if ms == 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func CalculateMilliseconds(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

// TimerFromDuration rounds d down to whole seconds.
func TimerFromDuration(d time.Duration) Timer {
	secs := uint64(d / time.Second)
	return Timer{
		Days:    uint32(secs / 86400),
		Hours:   uint32(secs % 86400 / 3600),
		Minutes: uint32(secs % 3600 / 60),
		Seconds: uint32(secs % 60),
	}
}
