package config

import (
	"testing"
	"time"
)

func TestCalculateMilliseconds(t *testing.T) {
	timer := Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}
	want := uint64((24*60*60 + 2*60*60 + 3*60 + 4) * 1000)

	if got := CalculateMilliseconds(timer); got != want {
		t.Fatalf("CalculateMilliseconds returned %d, want %d", got, want)
	}
}

func TestTimerDuration(t *testing.T) {
	t.Run("falls back when unset", func(t *testing.T) {
		if got := (Timer{}).Duration(time.Minute); got != time.Minute {
			t.Fatalf("Duration returned %s, want 1m", got)
		}
	})

	t.Run("returns configured duration", func(t *testing.T) {
		if got := (Timer{Minutes: 1, Seconds: 30}).Duration(time.Minute); got != 90*time.Second {
			t.Fatalf("Duration returned %s, want 1m30s", got)
		}
	})
}

func TestTimerFromDuration(t *testing.T) {
	d := 26*time.Hour + 3*time.Minute + 4*time.Second + 900*time.Millisecond
	want := Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}

	if got := TimerFromDuration(d); got != want {
		t.Fatalf("TimerFromDuration returned %+v, want %+v", got, want)
	}
}
