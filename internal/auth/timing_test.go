package auth

import (
	"testing"
	"time"
)

func TestFailureDelay_SleepsAtLeastBase(t *testing.T) {
	fd := NewFailureDelay(20, 0)

	var slept time.Duration
	fd.sleep = func(d time.Duration) { slept = d }

	fd.Wait()
	if slept != 20*time.Millisecond {
		t.Errorf("slept %v, want exactly base 20ms with no jitter", slept)
	}
}

func TestFailureDelay_JitterWithinRange(t *testing.T) {
	fd := NewFailureDelay(10, 50)

	var slept time.Duration
	fd.sleep = func(d time.Duration) { slept = d }

	for i := 0; i < 50; i++ {
		fd.Wait()
		if slept < 10*time.Millisecond || slept >= 60*time.Millisecond {
			t.Fatalf("slept %v, want within [10ms, 60ms)", slept)
		}
	}
}

func TestFailureDelay_ZeroConfigIsNoop(t *testing.T) {
	fd := NewFailureDelay(0, 0)

	var slept time.Duration = -1
	fd.sleep = func(d time.Duration) { slept = d }

	fd.Wait()
	if slept != 0 {
		t.Errorf("slept %v, want 0", slept)
	}
}

func TestCryptoRandIntn(t *testing.T) {
	for i := 0; i < 100; i++ {
		v, err := cryptoRandIntn(10)
		if err != nil {
			t.Fatalf("cryptoRandIntn error = %v", err)
		}
		if v < 0 || v >= 10 {
			t.Fatalf("cryptoRandIntn(10) = %d, out of range", v)
		}
	}

	if v, _ := cryptoRandIntn(0); v != 0 {
		t.Errorf("cryptoRandIntn(0) = %d, want 0", v)
	}
}
