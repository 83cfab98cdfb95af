package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// FailureDelay pads authentication failures with a base plus random delay
// so "no such account" and "wrong password" take indistinguishable time.
type FailureDelay struct {
	base   time.Duration
	jitter int // milliseconds
	sleep  func(time.Duration)
}

// NewFailureDelay creates a delay guard. jitterMs of 0 disables the random
// component.
func NewFailureDelay(baseMs, jitterMs int) *FailureDelay {
	return &FailureDelay{
		base:   time.Duration(baseMs) * time.Millisecond,
		jitter: jitterMs,
		sleep:  time.Sleep,
	}
}

// cryptoRandIntn returns a random int in [0, max) from crypto/rand.
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	return int(binary.BigEndian.Uint64(randomBytes) % uint64(max)), nil
}

// Wait sleeps for base + random jitter. Call on every failed credential
// check before returning to the caller.
func (fd *FailureDelay) Wait() {
	delay := fd.base
	if fd.jitter > 0 {
		if randomValue, err := cryptoRandIntn(fd.jitter); err == nil {
			delay += time.Duration(randomValue) * time.Millisecond
		}
	}
	fd.sleep(delay)
}
