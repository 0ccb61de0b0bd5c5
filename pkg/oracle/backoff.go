package oracle

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// BackoffPolicy is exponential backoff with deterministic jitter: the same
// key and attempt always wait the same time.
type BackoffPolicy struct {
	Base      time.Duration
	Max       time.Duration
	MaxJitter time.Duration
}

func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Base: 5 * time.Second, Max: 30 * time.Minute, MaxJitter: 2 * time.Second}
}

// Delay returns the wait before retry number attempt (starting at 1).
func (p BackoffPolicy) Delay(key string, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	d := p.Base << shift
	if d <= 0 || d > p.Max {
		d = p.Max
	}
	return d + p.jitter(key, attempt)
}

func (p BackoffPolicy) jitter(key string, attempt int) time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", key, attempt)))
	return time.Duration(binary.BigEndian.Uint64(h[:8]) % uint64(p.MaxJitter))
}
