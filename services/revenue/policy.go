package revenue

import (
	"time"

	"github.com/cppla/challengehub/errutil"
)

// Policy holds the settlement parameters handed to the service at construction.
type Policy struct {
	// CreatorShareBps is the creator's share of a payment in basis points.
	CreatorShareBps   int
	MaxRetries        int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	BatchDelay        time.Duration
	TransferTimeout   time.Duration
	LeaseDuration     time.Duration
	PendingStaleAfter time.Duration
	Currency          string
}

// DefaultPolicy is a 90/10 split with three bounded retries.
func DefaultPolicy() Policy {
	return Policy{
		CreatorShareBps:   9000,
		MaxRetries:        3,
		BackoffBase:       30 * time.Second,
		BackoffMax:        30 * time.Minute,
		BatchDelay:        200 * time.Millisecond,
		TransferTimeout:   15 * time.Second,
		LeaseDuration:     2 * time.Minute,
		PendingStaleAfter: 5 * time.Minute,
		Currency:          "usd",
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.TransferTimeout <= 0 {
		p.TransferTimeout = d.TransferTimeout
	}
	if p.LeaseDuration <= 0 {
		p.LeaseDuration = d.LeaseDuration
	}
	if p.LeaseDuration < p.TransferTimeout {
		p.LeaseDuration = 2 * p.TransferTimeout
	}
	if p.PendingStaleAfter <= 0 {
		p.PendingStaleAfter = d.PendingStaleAfter
	}
	if p.PendingStaleAfter < p.LeaseDuration {
		p.PendingStaleAfter = p.LeaseDuration
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = d.BackoffMax
	}
	if p.Currency == "" {
		p.Currency = d.Currency
	}
	return p
}

// Backoff is the delay before the attempt following the retryCount-th failure.
func (p Policy) Backoff(retryCount int) time.Duration {
	if p.BackoffBase <= 0 || retryCount <= 0 {
		return 0
	}
	d := p.BackoffBase
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// Split divides total by bps; the creator share is rounded down and the platform keeps the remainder.
func Split(total int64, bps int) (creator, platform int64, err error) {
	if bps < 0 || bps > 10000 {
		return 0, 0, errutil.Validation("invalid_split", "split must be between 0 and 10000 basis points")
	}
	if total <= 0 {
		return 0, 0, errutil.Validation("invalid_amount", "total amount must be positive")
	}
	creator = total * int64(bps) / 10000
	return creator, total - creator, nil
}
