// Package anchor submits ledger digests to an external immutable store.
// The store itself is out of scope; everything here goes through Gateway.
package anchor

import (
	"context"
	"time"

	"github.com/Anvesh1211/indic-justice-league/pkg/errs"
)

// Result is the external store's acknowledgement of a single submission.
type Result struct {
	ExternalRef string
	ConfirmedAt time.Time
}

// Gateway is the only seam to the external anchor service. Implementations
// must honour ctx cancellation and deadlines.
type Gateway interface {
	Anchor(ctx context.Context, evidenceID, ledgerDigest string) (Result, error)
}

// Submitter retries a gateway with exponential backoff. Ledger appends are
// never blocked by it; callers run Submit off the request path.
type Submitter struct {
	Gateway     Gateway
	MaxAttempts int
	BaseDelay   time.Duration
	PerCall     time.Duration
}

func NewSubmitter(gw Gateway) *Submitter {
	return &Submitter{
		Gateway:     gw,
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		PerCall:     5 * time.Second,
	}
}

// Submit calls the gateway up to MaxAttempts times, doubling the delay
// between attempts. It returns the attempts actually made alongside the
// result; on exhaustion the error is an ExternalServiceError and the
// caller records the ANCHOR_PENDING marker.
func (s *Submitter) Submit(ctx context.Context, evidenceID, ledgerDigest string) (Result, int, error) {
	var lastErr error
	delay := s.BaseDelay
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.PerCall)
		res, err := s.Gateway.Anchor(callCtx, evidenceID, ledgerDigest)
		cancel()
		if err == nil {
			return res, attempt, nil
		}
		lastErr = err
		if attempt == s.MaxAttempts {
			return Result{}, attempt, errs.External(lastErr, "anchor submission failed after %d attempts", attempt)
		}
		select {
		case <-ctx.Done():
			return Result{}, attempt, errs.External(ctx.Err(), "anchor submission cancelled")
		case <-time.After(delay):
		}
		delay *= 2
	}
	return Result{}, s.MaxAttempts, errs.External(lastErr, "anchor submission failed")
}
