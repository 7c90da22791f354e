// Package anchors drives asynchronous submission of ledger digests to the
// external anchor gateway. Custody appends never wait on it.
package anchors

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Anvesh1211/indic-justice-league/pkg/anchor"
	"github.com/Anvesh1211/indic-justice-league/pkg/errs"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/ledger"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/store"

	"github.com/google/uuid"
)

type Service struct {
	store     store.Store
	ledger    *ledger.Ledger
	submitter *anchor.Submitter
	logger    *log.Logger
	timeout   time.Duration

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

func New(st store.Store, led *ledger.Ledger, submitter *anchor.Submitter, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:     st,
		ledger:    led,
		submitter: submitter,
		logger:    logger,
		timeout:   time.Minute,
		inflight:  make(map[string]bool),
	}
}

// Trigger records a PENDING receipt for the evidence item's current ledger
// digest and starts the submission in the background. A second trigger
// while one is in flight returns the existing receipt instead of
// submitting twice.
func (s *Service) Trigger(ctx context.Context, evidenceID, actor string) (store.AnchorReceipt, error) {
	item, ok, err := s.store.GetEvidence(ctx, evidenceID)
	if err != nil {
		return store.AnchorReceipt{}, err
	}
	if !ok {
		return store.AnchorReceipt{}, errs.NotFound("evidence %s not found", evidenceID)
	}
	digest, err := s.ledger.Digest(ctx, evidenceID)
	if err != nil {
		return store.AnchorReceipt{}, err
	}

	s.mu.Lock()
	if s.inflight[evidenceID] {
		s.mu.Unlock()
		r, ok, err := s.store.LatestReceipt(ctx, evidenceID)
		if err != nil {
			return store.AnchorReceipt{}, err
		}
		if ok {
			return r, nil
		}
		return store.AnchorReceipt{EvidenceID: evidenceID, DocumentType: item.DocumentType, Status: store.ReceiptPending, LedgerDigest: digest}, nil
	}
	s.inflight[evidenceID] = true
	s.mu.Unlock()

	receipt := store.AnchorReceipt{
		ReceiptID:    "rcp_" + uuid.NewString(),
		EvidenceID:   evidenceID,
		DocumentType: item.DocumentType,
		LedgerDigest: digest,
		Status:       store.ReceiptPending,
		SubmittedAt:  time.Now().UTC(),
	}
	if err := s.store.UpsertReceipt(ctx, receipt); err != nil {
		s.clearInflight(evidenceID)
		return store.AnchorReceipt{}, err
	}

	s.wg.Add(1)
	go s.run(receipt, actor)
	return receipt, nil
}

func (s *Service) run(receipt store.AnchorReceipt, actor string) {
	defer s.wg.Done()
	defer s.clearInflight(receipt.EvidenceID)

	// Detached from the request: the caller got its pending receipt back
	// already, and a client disconnect must not abandon the submission.
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, attempts, err := s.submitter.Submit(ctx, receipt.EvidenceID, receipt.LedgerDigest)
	receipt.Attempts = attempts
	if err != nil {
		receipt.Status = store.ReceiptAnchorPending
		if uerr := s.store.UpsertReceipt(ctx, receipt); uerr != nil {
			s.logger.Printf("anchors: receipt update failed for %s: %v", receipt.EvidenceID, uerr)
		}
		s.logger.Printf("anchors: WARNING %s not anchored after %d attempts, recorded locally as %s: %v",
			receipt.EvidenceID, attempts, store.ReceiptAnchorPending, err)
		return
	}

	confirmed := res.ConfirmedAt
	receipt.Status = store.ReceiptConfirmed
	receipt.ExternalRef = res.ExternalRef
	receipt.ConfirmedAt = &confirmed
	if err := s.store.UpsertReceipt(ctx, receipt); err != nil {
		s.logger.Printf("anchors: receipt update failed for %s: %v", receipt.EvidenceID, err)
		return
	}

	_, err = s.ledger.Append(ctx, receipt.EvidenceID, ledger.EventAnchored, actor, map[string]any{
		"receipt_id":    receipt.ReceiptID,
		"ledger_digest": receipt.LedgerDigest,
		"external_ref":  res.ExternalRef,
		"attempts":      attempts,
	})
	if err != nil {
		s.logger.Printf("anchors: ANCHORED event append failed for %s: %v", receipt.EvidenceID, err)
	}
}

func (s *Service) clearInflight(evidenceID string) {
	s.mu.Lock()
	delete(s.inflight, evidenceID)
	s.mu.Unlock()
}

// Wait drains in-flight submissions. Used on shutdown and by tests.
func (s *Service) Wait() { s.wg.Wait() }
