// Package store owns persistence for evidence items, custody events,
// anchor receipts, and analysis results. The ledger store is the only
// mutable shared resource in the service; everything above it is pure or
// append-only against it.
package store

import (
	"context"
	"time"

	"github.com/Anvesh1211/indic-justice-league/pkg/detect"
)

type EvidenceItem struct {
	EvidenceID   string    `json:"evidence_id"`
	CaseID       string    `json:"case_id"`
	ContentHash  string    `json:"content_hash"`
	Content      string    `json:"-"`
	DocumentType string    `json:"document_type"`
	UploadedBy   string    `json:"uploaded_by"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type CustodyEvent struct {
	EventID       string         `json:"event_id"`
	EvidenceID    string         `json:"evidence_id"`
	Seq           int64          `json:"seq"`
	EventType     string         `json:"event_type"`
	Actor         string         `json:"actor"`
	Timestamp     time.Time      `json:"timestamp"`
	PrevEventHash string         `json:"prev_event_hash"`
	PayloadHash   string         `json:"payload_hash"`
	EventHash     string         `json:"event_hash"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Anchor receipt lifecycle: PENDING while submission is in flight,
// CONFIRMED once the external store acknowledged, ANCHOR_PENDING when
// retries were exhausted and the chain remains locally recorded only.
const (
	ReceiptPending       = "PENDING"
	ReceiptConfirmed     = "CONFIRMED"
	ReceiptAnchorPending = "ANCHOR_PENDING"
)

type AnchorReceipt struct {
	ReceiptID    string     `json:"receipt_id"`
	EvidenceID   string     `json:"evidence_id"`
	DocumentType string     `json:"document_type,omitempty"`
	LedgerDigest string     `json:"ledger_digest"`
	ExternalRef  string     `json:"external_ref,omitempty"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
}

type Analysis struct {
	AnalysisID      string               `json:"analysis_id"`
	CaseID          string               `json:"case_id"`
	LeftEvidenceID  string               `json:"left_evidence_id"`
	RightEvidenceID string               `json:"right_evidence_id"`
	SimilarityScore float64              `json:"similarity_score"`
	CreatedAt       time.Time            `json:"created_at"`
	Discrepancies   []detect.Discrepancy `json:"discrepancies"`
}

// Store is implemented by the Postgres store and by the in-memory store
// used in tests. Implementations must enforce the uniqueness of
// (evidence_id, seq) on custody events so a caller retry cannot fork a
// chain.
type Store interface {
	InsertEvidence(ctx context.Context, item EvidenceItem) error
	GetEvidence(ctx context.Context, evidenceID string) (EvidenceItem, bool, error)
	ListEvidenceByCase(ctx context.Context, caseID string) ([]EvidenceItem, error)

	LastEvent(ctx context.Context, evidenceID string) (CustodyEvent, bool, error)
	InsertEvent(ctx context.Context, ev CustodyEvent) error
	ListEvents(ctx context.Context, evidenceID string) ([]CustodyEvent, error)

	UpsertReceipt(ctx context.Context, r AnchorReceipt) error
	LatestReceipt(ctx context.Context, evidenceID string) (AnchorReceipt, bool, error)
	ListReceiptsByCase(ctx context.Context, caseID string) ([]AnchorReceipt, error)

	// ReplaceAnalysis persists the analysis and its discrepancies
	// atomically, superseding any prior analysis of the same evidence
	// pair wholesale.
	ReplaceAnalysis(ctx context.Context, a Analysis) error
	ListAnalysesByCase(ctx context.Context, caseID string) ([]Analysis, error)

	GetIdempotencyRecord(ctx context.Context, actor, key, endpoint string) (int, map[string]any, bool, error)
	SaveIdempotencyRecord(ctx context.Context, actor, key, endpoint string, responseStatus int, responseBody map[string]any) error
}
