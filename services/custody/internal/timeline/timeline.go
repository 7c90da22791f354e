// Package timeline assembles the case audit trail: custody events, anchor
// receipts, and analysis findings merged into one chronological view. It
// owns no data and recomputes on every query.
package timeline

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/Anvesh1211/indic-justice-league/pkg/errs"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/store"
)

const (
	EntryCustodyEvent  = "CUSTODY_EVENT"
	EntryAnchorReceipt = "ANCHOR_RECEIPT"
	EntryAnalysis      = "ANALYSIS"
)

type Entry struct {
	At         time.Time      `json:"at"`
	Kind       string         `json:"kind"`
	EvidenceID string         `json:"evidence_id,omitempty"`
	Seq        int64          `json:"seq,omitempty"`
	Summary    string         `json:"summary"`
	Detail     map[string]any `json:"detail,omitempty"`
}

type Service struct{ store store.Store }

func New(st store.Store) *Service { return &Service{store: st} }

// Timeline returns the case's merged record, oldest first. Custody events
// keep their per-evidence logical order regardless of wall-clock ties.
func (s *Service) Timeline(ctx context.Context, caseID string) ([]Entry, error) {
	items, err := s.store.ListEvidenceByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errs.NotFound("case %s has no evidence", caseID)
	}

	var entries []Entry
	for _, item := range items {
		events, err := s.store.ListEvents(ctx, item.EvidenceID)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			entries = append(entries, Entry{
				At:         ev.Timestamp,
				Kind:       EntryCustodyEvent,
				EvidenceID: ev.EvidenceID,
				Seq:        ev.Seq,
				Summary:    ev.EventType + " by " + ev.Actor,
				Detail: map[string]any{
					"event_id":   ev.EventID,
					"event_type": ev.EventType,
					"actor":      ev.Actor,
					"event_hash": ev.EventHash,
				},
			})
		}
	}

	receipts, err := s.store.ListReceiptsByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	for _, r := range receipts {
		at := r.SubmittedAt
		if r.ConfirmedAt != nil {
			at = *r.ConfirmedAt
		}
		entries = append(entries, Entry{
			At:         at,
			Kind:       EntryAnchorReceipt,
			EvidenceID: r.EvidenceID,
			Summary:    "anchor " + r.Status,
			Detail: map[string]any{
				"receipt_id":    r.ReceiptID,
				"status":        r.Status,
				"external_ref":  r.ExternalRef,
				"ledger_digest": r.LedgerDigest,
				"attempts":      r.Attempts,
			},
		})
	}

	analyses, err := s.store.ListAnalysesByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	for _, a := range analyses {
		entries = append(entries, Entry{
			At:      a.CreatedAt,
			Kind:    EntryAnalysis,
			Summary: analysisSummary(a),
			Detail: map[string]any{
				"analysis_id":       a.AnalysisID,
				"left_evidence_id":  a.LeftEvidenceID,
				"right_evidence_id": a.RightEvidenceID,
				"similarity_score":  a.SimilarityScore,
				"discrepancies":     a.Discrepancies,
			},
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].At.Equal(entries[j].At) {
			return entries[i].At.Before(entries[j].At)
		}
		if entries[i].EvidenceID != entries[j].EvidenceID {
			return entries[i].EvidenceID < entries[j].EvidenceID
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries, nil
}

func analysisSummary(a store.Analysis) string {
	n := len(a.Discrepancies)
	switch n {
	case 0:
		return "analysis found no discrepancies"
	case 1:
		return "analysis found 1 discrepancy"
	default:
		return "analysis found " + strconv.Itoa(n) + " discrepancies"
	}
}
