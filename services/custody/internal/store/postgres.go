package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Anvesh1211/indic-justice-league/pkg/detect"
	"github.com/Anvesh1211/indic-justice-league/pkg/errs"
	"github.com/Anvesh1211/indic-justice-league/pkg/facts"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store against the schema in schema.sql.
type Postgres struct{ DB *pgxpool.Pool }

func NewPostgres(db *pgxpool.Pool) *Postgres { return &Postgres{DB: db} }

func (s *Postgres) InsertEvidence(ctx context.Context, item EvidenceItem) error {
	_, err := s.DB.Exec(ctx, `INSERT INTO evidence_items(evidence_id,case_id,content_hash,content,document_type,uploaded_by,uploaded_at)
VALUES($1,$2,$3,$4,$5,$6,$7)`,
		item.EvidenceID, item.CaseID, item.ContentHash, item.Content, item.DocumentType, item.UploadedBy, item.UploadedAt)
	if isUniqueViolation(err) {
		return errs.Conflict("evidence %s already exists", item.EvidenceID)
	}
	return err
}

func (s *Postgres) GetEvidence(ctx context.Context, evidenceID string) (EvidenceItem, bool, error) {
	var item EvidenceItem
	err := s.DB.QueryRow(ctx, `SELECT evidence_id,case_id,content_hash,content,document_type,uploaded_by,uploaded_at
FROM evidence_items WHERE evidence_id=$1`, evidenceID).
		Scan(&item.EvidenceID, &item.CaseID, &item.ContentHash, &item.Content, &item.DocumentType, &item.UploadedBy, &item.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return EvidenceItem{}, false, nil
	}
	return item, err == nil, err
}

func (s *Postgres) ListEvidenceByCase(ctx context.Context, caseID string) ([]EvidenceItem, error) {
	rows, err := s.DB.Query(ctx, `SELECT evidence_id,case_id,content_hash,content,document_type,uploaded_by,uploaded_at
FROM evidence_items WHERE case_id=$1 ORDER BY uploaded_at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EvidenceItem
	for rows.Next() {
		var item EvidenceItem
		if err := rows.Scan(&item.EvidenceID, &item.CaseID, &item.ContentHash, &item.Content, &item.DocumentType, &item.UploadedBy, &item.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Postgres) LastEvent(ctx context.Context, evidenceID string) (CustodyEvent, bool, error) {
	ev, err := s.scanEvent(s.DB.QueryRow(ctx, `SELECT event_id,evidence_id,seq,event_type,actor,ts,prev_event_hash,payload_hash,event_hash,payload
FROM custody_events WHERE evidence_id=$1 ORDER BY seq DESC LIMIT 1`, evidenceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return CustodyEvent{}, false, nil
	}
	return ev, err == nil, err
}

func (s *Postgres) InsertEvent(ctx context.Context, ev CustodyEvent) error {
	payload, _ := json.Marshal(ev.Payload)
	_, err := s.DB.Exec(ctx, `INSERT INTO custody_events(event_id,evidence_id,seq,event_type,actor,ts,prev_event_hash,payload_hash,event_hash,payload)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb)`,
		ev.EventID, ev.EvidenceID, ev.Seq, ev.EventType, ev.Actor, ev.Timestamp, ev.PrevEventHash, ev.PayloadHash, ev.EventHash, string(payload))
	if isUniqueViolation(err) {
		return errs.Conflict("custody event seq %d already recorded for %s", ev.Seq, ev.EvidenceID)
	}
	return err
}

func (s *Postgres) ListEvents(ctx context.Context, evidenceID string) ([]CustodyEvent, error) {
	rows, err := s.DB.Query(ctx, `SELECT event_id,evidence_id,seq,event_type,actor,ts,prev_event_hash,payload_hash,event_hash,payload
FROM custody_events WHERE evidence_id=$1 ORDER BY seq ASC`, evidenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CustodyEvent
	for rows.Next() {
		ev, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func (s *Postgres) scanEvent(row rowScanner) (CustodyEvent, error) {
	var ev CustodyEvent
	var payload []byte
	err := row.Scan(&ev.EventID, &ev.EvidenceID, &ev.Seq, &ev.EventType, &ev.Actor, &ev.Timestamp,
		&ev.PrevEventHash, &ev.PayloadHash, &ev.EventHash, &payload)
	if err != nil {
		return CustodyEvent{}, err
	}
	_ = json.Unmarshal(payload, &ev.Payload)
	return ev, nil
}

func (s *Postgres) UpsertReceipt(ctx context.Context, r AnchorReceipt) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO anchor_receipts(receipt_id,evidence_id,document_type,ledger_digest,external_ref,status,attempts,submitted_at,confirmed_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (receipt_id) DO UPDATE SET external_ref=$5, status=$6, attempts=$7, confirmed_at=$9
`, r.ReceiptID, r.EvidenceID, r.DocumentType, r.LedgerDigest, r.ExternalRef, r.Status, r.Attempts, r.SubmittedAt, r.ConfirmedAt)
	return err
}

func (s *Postgres) LatestReceipt(ctx context.Context, evidenceID string) (AnchorReceipt, bool, error) {
	r, err := scanReceipt(s.DB.QueryRow(ctx, `SELECT receipt_id,evidence_id,document_type,ledger_digest,external_ref,status,attempts,submitted_at,confirmed_at
FROM anchor_receipts WHERE evidence_id=$1 ORDER BY submitted_at DESC LIMIT 1`, evidenceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return AnchorReceipt{}, false, nil
	}
	return r, err == nil, err
}

func (s *Postgres) ListReceiptsByCase(ctx context.Context, caseID string) ([]AnchorReceipt, error) {
	rows, err := s.DB.Query(ctx, `SELECT r.receipt_id,r.evidence_id,r.document_type,r.ledger_digest,r.external_ref,r.status,r.attempts,r.submitted_at,r.confirmed_at
FROM anchor_receipts r JOIN evidence_items e ON e.evidence_id = r.evidence_id
WHERE e.case_id=$1 ORDER BY r.submitted_at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AnchorReceipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReceipt(row rowScanner) (AnchorReceipt, error) {
	var r AnchorReceipt
	err := row.Scan(&r.ReceiptID, &r.EvidenceID, &r.DocumentType, &r.LedgerDigest, &r.ExternalRef, &r.Status, &r.Attempts, &r.SubmittedAt, &r.ConfirmedAt)
	return r, err
}

func (s *Postgres) ReplaceAnalysis(ctx context.Context, a Analysis) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Supersede any prior analysis of the pair wholesale.
	_, err = tx.Exec(ctx, `DELETE FROM analyses WHERE pair_key=$1`, pairKey(a.LeftEvidenceID, a.RightEvidenceID))
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO analyses(analysis_id,pair_key,case_id,left_evidence_id,right_evidence_id,similarity_score,created_at)
VALUES($1,$2,$3,$4,$5,$6,$7)`,
		a.AnalysisID, pairKey(a.LeftEvidenceID, a.RightEvidenceID), a.CaseID, a.LeftEvidenceID, a.RightEvidenceID, a.SimilarityScore, a.CreatedAt)
	if err != nil {
		return err
	}
	for _, d := range a.Discrepancies {
		_, err = tx.Exec(ctx, `INSERT INTO discrepancies(discrepancy_id,analysis_id,fact_kind,left_start,left_end,right_start,right_end,left_value,right_value,description,severity,confidence)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			d.DiscrepancyID, a.AnalysisID, string(d.FactKind), d.LeftSpan.Start, d.LeftSpan.End, d.RightSpan.Start, d.RightSpan.End,
			d.LeftValue, d.RightValue, d.Description, string(d.Severity), d.Confidence)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Postgres) ListAnalysesByCase(ctx context.Context, caseID string) ([]Analysis, error) {
	rows, err := s.DB.Query(ctx, `SELECT analysis_id,case_id,left_evidence_id,right_evidence_id,similarity_score,created_at
FROM analyses WHERE case_id=$1 ORDER BY created_at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Analysis
	for rows.Next() {
		var a Analysis
		if err := rows.Scan(&a.AnalysisID, &a.CaseID, &a.LeftEvidenceID, &a.RightEvidenceID, &a.SimilarityScore, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		ds, err := s.listDiscrepancies(ctx, out[i].AnalysisID)
		if err != nil {
			return nil, err
		}
		out[i].Discrepancies = ds
	}
	return out, nil
}

func (s *Postgres) listDiscrepancies(ctx context.Context, analysisID string) ([]detect.Discrepancy, error) {
	rows, err := s.DB.Query(ctx, `SELECT discrepancy_id,fact_kind,left_start,left_end,right_start,right_end,left_value,right_value,description,severity,confidence
FROM discrepancies WHERE analysis_id=$1 ORDER BY left_start ASC, fact_kind ASC`, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []detect.Discrepancy
	for rows.Next() {
		var d detect.Discrepancy
		var kind, severity string
		if err := rows.Scan(&d.DiscrepancyID, &kind, &d.LeftSpan.Start, &d.LeftSpan.End, &d.RightSpan.Start, &d.RightSpan.End,
			&d.LeftValue, &d.RightValue, &d.Description, &severity, &d.Confidence); err != nil {
			return nil, err
		}
		d.FactKind = facts.Kind(kind)
		d.Severity = detect.Severity(severity)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Postgres) GetIdempotencyRecord(ctx context.Context, actor, key, endpoint string) (int, map[string]any, bool, error) {
	var status int
	var body []byte
	err := s.DB.QueryRow(ctx, `SELECT response_status,response_body FROM idempotency_records
WHERE actor=$1 AND idem_key=$2 AND endpoint=$3`, actor, key, endpoint).Scan(&status, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	var obj map[string]any
	_ = json.Unmarshal(body, &obj)
	return status, obj, true, nil
}

func (s *Postgres) SaveIdempotencyRecord(ctx context.Context, actor, key, endpoint string, responseStatus int, responseBody map[string]any) error {
	b, _ := json.Marshal(responseBody)
	_, err := s.DB.Exec(ctx, `
INSERT INTO idempotency_records(actor,idem_key,endpoint,response_status,response_body)
VALUES($1,$2,$3,$4,$5::jsonb)
ON CONFLICT (actor,idem_key,endpoint) DO NOTHING
`, actor, key, endpoint, responseStatus, string(b))
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
