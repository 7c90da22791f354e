package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Anvesh1211/indic-justice-league/pkg/anchor"
	"github.com/Anvesh1211/indic-justice-league/pkg/detect"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/anchors"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/ledger"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/store"
)

type stubGateway struct{}

func (stubGateway) Anchor(ctx context.Context, evidenceID, ledgerDigest string) (anchor.Result, error) {
	return anchor.Result{ExternalRef: "tsa:" + ledgerDigest[:8], ConfirmedAt: time.Now().UTC()}, nil
}

func newTestServer(t *testing.T) (http.Handler, *store.Memory, *anchors.Service) {
	t.Helper()
	st := store.NewMemory()
	led := ledger.New(st)
	sub := anchor.NewSubmitter(stubGateway{})
	sub.BaseDelay = time.Millisecond
	anc := anchors.New(st, led, sub, nil)
	return NewHandler(st, led, detect.Default(), anc).Routes(), st, anc
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func register(t *testing.T, h http.Handler, caseID, content string) string {
	t.Helper()
	rec, out := doJSON(t, h, "POST", "/evidence", map[string]any{
		"case_id": caseID, "content": content, "document_type": "FIR", "uploaded_by": "io_sharma",
	}, nil)
	if rec.Code != 201 {
		t.Fatalf("register status = %d body %s", rec.Code, rec.Body.String())
	}
	return out["evidence_id"].(string)
}

func TestRegisterEvidenceBuildsChain(t *testing.T) {
	h, st, _ := newTestServer(t)
	rec, out := doJSON(t, h, "POST", "/evidence", map[string]any{
		"case_id": "case_1", "content": "FIR text", "document_type": "fir", "uploaded_by": "io_sharma",
	}, nil)
	if rec.Code != 201 {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if out["document_type"] != "FIR" {
		t.Fatalf("document_type not normalized: %v", out["document_type"])
	}
	hash, _ := out["content_hash"].(string)
	if len(hash) != 64 {
		t.Fatalf("content_hash = %q", hash)
	}

	events, _ := st.ListEvents(context.Background(), out["evidence_id"].(string))
	if len(events) != 2 || events[0].EventType != ledger.EventCollected || events[1].EventType != ledger.EventHashed {
		t.Fatalf("unexpected chain: %+v", events)
	}
	if events[1].Payload["content_hash"] != hash {
		t.Fatalf("HASHED payload does not carry the content hash")
	}
}

func TestRegisterEvidenceIdempotentReplay(t *testing.T) {
	h, st, _ := newTestServer(t)
	body := map[string]any{
		"case_id": "case_1", "content": "FIR text", "document_type": "FIR", "uploaded_by": "io_sharma",
	}
	headers := map[string]string{"Idempotency-Key": "k1"}

	rec1, out1 := doJSON(t, h, "POST", "/evidence", body, headers)
	rec2, out2 := doJSON(t, h, "POST", "/evidence", body, headers)
	if rec1.Code != 201 || rec2.Code != 201 {
		t.Fatalf("statuses = %d, %d", rec1.Code, rec2.Code)
	}
	if out1["evidence_id"] != out2["evidence_id"] {
		t.Fatalf("replay created a second item: %v vs %v", out1["evidence_id"], out2["evidence_id"])
	}
	items, _ := st.ListEvidenceByCase(context.Background(), "case_1")
	if len(items) != 1 {
		t.Fatalf("stored items = %d, want 1", len(items))
	}
}

func TestRegisterEvidenceRejectsEmptyContent(t *testing.T) {
	h, _, _ := newTestServer(t)
	rec, out := doJSON(t, h, "POST", "/evidence", map[string]any{
		"case_id": "case_1", "content": "  ", "uploaded_by": "io_sharma",
	}, nil)
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	errObj := out["error"].(map[string]any)
	if errObj["code"] != "BAD_INPUT" {
		t.Fatalf("code = %v", errObj["code"])
	}
}

func TestGetEvidenceAccessMark(t *testing.T) {
	h, st, _ := newTestServer(t)
	id := register(t, h, "case_1", "FIR text")

	rec, _ := doJSON(t, h, "GET", "/evidence/"+id, nil, nil)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	events, _ := st.ListEvents(context.Background(), id)
	if len(events) != 2 {
		t.Fatalf("anonymous read must not touch the chain, got %d events", len(events))
	}

	rec, _ = doJSON(t, h, "GET", "/evidence/"+id+"?actor=clerk_verma", nil, nil)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	events, _ = st.ListEvents(context.Background(), id)
	last := events[len(events)-1]
	if last.EventType != ledger.EventAccessed || last.Actor != "clerk_verma" {
		t.Fatalf("expected ACCESSED by clerk_verma, got %+v", last)
	}
}

func TestGetEvidenceNotFound(t *testing.T) {
	h, _, _ := newTestServer(t)
	rec, out := doJSON(t, h, "GET", "/evidence/ev_missing", nil, nil)
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	errObj := out["error"].(map[string]any)
	if errObj["code"] != "NOT_FOUND" {
		t.Fatalf("code = %v", errObj["code"])
	}
}

func TestVerifyCleanAndRecorded(t *testing.T) {
	h, st, _ := newTestServer(t)
	id := register(t, h, "case_1", "FIR text")

	rec, out := doJSON(t, h, "GET", "/evidence/"+id+"/verify", nil, nil)
	if rec.Code != 200 || out["ok"] != true {
		t.Fatalf("clean chain: status %d body %s", rec.Code, rec.Body.String())
	}
	events, _ := st.ListEvents(context.Background(), id)
	if len(events) != 2 {
		t.Fatalf("plain verify must be read-only")
	}

	rec, _ = doJSON(t, h, "GET", "/evidence/"+id+"/verify?record=true&actor=registrar", nil, nil)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	events, _ = st.ListEvents(context.Background(), id)
	last := events[len(events)-1]
	if last.EventType != ledger.EventVerified {
		t.Fatalf("expected VERIFIED event, got %s", last.EventType)
	}
}

func TestVerifyTamperedChain(t *testing.T) {
	h, st, _ := newTestServer(t)
	id := register(t, h, "case_1", "FIR text")
	if !st.CorruptEvent(id, 2, func(ev *store.CustodyEvent) { ev.PayloadHash = "deadbeef" }) {
		t.Fatalf("corrupt hook missed seq 2")
	}

	rec, out := doJSON(t, h, "GET", "/evidence/"+id+"/verify?record=true", nil, nil)
	if rec.Code != 409 {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if out["ok"] != false || out["first_bad_seq"] != float64(2) {
		t.Fatalf("verdict = %s", rec.Body.String())
	}
	// record=true must not mark a broken chain.
	events, _ := st.ListEvents(context.Background(), id)
	if events[len(events)-1].EventType == ledger.EventVerified {
		t.Fatalf("broken chain must not receive a VERIFIED event")
	}
}

func TestAnalysisByText(t *testing.T) {
	h, st, _ := newTestServer(t)
	rec, out := doJSON(t, h, "POST", "/analysis", map[string]any{
		"left_text":  "The incident occurred at 10:00 PM on Central Street.",
		"right_text": "The incident occurred at 8:00 PM on Market Road.",
	}, nil)
	if rec.Code != 200 {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	report := out["report"].(map[string]any)
	if n := len(report["discrepancies"].([]any)); n != 2 {
		t.Fatalf("discrepancies = %d, want 2", n)
	}
	analyses, _ := st.ListAnalysesByCase(context.Background(), "case_1")
	if len(analyses) != 0 {
		t.Fatalf("text analysis must not persist anything")
	}
}

func TestAnalysisByEvidenceIDs(t *testing.T) {
	h, st, _ := newTestServer(t)
	left := register(t, h, "case_1", "The incident occurred at 10:00 PM on Central Street.")
	right := register(t, h, "case_1", "The incident occurred at 8:00 PM on Market Road.")

	rec, out := doJSON(t, h, "POST", "/analysis", map[string]any{
		"left_evidence_id": left, "right_evidence_id": right, "requested_by": "analyst_rao",
	}, nil)
	if rec.Code != 200 {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	analysis := out["analysis"].(map[string]any)
	if analysis["case_id"] != "case_1" {
		t.Fatalf("analysis = %+v", analysis)
	}

	analyses, _ := st.ListAnalysesByCase(context.Background(), "case_1")
	if len(analyses) != 1 || len(analyses[0].Discrepancies) != 2 {
		t.Fatalf("persisted analyses = %+v", analyses)
	}
	for _, id := range []string{left, right} {
		events, _ := st.ListEvents(context.Background(), id)
		last := events[len(events)-1]
		if last.EventType != ledger.EventAnalyzed || last.Actor != "analyst_rao" {
			t.Fatalf("chain %s missing ANALYZED mark: %+v", id, last)
		}
	}

	// Re-running the pair supersedes rather than accumulates.
	if rec, _ := doJSON(t, h, "POST", "/analysis", map[string]any{
		"left_evidence_id": left, "right_evidence_id": right,
	}, nil); rec.Code != 200 {
		t.Fatalf("rerun status = %d", rec.Code)
	}
	analyses, _ = st.ListAnalysesByCase(context.Background(), "case_1")
	if len(analyses) != 1 {
		t.Fatalf("rerun accumulated: %d analyses", len(analyses))
	}
}

func TestAnalysisIdempotentReplay(t *testing.T) {
	h, st, _ := newTestServer(t)
	left := register(t, h, "case_1", "seen at 10:00 PM")
	right := register(t, h, "case_1", "seen at 8:00 PM")
	body := map[string]any{
		"left_evidence_id": left, "right_evidence_id": right, "requested_by": "analyst_rao",
	}
	headers := map[string]string{"Idempotency-Key": "k1"}

	_, out1 := doJSON(t, h, "POST", "/analysis", body, headers)
	_, out2 := doJSON(t, h, "POST", "/analysis", body, headers)
	id1 := out1["analysis"].(map[string]any)["analysis_id"]
	id2 := out2["analysis"].(map[string]any)["analysis_id"]
	if id1 != id2 {
		t.Fatalf("replay produced a new analysis: %v vs %v", id1, id2)
	}

	// The replay must not re-mark the chains.
	events, _ := st.ListEvents(context.Background(), left)
	marks := 0
	for _, ev := range events {
		if ev.EventType == ledger.EventAnalyzed {
			marks++
		}
	}
	if marks != 1 {
		t.Fatalf("ANALYZED marks = %d, want 1", marks)
	}
}

func TestAnalysisRejectsCrossCaseAndMixedModes(t *testing.T) {
	h, _, _ := newTestServer(t)
	left := register(t, h, "case_1", "statement one")
	right := register(t, h, "case_2", "statement two")

	rec, _ := doJSON(t, h, "POST", "/analysis", map[string]any{
		"left_evidence_id": left, "right_evidence_id": right,
	}, nil)
	if rec.Code != 400 {
		t.Fatalf("cross-case status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, h, "POST", "/analysis", map[string]any{
		"left_evidence_id": left, "right_text": "statement two",
	}, nil)
	if rec.Code != 400 {
		t.Fatalf("mixed mode status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, h, "POST", "/analysis", map[string]any{
		"left_evidence_id": left, "right_evidence_id": left,
	}, nil)
	if rec.Code != 400 {
		t.Fatalf("self-compare status = %d, want 400", rec.Code)
	}
}

func TestAnchorEndpoint(t *testing.T) {
	h, st, anc := newTestServer(t)
	id := register(t, h, "case_1", "FIR text")

	rec, out := doJSON(t, h, "POST", "/evidence/"+id+"/anchor?actor=registrar", nil, nil)
	if rec.Code != 202 {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	receipt := out["receipt"].(map[string]any)
	if receipt["status"] != store.ReceiptPending {
		t.Fatalf("receipt status = %v, want PENDING", receipt["status"])
	}

	anc.Wait()
	final, ok, _ := st.LatestReceipt(context.Background(), id)
	if !ok || final.Status != store.ReceiptConfirmed {
		t.Fatalf("final receipt = %+v", final)
	}
	events, _ := st.ListEvents(context.Background(), id)
	if events[len(events)-1].EventType != ledger.EventAnchored {
		t.Fatalf("missing ANCHORED event")
	}
}

func TestTimelineEndpoint(t *testing.T) {
	h, _, _ := newTestServer(t)
	register(t, h, "case_1", "FIR text")

	rec, out := doJSON(t, h, "GET", "/case/case_1/timeline", nil, nil)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if n := len(out["entries"].([]any)); n != 2 {
		t.Fatalf("entries = %d, want 2", n)
	}

	rec, _ = doJSON(t, h, "GET", "/case/case_missing/timeline", nil, nil)
	if rec.Code != 404 {
		t.Fatalf("unknown case status = %d, want 404", rec.Code)
	}
}
