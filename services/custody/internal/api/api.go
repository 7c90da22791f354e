// Package api is the HTTP boundary of the custody service. Handlers parse
// and validate, delegate to the ledger, detector, and anchor services, and
// translate typed errors onto the wire envelope.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Anvesh1211/indic-justice-league/pkg/detect"
	"github.com/Anvesh1211/indic-justice-league/pkg/errs"
	"github.com/Anvesh1211/indic-justice-league/pkg/fingerprint"
	"github.com/Anvesh1211/indic-justice-league/pkg/httpx"
	"github.com/Anvesh1211/indic-justice-league/pkg/idempotency"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/anchors"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/ledger"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/store"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/timeline"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 5 << 20 // 5MB

type Handler struct {
	store    store.Store
	ledger   *ledger.Ledger
	detector *detect.Detector
	anchors  *anchors.Service
	timeline *timeline.Service
	now      func() time.Time
}

func NewHandler(st store.Store, led *ledger.Ledger, det *detect.Detector, anc *anchors.Service) *Handler {
	return &Handler{
		store:    st,
		ledger:   led,
		detector: det,
		anchors:  anc,
		timeline: timeline.New(st),
		now:      time.Now,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Post("/evidence", h.handleRegisterEvidence)
	r.Get("/evidence/{evidence_id}", h.handleGetEvidence)
	r.Post("/evidence/{evidence_id}/anchor", h.handleAnchor)
	r.Get("/evidence/{evidence_id}/verify", h.handleVerify)
	r.Post("/analysis", h.handleAnalysis)
	r.Get("/case/{case_id}/timeline", h.handleTimeline)
	return r
}

type registerEvidenceRequest struct {
	CaseID       string `json:"case_id"`
	Content      string `json:"content"`
	DocumentType string `json:"document_type"`
	UploadedBy   string `json:"uploaded_by"`
}

func (h *Handler) handleRegisterEvidence(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req registerEvidenceRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, 413, "PAYLOAD_TOO_LARGE", "payload exceeds 5MB limit", nil)
			return
		}
		httpx.WriteError(w, 400, "BAD_INPUT", err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.CaseID) == "" || strings.TrimSpace(req.UploadedBy) == "" {
		httpx.WriteError(w, 400, "BAD_INPUT", "case_id and uploaded_by are required", nil)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		httpx.WriteError(w, 400, "BAD_INPUT", "content must be non-empty", nil)
		return
	}

	actor := idempotency.Actor{
		ActorID:        req.UploadedBy,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	if status, body, found, err := idempotency.Replay(r.Context(), h.store, actor, "POST /evidence"); err != nil {
		httpx.WriteErr(w, err)
		return
	} else if found {
		httpx.WriteJSON(w, status, body)
		return
	}

	contentHash, err := fingerprint.DigestString(req.Content)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}

	item := store.EvidenceItem{
		EvidenceID:   "ev_" + uuid.NewString(),
		CaseID:       req.CaseID,
		ContentHash:  contentHash,
		Content:      req.Content,
		DocumentType: strings.ToUpper(strings.TrimSpace(req.DocumentType)),
		UploadedBy:   req.UploadedBy,
		UploadedAt:   h.now().UTC(),
	}
	if err := h.store.InsertEvidence(r.Context(), item); err != nil {
		httpx.WriteErr(w, err)
		return
	}

	// Registration and its chain genesis must survive a client disconnect
	// together: once the item is stored, both events get appended.
	ctx := context.WithoutCancel(r.Context())
	if _, err := h.ledger.Append(ctx, item.EvidenceID, ledger.EventCollected, req.UploadedBy, map[string]any{
		"document_type": item.DocumentType,
	}); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if _, err := h.ledger.Append(ctx, item.EvidenceID, ledger.EventHashed, req.UploadedBy, map[string]any{
		"content_hash": contentHash,
	}); err != nil {
		httpx.WriteErr(w, err)
		return
	}

	body := map[string]any{
		"evidence_id":   item.EvidenceID,
		"case_id":       item.CaseID,
		"content_hash":  contentHash,
		"document_type": item.DocumentType,
		"uploaded_at":   item.UploadedAt,
	}
	if err := idempotency.Save(ctx, h.store, actor, "POST /evidence", 201, body); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, 201, body)
}

func (h *Handler) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	evidenceID := chi.URLParam(r, "evidence_id")
	item, ok, err := h.store.GetEvidence(r.Context(), evidenceID)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if !ok {
		httpx.WriteErr(w, errs.NotFound("evidence %s not found", evidenceID))
		return
	}

	body := map[string]any{"evidence": item}
	if receipt, ok, err := h.store.LatestReceipt(r.Context(), evidenceID); err != nil {
		httpx.WriteErr(w, err)
		return
	} else if ok {
		body["anchor_receipt"] = receipt
	}

	// A named reader leaves an ACCESSED mark on the chain; anonymous reads
	// do not touch it.
	if actor := strings.TrimSpace(r.URL.Query().Get("actor")); actor != "" {
		if _, err := h.ledger.Append(r.Context(), evidenceID, ledger.EventAccessed, actor, nil); err != nil {
			httpx.WriteErr(w, err)
			return
		}
	}
	httpx.WriteJSON(w, 200, body)
}

func (h *Handler) handleAnchor(w http.ResponseWriter, r *http.Request) {
	evidenceID := chi.URLParam(r, "evidence_id")
	actor := strings.TrimSpace(r.URL.Query().Get("actor"))
	if actor == "" {
		actor = "system"
	}
	receipt, err := h.anchors.Trigger(r.Context(), evidenceID, actor)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, 202, map[string]any{"receipt": receipt})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	evidenceID := chi.URLParam(r, "evidence_id")
	res, err := h.ledger.Verify(r.Context(), evidenceID)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if res.OK && r.URL.Query().Get("record") == "true" {
		actor := strings.TrimSpace(r.URL.Query().Get("actor"))
		if actor == "" {
			actor = "system"
		}
		if _, err := h.ledger.Append(r.Context(), evidenceID, ledger.EventVerified, actor, map[string]any{
			"events_verified": res.Events,
		}); err != nil {
			httpx.WriteErr(w, err)
			return
		}
	}
	status := 200
	if !res.OK {
		status = 409
	}
	httpx.WriteJSON(w, status, res)
}

type analysisRequest struct {
	LeftEvidenceID  string `json:"left_evidence_id,omitempty"`
	RightEvidenceID string `json:"right_evidence_id,omitempty"`
	LeftText        string `json:"left_text,omitempty"`
	RightText       string `json:"right_text,omitempty"`
	RequestedBy     string `json:"requested_by,omitempty"`
}

// handleAnalysis runs the contradiction detector either on two registered
// evidence items (persisting the result and marking both chains) or on two
// raw texts, which leaves no trace.
func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req analysisRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_INPUT", err.Error(), nil)
		return
	}

	byID := req.LeftEvidenceID != "" || req.RightEvidenceID != ""
	byText := req.LeftText != "" || req.RightText != ""
	if byID == byText {
		httpx.WriteError(w, 400, "BAD_INPUT",
			"provide either left_evidence_id/right_evidence_id or left_text/right_text", nil)
		return
	}

	if byText {
		report, err := h.detector.Analyze(req.LeftText, req.RightText)
		if err != nil {
			httpx.WriteErr(w, err)
			return
		}
		httpx.WriteJSON(w, 200, map[string]any{"report": report})
		return
	}

	if req.LeftEvidenceID == req.RightEvidenceID {
		httpx.WriteError(w, 400, "BAD_INPUT", "cannot analyze an evidence item against itself", nil)
		return
	}
	requestedBy := strings.TrimSpace(req.RequestedBy)
	if requestedBy == "" {
		requestedBy = "system"
	}
	idemActor := idempotency.Actor{
		ActorID:        requestedBy,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	if status, body, found, err := idempotency.Replay(r.Context(), h.store, idemActor, "POST /analysis"); err != nil {
		httpx.WriteErr(w, err)
		return
	} else if found {
		httpx.WriteJSON(w, status, body)
		return
	}
	left, ok, err := h.store.GetEvidence(r.Context(), req.LeftEvidenceID)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if !ok {
		httpx.WriteErr(w, errs.NotFound("evidence %s not found", req.LeftEvidenceID))
		return
	}
	right, ok, err := h.store.GetEvidence(r.Context(), req.RightEvidenceID)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if !ok {
		httpx.WriteErr(w, errs.NotFound("evidence %s not found", req.RightEvidenceID))
		return
	}
	if left.CaseID != right.CaseID {
		httpx.WriteError(w, 400, "BAD_INPUT", "evidence items belong to different cases", nil)
		return
	}

	report, err := h.detector.Analyze(left.Content, right.Content)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}

	analysis := store.Analysis{
		AnalysisID:      "ana_" + uuid.NewString(),
		CaseID:          left.CaseID,
		LeftEvidenceID:  left.EvidenceID,
		RightEvidenceID: right.EvidenceID,
		SimilarityScore: report.SimilarityScore,
		CreatedAt:       h.now().UTC(),
		Discrepancies:   report.Discrepancies,
	}

	// The analysis row and the ANALYZED marks belong together; a client
	// disconnect after persistence must not leave the chains unmarked.
	ctx := context.WithoutCancel(r.Context())
	if err := h.store.ReplaceAnalysis(ctx, analysis); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	reportHash, err := fingerprint.DigestCanonical(analysis)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	payload := map[string]any{
		"analysis_id":      analysis.AnalysisID,
		"report_hash":      reportHash,
		"similarity_score": report.SimilarityScore,
		"discrepancies":    len(report.Discrepancies),
	}
	for _, id := range []string{left.EvidenceID, right.EvidenceID} {
		if _, err := h.ledger.Append(ctx, id, ledger.EventAnalyzed, requestedBy, payload); err != nil {
			httpx.WriteErr(w, err)
			return
		}
	}

	body := map[string]any{"analysis": analysis, "report": report}
	if err := idempotency.Save(ctx, h.store, idemActor, "POST /analysis", 200, body); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, body)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "case_id")
	entries, err := h.timeline.Timeline(r.Context(), caseID)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"case_id": caseID, "entries": entries})
}
