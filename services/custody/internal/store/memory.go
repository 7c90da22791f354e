package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Anvesh1211/indic-justice-league/pkg/errs"
)

// Memory is the in-memory Store used by tests and by evidencectl. Same
// contract as the Postgres store, including the (evidence_id, seq)
// uniqueness guarantee.
type Memory struct {
	mu          sync.Mutex
	evidence    map[string]EvidenceItem
	events      map[string][]CustodyEvent // keyed by evidence id, ordered by seq
	receipts    map[string][]AnchorReceipt
	analyses    map[string]Analysis // keyed by unordered pair key
	idempotency map[string]idemRecord
}

type idemRecord struct {
	status int
	body   map[string]any
}

func NewMemory() *Memory {
	return &Memory{
		evidence:    make(map[string]EvidenceItem),
		events:      make(map[string][]CustodyEvent),
		receipts:    make(map[string][]AnchorReceipt),
		analyses:    make(map[string]Analysis),
		idempotency: make(map[string]idemRecord),
	}
}

func (m *Memory) InsertEvidence(ctx context.Context, item EvidenceItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.evidence[item.EvidenceID]; ok {
		return errs.Conflict("evidence %s already exists", item.EvidenceID)
	}
	m.evidence[item.EvidenceID] = item
	return nil
}

func (m *Memory) GetEvidence(ctx context.Context, evidenceID string) (EvidenceItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.evidence[evidenceID]
	return item, ok, nil
}

func (m *Memory) ListEvidenceByCase(ctx context.Context, caseID string) ([]EvidenceItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EvidenceItem
	for _, item := range m.evidence {
		if item.CaseID == caseID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (m *Memory) LastEvent(ctx context.Context, evidenceID string) (CustodyEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain := m.events[evidenceID]
	if len(chain) == 0 {
		return CustodyEvent{}, false, nil
	}
	return chain[len(chain)-1], true, nil
}

func (m *Memory) InsertEvent(ctx context.Context, ev CustodyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain := m.events[ev.EvidenceID]
	for _, existing := range chain {
		if existing.Seq == ev.Seq {
			return errs.Conflict("custody event seq %d already recorded for %s", ev.Seq, ev.EvidenceID)
		}
	}
	m.events[ev.EvidenceID] = append(chain, ev)
	return nil
}

func (m *Memory) ListEvents(ctx context.Context, evidenceID string) ([]CustodyEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain := m.events[evidenceID]
	out := make([]CustodyEvent, len(chain))
	copy(out, chain)
	return out, nil
}

// CorruptEvent overwrites a stored event field in place. Test hook for
// tamper scenarios; no Postgres counterpart.
func (m *Memory) CorruptEvent(evidenceID string, seq int64, mutate func(*CustodyEvent)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain := m.events[evidenceID]
	for i := range chain {
		if chain[i].Seq == seq {
			mutate(&chain[i])
			return true
		}
	}
	return false
}

func (m *Memory) UpsertReceipt(ctx context.Context, r AnchorReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.receipts[r.EvidenceID]
	for i := range list {
		if list[i].ReceiptID == r.ReceiptID {
			list[i] = r
			return nil
		}
	}
	m.receipts[r.EvidenceID] = append(list, r)
	return nil
}

func (m *Memory) LatestReceipt(ctx context.Context, evidenceID string) (AnchorReceipt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.receipts[evidenceID]
	if len(list) == 0 {
		return AnchorReceipt{}, false, nil
	}
	return list[len(list)-1], true, nil
}

func (m *Memory) ListReceiptsByCase(ctx context.Context, caseID string) ([]AnchorReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AnchorReceipt
	for evidenceID, list := range m.receipts {
		item, ok := m.evidence[evidenceID]
		if !ok || item.CaseID != caseID {
			continue
		}
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (m *Memory) ReplaceAnalysis(ctx context.Context, a Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[pairKey(a.LeftEvidenceID, a.RightEvidenceID)] = a
	return nil
}

func (m *Memory) ListAnalysesByCase(ctx context.Context, caseID string) ([]Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Analysis
	for _, a := range m.analyses {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) GetIdempotencyRecord(ctx context.Context, actor, key, endpoint string) (int, map[string]any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.idempotency[actor+"|"+key+"|"+endpoint]
	if !ok {
		return 0, nil, false, nil
	}
	return rec.status, rec.body, true, nil
}

func (m *Memory) SaveIdempotencyRecord(ctx context.Context, actor, key, endpoint string, responseStatus int, responseBody map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idempotency[actor+"|"+key+"|"+endpoint] = idemRecord{status: responseStatus, body: responseBody}
	return nil
}
