// Package ledger maintains the per-evidence chain of custody: an
// append-only sequence of hash-linked events whose integrity is verifiable
// by recomputation from genesis.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/Anvesh1211/indic-justice-league/pkg/errs"
	"github.com/Anvesh1211/indic-justice-league/pkg/fingerprint"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/store"

	"github.com/google/uuid"
)

// GenesisHash is the prev_event_hash of the first event in every chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

const (
	EventCollected = "COLLECTED"
	EventHashed    = "HASHED"
	EventAnchored  = "ANCHORED"
	EventAccessed  = "ACCESSED"
	EventAnalyzed  = "ANALYZED"
	EventVerified  = "VERIFIED"
)

var validEventTypes = map[string]bool{
	EventCollected: true,
	EventHashed:    true,
	EventAnchored:  true,
	EventAccessed:  true,
	EventAnalyzed:  true,
	EventVerified:  true,
}

type Ledger struct {
	store store.Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st store.Store) *Ledger {
	return &Ledger{store: st, now: time.Now, locks: make(map[string]*sync.Mutex)}
}

// NewWithClock injects the clock for tests.
func NewWithClock(st store.Store, now func() time.Time) *Ledger {
	l := New(st)
	l.now = now
	return l
}

// lockFor serializes appends per evidence item. Appends for distinct items
// proceed in parallel.
func (l *Ledger) lockFor(evidenceID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[evidenceID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[evidenceID] = m
	}
	return m
}

// Append records a custody event at the head of the evidence item's chain
// and returns it. The first event for an item must be COLLECTED; a second
// COLLECTED for the same item is a conflict, never a fork.
func (l *Ledger) Append(ctx context.Context, evidenceID, eventType, actor string, payload map[string]any) (store.CustodyEvent, error) {
	eventType = strings.ToUpper(strings.TrimSpace(eventType))
	if !validEventTypes[eventType] {
		return store.CustodyEvent{}, errs.Input("unknown event type %q", eventType)
	}
	if evidenceID == "" || actor == "" {
		return store.CustodyEvent{}, errs.Input("evidence id and actor are required")
	}

	lock := l.lockFor(evidenceID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok, err := l.store.GetEvidence(ctx, evidenceID); err != nil {
		return store.CustodyEvent{}, err
	} else if !ok {
		return store.CustodyEvent{}, errs.NotFound("evidence %s not found", evidenceID)
	}

	last, hasLast, err := l.store.LastEvent(ctx, evidenceID)
	if err != nil {
		return store.CustodyEvent{}, err
	}
	if !hasLast && eventType != EventCollected {
		return store.CustodyEvent{}, errs.NotFound("no custody chain for %s; first event must be COLLECTED", evidenceID)
	}
	if hasLast && eventType == EventCollected {
		return store.CustodyEvent{}, errs.Conflict("evidence %s already collected", evidenceID)
	}

	prevHash := GenesisHash
	var seq int64 = 1
	if hasLast {
		prevHash = last.EventHash
		seq = last.Seq + 1
	}

	payloadHash, err := fingerprint.DigestCanonical(payload)
	if err != nil {
		return store.CustodyEvent{}, err
	}

	ev := store.CustodyEvent{
		EventID:       "cev_" + uuid.NewString(),
		EvidenceID:    evidenceID,
		Seq:           seq,
		EventType:     eventType,
		Actor:         actor,
		Timestamp:     l.now().UTC(),
		PrevEventHash: prevHash,
		PayloadHash:   payloadHash,
		Payload:       payload,
	}
	ev.EventHash = EventHash(ev)

	if err := l.store.InsertEvent(ctx, ev); err != nil {
		return store.CustodyEvent{}, err
	}
	return ev, nil
}

// EventHash derives the chained hash of an event:
// H(prevEventHash || eventType || actor || timestamp || payloadHash).
func EventHash(ev store.CustodyEvent) string {
	h := sha256.New()
	h.Write([]byte(ev.PrevEventHash))
	h.Write([]byte("|"))
	h.Write([]byte(ev.EventType))
	h.Write([]byte("|"))
	h.Write([]byte(ev.Actor))
	h.Write([]byte("|"))
	h.Write([]byte(ev.Timestamp.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte("|"))
	h.Write([]byte(ev.PayloadHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Link is one recomputed step of a chain verification.
type Link struct {
	Seq          int64  `json:"seq"`
	EventType    string `json:"event_type"`
	StoredHash   string `json:"stored_hash"`
	ComputedHash string `json:"computed_hash"`
	OK           bool   `json:"ok"`
}

type VerifyResult struct {
	EvidenceID  string `json:"evidence_id"`
	OK          bool   `json:"ok"`
	Events      int    `json:"events"`
	FirstBadSeq int64  `json:"first_bad_seq,omitempty"`
	Chain       []Link `json:"chain"`
}

// Verify recomputes the chain from genesis. It stops at the first
// mismatch: links before the corruption point still validate, everything
// from the corruption point on is unverifiable.
func (l *Ledger) Verify(ctx context.Context, evidenceID string) (VerifyResult, error) {
	if _, ok, err := l.store.GetEvidence(ctx, evidenceID); err != nil {
		return VerifyResult{}, err
	} else if !ok {
		return VerifyResult{}, errs.NotFound("evidence %s not found", evidenceID)
	}
	events, err := l.store.ListEvents(ctx, evidenceID)
	if err != nil {
		return VerifyResult{}, err
	}

	res := VerifyResult{EvidenceID: evidenceID, OK: true, Events: len(events)}
	expectedPrev := GenesisHash
	var expectedSeq int64 = 1
	for _, ev := range events {
		link := Link{Seq: ev.Seq, EventType: ev.EventType, StoredHash: ev.EventHash}
		bad := ev.Seq != expectedSeq || ev.PrevEventHash != expectedPrev
		recomputed := EventHash(ev)
		link.ComputedHash = recomputed
		if bad || recomputed != ev.EventHash {
			link.OK = false
			res.Chain = append(res.Chain, link)
			res.OK = false
			res.FirstBadSeq = ev.Seq
			break
		}
		link.OK = true
		res.Chain = append(res.Chain, link)
		expectedPrev = ev.EventHash
		expectedSeq = ev.Seq + 1
	}
	return res, nil
}

// Digest hashes the chain head state: the newline-joined event hashes.
// This is the value handed to the anchor gateway.
func (l *Ledger) Digest(ctx context.Context, evidenceID string) (string, error) {
	events, err := l.store.ListEvents(ctx, evidenceID)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", errs.NotFound("no custody chain for %s", evidenceID)
	}
	var b strings.Builder
	for _, ev := range events {
		b.WriteString(ev.EventHash)
		b.WriteString("\n")
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}
