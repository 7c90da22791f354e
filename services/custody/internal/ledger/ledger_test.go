package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Anvesh1211/indic-justice-league/pkg/errs"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/store"
)

func seedEvidence(t *testing.T, st *store.Memory, evidenceID string) {
	t.Helper()
	err := st.InsertEvidence(context.Background(), store.EvidenceItem{
		EvidenceID:   evidenceID,
		CaseID:       "case_1",
		ContentHash:  "abc",
		Content:      "incident at 10:00 PM on Central Street",
		DocumentType: "FIR",
		UploadedBy:   "io_officer",
		UploadedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed evidence: %v", err)
	}
}

func TestAppendBuildsLinkedChain(t *testing.T) {
	st := store.NewMemory()
	seedEvidence(t, st, "ev_1")
	l := New(st)
	ctx := context.Background()

	first, err := l.Append(ctx, "ev_1", EventCollected, "io_officer", map[string]any{"note": "received"})
	if err != nil {
		t.Fatalf("append collected: %v", err)
	}
	if first.Seq != 1 || first.PrevEventHash != GenesisHash {
		t.Fatalf("first event not genesis-linked: %+v", first)
	}

	second, err := l.Append(ctx, "ev_1", EventHashed, "system", map[string]any{"content_hash": "abc"})
	if err != nil {
		t.Fatalf("append hashed: %v", err)
	}
	if second.Seq != 2 || second.PrevEventHash != first.EventHash {
		t.Fatalf("second event not linked to first: %+v", second)
	}
	if second.EventHash != EventHash(second) {
		t.Fatalf("stored hash does not match recomputation")
	}
}

func TestAppendFirstEventMustBeCollected(t *testing.T) {
	st := store.NewMemory()
	seedEvidence(t, st, "ev_1")
	l := New(st)

	_, err := l.Append(context.Background(), "ev_1", EventAccessed, "clerk", nil)
	if !errs.IsNotFound(err) {
		t.Fatalf("expected not-found for chainless non-COLLECTED append, got %v", err)
	}
}

func TestAppendUnknownEvidence(t *testing.T) {
	l := New(store.NewMemory())
	_, err := l.Append(context.Background(), "ev_missing", EventCollected, "io_officer", nil)
	if !errs.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestAppendDuplicateCollectedConflicts(t *testing.T) {
	st := store.NewMemory()
	seedEvidence(t, st, "ev_1")
	l := New(st)
	ctx := context.Background()

	if _, err := l.Append(ctx, "ev_1", EventCollected, "io_officer", nil); err != nil {
		t.Fatalf("first collected: %v", err)
	}
	_, err := l.Append(ctx, "ev_1", EventCollected, "io_officer", nil)
	if !errs.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate COLLECTED, got %v", err)
	}
}

func TestAppendRejectsUnknownEventType(t *testing.T) {
	st := store.NewMemory()
	seedEvidence(t, st, "ev_1")
	l := New(st)
	if _, err := l.Append(context.Background(), "ev_1", "SHREDDED", "clerk", nil); !errs.IsInput(err) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestVerifyCleanChain(t *testing.T) {
	st := store.NewMemory()
	seedEvidence(t, st, "ev_1")
	l := New(st)
	ctx := context.Background()

	for _, typ := range []string{EventCollected, EventHashed, EventAccessed} {
		if _, err := l.Append(ctx, "ev_1", typ, "actor", map[string]any{"t": typ}); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	res, err := l.Verify(ctx, "ev_1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.OK || res.Events != 3 || len(res.Chain) != 3 {
		t.Fatalf("clean chain should verify: %+v", res)
	}
	for _, link := range res.Chain {
		if !link.OK {
			t.Fatalf("all links should validate: %+v", res.Chain)
		}
	}
}

func TestVerifyDetectsTamperedPayloadAndStopsAtMismatch(t *testing.T) {
	st := store.NewMemory()
	seedEvidence(t, st, "ev_1")
	l := New(st)
	ctx := context.Background()

	for _, typ := range []string{EventCollected, EventHashed, EventAccessed} {
		if _, err := l.Append(ctx, "ev_1", typ, "actor", map[string]any{"t": typ}); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	if !st.CorruptEvent("ev_1", 2, func(ev *store.CustodyEvent) { ev.PayloadHash = "deadbeef" }) {
		t.Fatalf("corrupt hook failed")
	}

	res, err := l.Verify(ctx, "ev_1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.OK {
		t.Fatalf("tampered chain must not verify")
	}
	if res.FirstBadSeq != 2 {
		t.Fatalf("first bad seq = %d, want 2", res.FirstBadSeq)
	}
	// Recomputation stops at the corruption point: seq 1 validated, seq 3
	// never reached.
	if len(res.Chain) != 2 {
		t.Fatalf("expected verification to stop after seq 2, got %d links", len(res.Chain))
	}
	if !res.Chain[0].OK || res.Chain[1].OK {
		t.Fatalf("links before the corruption must validate: %+v", res.Chain)
	}
}

func TestVerifyDetectsTamperedPrevHash(t *testing.T) {
	st := store.NewMemory()
	seedEvidence(t, st, "ev_1")
	l := New(st)
	ctx := context.Background()

	for _, typ := range []string{EventCollected, EventHashed} {
		if _, err := l.Append(ctx, "ev_1", typ, "actor", nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	st.CorruptEvent("ev_1", 2, func(ev *store.CustodyEvent) { ev.PrevEventHash = GenesisHash })

	res, err := l.Verify(ctx, "ev_1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.OK || res.FirstBadSeq != 2 {
		t.Fatalf("relinked event must fail verification: %+v", res)
	}
}

func TestConcurrentAppendsSameItemDoNotFork(t *testing.T) {
	st := store.NewMemory()
	seedEvidence(t, st, "ev_1")
	l := New(st)
	ctx := context.Background()

	if _, err := l.Append(ctx, "ev_1", EventCollected, "io_officer", nil); err != nil {
		t.Fatalf("collected: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := l.Append(ctx, "ev_1", EventAccessed, fmt.Sprintf("actor_%d", i), nil); err != nil {
				t.Errorf("concurrent append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	res, err := l.Verify(ctx, "ev_1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.OK || res.Events != 21 {
		t.Fatalf("chain forked under concurrency: %+v", res)
	}
}

func TestConcurrentAppendsDistinctItemsIndependent(t *testing.T) {
	st := store.NewMemory()
	l := New(st)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("ev_%d", i)
		seedEvidence(t, st, id)
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := l.Append(ctx, id, EventCollected, "io_officer", nil); err != nil {
				t.Errorf("append %s: %v", id, err)
				return
			}
			if _, err := l.Append(ctx, id, EventHashed, "system", nil); err != nil {
				t.Errorf("append %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		res, err := l.Verify(ctx, fmt.Sprintf("ev_%d", i))
		if err != nil || !res.OK || res.Events != 2 {
			t.Fatalf("chain ev_%d invalid: %+v err=%v", i, res, err)
		}
	}
}

func TestDigestChangesWithChain(t *testing.T) {
	st := store.NewMemory()
	seedEvidence(t, st, "ev_1")
	l := New(st)
	ctx := context.Background()

	if _, err := l.Append(ctx, "ev_1", EventCollected, "io_officer", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	d1, err := l.Digest(ctx, "ev_1")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if _, err := l.Append(ctx, "ev_1", EventAccessed, "clerk", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	d2, err := l.Digest(ctx, "ev_1")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if d1 == d2 {
		t.Fatalf("digest must change when the chain grows")
	}

	d3, _ := l.Digest(ctx, "ev_1")
	if d2 != d3 {
		t.Fatalf("digest must be stable for an unchanged chain")
	}
}

func TestDigestRequiresChain(t *testing.T) {
	st := store.NewMemory()
	seedEvidence(t, st, "ev_1")
	l := New(st)
	if _, err := l.Digest(context.Background(), "ev_1"); !errs.IsNotFound(err) {
		t.Fatalf("expected not-found for chainless digest, got %v", err)
	}
}
