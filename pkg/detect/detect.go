// Package detect compares two narrative documents and surfaces factual
// discrepancies between them. It is pure: callers persist the results.
package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Anvesh1211/indic-justice-league/pkg/errs"
	"github.com/Anvesh1211/indic-justice-league/pkg/facts"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Numeric values within this relative tolerance are treated as agreeing;
// above the high threshold the mismatch is severe.
const (
	numericTolerance     = 0.01
	numericHighThreshold = 0.50
)

type Discrepancy struct {
	DiscrepancyID string     `json:"discrepancy_id"`
	FactKind      facts.Kind `json:"fact_kind"`
	LeftSpan      facts.Span `json:"left_span"`
	RightSpan     facts.Span `json:"right_span"`
	LeftValue     string     `json:"left_value"`
	RightValue    string     `json:"right_value"`
	Description   string     `json:"description"`
	Severity      Severity   `json:"severity"`
	Confidence    float64    `json:"confidence"`
}

type Report struct {
	SimilarityScore float64       `json:"similarity_score"`
	ComparedPairs   int           `json:"compared_pairs"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
}

type Detector struct {
	extractors []facts.Extractor
}

func New(extractors []facts.Extractor) *Detector {
	return &Detector{extractors: extractors}
}

func Default() *Detector { return New(facts.Default()) }

// Analyze extracts facts from both texts, aligns them kind by kind, and
// reports every aligned pair whose normalized values disagree beyond
// tolerance. Deterministic for identical inputs; swapping the operands
// swaps left and right on each discrepancy but changes nothing else.
func (d *Detector) Analyze(leftText, rightText string) (Report, error) {
	if strings.TrimSpace(leftText) == "" || strings.TrimSpace(rightText) == "" {
		return Report{}, errs.Input("both documents must be non-empty")
	}

	left := facts.Extract(leftText, d.extractors)
	right := facts.Extract(rightText, d.extractors)

	var discrepancies []Discrepancy
	compared := 0
	weighted := 0.0

	for _, kind := range []facts.Kind{facts.KindTemporal, facts.KindSpatial, facts.KindNumeric, facts.KindEntity} {
		l := ofKind(left, kind)
		r := ofKind(right, kind)
		ambiguous := len(l) > 1 || len(r) > 1
		for _, p := range alignPairs(l, r) {
			compared++
			if agree(p.left, p.right) {
				continue
			}
			sev := severityFor(p.left, p.right)
			discrepancies = append(discrepancies, Discrepancy{
				DiscrepancyID: discrepancyID(p.left, p.right),
				FactKind:      kind,
				LeftSpan:      p.left.Span,
				RightSpan:     p.right.Span,
				LeftValue:     p.left.Value,
				RightValue:    p.right.Value,
				Description:   fmt.Sprintf("%s differs: %q vs %q", kind, p.left.Value, p.right.Value),
				Severity:      sev,
				Confidence:    confidenceFor(p.left, p.right, ambiguous),
			})
			weighted += severityWeight(sev)
		}
	}

	sort.SliceStable(discrepancies, func(i, j int) bool {
		if discrepancies[i].LeftSpan.Start != discrepancies[j].LeftSpan.Start {
			return discrepancies[i].LeftSpan.Start < discrepancies[j].LeftSpan.Start
		}
		return discrepancies[i].FactKind < discrepancies[j].FactKind
	})

	score := 1.0
	if compared > 0 {
		score = 1.0 - weighted/float64(compared)
	}
	if score < 0 {
		score = 0
	}
	return Report{SimilarityScore: score, ComparedPairs: compared, Discrepancies: discrepancies}, nil
}

type pair struct {
	left, right facts.Fact
}

// alignPairs matches same-kind facts across the two texts by nearest span
// position. Candidate pairs are ranked by positional distance with an
// occurrence-order tie-break that is symmetric under operand swap, then
// taken greedily so each fact pairs at most once.
func alignPairs(left, right []facts.Fact) []pair {
	if len(left) == 0 || len(right) == 0 {
		return nil
	}
	type cand struct {
		li, ri int
		dist   int
	}
	cands := make([]cand, 0, len(left)*len(right))
	for li, lf := range left {
		for ri, rf := range right {
			d := lf.Span.Start - rf.Span.Start
			if d < 0 {
				d = -d
			}
			cands = append(cands, cand{li: li, ri: ri, dist: d})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		amin, amax := minmax(left[a.li].Span.Start, right[a.ri].Span.Start)
		bmin, bmax := minmax(left[b.li].Span.Start, right[b.ri].Span.Start)
		if amin != bmin {
			return amin < bmin
		}
		return amax < bmax
	})

	usedL := make([]bool, len(left))
	usedR := make([]bool, len(right))
	var out []pair
	for _, c := range cands {
		if usedL[c.li] || usedR[c.ri] {
			continue
		}
		usedL[c.li] = true
		usedR[c.ri] = true
		out = append(out, pair{left: left[c.li], right: right[c.ri]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].left.Span.Start < out[j].left.Span.Start
	})
	return out
}

func agree(a, b facts.Fact) bool {
	if a.HasQuantity && b.HasQuantity {
		if a.Kind == facts.KindTemporal {
			return a.Quantity == b.Quantity
		}
		return relDiff(a.Quantity, b.Quantity) <= numericTolerance
	}
	return a.Norm == b.Norm
}

func severityFor(a, b facts.Fact) Severity {
	switch a.Kind {
	case facts.KindTemporal, facts.KindEntity:
		return SeverityHigh
	case facts.KindSpatial:
		return SeverityMedium
	case facts.KindNumeric:
		if relDiff(a.Quantity, b.Quantity) > numericHighThreshold {
			return SeverityHigh
		}
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func severityWeight(s Severity) float64 {
	switch s {
	case SeverityHigh:
		return 1.0
	case SeverityMedium:
		return 0.75
	default:
		return 0.5
	}
}

// confidenceFor scores how sure we are the mismatch is real: exact pattern
// matches on both sides score highest, heuristic extractions lower, and an
// ambiguous alignment (multiple same-kind candidates) lowers it further.
func confidenceFor(a, b facts.Fact, ambiguous bool) float64 {
	c := 0.9
	if !a.Exact {
		c -= 0.15
	}
	if !b.Exact {
		c -= 0.15
	}
	if ambiguous {
		c -= 0.1
	}
	if c < 0.05 {
		c = 0.05
	}
	return c
}

func relDiff(a, b float64) float64 {
	base := math.Max(math.Abs(a), math.Abs(b))
	if base == 0 {
		return 0
	}
	return math.Abs(a-b) / base
}

// discrepancyID is content-derived so repeated analyses of the same pair
// produce identical ids, and swapped operands produce the same id.
func discrepancyID(a, b facts.Fact) string {
	lo, hi := a.Norm, b.Norm
	if lo > hi {
		lo, hi = hi, lo
	}
	loS, hiS := a.Span, b.Span
	if loS.Start > hiS.Start || (loS.Start == hiS.Start && loS.End > hiS.End) {
		loS, hiS = hiS, loS
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d:%d|%d:%d", a.Kind, lo, hi, loS.Start, loS.End, hiS.Start, hiS.End)))
	return "dsc_" + hex.EncodeToString(sum[:])[:16]
}

func ofKind(all []facts.Fact, kind facts.Kind) []facts.Fact {
	var out []facts.Fact
	for _, f := range all {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func minmax(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}
