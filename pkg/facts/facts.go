package facts

import "sort"

// Kind is the class of a fact drawn from a narrative document.
type Kind string

const (
	KindTemporal Kind = "TEMPORAL"
	KindSpatial  Kind = "SPATIAL"
	KindNumeric  Kind = "NUMERIC"
	KindEntity   Kind = "ENTITY"
)

// Span is a half-open [Start, End) character offset range into the source
// text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Fact is a single typed value extracted from one document. Norm is the
// canonical comparison form; Quantity carries the numeric normalization
// (minutes since midnight for times, base units for amounts) when
// HasQuantity is set. Exact records whether the value came from a strict
// pattern match rather than a looser heuristic, which feeds confidence
// scoring downstream.
type Fact struct {
	Kind        Kind    `json:"kind"`
	Value       string  `json:"value"`
	Norm        string  `json:"norm"`
	Quantity    float64 `json:"quantity,omitempty"`
	HasQuantity bool    `json:"has_quantity,omitempty"`
	Span        Span    `json:"span"`
	Exact       bool    `json:"exact"`
}

// Extractor recognizes facts of a single kind. Extractors are pure: same
// text, same facts.
type Extractor interface {
	Kind() Kind
	Extract(text string) []Fact
}

// Extract runs the pipeline over the text and returns all facts ordered by
// span start, then kind.
func Extract(text string, extractors []Extractor) []Fact {
	var out []Fact
	for _, ex := range extractors {
		out = append(out, ex.Extract(text)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Span.Start != out[j].Span.Start {
			return out[i].Span.Start < out[j].Span.Start
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Default returns the standard pipeline with the built-in offence table.
func Default() []Extractor {
	return []Extractor{
		TemporalExtractor{},
		SpatialExtractor{},
		NumericExtractor{},
		NewEntityExtractor(BuiltinOffences()),
	}
}
