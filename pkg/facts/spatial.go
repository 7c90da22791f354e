package facts

import (
	"regexp"
	"strings"
)

// Named locations. A strict pattern catches proper-noun places carrying a
// recognizable place suffix ("Central Street", "Sadar Bazaar"); a looser
// one catches "at the Market" style references after a locative
// preposition.
type SpatialExtractor struct{}

func (SpatialExtractor) Kind() Kind { return KindSpatial }

var (
	suffixPlaceRe = regexp.MustCompile(`\b((?:[A-Z][A-Za-z]*\s+)*[A-Z][A-Za-z]*\s+(?:Street|Road|Market|Station|Colony|Nagar|Chowk|Lane|Avenue|Bazaar|Bridge|Park|Hospital|Crossing|Square|Village))\b`)
	prepPlaceRe   = regexp.MustCompile(`(?:\bat|\bnear|\bin|\bon)\s+(?:the\s+)?((?:[A-Z][A-Za-z]*)(?:\s+[A-Z][A-Za-z]*)*)`)
	placeStop     = map[string]bool{
		"I": true, "He": true, "She": true, "They": true, "We": true,
		"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
		"Friday": true, "Saturday": true, "Sunday": true,
		"January": true, "February": true, "March": true, "April": true,
		"May": true, "June": true, "July": true, "August": true,
		"September": true, "October": true, "November": true, "December": true,
		"AM": true, "PM": true,
	}
)

func (SpatialExtractor) Extract(text string) []Fact {
	var out []Fact
	var taken []Span

	for _, m := range suffixPlaceRe.FindAllStringSubmatchIndex(text, -1) {
		span := Span{m[2], m[3]}
		name := text[span.Start:span.End]
		out = append(out, Fact{
			Kind:  KindSpatial,
			Value: name,
			Norm:  normPlace(name),
			Span:  span,
			Exact: true,
		})
		taken = append(taken, span)
	}

	for _, m := range prepPlaceRe.FindAllStringSubmatchIndex(text, -1) {
		span := Span{m[2], m[3]}
		name := text[span.Start:span.End]
		if overlapsAny(span, taken) || placeStop[firstWord(name)] {
			continue
		}
		out = append(out, Fact{
			Kind:  KindSpatial,
			Value: name,
			Norm:  normPlace(name),
			Span:  span,
			Exact: false,
		})
		taken = append(taken, span)
	}

	return out
}

func normPlace(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}
