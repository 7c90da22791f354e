package facts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Clock times and calendar dates. Times normalize to minutes since
// midnight; dates normalize to a canonical YYYY-MM-DD (or MM-DD when the
// year is absent) and compare as strings.
type TemporalExtractor struct{}

func (TemporalExtractor) Kind() Kind { return KindTemporal }

var (
	clockRe = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(a\.?m\.?|p\.?m\.?)?\b`)
	hourRe  = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(a\.?m\.?|p\.?m\.?)\b`)
	wordRe  = regexp.MustCompile(`(?i)\b(midnight|noon|midday)\b`)
	dateRe  = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})(?:[/-](\d{2,4}))?\b`)
	monthRe = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:\s*,?\s*(\d{4}))?\b`)
)

var monthNum = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

func (TemporalExtractor) Extract(text string) []Fact {
	var out []Fact
	taken := make([]Span, 0, 4)

	for _, m := range clockRe.FindAllStringSubmatchIndex(text, -1) {
		span := Span{m[0], m[1]}
		hour, _ := strconv.Atoi(text[m[2]:m[3]])
		min, _ := strconv.Atoi(text[m[4]:m[5]])
		if hour > 23 || min > 59 {
			continue
		}
		meridiem := ""
		if m[6] >= 0 {
			meridiem = strings.ToLower(strings.ReplaceAll(text[m[6]:m[7]], ".", ""))
		}
		total := clockMinutes(hour, min, meridiem)
		out = append(out, Fact{
			Kind:        KindTemporal,
			Value:       strings.TrimSpace(text[span.Start:span.End]),
			Norm:        fmt.Sprintf("%02d:%02d", total/60, total%60),
			Quantity:    float64(total),
			HasQuantity: true,
			Span:        span,
			Exact:       true,
		})
		taken = append(taken, span)
	}

	for _, m := range hourRe.FindAllStringSubmatchIndex(text, -1) {
		span := Span{m[0], m[1]}
		if overlapsAny(span, taken) {
			continue
		}
		hour, _ := strconv.Atoi(text[m[2]:m[3]])
		if hour > 12 {
			continue
		}
		meridiem := strings.ToLower(strings.ReplaceAll(text[m[4]:m[5]], ".", ""))
		total := clockMinutes(hour, 0, meridiem)
		out = append(out, Fact{
			Kind:        KindTemporal,
			Value:       strings.TrimSpace(text[span.Start:span.End]),
			Norm:        fmt.Sprintf("%02d:%02d", total/60, total%60),
			Quantity:    float64(total),
			HasQuantity: true,
			Span:        span,
			Exact:       true,
		})
		taken = append(taken, span)
	}

	for _, m := range wordRe.FindAllStringIndex(text, -1) {
		span := Span{m[0], m[1]}
		if overlapsAny(span, taken) {
			continue
		}
		word := strings.ToLower(text[span.Start:span.End])
		total := 0
		if word != "midnight" {
			total = 12 * 60
		}
		out = append(out, Fact{
			Kind:        KindTemporal,
			Value:       text[span.Start:span.End],
			Norm:        fmt.Sprintf("%02d:%02d", total/60, total%60),
			Quantity:    float64(total),
			HasQuantity: true,
			Span:        span,
			Exact:       false,
		})
		taken = append(taken, span)
	}

	for _, m := range dateRe.FindAllStringSubmatchIndex(text, -1) {
		span := Span{m[0], m[1]}
		if overlapsAny(span, taken) {
			continue
		}
		day, _ := strconv.Atoi(text[m[2]:m[3]])
		month, _ := strconv.Atoi(text[m[4]:m[5]])
		if day > 31 || month > 12 || day == 0 || month == 0 {
			continue
		}
		norm := fmt.Sprintf("%02d-%02d", month, day)
		if m[6] >= 0 {
			year, _ := strconv.Atoi(text[m[6]:m[7]])
			if year < 100 {
				year += 2000
			}
			norm = fmt.Sprintf("%04d-%s", year, norm)
		}
		out = append(out, Fact{
			Kind:  KindTemporal,
			Value: text[span.Start:span.End],
			Norm:  norm,
			Span:  span,
			Exact: true,
		})
		taken = append(taken, span)
	}

	for _, m := range monthRe.FindAllStringSubmatchIndex(text, -1) {
		span := Span{m[0], m[1]}
		if overlapsAny(span, taken) {
			continue
		}
		month := monthNum[strings.ToLower(text[m[2]:m[3]])]
		day, _ := strconv.Atoi(text[m[4]:m[5]])
		if day > 31 || day == 0 {
			continue
		}
		norm := fmt.Sprintf("%02d-%02d", month, day)
		if m[6] >= 0 {
			norm = fmt.Sprintf("%s-%s", text[m[6]:m[7]], norm)
		}
		out = append(out, Fact{
			Kind:  KindTemporal,
			Value: text[span.Start:span.End],
			Norm:  norm,
			Span:  span,
			Exact: true,
		})
		taken = append(taken, span)
	}

	return out
}

func clockMinutes(hour, min int, meridiem string) int {
	switch meridiem {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour*60 + min
}

func overlapsAny(s Span, taken []Span) bool {
	for _, t := range taken {
		if s.Start < t.End && t.Start < s.End {
			return true
		}
	}
	return false
}
