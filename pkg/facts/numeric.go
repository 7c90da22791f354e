package facts

import (
	"regexp"
	"strconv"
	"strings"
)

// Quantities and monetary amounts. Everything normalizes to a base-unit
// float: "Rs. 2 lakh" and "200000 rupees" compare equal. Bare numbers are
// only taken when a currency marker or measure word anchors them, which
// keeps clock times and dates out of this extractor.
type NumericExtractor struct{}

func (NumericExtractor) Kind() Kind { return KindNumeric }

var (
	currencyRe = regexp.MustCompile(`(?i)(?:₹|Rs\.?|INR|\$)\s*([\d,]+(?:\.\d+)?)\s*(lakh|lakhs|crore|crores|thousand|k)?\b`)
	measureRe  = regexp.MustCompile(`(?i)\b([\d,]+(?:\.\d+)?)\s*(lakh|lakhs|crore|crores|thousand)?\s*(rupees|rupee|grams|gram|kg|kilograms|km|kilometers|kilometres|litres|liters|tola|tolas)\b`)
)

var unitScale = map[string]float64{
	"":          1,
	"k":         1e3,
	"thousand":  1e3,
	"lakh":      1e5,
	"lakhs":     1e5,
	"crore":     1e7,
	"crores":    1e7,
	"kg":        1e3, // grams
	"kilograms": 1e3,
	"gram":      1,
	"grams":     1,
	"tola":      11.66,
	"tolas":     11.66,
}

func (NumericExtractor) Extract(text string) []Fact {
	var out []Fact
	var taken []Span

	for _, m := range currencyRe.FindAllStringSubmatchIndex(text, -1) {
		span := Span{m[0], m[1]}
		amount, ok := parseAmount(text[m[2]:m[3]])
		if !ok {
			continue
		}
		scale := ""
		if m[4] >= 0 {
			scale = strings.ToLower(text[m[4]:m[5]])
		}
		amount *= unitScale[scale]
		out = append(out, Fact{
			Kind:        KindNumeric,
			Value:       strings.TrimSpace(text[span.Start:span.End]),
			Norm:        strconv.FormatFloat(amount, 'f', -1, 64),
			Quantity:    amount,
			HasQuantity: true,
			Span:        span,
			Exact:       true,
		})
		taken = append(taken, span)
	}

	for _, m := range measureRe.FindAllStringSubmatchIndex(text, -1) {
		span := Span{m[0], m[1]}
		if overlapsAny(span, taken) {
			continue
		}
		amount, ok := parseAmount(text[m[2]:m[3]])
		if !ok {
			continue
		}
		if m[4] >= 0 {
			amount *= unitScale[strings.ToLower(text[m[4]:m[5]])]
		}
		unit := strings.ToLower(text[m[6]:m[7]])
		if s, ok := unitScale[unit]; ok {
			amount *= s
		}
		out = append(out, Fact{
			Kind:        KindNumeric,
			Value:       strings.TrimSpace(text[span.Start:span.End]),
			Norm:        strconv.FormatFloat(amount, 'f', -1, 64),
			Quantity:    amount,
			HasQuantity: true,
			Span:        span,
			Exact:       true,
		})
		taken = append(taken, span)
	}

	return out
}

func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
