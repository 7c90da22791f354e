package facts

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Named persons, roles, and offence keywords. The offence table is
// deliberately pluggable: the statutory mapping is policy, not code, so it
// loads from YAML with a built-in default.
type EntityExtractor struct {
	table OffenceTable
}

func NewEntityExtractor(table OffenceTable) EntityExtractor {
	return EntityExtractor{table: table}
}

func (EntityExtractor) Kind() Kind { return KindEntity }

type OffenceTable struct {
	Offences []OffenceEntry `yaml:"offences"`
}

type OffenceEntry struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

//go:embed offences.yaml
var builtinOffencesYAML []byte

// BuiltinOffences returns the embedded default table. It panics only if the
// embedded file is malformed, which is a build defect.
func BuiltinOffences() OffenceTable {
	t, err := parseOffences(builtinOffencesYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// LoadOffenceTable reads a replacement table from disk.
func LoadOffenceTable(path string) (OffenceTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return OffenceTable{}, fmt.Errorf("read offence table: %w", err)
	}
	return parseOffences(b)
}

// OffenceTableFromEnv returns the table at OFFENCE_TABLE_PATH when set,
// otherwise the builtin.
func OffenceTableFromEnv() (OffenceTable, error) {
	if path := os.Getenv("OFFENCE_TABLE_PATH"); path != "" {
		return LoadOffenceTable(path)
	}
	return BuiltinOffences(), nil
}

func parseOffences(b []byte) (OffenceTable, error) {
	var t OffenceTable
	if err := yaml.Unmarshal(b, &t); err != nil {
		return OffenceTable{}, fmt.Errorf("parse offence table: %w", err)
	}
	if len(t.Offences) == 0 {
		return OffenceTable{}, fmt.Errorf("offence table has no entries")
	}
	return t, nil
}

var (
	honorificRe = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Shri|Smt|Inspector|Constable|Officer|Advocate)\.?\s+([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)?)`)
	// Single capital letters stand in for parties in anonymized narratives
	// ("A attacked B with a knife").
	partyLetterRe = regexp.MustCompile(`\b([A-Z])\b(?:[\s,.;]|$)`)
	wordSplitRe   = regexp.MustCompile(`[A-Za-z]+`)
)

func (e EntityExtractor) Extract(text string) []Fact {
	var out []Fact
	var taken []Span

	for _, m := range honorificRe.FindAllStringSubmatchIndex(text, -1) {
		span := Span{m[2], m[3]}
		name := text[span.Start:span.End]
		out = append(out, Fact{
			Kind:  KindEntity,
			Value: name,
			Norm:  strings.ToLower(name),
			Span:  span,
			Exact: true,
		})
		taken = append(taken, span)
	}

	for _, m := range wordSplitRe.FindAllStringIndex(text, -1) {
		span := Span{m[0], m[1]}
		if overlapsAny(span, taken) {
			continue
		}
		word := strings.ToLower(text[span.Start:span.End])
		if cat, ok := e.lookupOffence(word); ok {
			out = append(out, Fact{
				Kind:  KindEntity,
				Value: text[span.Start:span.End],
				Norm:  cat,
				Span:  span,
				Exact: true,
			})
			taken = append(taken, span)
		}
	}

	for _, m := range partyLetterRe.FindAllStringSubmatchIndex(text, -1) {
		span := Span{m[2], m[3]}
		if overlapsAny(span, taken) {
			continue
		}
		letter := text[span.Start:span.End]
		if letter == "I" || letter == "A" && startsSentence(text, span.Start) {
			continue
		}
		out = append(out, Fact{
			Kind:  KindEntity,
			Value: letter,
			Norm:  strings.ToLower(letter),
			Span:  span,
			Exact: false,
		})
		taken = append(taken, span)
	}

	return out
}

func (e EntityExtractor) lookupOffence(word string) (string, bool) {
	for _, o := range e.table.Offences {
		for _, k := range o.Keywords {
			if word == k {
				return o.Category, true
			}
		}
	}
	return "", false
}

// startsSentence reports whether the offset begins the text or follows a
// sentence terminator, where a bare "A" is almost always the article.
func startsSentence(text string, at int) bool {
	for i := at - 1; i >= 0; i-- {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '.', '!', '?':
			return true
		default:
			return false
		}
	}
	return true
}
