// Package moderation censors configured words in text chat payloads
// before they are persisted and delivered. Non-text payloads (images,
// files, emoji, signaling) are never inspected.
package moderation

import (
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
)

// leet maps common character substitutions back to their base letter so
// "h3llo" matches a "hello" pattern.
var leet = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e', '€': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's',
}

type Filter struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// mapping ties the normalized runes back to their positions in the
// original string so censoring preserves spacing and punctuation.
type mapping struct {
	normalized []rune
	origIdx    []int
}

// NewFilter builds the Aho-Corasick automaton over the normalized word
// list. An empty list yields a filter that censors nothing.
func NewFilter(words []string, replacement rune) (*Filter, error) {
	if len(words) == 0 {
		return &Filter{replacement: replacement}, nil
	}
	patterns := make([][]rune, len(words))
	for i, word := range words {
		patterns[i] = normalize([]rune(word))
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Filter{matcher: m, replacement: replacement}, nil
}

// Censor replaces every match of a configured word with the replacement
// rune and reports whether anything was censored.
func (f *Filter) Censor(original string) (string, bool) {
	if f.matcher == nil {
		return original, false
	}
	m := f.project(original)
	if len(m.normalized) == 0 {
		return original, false
	}

	spans := f.matcher.MultiPatternSearch(m.normalized, false)
	if len(spans) == 0 {
		return original, false
	}

	origRunes := []rune(original)
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(m.origIdx) {
			continue
		}
		for i := m.origIdx[normStart]; i <= m.origIdx[normEnd-1]; i++ {
			origRunes[i] = f.replacement
		}
	}
	return string(origRunes), true
}

// Lang returns the ISO 639-1 code of the detected language, empty when
// detection is inconclusive.
func Lang(text string) string {
	info := whatlanggo.Detect(text)
	return info.Lang.Iso6391()
}

// project builds the searchable form of the input while remembering
// where every kept rune came from.
func (f *Filter) project(input string) mapping {
	origRunes := []rune(input)
	m := mapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		clean := simplify(r)
		if isNoise(clean) {
			continue
		}
		m.normalized = append(m.normalized, unicode.ToLower(clean))
		m.origIdx = append(m.origIdx, i)
	}
	return m
}

func normalize(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplify(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

func simplify(r rune) rune {
	if base, ok := leet[r]; ok {
		return base
	}
	return r
}

// isNoise identifies characters ignored during pattern matching.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
