// Package discovery resolves intents to selectors: the ordinal tier when
// the intent is positional, otherwise an eight-tier waterfall over
// accessibility attributes, labels, test hooks, and structural ids. Every
// tier is a function in a strategy table; the healer replays the same
// table in ledger-ranked order.
package discovery

import (
	"sort"
	"strings"
)

// MatchKind orders match quality: exact beats prefix beats substring.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchSubstring
	MatchToken
	MatchPrefix
	MatchExact
)

// Match is one scored candidate-vs-target comparison.
type Match struct {
	Kind MatchKind
	// Length of the candidate text; shorter wins on equal kind.
	Length int
}

// Normalize lowercases, trims, and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

func tokensOf(s string) []string {
	f := func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.' || r == ':' || r == '/'
	}
	return strings.FieldsFunc(Normalize(s), f)
}

func sortedTokens(s string) string {
	toks := tokensOf(s)
	sort.Strings(toks)
	return strings.Join(toks, " ")
}

// MatchName compares a candidate text (attribute value, label text,
// accessible name) against the intent's element name. Case-insensitive and
// token-order-independent. Widen additionally accepts any token overlap,
// which the healer uses as a last resort.
func MatchName(candidate, target string, widen bool) Match {
	c, t := Normalize(candidate), Normalize(target)
	if c == "" || t == "" {
		return Match{}
	}
	switch {
	case c == t || sortedTokens(c) == sortedTokens(t):
		return Match{Kind: MatchExact, Length: len(c)}
	case strings.HasPrefix(c, t) || strings.HasPrefix(t, c):
		return Match{Kind: MatchPrefix, Length: len(c)}
	case tokenOverlap(c, t) && isShortIdentifier(c):
		// Attribute identifiers like name="search_query" matching
		// "Search field".
		return Match{Kind: MatchToken, Length: len(c)}
	case strings.Contains(c, t) || strings.Contains(t, c):
		return Match{Kind: MatchSubstring, Length: len(c)}
	case widen && tokenOverlap(c, t):
		return Match{Kind: MatchSubstring, Length: len(c)}
	}
	return Match{}
}

func tokenOverlap(a, b string) bool {
	set := map[string]bool{}
	for _, tok := range tokensOf(a) {
		if len(tok) >= 2 {
			set[tok] = true
		}
	}
	for _, tok := range tokensOf(b) {
		if set[tok] {
			return true
		}
	}
	return false
}

// isShortIdentifier marks machine-style values (name/id/data attributes)
// where token matching is meaningful.
func isShortIdentifier(s string) bool {
	return len(s) <= 40 && !strings.Contains(s, " ")
}

// Better reports whether a beats b under the tie-break rules: kind, then
// shorter text, then earlier document order (the caller iterates in
// document order and only replaces on strict improvement).
func (m Match) Better(other Match) bool {
	if m.Kind != other.Kind {
		return m.Kind > other.Kind
	}
	return m.Length < other.Length
}

// Found reports whether the comparison matched at all.
func (m Match) Found() bool { return m.Kind != MatchNone }
