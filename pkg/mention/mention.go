// Package mention finds @name tokens in a compose buffer, ranks roster
// members against them, and marks @FullName spans in sent text.
//
// Matching is by the live display name. Stored content carries no mention
// markup, so renaming a member changes which past messages highlight them.
package mention

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"groupchat/pkg/models"
)

// MaxCandidates caps the picker list.
const MaxCandidates = 5

var tokenRe = regexp.MustCompile(`@(\w*)$`)

// Token is an in-progress @mention ending at the caret. Start and End are
// rune offsets into the buffer; Start points at the '@'.
type Token struct {
	Query string
	Start int
	End   int
}

// DetectToken looks for '@' followed by word characters immediately before
// caret (a rune offset). Out of range carets are clamped.
func DetectToken(buf string, caret int) (Token, bool) {
	runes := []rune(buf)
	if caret < 0 {
		caret = 0
	}
	if caret > len(runes) {
		caret = len(runes)
	}
	before := string(runes[:caret])
	loc := tokenRe.FindStringSubmatchIndex(before)
	if loc == nil {
		return Token{}, false
	}
	start := utf8.RuneCountInString(before[:loc[0]])
	return Token{Query: before[loc[2]:loc[3]], Start: start, End: caret}, true
}

// rank: 0 name prefix, 1 word prefix, 2 substring, -1 no match.
func rank(name, query string) int {
	n := strings.ToLower(name)
	q := strings.ToLower(query)
	if q == "" || strings.HasPrefix(n, q) {
		return 0
	}
	words := strings.Fields(n)
	for i := 1; i < len(words); i++ {
		if strings.HasPrefix(words[i], q) {
			return 1
		}
	}
	if strings.Contains(n, q) {
		return 2
	}
	return -1
}

// Candidates returns up to MaxCandidates members, other than composerID,
// whose display name contains query case-insensitively. Prefix matches
// come first; roster order breaks ties.
func Candidates(roster []models.Member, query, composerID string) []models.Member {
	type scored struct {
		m    models.Member
		rank int
		pos  int
	}
	var hits []scored
	for i, m := range roster {
		if m.ID == composerID || m.DisplayName == "" {
			continue
		}
		if rk := rank(m.DisplayName, query); rk >= 0 {
			hits = append(hits, scored{m: m, rank: rk, pos: i})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].pos < hits[j].pos
	})
	if len(hits) > MaxCandidates {
		hits = hits[:MaxCandidates]
	}
	out := make([]models.Member, len(hits))
	for i, h := range hits {
		out[i] = h.m
	}
	return out
}

// Splice replaces tok in buf with "@FullName " and returns the new buffer and
// the caret position just after the inserted space.
func Splice(buf string, tok Token, name string) (string, int) {
	runes := []rune(buf)
	if tok.Start < 0 || tok.End > len(runes) || tok.Start > tok.End {
		return buf, len(runes)
	}
	insert := []rune("@" + name + " ")
	out := make([]rune, 0, len(runes)+len(insert))
	out = append(out, runes[:tok.Start]...)
	out = append(out, insert...)
	out = append(out, runes[tok.End:]...)
	return string(out), tok.Start + len(insert)
}
