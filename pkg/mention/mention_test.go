package mention

import (
	"testing"

	"github.com/stretchr/testify/require"

	"groupchat/pkg/models"
)

func roster(names ...string) []models.Member {
	out := make([]models.Member, len(names))
	for i, n := range names {
		out[i] = models.Member{ID: "u" + string(rune('a'+i)), DisplayName: n}
	}
	return out
}

func names(ms []models.Member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.DisplayName
	}
	return out
}

func TestDetectToken(t *testing.T) {
	tests := []struct {
		name  string
		buf   string
		caret int
		ok    bool
		query string
		start int
	}{
		{"bare at", "hi @", 4, true, "", 3},
		{"partial", "hi @Jo", 6, true, "Jo", 3},
		{"caret mid token", "hi @Jordan", 6, true, "Jo", 3},
		{"space breaks token", "hi @Jo ", 7, false, "", 0},
		{"no at", "hello", 5, false, "", 0},
		{"multibyte before", "héllo @sa", 9, true, "sa", 6},
		{"caret clamped", "@x", 99, true, "x", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, ok := DetectToken(tt.buf, tt.caret)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.Equal(t, tt.query, tok.Query)
				require.Equal(t, tt.start, tok.Start)
			}
		})
	}
}

func TestCandidatesRosterOrder(t *testing.T) {
	r := roster("Jordan Lee", "Joanna Kim", "Sam Patel")
	require.Equal(t, []string{"Jordan Lee", "Joanna Kim"}, names(Candidates(r, "Jo", "")))
}

func TestCandidatesRankingAndLimit(t *testing.T) {
	r := roster("Ann Mary", "Maryanne", "Rosemary", "Mary Jo", "Tim", "Marybeth", "Marylou", "Maryse")
	got := names(Candidates(r, "mary", ""))
	require.Len(t, got, MaxCandidates)
	// name prefixes first in roster order, then word prefix, then substring
	require.Equal(t, []string{"Maryanne", "Mary Jo", "Marybeth", "Marylou", "Maryse"}, got)

	got = names(Candidates(roster("Rosemary", "Ann Mary"), "mary", ""))
	require.Equal(t, []string{"Ann Mary", "Rosemary"}, got)
}

func TestCandidatesExcludesComposer(t *testing.T) {
	r := roster("Jordan Lee", "Joanna Kim")
	got := Candidates(r, "jo", r[0].ID)
	require.Equal(t, []string{"Joanna Kim"}, names(got))
}

func TestPickerNavigationClampsAndCommits(t *testing.T) {
	p := NewPicker(roster("Jordan Lee", "Joanna Kim", "Sam Patel"), "")
	p.Update("hey @Jo", 7)
	require.True(t, p.Open())
	require.Len(t, p.Candidates(), 2)

	p.Prev()
	require.Equal(t, 0, p.Selected())
	p.Next()
	p.Next()
	p.Next()
	require.Equal(t, 1, p.Selected())

	buf, caret, ok := p.Commit()
	require.True(t, ok)
	require.Equal(t, "hey @Joanna Kim ", buf)
	require.Equal(t, 16, caret)
	require.False(t, p.Open())

	_, _, ok = p.Commit()
	require.False(t, ok)
}

func TestPickerSelectClamps(t *testing.T) {
	p := NewPicker(roster("Jordan Lee", "Joanna Kim"), "")
	p.Select(1)
	require.Zero(t, p.Selected())

	p.Update("@jo", 3)
	p.Select(7)
	require.Equal(t, 1, p.Selected())
	p.Select(-2)
	require.Zero(t, p.Selected())
	p.Select(1)
	buf, _, ok := p.Commit()
	require.True(t, ok)
	require.Equal(t, "@Joanna Kim ", buf)
}

func TestPickerKeepsTextAfterCaret(t *testing.T) {
	p := NewPicker(roster("Sam Patel"), "")
	p.Update("@sa see you", 3)
	buf, _, ok := p.Commit()
	require.True(t, ok)
	require.Equal(t, "@Sam Patel  see you", buf)
}

func TestPickerClosesWithoutMatches(t *testing.T) {
	p := NewPicker(roster("Sam Patel"), "")
	p.Update("@zz", 3)
	require.False(t, p.Open())
}

func TestHighlight(t *testing.T) {
	r := roster("Jo", "Jo Kim")
	segs := Highlight("hi @Jo Kim and @Jo, bye @Nobody", r)

	require.Len(t, segs, 5)
	require.Equal(t, "hi ", segs[0].Text)
	require.Equal(t, "@Jo Kim", segs[1].Text)
	require.Equal(t, "Jo Kim", segs[1].Member.DisplayName)
	require.Equal(t, " and ", segs[2].Text)
	require.Equal(t, "@Jo", segs[3].Text)
	require.Equal(t, ", bye @Nobody", segs[4].Text)
	require.Nil(t, segs[4].Member)
}

func TestHighlightRenamedMemberStopsMatching(t *testing.T) {
	segs := Highlight("thanks @Sam Patel", roster("Samuel Patel"))
	require.Len(t, segs, 1)
	require.Nil(t, segs[0].Member)
}
