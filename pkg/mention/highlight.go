package mention

import (
	"sort"
	"strings"

	"groupchat/pkg/models"
)

// Segment is a run of message text; Member is set on @FullName spans.
type Segment struct {
	Text   string
	Member *models.Member
}

// Highlight splits text into plain and mention segments. An "@Name" span
// matches when Name is exactly a current member's display name; when several
// names share a prefix the longest wins. text is never modified.
func Highlight(text string, roster []models.Member) []Segment {
	if text == "" {
		return nil
	}
	names := make([]models.Member, 0, len(roster))
	for _, m := range roster {
		if m.DisplayName != "" {
			names = append(names, m)
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return len(names[i].DisplayName) > len(names[j].DisplayName)
	})

	var out []Segment
	plainStart := 0
	i := 0
	for i < len(text) {
		if text[i] != '@' {
			i++
			continue
		}
		matched := -1
		for k := range names {
			if strings.HasPrefix(text[i+1:], names[k].DisplayName) {
				matched = k
				break
			}
		}
		if matched < 0 {
			i++
			continue
		}
		if plainStart < i {
			out = append(out, Segment{Text: text[plainStart:i]})
		}
		m := names[matched]
		end := i + 1 + len(m.DisplayName)
		out = append(out, Segment{Text: text[i:end], Member: &m})
		i = end
		plainStart = end
	}
	if plainStart < len(text) {
		out = append(out, Segment{Text: text[plainStart:]})
	}
	return out
}
