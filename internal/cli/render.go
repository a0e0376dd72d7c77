package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"groupchat/pkg/reconciler"
)

// RenderView writes the message list as plain text, one block per row.
func RenderView(w io.Writer, v reconciler.View, now time.Time) {
	if v.Pinned != nil {
		fmt.Fprintf(w, "📌 %s\n", oneLine(v.Pinned.Content))
	}
	for _, row := range v.Rows {
		renderRow(w, row, now)
	}
}

func renderRow(w io.Writer, row reconciler.Row, now time.Time) {
	m := row.Message
	if row.DateSeparator != "" {
		fmt.Fprintf(w, "── %s ──\n", row.DateSeparator)
	}
	if row.UnreadBefore {
		fmt.Fprintln(w, "── new messages ──")
	}
	if m.IsSystem() {
		fmt.Fprintf(w, "* %s *\n", m.Content)
		return
	}
	if row.ShowSender {
		at := time.Unix(0, m.CreatedTS)
		fmt.Fprintf(w, "%s · %s\n", row.Sender, humanize.RelTime(at, now, "ago", "from now"))
	}
	if r := row.Reply; r != nil {
		switch {
		case r.Missing:
			fmt.Fprintln(w, "  ↪ earlier message")
		case r.Deleted:
			fmt.Fprintf(w, "  ↪ %s: %s\n", r.SenderName, reconciler.PlaceholderDeleted)
		default:
			fmt.Fprintf(w, "  ↪ %s: %s\n", r.SenderName, r.Snippet)
		}
	}

	var body string
	if row.Placeholder != "" {
		body = "[" + row.Placeholder + "]"
	} else {
		var sb strings.Builder
		for _, s := range row.Segments {
			sb.WriteString(s.Text)
		}
		body = sb.String()
		if m.ImageRef != "" {
			body = strings.TrimSpace(body + " [image " + m.ImageRef + "]")
		}
		if m.EditedTS != 0 {
			body += " (edited)"
		}
	}
	switch {
	case row.Pending:
		body += " (sending…)"
	case m.IsPinned && row.Placeholder == "":
		body = "📌 " + body
	}
	fmt.Fprintf(w, "  %s  #%s\n", body, m.ID)

	if len(row.Reactions) > 0 {
		parts := make([]string, 0, len(row.Reactions))
		for _, g := range row.Reactions {
			mark := ""
			if g.ReactedByViewer {
				mark = "*"
			}
			parts = append(parts, fmt.Sprintf("%s %d%s", g.Emoji, g.Count, mark))
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(parts, "  "))
	}
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > reconciler.SnippetRunes {
		return string(r[:reconciler.SnippetRunes]) + "…"
	}
	return s
}
