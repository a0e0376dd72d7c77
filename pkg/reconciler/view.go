package reconciler

import (
	"time"
	"unicode/utf8"

	"groupchat/pkg/mention"
	"groupchat/pkg/models"
	"groupchat/pkg/reactions"
)

const (
	PlaceholderDeleted   = "Message deleted"
	PlaceholderModerated = "Message removed by a moderator"
	UnknownSender        = "Unknown member"

	// GroupWindow is how close consecutive messages from one sender must be
	// to share a sender header.
	GroupWindow = 5 * time.Minute
	// SnippetRunes bounds reply preview text.
	SnippetRunes = 80
)

// ReplyPreview describes the message a reply points at.
type ReplyPreview struct {
	ID         string
	SenderName string
	Snippet    string
	Deleted    bool
	// Missing is set when the target is outside the loaded history.
	Missing bool
}

// Row is one rendered list entry.
type Row struct {
	Message models.Message
	Pending bool
	// DateSeparator is non-empty on the first message of a local calendar day.
	DateSeparator string
	ShowSender    bool
	Sender        string
	Placeholder   string
	Segments      []mention.Segment
	Reactions     []reactions.Group
	Reply         *ReplyPreview
	// UnreadBefore marks where the "new messages" divider goes.
	UnreadBefore bool
}

type View struct {
	Rows   []Row
	Pinned *models.Message
}

func dayLabel(t, now time.Time) string {
	y, m, d := t.Date()
	ny, nm, nd := now.Date()
	yy, ym, yd := now.AddDate(0, 0, -1).Date()
	switch {
	case y == ny && m == nm && d == nd:
		return "Today"
	case y == yy && m == ym && d == yd:
		return "Yesterday"
	case y == ny:
		return t.Format("Mon, Jan 2")
	default:
		return t.Format("Jan 2, 2006")
	}
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= SnippetRunes {
		return s
	}
	r := []rune(s)
	return string(r[:SnippetRunes]) + "…"
}

// View renders the current list in loc. Deleted messages keep their slot
// and render a placeholder; the pinned banner shows the newest pinned
// message that is not deleted.
func (r *Reconciler) View(loc *time.Location) View {
	if loc == nil {
		loc = time.Local
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make(map[string]string, len(r.roster))
	for _, m := range r.roster {
		names[m.ID] = m.DisplayName
	}
	nameOf := func(id string) string {
		if n, ok := names[id]; ok && n != "" {
			return n
		}
		return UnknownSender
	}
	now := r.opts.Clock.Now().In(loc)
	lastRead := r.self.LastReadTS

	out := View{Rows: make([]Row, 0, len(r.msgs))}
	var prev *models.Message
	var prevDay string
	unreadPlaced := false
	for _, m := range r.msgs {
		at := time.Unix(0, m.CreatedTS).In(loc)
		row := Row{
			Message: *m,
			Pending: IsTmpID(m.ID),
			Sender:  nameOf(m.SenderID),
		}
		if day := at.Format("2006-01-02"); day != prevDay {
			row.DateSeparator = dayLabel(at, now)
			prevDay = day
		}

		switch {
		case m.IsSystem():
			row.Sender = ""
		case prev == nil || row.DateSeparator != "" || prev.IsSystem() ||
			prev.SenderID != m.SenderID || time.Duration(m.CreatedTS-prev.CreatedTS) > GroupWindow:
			row.ShowSender = true
		}

		switch {
		case m.DeletedByModerator():
			row.Placeholder = PlaceholderModerated
		case m.IsDeleted():
			row.Placeholder = PlaceholderDeleted
		default:
			row.Segments = mention.Highlight(m.Content, r.roster)
			row.Reactions = r.reacts.Groups(m.ID)
		}

		if m.ReplyToID != "" && !m.IsDeleted() {
			p := &ReplyPreview{ID: m.ReplyToID}
			if t, ok := r.byID[m.ReplyToID]; ok {
				p.SenderName = nameOf(t.SenderID)
				p.Deleted = t.IsDeleted()
				if !p.Deleted {
					p.Snippet = snippet(t.Content)
				}
			} else {
				p.Missing = true
			}
			row.Reply = p
		}

		if !unreadPlaced && lastRead > 0 && !row.Pending &&
			m.SenderID != r.viewer && m.CreatedTS > lastRead {
			row.UnreadBefore = true
			unreadPlaced = true
		}

		if m.IsPinned && !m.IsDeleted() {
			pinned := *m
			out.Pinned = &pinned
		}

		out.Rows = append(out.Rows, row)
		prev = m
	}
	return out
}
