package presence

import (
	"fmt"
	"strings"

	"groupchat/pkg/models"
)

// Roster is a client's view of who is composing in a channel. A member is
// listed iff their latest presence update had Typing set and they are not
// the viewer.
type Roster struct {
	viewer  string
	order   []string
	entries map[string]models.PresenceEntry
}

func NewRoster(viewer string) *Roster {
	return &Roster{viewer: viewer, entries: make(map[string]models.PresenceEntry)}
}

// Apply folds one presence event into the roster.
func (r *Roster) Apply(ev models.PresenceChanged) {
	id := ev.Entry.UserID
	if ev.Left {
		if _, ok := r.entries[id]; ok {
			delete(r.entries, id)
			for i, o := range r.order {
				if o == id {
					r.order = append(r.order[:i], r.order[i+1:]...)
					break
				}
			}
		}
		return
	}
	if _, ok := r.entries[id]; !ok {
		r.order = append(r.order, id)
	}
	r.entries[id] = ev.Entry
}

// Reset clears the roster, used before applying a fresh snapshot.
func (r *Roster) Reset() {
	r.order = nil
	r.entries = make(map[string]models.PresenceEntry)
}

// Typing returns the display names of typists in first-seen order.
func (r *Roster) Typing() []string {
	var out []string
	for _, id := range r.order {
		e := r.entries[id]
		if id == r.viewer || !e.Typing {
			continue
		}
		name := e.DisplayName
		if name == "" {
			name = id
		}
		out = append(out, name)
	}
	return out
}

// FormatTyping joins typist names into one line. Empty input gives "".
func FormatTyping(names []string) string {
	switch n := len(names); {
	case n == 0:
		return ""
	case n == 1:
		return names[0] + " is typing"
	case n == 2:
		return names[0] + " and " + names[1] + " are typing"
	case n == 3:
		return names[0] + ", " + names[1] + " and " + names[2] + " are typing"
	default:
		return fmt.Sprintf("%s and %d others are typing", strings.Join(names[:2], ", "), n-2)
	}
}
