// Package reactions folds raw reaction rows into per-message emoji groups.
package reactions

import (
	"sort"

	"groupchat/pkg/models"
)

// Group is one emoji bucket on a message.
type Group struct {
	Emoji           string `json:"emoji"`
	Count           int    `json:"count"`
	ReactedByViewer bool   `json:"reacted_by_viewer"`
}

// bucket keeps the users holding an emoji; users is a set so replayed
// inserts and removes are idempotent.
type bucket struct {
	emoji string
	users map[string]struct{}
}

type messageGroups struct {
	// order is first-occurrence order of emojis currently present
	order []*bucket
	index map[string]*bucket
}

func newMessageGroups() *messageGroups {
	return &messageGroups{index: make(map[string]*bucket)}
}

func (g *messageGroups) add(emoji, user string) bool {
	b, ok := g.index[emoji]
	if !ok {
		b = &bucket{emoji: emoji, users: make(map[string]struct{})}
		g.index[emoji] = b
		g.order = append(g.order, b)
	}
	if _, held := b.users[user]; held {
		return false
	}
	b.users[user] = struct{}{}
	return true
}

func (g *messageGroups) remove(emoji, user string) bool {
	b, ok := g.index[emoji]
	if !ok {
		return false
	}
	if _, held := b.users[user]; !held {
		return false
	}
	delete(b.users, user)
	if len(b.users) == 0 {
		delete(g.index, emoji)
		for i, o := range g.order {
			if o == b {
				g.order = append(g.order[:i], g.order[i+1:]...)
				break
			}
		}
	}
	return true
}

// Aggregator holds reaction state for the messages currently loaded in a
// view. It is not safe for concurrent use; the reconciler owns it.
type Aggregator struct {
	viewer string
	msgs   map[string]*messageGroups
}

// New returns an empty aggregator computing ReactedByViewer for viewer.
func New(viewer string) *Aggregator {
	return &Aggregator{viewer: viewer, msgs: make(map[string]*messageGroups)}
}

// Load replaces the state of every message that appears in rows, plus any
// message in reset, with the given rows. Emoji order follows CreatedTS.
func (a *Aggregator) Load(rows []models.Reaction, reset ...string) {
	sorted := make([]models.Reaction, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedTS < sorted[j].CreatedTS })

	for _, id := range reset {
		delete(a.msgs, id)
	}
	seen := make(map[string]bool)
	for _, r := range sorted {
		if !seen[r.MessageID] {
			seen[r.MessageID] = true
			a.msgs[r.MessageID] = newMessageGroups()
		}
		a.msgs[r.MessageID].add(r.Emoji, r.UserID)
	}
}

// Insert applies a single reaction insert. It reports whether state changed.
func (a *Aggregator) Insert(r models.Reaction) bool {
	g, ok := a.msgs[r.MessageID]
	if !ok {
		g = newMessageGroups()
		a.msgs[r.MessageID] = g
	}
	return g.add(r.Emoji, r.UserID)
}

// Remove applies a single reaction removal. Removing an absent reaction is a
// no-op.
func (a *Aggregator) Remove(r models.Reaction) bool {
	g, ok := a.msgs[r.MessageID]
	if !ok {
		return false
	}
	changed := g.remove(r.Emoji, r.UserID)
	if len(g.order) == 0 {
		delete(a.msgs, r.MessageID)
	}
	return changed
}

// Forget drops all state for a message.
func (a *Aggregator) Forget(messageID string) {
	delete(a.msgs, messageID)
}

// Has reports whether user currently holds emoji on messageID.
func (a *Aggregator) Has(messageID, emoji, user string) bool {
	g, ok := a.msgs[messageID]
	if !ok {
		return false
	}
	b, ok := g.index[emoji]
	if !ok {
		return false
	}
	_, held := b.users[user]
	return held
}

// ViewerHas reports whether the viewer holds emoji on messageID, which
// decides whether a toggle adds or removes.
func (a *Aggregator) ViewerHas(messageID, emoji string) bool {
	return a.Has(messageID, emoji, a.viewer)
}

// Groups returns the emoji groups of a message in first-occurrence order.
func (a *Aggregator) Groups(messageID string) []Group {
	g, ok := a.msgs[messageID]
	if !ok {
		return nil
	}
	out := make([]Group, 0, len(g.order))
	for _, b := range g.order {
		_, mine := b.users[a.viewer]
		out = append(out, Group{Emoji: b.emoji, Count: len(b.users), ReactedByViewer: mine})
	}
	return out
}
