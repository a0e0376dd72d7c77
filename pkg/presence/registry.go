package presence

import (
	"sort"
	"sync"
	"time"

	"groupchat/pkg/models"
	"groupchat/pkg/timeutil"
)

type conn struct {
	entry models.PresenceEntry
	seen  time.Time
}

// Expired is an entry dropped by Sweep.
type Expired struct {
	ChannelID string
	ConnID    string
	Entry     models.PresenceEntry
}

// Registry tracks live presence connections per channel on the server.
// Entries live for ttl after their last heartbeat or update.
type Registry struct {
	mu       sync.Mutex
	ttl      time.Duration
	clock    timeutil.Clock
	channels map[string]map[string]*conn
}

func NewRegistry(ttl time.Duration, clock timeutil.Clock) *Registry {
	if clock == nil {
		clock = timeutil.System
	}
	return &Registry{ttl: ttl, clock: clock, channels: make(map[string]map[string]*conn)}
}

func (r *Registry) stamp(c *conn) models.PresenceEntry {
	c.seen = r.clock.Now()
	c.entry.ExpiresTS = c.seen.Add(r.ttl).UnixNano()
	return c.entry
}

// Join registers a connection as present and idle.
func (r *Registry) Join(channelID, connID, userID, displayName string) models.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[channelID]
	if !ok {
		ch = make(map[string]*conn)
		r.channels[channelID] = ch
	}
	c := &conn{entry: models.PresenceEntry{UserID: userID, DisplayName: displayName}}
	ch[connID] = c
	return r.stamp(c)
}

// SetTyping updates a connection's typing flag. changed is false when the
// flag already had that value; the expiry is refreshed either way.
func (r *Registry) SetTyping(channelID, connID string, typing bool) (entry models.PresenceEntry, changed, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[channelID][connID]
	if !ok {
		return models.PresenceEntry{}, false, false
	}
	changed = c.entry.Typing != typing
	c.entry.Typing = typing
	return r.stamp(c), changed, true
}

// Heartbeat refreshes a connection's expiry.
func (r *Registry) Heartbeat(channelID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[channelID][connID]
	if ok {
		r.stamp(c)
	}
	return ok
}

// Leave removes a connection and returns its last entry.
func (r *Registry) Leave(channelID, connID string) (models.PresenceEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := r.channels[channelID]
	c, ok := ch[connID]
	if !ok {
		return models.PresenceEntry{}, false
	}
	delete(ch, connID)
	if len(ch) == 0 {
		delete(r.channels, channelID)
	}
	return c.entry, true
}

// Snapshot lists the live entries of a channel ordered by user id.
func (r *Registry) Snapshot(channelID string) []models.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PresenceEntry, 0, len(r.channels[channelID]))
	for _, c := range r.channels[channelID] {
		out = append(out, c.entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Sweep drops every connection not seen within ttl.
func (r *Registry) Sweep() []Expired {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	var out []Expired
	for chID, ch := range r.channels {
		for id, c := range ch {
			if now.Sub(c.seen) < r.ttl {
				continue
			}
			delete(ch, id)
			out = append(out, Expired{ChannelID: chID, ConnID: id, Entry: c.entry})
		}
		if len(ch) == 0 {
			delete(r.channels, chID)
		}
	}
	return out
}

// Connections returns the number of live connections across channels.
func (r *Registry) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ch := range r.channels {
		n += len(ch)
	}
	return n
}
