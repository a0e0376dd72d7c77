// Package reconciler keeps one channel's message list on the client. It
// merges optimistic local sends with store-confirmed broadcast rows so that
// every message id appears exactly once, ordered by creation time.
//
// All state sits behind one mutex and store calls run without it held, so
// broadcasts and other actions interleave freely with an in-flight call.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
	"groupchat/pkg/reactions"
	"groupchat/pkg/state/logger"
	"groupchat/pkg/timeutil"
)

var (
	// ErrUnknownMessage is returned for actions on ids not in the local list.
	ErrUnknownMessage = errors.New("unknown message")
	ErrEmptyMessage   = fmt.Errorf("%w: message needs content or an image", models.ErrInvalid)
	ErrContentTooLong = fmt.Errorf("%w: content too long", models.ErrInvalid)
)

// TmpPrefix marks client-generated ids; the store never issues them.
const TmpPrefix = "tmp-"

// mutedRecheck gates sends after a muted rejection the roster cannot
// explain; the next attempt after it asks the server again.
const mutedRecheck = time.Minute

// IsTmpID reports whether id is an optimistic local id.
func IsTmpID(id string) bool { return strings.HasPrefix(id, TmpPrefix) }

// Store is the write path and history source the reconciler drives.
type Store interface {
	Send(ctx context.Context, channelID string, req models.SendRequest) (models.Message, error)
	Edit(ctx context.Context, msgID, content string) (models.Message, error)
	Delete(ctx context.Context, msgID string) (models.Message, error)
	SetPinned(ctx context.Context, msgID string, pin bool) (models.Message, error)
	AddReaction(ctx context.Context, msgID, emoji string) (models.Reaction, error)
	RemoveReaction(ctx context.Context, msgID, emoji string) error
	Mute(ctx context.Context, groupID, userID string, d models.MuteDuration) (models.Mute, error)
	MarkRead(ctx context.Context, channelID string) error
	ListMessages(ctx context.Context, channelID string, before int64, limit int) ([]models.Message, bool, error)
	ListReactions(ctx context.Context, channelID string, msgIDs []string) ([]models.Reaction, error)
	ListMembers(ctx context.Context, channelID string) ([]models.Member, error)
}

type Options struct {
	// EchoWindow bounds how far a broadcast echo's created_ts may be from
	// the local send time and still confirm a pending send.
	EchoWindow time.Duration
	// MaxBuffered caps updates held for ids whose insert has not arrived.
	MaxBuffered     int
	MaxContentRunes int
	PageSize        int
	Clock           timeutil.Clock
	// OnChange is called, without locks held, after the visible state moves.
	OnChange func()
}

func (o *Options) applyDefaults() {
	if o.EchoWindow <= 0 {
		o.EchoWindow = 30 * time.Second
	}
	if o.MaxBuffered <= 0 {
		o.MaxBuffered = 1024
	}
	if o.MaxContentRunes <= 0 {
		o.MaxContentRunes = 2000
	}
	if o.Clock == nil {
		o.Clock = timeutil.System
	}
}

// SendOutcome resolves a Pending send. On failure RestoredText holds the
// compose text to put back; there is no automatic retry.
type SendOutcome struct {
	Message      models.Message
	Err          error
	RestoredText string
}

// Pending is the handle returned by Send. OnChange has already run for the
// outcome by the time Done yields it.
type Pending struct {
	Local models.Message
	Done  <-chan SendOutcome
}

type pendingSend struct {
	localID string
	req     models.SendRequest
	sentAt  time.Time
	// tmpPresent is true while the optimistic entry is still in the list.
	tmpPresent bool
	done       chan SendOutcome
}

// EditError keeps the attempted text of a failed edit.
type EditError struct {
	Attempted string
	Err       error
}

func (e *EditError) Error() string { return "edit failed: " + e.Err.Error() }

func (e *EditError) Unwrap() error { return e.Err }

type reactionEvent struct {
	r       models.Reaction
	removed bool
}

type Reconciler struct {
	store   Store
	channel models.Channel
	viewer  string
	opts    Options

	mu       sync.Mutex
	msgs     []*models.Message
	byID     map[string]*models.Message
	pending  []*pendingSend
	buffered map[string]models.Message
	bufOrder []string
	reacts   *reactions.Aggregator
	// reaction events seen while a page's reactions are being fetched,
	// replayed over the page so it cannot roll them back
	fetches  int
	reactLog []reactionEvent
	roster   []models.Member
	self     models.Member
	nextTmp  uint64
	more     bool
	loaded   bool
}

// New returns an empty reconciler for channel as seen by viewerID.
func New(store Store, channel models.Channel, viewerID string, opts Options) *Reconciler {
	opts.applyDefaults()
	return &Reconciler{
		store:    store,
		channel:  channel,
		viewer:   viewerID,
		opts:     opts,
		byID:     make(map[string]*models.Message),
		buffered: make(map[string]models.Message),
		reacts:   reactions.New(viewerID),
		self:     models.Member{ID: viewerID, GroupID: channel.GroupID},
	}
}

func (r *Reconciler) notify() {
	if r.opts.OnChange != nil {
		r.opts.OnChange()
	}
}

func (r *Reconciler) Channel() models.Channel { return r.channel }

// actor must be called with r.mu held.
func (r *Reconciler) actor() moderation.Actor {
	return moderation.ActorFor(r.self, r.self.Mute)
}

// Load fetches the roster, the newest history page and its reactions, and
// merges them into the list.
func (r *Reconciler) Load(ctx context.Context) error {
	if err := r.RefreshRoster(ctx); err != nil {
		return err
	}
	msgs, more, err := r.store.ListMessages(ctx, r.channel.ID, 0, r.opts.PageSize)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if err := r.mergePage(ctx, msgs); err != nil {
		return err
	}
	r.mu.Lock()
	r.more = more
	r.loaded = true
	r.mu.Unlock()
	r.notify()
	return nil
}

// LoadOlder fetches the page before the oldest confirmed message. It
// reports whether anything older remains.
func (r *Reconciler) LoadOlder(ctx context.Context) (bool, error) {
	r.mu.Lock()
	var before int64
	for _, m := range r.msgs {
		if !IsTmpID(m.ID) {
			before = m.CreatedTS
			break
		}
	}
	more := r.more
	r.mu.Unlock()
	if !more || before == 0 {
		return false, nil
	}
	msgs, more, err := r.store.ListMessages(ctx, r.channel.ID, before, r.opts.PageSize)
	if err != nil {
		return true, fmt.Errorf("load older: %w", err)
	}
	if err := r.mergePage(ctx, msgs); err != nil {
		return true, err
	}
	r.mu.Lock()
	r.more = more
	r.mu.Unlock()
	r.notify()
	return more, nil
}

func (r *Reconciler) mergePage(ctx context.Context, msgs []models.Message) error {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	if len(ids) == 0 {
		return nil
	}
	r.mu.Lock()
	r.fetches++
	mark := len(r.reactLog)
	r.mu.Unlock()

	rows, err := r.store.ListReactions(ctx, r.channel.ID, ids)

	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if r.fetches--; r.fetches == 0 {
			r.reactLog = nil
		}
	}()
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	for _, m := range msgs {
		r.insertLocked(m)
	}
	r.reacts.Load(rows, ids...)
	for _, ev := range r.reactLog[mark:] {
		r.applyReactionLocked(ev.r, ev.removed)
	}
	return nil
}

// RefreshRoster reloads members, including the viewer's own role, mute and
// read mark.
func (r *Reconciler) RefreshRoster(ctx context.Context) error {
	members, err := r.store.ListMembers(ctx, r.channel.ID)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	r.mu.Lock()
	r.roster = members
	for _, m := range members {
		if m.ID == r.viewer {
			r.self = m
		}
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

// Roster returns a copy of the channel members.
func (r *Reconciler) Roster() []models.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Member(nil), r.roster...)
}

// Self returns the viewer's member record.
func (r *Reconciler) Self() models.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self
}

// Messages returns a snapshot of the list in display order.
func (r *Reconciler) Messages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Message, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = *m
	}
	return out
}

// Message returns one entry by id.
func (r *Reconciler) Message(id string) (models.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return models.Message{}, false
	}
	return *m, true
}

// PendingSends counts sends still waiting for the store.
func (r *Reconciler) PendingSends() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Reconciler) index(m *models.Message) int {
	return sort.Search(len(r.msgs), func(i int) bool { return !r.msgs[i].Less(m) })
}

func (r *Reconciler) addSorted(m *models.Message) {
	i := r.index(m)
	r.msgs = append(r.msgs, nil)
	copy(r.msgs[i+1:], r.msgs[i:])
	r.msgs[i] = m
	r.byID[m.ID] = m
}

func (r *Reconciler) removeEntry(id string) bool {
	m, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	for i := r.index(m); i < len(r.msgs); i++ {
		if r.msgs[i] == m {
			r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
			return true
		}
	}
	// not where ordering says it should be; fall back to a scan
	for i, e := range r.msgs {
		if e == m {
			r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
			return true
		}
	}
	return true
}

// Send runs the gate, appends an optimistic entry and issues the store write
// in the background. A gate rejection returns an error and adds nothing.
func (r *Reconciler) Send(ctx context.Context, text, imageRef, replyToID string) (*Pending, error) {
	if strings.TrimSpace(text) == "" && imageRef == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > r.opts.MaxContentRunes {
		return nil, ErrContentTooLong
	}
	now := r.opts.Clock.Now()

	r.mu.Lock()
	if err := moderation.CanSend(r.actor(), now); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if replyToID != "" {
		if target, ok := r.byID[replyToID]; ok {
			if err := moderation.CanReply(target); err != nil {
				r.mu.Unlock()
				return nil, err
			}
		}
	}
	r.nextTmp++
	ts := now.UnixNano()
	if n := len(r.msgs); n > 0 && r.msgs[n-1].CreatedTS >= ts {
		ts = r.msgs[n-1].CreatedTS + 1
	}
	local := &models.Message{
		ID:        TmpPrefix + strconv.FormatUint(r.nextTmp, 10),
		ChannelID: r.channel.ID,
		SenderID:  r.viewer,
		Content:   text,
		ImageRef:  imageRef,
		Kind:      models.KindNormal,
		ReplyToID: replyToID,
		CreatedTS: ts,
	}
	p := &pendingSend{
		localID:    local.ID,
		req:        models.SendRequest{Content: text, ImageRef: imageRef, ReplyToID: replyToID},
		sentAt:     now,
		tmpPresent: true,
		done:       make(chan SendOutcome, 1),
	}
	r.addSorted(local)
	r.pending = append(r.pending, p)
	out := &Pending{Local: *local, Done: p.done}
	r.mu.Unlock()
	r.notify()

	go r.complete(context.WithoutCancel(ctx), p)
	return out, nil
}

func (r *Reconciler) complete(ctx context.Context, p *pendingSend) {
	row, err := r.store.Send(ctx, r.channel.ID, p.req)

	r.mu.Lock()
	r.dropPending(p)
	if err != nil {
		if p.tmpPresent {
			r.removeEntry(p.localID)
			p.tmpPresent = false
		}
		r.mu.Unlock()
		logger.Info("send_failed", "channel_id", r.channel.ID, "local_id", p.localID, "error", err)
		if errors.Is(err, moderation.ErrMuted) {
			r.learnMute(ctx)
		}
		r.notify()
		p.done <- SendOutcome{Err: err, RestoredText: p.req.Content}
		return
	}
	switch {
	case r.byID[row.ID] != nil:
		// echo already placed it
		r.applyLocked(row)
		if p.tmpPresent {
			r.removeEntry(p.localID)
		}
	case p.tmpPresent:
		r.replaceLocked(p.localID, row)
	default:
		// our entry was taken by an echo of an identical send
		r.insertLocked(row)
	}
	p.tmpPresent = false
	final := *r.byID[row.ID]
	r.mu.Unlock()
	r.notify()
	p.done <- SendOutcome{Message: final}
}

// learnMute runs after the server refused a send as muted. The roster is
// reloaded for the real expiry; when it still shows no active mute the
// viewer is gated for mutedRecheck.
func (r *Reconciler) learnMute(ctx context.Context) {
	if err := r.RefreshRoster(ctx); err != nil {
		logger.Warn("roster_refresh_failed", "channel_id", r.channel.ID, "error", err)
	}
	now := r.opts.Clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.self.Mute.ActiveAt(now) {
		return
	}
	m := models.Mute{GroupID: r.channel.GroupID, UserID: r.viewer, UntilTS: now.Add(mutedRecheck).UnixNano()}
	r.self.Mute = &m
}

func (r *Reconciler) dropPending(p *pendingSend) {
	for i, q := range r.pending {
		if q == p {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

// replaceLocked swaps the optimistic entry for the confirmed row, keeping
// the slot when the order allows it.
func (r *Reconciler) replaceLocked(localID string, row models.Message) {
	old, ok := r.byID[localID]
	if !ok {
		r.insertLocked(row)
		return
	}
	delete(r.byID, localID)
	i := r.index(old)
	for i < len(r.msgs) && r.msgs[i] != old {
		i++
	}
	*old = row
	r.byID[row.ID] = old
	inOrder := i < len(r.msgs) &&
		(i == 0 || r.msgs[i-1].Less(old)) &&
		(i == len(r.msgs)-1 || old.Less(r.msgs[i+1]))
	if !inOrder {
		if i < len(r.msgs) {
			r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
		}
		delete(r.byID, row.ID)
		r.addSorted(old)
	}
	r.replayBuffered(row.ID)
}

// insertLocked places a confirmed row that is not in the list yet, or
// applies it as an update when it is.
func (r *Reconciler) insertLocked(row models.Message) {
	if r.byID[row.ID] != nil {
		r.applyLocked(row)
		return
	}
	m := row
	r.addSorted(&m)
	r.replayBuffered(row.ID)
}

func (r *Reconciler) replayBuffered(id string) {
	upd, ok := r.buffered[id]
	if !ok {
		return
	}
	delete(r.buffered, id)
	for i, b := range r.bufOrder {
		if b == id {
			r.bufOrder = append(r.bufOrder[:i], r.bufOrder[i+1:]...)
			break
		}
	}
	r.applyLocked(upd)
}

// applyLocked folds a newer row into an existing entry. Older rows lose
// (last write wins on updated_ts) and deletion is never undone.
func (r *Reconciler) applyLocked(row models.Message) bool {
	cur := r.byID[row.ID]
	if cur == nil {
		return false
	}
	if row.UpdatedTS < cur.UpdatedTS {
		return false
	}
	if cur.IsDeleted() && !row.IsDeleted() {
		return false
	}
	if row.CreatedTS != cur.CreatedTS {
		r.removeEntry(row.ID)
		m := row
		r.addSorted(&m)
		return true
	}
	*cur = row
	return true
}

// OnInsert handles a broadcast insert, including echoes of our own sends.
func (r *Reconciler) OnInsert(row models.Message) {
	if row.ChannelID != r.channel.ID {
		return
	}
	r.mu.Lock()
	if r.byID[row.ID] != nil {
		r.applyLocked(row)
		r.mu.Unlock()
		r.notify()
		return
	}
	if p := r.matchPending(row); p != nil {
		r.replaceLocked(p.localID, row)
		p.tmpPresent = false
	} else {
		r.insertLocked(row)
	}
	r.mu.Unlock()
	r.notify()
}

// matchPending finds the oldest unconfirmed send this echo belongs to.
func (r *Reconciler) matchPending(row models.Message) *pendingSend {
	if row.SenderID != r.viewer || row.Kind != models.KindNormal {
		return nil
	}
	created := time.Unix(0, row.CreatedTS)
	for _, p := range r.pending {
		if !p.tmpPresent {
			continue
		}
		if p.req.Content != row.Content || p.req.ImageRef != row.ImageRef || p.req.ReplyToID != row.ReplyToID {
			continue
		}
		d := created.Sub(p.sentAt)
		if d < 0 {
			d = -d
		}
		if d <= r.opts.EchoWindow {
			return p
		}
	}
	return nil
}

// OnUpdate applies edit, delete and pin changes. Updates for unknown ids
// are held until their insert arrives.
func (r *Reconciler) OnUpdate(row models.Message) {
	if row.ChannelID != r.channel.ID {
		return
	}
	r.mu.Lock()
	if r.byID[row.ID] != nil {
		changed := r.applyLocked(row)
		r.mu.Unlock()
		if changed {
			r.notify()
		}
		return
	}
	if prev, ok := r.buffered[row.ID]; ok {
		if row.UpdatedTS >= prev.UpdatedTS && !(prev.IsDeleted() && !row.IsDeleted()) {
			r.buffered[row.ID] = row
		}
		r.mu.Unlock()
		return
	}
	if len(r.bufOrder) >= r.opts.MaxBuffered {
		oldest := r.bufOrder[0]
		r.bufOrder = r.bufOrder[1:]
		delete(r.buffered, oldest)
		logger.Warn("update_buffer_evicted", "channel_id", r.channel.ID, "message_id", oldest)
	}
	r.buffered[row.ID] = row
	r.bufOrder = append(r.bufOrder, row.ID)
	r.mu.Unlock()
}

// BufferedUpdates counts updates waiting for their insert.
func (r *Reconciler) BufferedUpdates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffered)
}

// OnReaction applies a reaction insert or removal to the affected message.
func (r *Reconciler) OnReaction(rc models.Reaction, removed bool) {
	r.mu.Lock()
	if r.fetches > 0 {
		r.reactLog = append(r.reactLog, reactionEvent{r: rc, removed: removed})
	}
	changed := r.applyReactionLocked(rc, removed)
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

func (r *Reconciler) applyReactionLocked(rc models.Reaction, removed bool) bool {
	if removed {
		return r.reacts.Remove(rc)
	}
	return r.reacts.Insert(rc)
}

// Apply dispatches a decoded broadcast event.
func (r *Reconciler) Apply(ev models.Event) {
	if ev.Channel() != r.channel.ID {
		return
	}
	switch e := ev.(type) {
	case models.MessageInserted:
		r.OnInsert(e.Message)
	case models.MessageUpdated:
		r.OnUpdate(e.Message)
	case models.ReactionInserted:
		r.OnReaction(e.Reaction, false)
	case models.ReactionRemoved:
		r.OnReaction(e.Reaction, true)
	case models.MuteChanged:
		if e.GroupID == r.channel.GroupID {
			r.OnMute(e.UserID, e.Mute)
		}
	}
}

// OnMute records a mute issued or lifted (m nil) for a group member.
func (r *Reconciler) OnMute(userID string, m *models.Mute) {
	r.mu.Lock()
	r.setMuteLocked(userID, m)
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) setMuteLocked(userID string, m *models.Mute) {
	if m != nil {
		mm := *m
		m = &mm
	}
	for i := range r.roster {
		if r.roster[i].ID == userID {
			r.roster[i].Mute = m
		}
	}
	if userID == r.viewer {
		r.self.Mute = m
	}
}

// Reactions returns the grouped reactions for a message.
func (r *Reconciler) Reactions(msgID string) []reactions.Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reacts.Groups(msgID)
}

// target resolves a confirmed local message for a moderation action.
func (r *Reconciler) target(id string) (*models.Message, error) {
	m, ok := r.byID[id]
	if !ok || IsTmpID(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	return m, nil
}

// confirm applies a store-confirmed row. Not-found from the store leaves the
// list untouched.
func (r *Reconciler) confirm(row models.Message, err error) (models.Message, error) {
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Message{}, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
		}
		return models.Message{}, err
	}
	r.mu.Lock()
	r.insertLocked(row)
	out := *r.byID[row.ID]
	r.mu.Unlock()
	r.notify()
	return out, nil
}

// Edit replaces the text of one of the viewer's messages once the store
// confirms. A failure returns *EditError carrying the attempted text.
func (r *Reconciler) Edit(ctx context.Context, id, text string) (models.Message, error) {
	r.mu.Lock()
	m, err := r.target(id)
	if err == nil {
		err = moderation.CanEdit(r.actor(), m)
	}
	imageRef := ""
	if m != nil {
		imageRef = m.ImageRef
	}
	r.mu.Unlock()
	if err != nil {
		return models.Message{}, &EditError{Attempted: text, Err: err}
	}
	if strings.TrimSpace(text) == "" && imageRef == "" {
		return models.Message{}, &EditError{Attempted: text, Err: ErrEmptyMessage}
	}
	if utf8.RuneCountInString(text) > r.opts.MaxContentRunes {
		return models.Message{}, &EditError{Attempted: text, Err: ErrContentTooLong}
	}
	out, err := r.confirm(r.store.Edit(ctx, id, text))
	if err != nil {
		return models.Message{}, &EditError{Attempted: text, Err: err}
	}
	return out, nil
}

// Delete soft-deletes a message once the store confirms.
func (r *Reconciler) Delete(ctx context.Context, id string) (models.Message, error) {
	r.mu.Lock()
	m, err := r.target(id)
	if err == nil {
		err = moderation.CanDelete(r.actor(), m)
	}
	r.mu.Unlock()
	if err != nil {
		return models.Message{}, err
	}
	return r.confirm(r.store.Delete(ctx, id))
}

func (r *Reconciler) setPinned(ctx context.Context, id string, pin bool) (models.Message, error) {
	r.mu.Lock()
	m, err := r.target(id)
	if err == nil {
		err = moderation.CanPin(r.actor(), m, pin)
	}
	r.mu.Unlock()
	if err != nil {
		return models.Message{}, err
	}
	return r.confirm(r.store.SetPinned(ctx, id, pin))
}

func (r *Reconciler) Pin(ctx context.Context, id string) (models.Message, error) {
	return r.setPinned(ctx, id, true)
}

func (r *Reconciler) Unpin(ctx context.Context, id string) (models.Message, error) {
	return r.setPinned(ctx, id, false)
}

// ToggleReaction removes emoji if the viewer holds it, otherwise adds it.
// Gate rejections are returned; store failures are logged and swallowed,
// leaving the aggregate as it was.
func (r *Reconciler) ToggleReaction(ctx context.Context, id, emoji string) error {
	r.mu.Lock()
	m, err := r.target(id)
	if err == nil {
		err = moderation.CanReact(r.actor(), m)
	}
	held := r.reacts.ViewerHas(id, emoji)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if held {
		if err := r.store.RemoveReaction(ctx, id, emoji); err != nil {
			logger.Warn("reaction_remove_failed", "message_id", id, "emoji", emoji, "error", err)
			return nil
		}
		r.OnReaction(models.Reaction{MessageID: id, Emoji: emoji, UserID: r.viewer}, true)
		return nil
	}
	rc, err := r.store.AddReaction(ctx, id, emoji)
	if err != nil {
		logger.Warn("reaction_add_failed", "message_id", id, "emoji", emoji, "error", err)
		return nil
	}
	r.OnReaction(rc, false)
	return nil
}

// Mute silences another member of the channel's group. Admin only.
func (r *Reconciler) Mute(ctx context.Context, userID string, d models.MuteDuration) (models.Mute, error) {
	r.mu.Lock()
	err := moderation.CanMute(r.actor(), userID)
	r.mu.Unlock()
	if err != nil {
		return models.Mute{}, err
	}
	mute, err := r.store.Mute(ctx, r.channel.GroupID, userID, d)
	if err != nil {
		return models.Mute{}, err
	}
	r.mu.Lock()
	r.setMuteLocked(userID, &mute)
	r.mu.Unlock()
	r.notify()
	return mute, nil
}

// MarkRead records the viewer's read mark in the background. Failures are
// logged and otherwise ignored.
func (r *Reconciler) MarkRead(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := r.store.MarkRead(ctx, r.channel.ID); err != nil {
			logger.Debug("mark_read_failed", "channel_id", r.channel.ID, "error", err)
		}
	}()
}
