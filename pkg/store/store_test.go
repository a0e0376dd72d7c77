package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
	"groupchat/pkg/timeutil"
)

type fixture struct {
	s     *Store
	clock *timeutil.Manual
	ch    models.Channel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := timeutil.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s, err := OpenInMemory(Options{MaxContentRunes: 20, HistoryPageSize: 3, HistoryMaxPage: 5, Clock: clk})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	for _, m := range []models.Member{
		{ID: "amy", GroupID: "g1", DisplayName: "Amy", Role: models.RoleAdmin},
		{ID: "ben", GroupID: "g1", DisplayName: "Ben", Role: models.RoleAdmin},
		{ID: "cat", GroupID: "g1", DisplayName: "Cat"},
		{ID: "dan", GroupID: "g1", DisplayName: "Dan"},
	} {
		_, err := s.PutMember(ctx, m)
		require.NoError(t, err)
	}
	ch, err := s.CreateChannel(ctx, models.Channel{GroupID: "g1", Name: "general"})
	require.NoError(t, err)
	return &fixture{s: s, clock: clk, ch: ch}
}

func (f *fixture) send(t *testing.T, user, text string) models.Message {
	t.Helper()
	m, err := f.s.SendMessage(context.Background(), f.ch.ID, user, models.SendRequest{Content: text})
	require.NoError(t, err)
	return m
}

func reason(t *testing.T, err error) moderation.Reason {
	t.Helper()
	r, ok := moderation.AsRejection(err)
	require.True(t, ok, "want rejection, got %v", err)
	return r.Reason
}

func TestChannelCreateAndRename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.s.GetChannel(ctx, f.ch.ID)
	require.NoError(t, err)
	require.Equal(t, "general", got.Name)

	_, err = f.s.CreateChannel(ctx, models.Channel{ID: f.ch.ID, GroupID: "g1", Name: "x"})
	require.ErrorIs(t, err, ErrExists)

	_, err = f.s.RenameChannel(ctx, f.ch.ID, "lobby", "cat")
	require.Equal(t, moderation.ReasonNotAuthorized, reason(t, err))

	got, err = f.s.RenameChannel(ctx, f.ch.ID, "  lobby ", "amy")
	require.NoError(t, err)
	require.Equal(t, "lobby", got.Name)
	require.Equal(t, f.ch.CreatedTS, got.CreatedTS)

	_, err = f.s.GetChannel(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListGroupChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.s.CreateChannel(ctx, models.Channel{ID: "ev-1", GroupID: "g1", EventID: "e1", Name: "meetup"})
	require.NoError(t, err)
	_, err = f.s.CreateChannel(ctx, models.Channel{ID: "other", GroupID: "g2", Name: "elsewhere"})
	require.NoError(t, err)

	got, err := f.s.ListGroupChannels(ctx, "g1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{f.ch.ID, "ev-1"}, got)

	// the index lives beside the roster without leaking into it
	members, err := f.s.ListMembers(ctx, "ev-1")
	require.NoError(t, err)
	require.Len(t, members, 4)

	got, err = f.s.ListGroupChannels(ctx, "g3")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSendAssignsMonotonicCreatedTS(t *testing.T) {
	f := newFixture(t)
	// clock frozen: every send still gets a strictly larger timestamp
	a := f.send(t, "cat", "one")
	b := f.send(t, "dan", "two")
	c := f.send(t, "cat", "three")
	require.Less(t, a.CreatedTS, b.CreatedTS)
	require.Less(t, b.CreatedTS, c.CreatedTS)
	require.Equal(t, models.KindNormal, a.Kind)
	require.NotEmpty(t, a.ID)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.s.SendMessage(ctx, f.ch.ID, "cat", models.SendRequest{Content: strings.Repeat("é", 21)})
	require.ErrorIs(t, err, ErrContentTooLong)

	_, err = f.s.SendMessage(ctx, f.ch.ID, "cat", models.SendRequest{Content: "   "})
	require.ErrorIs(t, err, ErrEmptyMessage)

	m, err := f.s.SendMessage(ctx, f.ch.ID, "cat", models.SendRequest{ImageRef: "img/1.png"})
	require.NoError(t, err)
	require.Equal(t, "img/1.png", m.ImageRef)

	_, err = f.s.SendMessage(ctx, f.ch.ID, "stranger", models.SendRequest{Content: "hi"})
	require.Equal(t, moderation.ReasonNotAuthorized, reason(t, err))

	_, err = f.s.SendMessage(ctx, f.ch.ID, "cat", models.SendRequest{Content: "re", ReplyToID: "missing"})
	require.ErrorIs(t, err, ErrInvalidReply)
}

func TestMutedSendWritesNothingUntilExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.s.Mute(ctx, "g1", "cat", "ben", models.MuteOneHour)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.s.SendMessage(ctx, f.ch.ID, "cat", models.SendRequest{Content: "test"})
		require.True(t, errors.Is(err, moderation.ErrMuted))
	}
	msgs, _, err := f.s.ListMessages(ctx, f.ch.ID, 0, 0)
	require.NoError(t, err)
	require.Empty(t, msgs)

	f.clock.Advance(time.Hour)
	f.send(t, "cat", "back")
}

func TestMuteRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.s.Mute(ctx, "g1", "dan", "cat", models.MuteOneDay)
	require.Equal(t, moderation.ReasonNotAuthorized, reason(t, err))

	_, err = f.s.Mute(ctx, "g1", "amy", "amy", models.MuteOneDay)
	require.Equal(t, moderation.ReasonNotAuthorized, reason(t, err))

	_, err = f.s.Mute(ctx, "g1", "dan", "amy", models.MuteDuration("2h"))
	require.ErrorIs(t, err, ErrInvalid)

	m, err := f.s.Mute(ctx, "g1", "dan", "amy", models.MutePermanent)
	require.NoError(t, err)
	require.True(t, m.Permanent)

	members, err := f.s.ListMembers(ctx, f.ch.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"amy", "ben", "cat", "dan"}, []string{members[0].ID, members[1].ID, members[2].ID, members[3].ID})
	require.NotNil(t, members[3].Mute)
	require.Nil(t, members[2].Mute)

	_, err = f.s.Unmute(ctx, "g1", "dan", "cat")
	require.Equal(t, moderation.ReasonNotAuthorized, reason(t, err))
	removed, err := f.s.Unmute(ctx, "g1", "dan", "amy")
	require.NoError(t, err)
	require.True(t, removed)
	f.send(t, "dan", "free")
}

func TestSweepExpiredMutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.s.Mute(ctx, "g1", "cat", "amy", models.MuteOneHour)
	require.NoError(t, err)
	_, err = f.s.Mute(ctx, "g1", "dan", "amy", models.MuteOneWeek)
	require.NoError(t, err)

	n, err := f.s.SweepExpiredMutes(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, 0, n)

	n, err = f.s.SweepExpiredMutes(ctx, f.clock.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	mute, err := f.s.GetMute(ctx, "g1", "dan")
	require.NoError(t, err)
	require.NotNil(t, mute)
}

func TestEditRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, "cat", "helo")

	_, err := f.s.EditMessage(ctx, m.ID, "amy", "hello")
	require.Equal(t, moderation.ReasonNotAuthorized, reason(t, err))

	f.clock.Advance(time.Second)
	edited, err := f.s.EditMessage(ctx, m.ID, "cat", "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", edited.Content)
	require.NotZero(t, edited.EditedTS)
	require.Greater(t, edited.UpdatedTS, m.UpdatedTS)

	sys, err := f.s.PostSystemMessage(ctx, f.ch.ID, "Cat joined")
	require.NoError(t, err)
	require.Equal(t, models.KindSystem, sys.Kind)
	_, err = f.s.EditMessage(ctx, sys.ID, "cat", "x")
	require.Equal(t, moderation.ReasonSystemMessage, reason(t, err))

	_, err = f.s.EditMessage(ctx, "ghost", "cat", "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	own := f.send(t, "cat", "mine")
	other := f.send(t, "dan", "theirs")

	_, err := f.s.DeleteMessage(ctx, other.ID, "cat")
	require.Equal(t, moderation.ReasonNotAuthorized, reason(t, err))

	self, err := f.s.DeleteMessage(ctx, own.ID, "cat")
	require.NoError(t, err)
	require.False(t, self.DeletedByModerator())

	mod, err := f.s.DeleteMessage(ctx, other.ID, "amy")
	require.NoError(t, err)
	require.True(t, mod.DeletedByModerator())
	require.Equal(t, "amy", mod.DeletedBy)

	_, err = f.s.DeleteMessage(ctx, other.ID, "ben")
	require.Equal(t, moderation.ReasonDeleted, reason(t, err))
	_, err = f.s.EditMessage(ctx, own.ID, "cat", "undo")
	require.Equal(t, moderation.ReasonDeleted, reason(t, err))
	_, _, _, err = f.s.AddReaction(ctx, own.ID, "👍", "dan")
	require.Equal(t, moderation.ReasonDeleted, reason(t, err))

	got, err := f.s.GetMessage(ctx, other.ID)
	require.NoError(t, err)
	require.NotZero(t, got.DeletedTS)
}

func TestDeleteBlanksContentAndKeepsAuditCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := f.s.SendMessage(ctx, f.ch.ID, "dan", models.SendRequest{Content: "rude", ImageRef: "img://x"})
	require.NoError(t, err)

	_, err = f.s.DeletedOriginal(ctx, m.ID)
	require.ErrorIs(t, err, ErrNotFound)

	deleted, err := f.s.DeleteMessage(ctx, m.ID, "amy")
	require.NoError(t, err)
	require.Empty(t, deleted.Content)
	require.Empty(t, deleted.ImageRef)

	page, _, err := f.s.ListMessages(ctx, f.ch.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Empty(t, page[0].Content)
	require.Equal(t, "amy", page[0].DeletedBy)

	orig, err := f.s.DeletedOriginal(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "rude", orig.Content)
	require.Equal(t, "img://x", orig.ImageRef)
	require.Zero(t, orig.DeletedTS)
}

func TestPinning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.send(t, "cat", "A")
	b := f.send(t, "dan", "B")

	_, _, err := f.s.SetPinned(ctx, a.ID, "cat", true)
	require.Equal(t, moderation.ReasonNotAuthorized, reason(t, err))

	pa, changed, err := f.s.SetPinned(ctx, a.ID, "amy", true)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, pa.IsPinned)
	_, _, err = f.s.SetPinned(ctx, b.ID, "ben", true)
	require.NoError(t, err)

	_, changed, err = f.s.SetPinned(ctx, a.ID, "amy", true)
	require.NoError(t, err)
	require.False(t, changed)

	// both stay individually pinned
	ga, _ := f.s.GetMessage(ctx, a.ID)
	gb, _ := f.s.GetMessage(ctx, b.ID)
	require.True(t, ga.IsPinned)
	require.True(t, gb.IsPinned)
}

func TestReactionsUniquePerTriple(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, "cat", "hi")

	r, ch, added, err := f.s.AddReaction(ctx, m.ID, "👍", "dan")
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, f.ch.ID, ch)
	require.NotZero(t, r.CreatedTS)

	_, _, added, err = f.s.AddReaction(ctx, m.ID, "👍", "dan")
	require.NoError(t, err)
	require.False(t, added)
	_, _, _, err = f.s.AddReaction(ctx, m.ID, "🎉", "amy")
	require.NoError(t, err)

	rows, err := f.s.ListReactions(ctx, f.ch.ID, []string{m.ID, "unknown"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, _, removed, err := f.s.RemoveReaction(ctx, m.ID, "👍", "dan")
	require.NoError(t, err)
	require.True(t, removed)
	_, _, removed, err = f.s.RemoveReaction(ctx, m.ID, "👍", "dan")
	require.NoError(t, err)
	require.False(t, removed)

	sys, err := f.s.PostSystemMessage(ctx, f.ch.ID, "event created")
	require.NoError(t, err)
	_, _, _, err = f.s.AddReaction(ctx, sys.ID, "👍", "dan")
	require.Equal(t, moderation.ReasonSystemMessage, reason(t, err))

	_, _, _, err = f.s.AddReaction(ctx, m.ID, "", "dan")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.send(t, "cat", "question")
	reply, err := f.s.SendMessage(ctx, f.ch.ID, "dan", models.SendRequest{Content: "answer", ReplyToID: root.ID})
	require.NoError(t, err)
	require.Equal(t, root.ID, reply.ReplyToID)

	sys, _ := f.s.PostSystemMessage(ctx, f.ch.ID, "note")
	_, err = f.s.SendMessage(ctx, f.ch.ID, "dan", models.SendRequest{Content: "x", ReplyToID: sys.ID})
	require.Equal(t, moderation.ReasonSystemMessage, reason(t, err))

	other, err := f.s.CreateChannel(ctx, models.Channel{GroupID: "g1", EventID: "ev1", Name: "picnic"})
	require.NoError(t, err)
	_, err = f.s.SendMessage(ctx, other.ID, "dan", models.SendRequest{Content: "x", ReplyToID: root.ID})
	require.ErrorIs(t, err, ErrInvalidReply)
}

func TestListMessagesPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var sent []models.Message
	for _, txt := range []string{"1", "2", "3", "4", "5"} {
		sent = append(sent, f.send(t, "cat", txt))
	}

	page, more, err := f.s.ListMessages(ctx, f.ch.ID, 0, 0)
	require.NoError(t, err)
	require.True(t, more)
	require.Equal(t, []string{"3", "4", "5"}, contents(page))

	page, more, err = f.s.ListMessages(ctx, f.ch.ID, page[0].CreatedTS, 10)
	require.NoError(t, err)
	require.False(t, more)
	require.Equal(t, []string{"1", "2"}, contents(page))
	require.Equal(t, sent[0].ID, page[0].ID)
}

func contents(ms []models.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Content
	}
	return out
}

func TestMarkReadOnlyMovesForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ts, err := f.s.MarkRead(ctx, f.ch.ID, "cat", 100)
	require.NoError(t, err)
	require.Equal(t, int64(100), ts)
	ts, err = f.s.MarkRead(ctx, f.ch.ID, "cat", 50)
	require.NoError(t, err)
	require.Equal(t, int64(100), ts)

	members, err := f.s.ListMembers(ctx, f.ch.ID)
	require.NoError(t, err)
	for _, m := range members {
		if m.ID == "cat" {
			require.Equal(t, int64(100), m.LastReadTS)
		}
	}

	_, err = f.s.MarkRead(ctx, f.ch.ID, "stranger", 0)
	require.Error(t, err)
}

func TestConcurrentEditsLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, "cat", "v0")

	var wg sync.WaitGroup
	results := make([]models.Message, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.s.EditMessage(ctx, m.ID, "cat", "v"+string(rune('1'+i)))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	seen := map[int64]bool{}
	var newest models.Message
	for _, r := range results {
		require.False(t, seen[r.UpdatedTS], "updated_ts must be unique per write")
		seen[r.UpdatedTS] = true
		if r.UpdatedTS > newest.UpdatedTS {
			newest = r
		}
	}
	final, err := f.s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, newest.Content, final.Content)
	require.Equal(t, newest.UpdatedTS, final.UpdatedTS)
}
