package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrameDecodeVariants(t *testing.T) {
	msg := Message{ID: "m-1", ChannelID: "c-1", SenderID: "u-1", Content: "hi", Kind: KindNormal, CreatedTS: 10, UpdatedTS: 10}
	tests := []struct {
		name string
		ev   Event
	}{
		{"insert", MessageInserted{Message: msg}},
		{"update", MessageUpdated{Message: msg}},
		{"reaction insert", ReactionInserted{ChannelID: "c-1", Reaction: Reaction{MessageID: "m-1", Emoji: "👍", UserID: "u-2"}}},
		{"reaction remove", ReactionRemoved{ChannelID: "c-1", Reaction: Reaction{MessageID: "m-1", Emoji: "👍", UserID: "u-2"}}},
		{"presence", PresenceChanged{ChannelID: "c-1", Entry: PresenceEntry{UserID: "u-2", Typing: true}}},
		{"mute", MuteChanged{ChannelID: "c-1", GroupID: "g-1", UserID: "u-2", Mute: &Mute{GroupID: "g-1", UserID: "u-2", Permanent: true, IssuedBy: "u-1", IssuedTS: 5}}},
		{"unmute", MuteChanged{ChannelID: "c-1", GroupID: "g-1", UserID: "u-2"}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFrame(tt.ev, uint64(i+1))
			require.NoError(t, err)
			b, err := json.Marshal(f)
			require.NoError(t, err)
			got, err := DecodeEvent(b)
			require.NoError(t, err)
			require.Equal(t, tt.ev, got)
			require.Equal(t, tt.ev.Kind(), got.Kind())
		})
	}
}

func TestDecodeEventRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"unknown type":  `{"type":"message.exploded","data":{}}`,
		"missing id":    `{"type":"message.inserted","data":{"message":{"channel_id":"c","sender_id":"u","kind":"normal","created_ts":1}}}`,
		"bad kind":      `{"type":"message.inserted","data":{"message":{"id":"m","channel_id":"c","sender_id":"u","kind":"weird","created_ts":1}}}`,
		"channel clash": `{"type":"reaction.inserted","channel_id":"other","data":{"channel_id":"c","reaction":{"message_id":"m","emoji":"x","user_id":"u"}}}`,
		"no user":       `{"type":"presence.changed","data":{"channel_id":"c","entry":{}}}`,
		"mute mismatch": `{"type":"mute.changed","data":{"channel_id":"c","group_id":"g","user_id":"u","mute":{"group_id":"g","user_id":"x","permanent":true}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(raw))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedEvent), "got %v", err)
		})
	}
}

func TestSystemMessageNeedsNoSender(t *testing.T) {
	_, err := NewFrame(MessageInserted{Message: Message{ID: "m", ChannelID: "c", Kind: KindSystem, CreatedTS: 1}}, 1)
	require.NoError(t, err)
}

func TestMuteActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hour := NewMute("g", "u", "admin", MuteOneHour, now)
	require.True(t, hour.ActiveAt(now.Add(59*time.Minute)))
	require.False(t, hour.ActiveAt(now.Add(time.Hour)))

	perm := NewMute("g", "u", "admin", MutePermanent, now)
	require.True(t, perm.ActiveAt(now.Add(10*365*24*time.Hour)))

	var none *Mute
	require.False(t, none.ActiveAt(now))

	_, err := ParseMuteDuration("2h")
	require.Error(t, err)
	d, err := ParseMuteDuration("7d")
	require.NoError(t, err)
	l, ok := d.Length()
	require.True(t, ok)
	require.Equal(t, 7*24*time.Hour, l)
}

func TestMessageOrderingAndDeletion(t *testing.T) {
	a := &Message{ID: "a", CreatedTS: 5}
	b := &Message{ID: "b", CreatedTS: 5}
	c := &Message{ID: "0", CreatedTS: 6}
	require.True(t, a.Less(b))
	require.True(t, b.Less(c))

	m := &Message{SenderID: "u1", DeletedTS: 9, DeletedBy: "u1"}
	require.False(t, m.DeletedByModerator())
	m.DeletedBy = "admin"
	require.True(t, m.DeletedByModerator())
}
