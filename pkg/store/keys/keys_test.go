package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelMessageIdxRoundTrip(t *testing.T) {
	k := GenChannelMessageIdx("ch-1", 1700000000123456789, "m-9")
	require.NoError(t, ValidateChannelMessageIdx(k))

	p, err := ParseChannelMessageIdx(k)
	require.NoError(t, err)
	require.Equal(t, "ch-1", p.ChannelID)
	require.Equal(t, int64(1700000000123456789), p.CreatedTS)
	require.Equal(t, "m-9", p.MsgID)
}

func TestIndexKeysSortByTime(t *testing.T) {
	a := GenChannelMessageIdx("c", 9, "z")
	b := GenChannelMessageIdx("c", 10, "a")
	require.Less(t, a, b)
	require.Less(t, GenChannelMessageCursor("c", 10), b)
}

func TestReactionKeyEscapesEmoji(t *testing.T) {
	k := GenReactionKey("m1", "👍🏽", "u1")
	require.NoError(t, ValidateReactionKey(k))
	p, err := ParseReactionKey(k)
	require.NoError(t, err)
	require.Equal(t, "👍🏽", p.Emoji)
	require.Equal(t, "u1", p.UserID)

	k = GenReactionKey("m1", "a:b", "u1")
	p, err = ParseReactionKey(k)
	require.NoError(t, err)
	require.Equal(t, "a:b", p.Emoji)
}

func TestValidateID(t *testing.T) {
	require.NoError(t, ValidateID("user", "user_1.a-b"))
	require.Error(t, ValidateID("user", ""))
	require.Error(t, ValidateID("user", "a:b"))
	require.Error(t, ValidateEmoji(""))
	require.NoError(t, ValidateEmoji("🎉"))
}

func TestUpperBound(t *testing.T) {
	require.Equal(t, []byte("r:m2;"), UpperBound("r:m2:"))
	require.Nil(t, UpperBound("\xff\xff"))
}

func TestParseMuteKey(t *testing.T) {
	p, err := ParseMuteKey(GenMuteKey("g1", "u1"))
	require.NoError(t, err)
	require.Equal(t, "g1", p.GroupID)
	_, err = ParseMuteKey("mute:x")
	require.Error(t, err)
}
