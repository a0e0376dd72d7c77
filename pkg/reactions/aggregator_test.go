package reactions

import (
	"testing"

	"github.com/stretchr/testify/require"

	"groupchat/pkg/models"
)

func r(msg, emoji, user string, ts int64) models.Reaction {
	return models.Reaction{MessageID: msg, Emoji: emoji, UserID: user, CreatedTS: ts}
}

func TestLoadGroupsByFirstOccurrence(t *testing.T) {
	a := New("me")
	a.Load([]models.Reaction{
		r("m1", "👍", "bob", 3),
		r("m1", "🎉", "amy", 1),
		r("m1", "👍", "me", 4),
		r("m2", "❤️", "amy", 2),
	})

	require.Equal(t, []Group{
		{Emoji: "🎉", Count: 1},
		{Emoji: "👍", Count: 2, ReactedByViewer: true},
	}, a.Groups("m1"))
	require.Equal(t, []Group{{Emoji: "❤️", Count: 1}}, a.Groups("m2"))
	require.Nil(t, a.Groups("m3"))
}

func TestToggleTwiceRestoresState(t *testing.T) {
	a := New("me")
	a.Load([]models.Reaction{r("m1", "👍", "bob", 1)})
	before := a.Groups("m1")

	require.False(t, a.ViewerHas("m1", "🔥"))
	require.True(t, a.Insert(r("m1", "🔥", "me", 2)))
	require.True(t, a.ViewerHas("m1", "🔥"))
	require.True(t, a.Remove(r("m1", "🔥", "me", 0)))

	require.Equal(t, before, a.Groups("m1"))
}

func TestInsertAndRemoveAreIdempotent(t *testing.T) {
	a := New("me")
	require.True(t, a.Insert(r("m1", "👍", "bob", 1)))
	require.False(t, a.Insert(r("m1", "👍", "bob", 1)))
	require.Equal(t, 1, a.Groups("m1")[0].Count)

	require.True(t, a.Remove(r("m1", "👍", "bob", 0)))
	require.False(t, a.Remove(r("m1", "👍", "bob", 0)))
	require.Nil(t, a.Groups("m1"))
}

func TestIncrementalUpdateTouchesOnlyOneMessage(t *testing.T) {
	a := New("me")
	a.Load([]models.Reaction{r("m1", "👍", "bob", 1), r("m2", "👍", "bob", 2)})
	m2 := a.Groups("m2")

	a.Insert(r("m1", "😂", "amy", 3))
	require.Equal(t, m2, a.Groups("m2"))
	require.Len(t, a.Groups("m1"), 2)
}

func TestEmojiReappearsAtEnd(t *testing.T) {
	a := New("me")
	a.Insert(r("m1", "a", "x", 1))
	a.Insert(r("m1", "b", "x", 2))
	a.Remove(r("m1", "a", "x", 0))
	a.Insert(r("m1", "a", "y", 3))

	groups := a.Groups("m1")
	require.Equal(t, "b", groups[0].Emoji)
	require.Equal(t, "a", groups[1].Emoji)
}

func TestLoadResetsListedMessages(t *testing.T) {
	a := New("me")
	a.Insert(r("m1", "👍", "bob", 1))
	a.Insert(r("m2", "👍", "bob", 1))

	a.Load(nil, "m1")
	require.Nil(t, a.Groups("m1"))
	require.NotNil(t, a.Groups("m2"))

	a.Forget("m2")
	require.Nil(t, a.Groups("m2"))
}
