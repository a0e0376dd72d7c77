package broadcast

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"groupchat/pkg/models"
)

func inserted(id string, ts int64) models.MessageInserted {
	return models.MessageInserted{Message: models.Message{ID: id, ChannelID: "c1", SenderID: "u", Kind: models.KindNormal, CreatedTS: ts, UpdatedTS: ts}}
}

func recv(t *testing.T, s *Subscriber) models.Frame {
	t.Helper()
	select {
	case b, ok := <-s.C():
		require.True(t, ok, "channel closed")
		_, err := models.DecodeEvent(b)
		require.NoError(t, err)
		var f models.Frame
		require.NoError(t, json.Unmarshal(b, &f))
		return f
	default:
		t.Fatal("no frame buffered")
	}
	return models.Frame{}
}

func TestPublishRoutesByTopic(t *testing.T) {
	h := NewHub(4)
	msgs := h.Subscribe(MessagesTopic("c1"))
	pres := h.Subscribe(PresenceTopic("c1"))
	other := h.Subscribe(MessagesTopic("c2"))

	n, err := h.Publish(inserted("m1", 1))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, models.EventMessageInserted, recv(t, msgs).Type)

	_, err = h.Publish(models.PresenceChanged{ChannelID: "c1", Entry: models.PresenceEntry{UserID: "u", Typing: true}})
	require.NoError(t, err)
	require.Equal(t, models.EventPresenceChanged, recv(t, pres).Type)

	require.Empty(t, other.C())
	require.Empty(t, msgs.C())
}

func TestSequenceIncreasesPerTopic(t *testing.T) {
	h := NewHub(4)
	s := h.Subscribe(MessagesTopic("c1"))
	for i := int64(1); i <= 3; i++ {
		_, err := h.Publish(inserted("m", i))
		require.NoError(t, err)
	}
	var seqs []uint64
	for i := 0; i < 3; i++ {
		seqs = append(seqs, recv(t, s).Seq)
	}
	require.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestSlowSubscriberDropped(t *testing.T) {
	h := NewHub(1)
	slow := h.Subscribe(MessagesTopic("c1"))
	fast := h.Subscribe(MessagesTopic("c1"))

	_, err := h.Publish(inserted("m1", 1))
	require.NoError(t, err)
	<-fast.C()

	n, err := h.Publish(inserted("m2", 2))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, h.Dropped(slow))
	require.False(t, h.Dropped(fast))

	// buffered frame still readable, then closed
	_, ok := <-slow.C()
	require.True(t, ok)
	_, ok = <-slow.C()
	require.False(t, ok)

	require.Equal(t, 1, h.Subscribers(MessagesTopic("c1")))
	h.Unsubscribe(slow)
}

func TestPublishRejectsMalformed(t *testing.T) {
	h := NewHub(1)
	_, err := h.Publish(models.MessageInserted{Message: models.Message{ChannelID: "c1"}})
	require.ErrorIs(t, err, models.ErrMalformedEvent)
}

func TestUnsubscribeAndClose(t *testing.T) {
	h := NewHub(2)
	a := h.Subscribe(MessagesTopic("c1"))
	b := h.Subscribe(PresenceTopic("c1"))
	h.Unsubscribe(a)
	h.Unsubscribe(a)
	_, ok := <-a.C()
	require.False(t, ok)
	require.Equal(t, 1, h.Subscribers(""))

	require.NoError(t, h.SendTo(b, models.PresenceChanged{ChannelID: "c1", Entry: models.PresenceEntry{UserID: "x"}}))
	h.Close()
	_, ok = <-b.C()
	require.True(t, ok)
	_, ok = <-b.C()
	require.False(t, ok)
	require.Equal(t, 0, h.Subscribers(""))
}
