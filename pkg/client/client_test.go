package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"groupchat/pkg/api"
	"groupchat/pkg/api/auth"
	"groupchat/pkg/api/routes/common"
	"groupchat/pkg/broadcast"
	"groupchat/pkg/config"
	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
	"groupchat/pkg/presence"
	"groupchat/pkg/reconciler"
	"groupchat/pkg/store"
)

const (
	backendKey  = "be-key"
	frontendKey = "fe-key"
)

// startServer runs the full HTTP surface on an in-memory listener and seeds
// channel c1 in group g1 with amy (admin) and cat.
func startServer(t *testing.T) (backend *Client, dial func(string) (net.Conn, error)) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.APIKeys.Backend = []string{backendKey}
	cfg.Server.APIKeys.Frontend = []string{frontendKey}
	require.NoError(t, cfg.ApplyDefaults())
	config.SetRuntime(config.RuntimeFromConfig(cfg))

	st, err := store.OpenInMemory(store.Options{})
	require.NoError(t, err)
	hub := broadcast.NewHub(64)
	a := api.New(api.Deps{
		Env: &common.Env{
			Store:    st,
			Hub:      hub,
			Presence: presence.NewRegistry(time.Minute, nil),
			Chat:     cfg.Chat,
		},
		Security: auth.SecConfigFrom(cfg.Server),
	})
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: a.Handler()}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = ln.Close()
		a.Shutdown()
		hub.Close()
		_ = st.Close()
	})

	dial = func(string) (net.Conn, error) { return ln.Dial() }
	backend = New(Options{BaseURL: "http://chat.test", APIKey: backendKey, Dial: dial})

	ctx := context.Background()
	_, err = backend.CreateChannel(ctx, models.Channel{ID: "c1", GroupID: "g1", Name: "General"})
	require.NoError(t, err)
	_, err = backend.PutMember(ctx, models.Member{ID: "amy", GroupID: "g1", DisplayName: "Amy", Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = backend.PutMember(ctx, models.Member{ID: "cat", GroupID: "g1", DisplayName: "Cat"})
	require.NoError(t, err)
	return backend, dial
}

func frontendAs(t *testing.T, backend *Client, dial func(string) (net.Conn, error), user string) *Client {
	t.Helper()
	sig, err := backend.Sign(context.Background(), user)
	require.NoError(t, err)
	return New(Options{BaseURL: "http://chat.test", APIKey: frontendKey, UserID: user, Signature: sig, Dial: dial})
}

func nextEvent(t *testing.T, s *Stream, match func(models.Event) bool) models.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok, "stream closed: %v", s.Err())
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestErrorsMapOntoDomainTaxonomy(t *testing.T) {
	backend, dial := startServer(t)
	ctx := context.Background()
	amy := frontendAs(t, backend, dial, "amy")
	cat := frontendAs(t, backend, dial, "cat")

	_, err := cat.Delete(ctx, "missing")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = cat.Send(ctx, "c1", models.SendRequest{Content: ""})
	require.ErrorIs(t, err, models.ErrInvalid)

	_, err = cat.Mute(ctx, "g1", "amy", models.MuteOneHour)
	rej, ok := moderation.AsRejection(err)
	require.True(t, ok)
	require.Equal(t, moderation.ActionMute, rej.Action)
	require.Equal(t, moderation.ReasonNotAuthorized, rej.Reason)

	_, err = amy.Mute(ctx, "g1", "cat", models.MuteOneDay)
	require.NoError(t, err)
	_, err = cat.Send(ctx, "c1", models.SendRequest{Content: "hi"})
	require.ErrorIs(t, err, moderation.ErrMuted)

	// backend-only route called with a frontend key
	_, err = cat.Sign(ctx, "amy")
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	require.Equal(t, fasthttp.StatusForbidden, he.Status)
}

func TestReconcilerOverHTTP(t *testing.T) {
	backend, dial := startServer(t)
	ctx := context.Background()
	cat := frontendAs(t, backend, dial, "cat")

	ch, err := cat.GetChannel(ctx, "c1")
	require.NoError(t, err)
	stream, err := cat.Subscribe(ctx, "c1")
	require.NoError(t, err)
	defer stream.Close()

	r := reconciler.New(cat, ch, "cat", reconciler.Options{})
	require.NoError(t, r.Load(ctx))
	require.Equal(t, "Cat", r.Self().DisplayName)

	p, err := r.Send(ctx, "hello", "", "")
	require.NoError(t, err)
	require.True(t, reconciler.IsTmpID(p.Local.ID))

	var out reconciler.SendOutcome
	select {
	case out = <-p.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("send did not complete")
	}
	require.NoError(t, out.Err)

	ev := nextEvent(t, stream, func(models.Event) bool { return true })
	r.Apply(ev)

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, out.Message.ID, msgs[0].ID)
	require.Equal(t, 0, r.PendingSends())

	require.NoError(t, r.ToggleReaction(ctx, out.Message.ID, "🎉"))
	ev = nextEvent(t, stream, func(ev models.Event) bool { return ev.Kind() == models.EventReactionInserted })
	r.Apply(ev)
	groups := r.Reactions(out.Message.ID)
	require.Len(t, groups, 1)
	require.Equal(t, "🎉", groups[0].Emoji)
}

func TestMutedViewerIsRejectedLocally(t *testing.T) {
	backend, dial := startServer(t)
	ctx := context.Background()
	amy := frontendAs(t, backend, dial, "amy")
	cat := frontendAs(t, backend, dial, "cat")

	ch, err := cat.GetChannel(ctx, "c1")
	require.NoError(t, err)
	r := reconciler.New(cat, ch, "cat", reconciler.Options{})
	require.NoError(t, r.Load(ctx))

	_, err = amy.Mute(ctx, "g1", "cat", models.MutePermanent)
	require.NoError(t, err)
	require.NoError(t, r.RefreshRoster(ctx))

	_, err = r.Send(ctx, "let me talk", "", "")
	require.ErrorIs(t, err, moderation.ErrMuted)
	require.Empty(t, r.Messages())
}

func TestPresenceStream(t *testing.T) {
	backend, dial := startServer(t)
	ctx := context.Background()
	amy := frontendAs(t, backend, dial, "amy")
	cat := frontendAs(t, backend, dial, "cat")

	amyStream, err := amy.Presence(ctx, "c1")
	require.NoError(t, err)
	defer amyStream.Close()
	catStream, err := cat.Presence(ctx, "c1")
	require.NoError(t, err)

	isCat := func(pred func(models.PresenceChanged) bool) func(models.Event) bool {
		return func(ev models.Event) bool {
			p, ok := ev.(models.PresenceChanged)
			return ok && p.Entry.UserID == "cat" && pred(p)
		}
	}
	nextEvent(t, amyStream, isCat(func(models.PresenceChanged) bool { return true }))

	require.NoError(t, catStream.Typing(true))
	nextEvent(t, amyStream, isCat(func(p models.PresenceChanged) bool { return p.Entry.Typing }))

	require.NoError(t, catStream.Heartbeat())
	require.NoError(t, catStream.Close())
	nextEvent(t, amyStream, isCat(func(p models.PresenceChanged) bool { return p.Left }))
}
