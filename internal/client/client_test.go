package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbsr/chappy/internal/api"
	"github.com/gbsr/chappy/internal/auth"
	"github.com/gbsr/chappy/internal/core"
	"github.com/gbsr/chappy/internal/logging"
	"github.com/gbsr/chappy/internal/models"
	"github.com/gbsr/chappy/internal/store"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	s := store.NewMemoryStore()
	log := logging.Discard()
	tokens := auth.NewTokenManager("client-test", 0)
	h := api.NewAPIHandler(
		core.NewUserService(s, tokens, log),
		core.NewChannelService(s, log),
		core.NewMessageService(s, s, s, log),
		tokens, s, log,
	)
	srv := httptest.NewServer(api.NewRouter(h, api.RouterOptions{}))
	t.Cleanup(srv.Close)
	return srv
}

// loggedIn registers name against srv and returns a logged-in client.
func loggedIn(t *testing.T, srv *httptest.Server, name string, admin bool) (*Client, *models.User) {
	t.Helper()
	ctx := context.Background()
	c := New(srv.URL, &MemoryTokenStore{})
	user, err := c.Register(ctx, RegisterRequest{UserName: name, Email: name + "@x.io", Password: "pw-" + name, IsAdmin: admin})
	require.NoError(t, err)
	_, err = c.Login(ctx, name+"@x.io", "pw-"+name)
	require.NoError(t, err)
	return c, user
}

func TestClientAuthFlow(t *testing.T) {
	srv := newBackend(t)
	ctx := context.Background()
	c := New(srv.URL, &MemoryTokenStore{})

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Server is running", status)

	_, err = c.Register(ctx, RegisterRequest{UserName: "alice", Email: "alice@x.io", Password: "pw"})
	require.NoError(t, err)

	_, err = c.Register(ctx, RegisterRequest{UserName: "alice", Email: "other@x.io", Password: "pw"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "userName", apiErr.Field)

	_, err = c.Login(ctx, "alice@x.io", "wrong")
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.False(t, c.LoggedIn())

	res, err := c.Login(ctx, "alice@x.io", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.UserName)
	assert.True(t, c.LoggedIn())

	me, err := c.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, me.ID)

	require.NoError(t, c.Logout())
	_, err = c.Profile(ctx)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestClientChannelAndUserAdmin(t *testing.T) {
	srv := newBackend(t)
	ctx := context.Background()
	c, alice := loggedIn(t, srv, "alice", true)

	ch, err := c.CreateChannel(ctx, ChannelRequest{ChannelName: "general", CreatedBy: alice.ID})
	require.NoError(t, err)

	got, err := c.Channel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "general", got.ChannelName)

	locked := true
	msg, err := c.UpdateChannel(ctx, ch.ID, ChannelUpdate{IsLocked: &locked})
	require.NoError(t, err)
	assert.Equal(t, "Channel updated successfully.", msg)

	msg, err = c.UpdateChannel(ctx, ch.ID, ChannelUpdate{IsLocked: &locked})
	require.NoError(t, err)
	assert.Equal(t, "No changes were made.", msg)

	name := "alicia"
	msg, err = c.UpdateUser(ctx, alice.ID, UserUpdate{UserName: &name})
	require.NoError(t, err)
	assert.Equal(t, "User updated successfully.", msg)

	u, err := c.User(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alicia", u.UserName)

	msg, err = c.DeleteChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "Channel deleted successfully", msg)

	_, err = c.DeleteChannel(ctx, ch.ID)
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestSessionChannelFlow(t *testing.T) {
	srv := newBackend(t)
	ctx := context.Background()
	aliceClient, alice := loggedIn(t, srv, "alice", false)
	_, bob := loggedIn(t, srv, "bob", false)

	_, err := aliceClient.CreateChannel(ctx, ChannelRequest{ChannelName: "general", CreatedBy: alice.ID})
	require.NoError(t, err)
	_, err = aliceClient.CreateChannel(ctx, ChannelRequest{ChannelName: "secret", CreatedBy: bob.ID, IsLocked: true, Members: []string{bob.ID}})
	require.NoError(t, err)

	sess := NewSession(aliceClient, logging.Discard())
	require.NoError(t, sess.Load(ctx))
	snap := sess.Snapshot()
	assert.Len(t, snap.Channels, 2)
	assert.Len(t, snap.Users, 2)
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, alice.ID, snap.CurrentUser.ID)

	granted, err := sess.SelectChannel(ctx, "secret")
	require.NoError(t, err)
	assert.False(t, granted)
	assert.False(t, sess.Snapshot().HasAccess)
	assert.Empty(t, sess.DisplayMessages())

	granted, err = sess.SelectChannel(ctx, "general")
	require.NoError(t, err)
	assert.True(t, granted)

	_, err = sess.Send(ctx, "hello")
	require.NoError(t, err)
	_, err = sess.Send(ctx, "again")
	require.NoError(t, err)

	shown := sess.DisplayMessages()
	require.Len(t, shown, 2)
	assert.Equal(t, "hello", shown[0].Content)
	assert.Equal(t, alice.ID, shown[0].UserID)

	_, err = sess.SelectChannel(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestSessionDirectMessages(t *testing.T) {
	srv := newBackend(t)
	ctx := context.Background()
	aliceClient, _ := loggedIn(t, srv, "alice", false)
	bobClient, _ := loggedIn(t, srv, "bob", false)
	carolClient, _ := loggedIn(t, srv, "carol", false)

	alice := NewSession(aliceClient, logging.Discard())
	bob := NewSession(bobClient, logging.Discard())
	carol := NewSession(carolClient, logging.Discard())
	for _, s := range []*Session{alice, bob, carol} {
		require.NoError(t, s.Load(ctx))
	}

	require.NoError(t, alice.SelectDirect(ctx, "bob"))
	_, err := alice.Send(ctx, "hi bob")
	require.NoError(t, err)

	require.NoError(t, carol.SelectDirect(ctx, "alice"))
	_, err = carol.Send(ctx, "hi alice, it's carol")
	require.NoError(t, err)

	require.NoError(t, alice.Refresh(ctx))
	assert.Len(t, alice.Snapshot().DirectMessages, 2)
	shown := alice.DisplayMessages()
	require.Len(t, shown, 1)
	assert.Equal(t, "hi bob", shown[0].Content)

	require.NoError(t, bob.SelectDirect(ctx, "alice"))
	shown = bob.DisplayMessages()
	require.Len(t, shown, 1)
	assert.Nil(t, shown[0].ChannelID)
}

func TestSessionSendWithoutTarget(t *testing.T) {
	srv := newBackend(t)
	c, _ := loggedIn(t, srv, "alice", false)
	sess := NewSession(c, logging.Discard())

	_, err := sess.Send(context.Background(), "into the void")
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestSessionPoll(t *testing.T) {
	srv := newBackend(t)
	ctx := context.Background()
	aliceClient, alice := loggedIn(t, srv, "alice", false)
	bobClient, _ := loggedIn(t, srv, "bob", false)

	ch, err := aliceClient.CreateChannel(ctx, ChannelRequest{ChannelName: "general", CreatedBy: alice.ID})
	require.NoError(t, err)

	sess := NewSession(aliceClient, logging.Discard())
	require.NoError(t, sess.Load(ctx))
	_, err = sess.SelectChannel(ctx, ch.ID)
	require.NoError(t, err)

	_, err = bobClient.SendMessage(ctx, SendRequest{ChannelID: &ch.ID, Content: "from bob"})
	require.NoError(t, err)

	pollCtx, cancel := context.WithCancel(ctx)
	var updates atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- sess.Poll(pollCtx, 10*time.Millisecond, func(s Snapshot) {
			if len(DisplayMessages(s)) == 1 {
				updates.Add(1)
			}
		})
	}()

	assert.Eventually(t, func() bool { return updates.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestDisplayMessagesFilter(t *testing.T) {
	me := &models.User{ID: "me"}
	peer := &models.User{ID: "peer"}
	other, peerID, meID := "other", "peer", "me"
	channelID := "c1"

	snap := Snapshot{
		CurrentUser:    me,
		SelectedDMUser: peer,
		DirectMessages: []models.Message{
			{ID: "1", UserID: "me", RecipientID: &peerID},
			{ID: "2", UserID: "peer", RecipientID: &meID},
			{ID: "3", UserID: "other", RecipientID: &meID},
			{ID: "4", UserID: "me", RecipientID: &other},
			{ID: "5", UserID: "me", ChannelID: &channelID},
		},
	}
	got := DisplayMessages(snap)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)

	snap.SelectedChannel = &models.Channel{ID: channelID}
	snap.ChannelMessages = []models.Message{{ID: "5"}}
	assert.Equal(t, snap.ChannelMessages, DisplayMessages(snap))

	assert.Nil(t, DisplayMessages(Snapshot{}))
}

func TestFileTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	s := NewFileTokenStore(path)

	token, err := s.Token()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, s.Store("abc.def.ghi"))
	token, err = s.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	token, err = s.Token()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestSessionStaleTokenFallsBackToAnonymous(t *testing.T) {
	srv := newBackend(t)
	ctx := context.Background()
	owner, me := loggedIn(t, srv, "owner", false)
	_, err := owner.CreateChannel(ctx, ChannelRequest{ChannelName: "general", CreatedBy: me.ID, Members: []string{}})
	require.NoError(t, err)
	_, err = owner.CreateChannel(ctx, ChannelRequest{ChannelName: "vault", CreatedBy: me.ID, IsLocked: true, Members: []string{me.ID}})
	require.NoError(t, err)

	tokens := &MemoryTokenStore{}
	require.NoError(t, tokens.Store("stale.token.value"))
	c := New(srv.URL, tokens)
	sess := NewSession(c, logging.Discard())

	require.NoError(t, sess.Load(ctx))
	assert.Nil(t, sess.Snapshot().CurrentUser)
	assert.False(t, c.LoggedIn())

	granted, err := sess.SelectChannel(ctx, "general")
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = sess.SelectChannel(ctx, "vault")
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestChannelMessages_StaleTokenStillReadsUnlockedChannel(t *testing.T) {
	srv := newBackend(t)
	ctx := context.Background()
	owner, me := loggedIn(t, srv, "owner", false)
	ch, err := owner.CreateChannel(ctx, ChannelRequest{ChannelName: "general", CreatedBy: me.ID, Members: []string{}})
	require.NoError(t, err)

	tokens := &MemoryTokenStore{}
	require.NoError(t, tokens.Store("stale.token.value"))
	msgs, err := New(srv.URL, tokens).ChannelMessages(ctx, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
