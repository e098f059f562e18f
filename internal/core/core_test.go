package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbsr/chappy/internal/auth"
	"github.com/gbsr/chappy/internal/common"
	"github.com/gbsr/chappy/internal/logging"
	"github.com/gbsr/chappy/internal/models"
	"github.com/gbsr/chappy/internal/store"
)

type fixture struct {
	store    *store.MemoryStore
	users    *UserService
	channels *ChannelService
	messages *MessageService
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	log := logging.Discard()
	f := &fixture{
		store:    s,
		users:    NewUserService(s, auth.NewTokenManager("secret", 0), log),
		channels: NewChannelService(s, log),
		messages: NewMessageService(s, s, s, log),
		clock:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }
	f.users.now, f.channels.now, f.messages.now = now, now, now
	return f
}

func (f *fixture) tick() { f.clock = f.clock.Add(time.Second) }

func (f *fixture) register(t *testing.T, name string, admin bool) *models.User {
	t.Helper()
	u, err := f.users.Register(context.Background(), RegisterInput{
		UserName: name, Email: name + "@x.io", Password: "pw-" + name, IsAdmin: admin,
	})
	require.NoError(t, err)
	return u
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func ident(u *models.User) *auth.Identity {
	return &auth.Identity{UserID: u.ID, Email: u.Email}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", false)

	assert.NotEqual(t, "pw-alice", alice.PasswordHash)
	assert.Equal(t, f.clock, alice.CreatedAt)

	token, user, err := f.users.Login(ctx, "alice@x.io", "pw-alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, alice.ID, user.ID)

	_, _, err = f.users.Login(ctx, "alice@x.io", "wrong")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, _, err = f.users.Login(ctx, "nobody@x.io", "pw")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, _, err = f.users.Login(ctx, "", "")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", false)

	_, err := f.users.Register(context.Background(), RegisterInput{UserName: "alice", Email: "new@x.io", Password: "pw"})
	var ce *common.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "userName", ce.Field)
	assert.Equal(t, "User with this userName already exists", ce.Error())
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.Register(context.Background(), RegisterInput{Email: "a@x.io", Password: "pw"})
	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "userName", ve.Field)

	_, err = f.users.Register(context.Background(), RegisterInput{UserName: "a", Email: "not-an-email", Password: "pw"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Field)
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", false)
	f.tick()

	changed, err := f.users.Update(ctx, alice.ID, UserPatch{UserName: strPtr("alice")})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.users.Update(ctx, alice.ID, UserPatch{Password: strPtr("pw-alice")})
	require.NoError(t, err)
	assert.False(t, changed, "same password is not a change")

	changed, err = f.users.Update(ctx, alice.ID, UserPatch{IsAdmin: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := f.users.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)
	assert.Equal(t, f.clock, got.UpdatedAt)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	_, err = f.users.Update(ctx, models.NewID(), UserPatch{IsAdmin: boolPtr(true)})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.users.Update(ctx, "bad-id", UserPatch{})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestUpdateUserPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", false)

	changed, err := f.users.Update(ctx, alice.ID, UserPatch{Password: strPtr("new-secret")})
	require.NoError(t, err)
	assert.True(t, changed)

	_, _, err = f.users.Login(ctx, "alice@x.io", "new-secret")
	assert.NoError(t, err)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", false)

	require.NoError(t, f.users.Delete(ctx, alice.ID))
	err := f.users.Delete(ctx, alice.ID)
	var nf *common.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "User not found", nf.Error())
}

func TestChannelLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.channels.Create(ctx, ChannelInput{
		ChannelName: "general", Desc: strPtr("Everyone"), CreatedBy: models.NewID(),
		IsLocked: boolPtr(false), Members: []string{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{}, ch.Members)

	_, err = f.channels.Create(ctx, ChannelInput{
		ChannelName: "other", Desc: strPtr("Everyone"), CreatedBy: "x", IsLocked: boolPtr(false), Members: []string{},
	})
	var ce *common.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "desc", ce.Field)

	_, err = f.channels.Create(ctx, ChannelInput{ChannelName: "x", CreatedBy: "x", Members: []string{}})
	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "isLocked", ve.Field)

	f.tick()
	changed, err := f.channels.Update(ctx, ch.ID, ChannelPatch{Members: &[]string{}})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.channels.Update(ctx, ch.ID, ChannelPatch{IsLocked: boolPtr(true), Members: &[]string{"m1"}})
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := f.channels.Get(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLocked)
	assert.Equal(t, []string{"m1"}, got.Members)
	assert.Equal(t, f.clock, got.UpdatedAt)

	_, err = f.channels.Update(ctx, models.NewID(), ChannelPatch{IsLocked: boolPtr(true)})
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, f.channels.Delete(ctx, ch.ID))
	_, err = f.channels.Get(ctx, ch.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestChannelInputRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.channels.Create(ctx, ChannelInput{
		ChannelName: "general", Desc: strPtr(""), CreatedBy: "x", IsLocked: boolPtr(false), Members: []string{},
	})
	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "desc", ve.Field)

	ch, err := f.channels.Create(ctx, ChannelInput{
		ChannelName: "  general  ", CreatedBy: "x", IsLocked: boolPtr(false), Members: []string{},
	})
	require.NoError(t, err)
	assert.Equal(t, "general", ch.ChannelName)
	assert.Empty(t, ch.Desc)

	_, err = f.channels.Update(ctx, ch.ID, ChannelPatch{ChannelName: strPtr("   ")})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "channelName", ve.Field)

	_, err = f.channels.Update(ctx, ch.ID, ChannelPatch{Desc: strPtr("")})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "desc", ve.Field)

	changed, err := f.channels.Update(ctx, ch.ID, ChannelPatch{ChannelName: strPtr(" general ")})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.channels.Update(ctx, ch.ID, ChannelPatch{ChannelName: strPtr(" lobby ")})
	require.NoError(t, err)
	assert.True(t, changed)
	got, err := f.channels.Get(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "lobby", got.ChannelName)
}

func TestChannelMessagesAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.register(t, "member", false)
	outsider := f.register(t, "outsider", false)
	admin := f.register(t, "admin", true)

	open, err := f.channels.Create(ctx, ChannelInput{ChannelName: "open", CreatedBy: member.ID, IsLocked: boolPtr(false), Members: []string{}})
	require.NoError(t, err)
	locked, err := f.channels.Create(ctx, ChannelInput{ChannelName: "locked", CreatedBy: member.ID, IsLocked: boolPtr(true), Members: []string{member.ID}})
	require.NoError(t, err)

	_, err = f.messages.ChannelMessages(ctx, open.ID, nil)
	assert.NoError(t, err)

	_, err = f.messages.ChannelMessages(ctx, locked.ID, nil)
	assert.ErrorIs(t, err, common.ErrAuthenticationRequired)

	_, err = f.messages.ChannelMessages(ctx, locked.ID, ident(outsider))
	assert.ErrorIs(t, err, common.ErrAccessDenied)

	_, err = f.messages.ChannelMessages(ctx, locked.ID, ident(member))
	assert.NoError(t, err)

	_, err = f.messages.ChannelMessages(ctx, locked.ID, ident(admin))
	assert.NoError(t, err)

	_, err = f.messages.ChannelMessages(ctx, models.NewID(), nil)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.messages.Send(ctx, ident(outsider), MessageInput{ChannelID: &locked.ID, Content: "let me in"})
	assert.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestSendTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", false)
	bob := f.register(t, "bob", false)
	ch, err := f.channels.Create(ctx, ChannelInput{ChannelName: "general", CreatedBy: alice.ID, IsLocked: boolPtr(false), Members: []string{}})
	require.NoError(t, err)

	_, err = f.messages.Send(ctx, ident(alice), MessageInput{ChannelID: &ch.ID, RecipientID: &bob.ID, Content: "both"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.messages.Send(ctx, ident(alice), MessageInput{Content: "neither"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.messages.Send(ctx, ident(alice), MessageInput{ChannelID: strPtr("xyz"), Content: "bad id"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.messages.Send(ctx, ident(alice), MessageInput{ChannelID: &ch.ID, UserID: bob.ID, Content: "spoof"})
	assert.ErrorIs(t, err, common.ErrAccessDenied)

	_, err = f.messages.Send(ctx, ident(alice), MessageInput{RecipientID: strPtr(models.NewID()), Content: "nobody"})
	var nf *common.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Recipient", nf.Entity)

	msg, err := f.messages.Send(ctx, ident(alice), MessageInput{ChannelID: &ch.ID, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, msg.UserID)
	assert.Equal(t, []string{}, msg.TaggedUsers)
	assert.Nil(t, msg.RecipientID)
}

func TestChannelMessagesOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", false)
	ch, err := f.channels.Create(ctx, ChannelInput{ChannelName: "general", CreatedBy: alice.ID, IsLocked: boolPtr(false), Members: []string{}})
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		f.tick()
		_, err := f.messages.Send(ctx, ident(alice), MessageInput{ChannelID: &ch.ID, Content: content})
		require.NoError(t, err)
	}

	msgs, err := f.messages.ChannelMessages(ctx, ch.ID, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
	assert.Equal(t, "one", msgs[0].Content)
}

func TestDirectMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", false)
	bob := f.register(t, "bob", false)
	carol := f.register(t, "carol", false)

	send := func(from, to *models.User, content string) {
		f.tick()
		_, err := f.messages.Send(ctx, ident(from), MessageInput{RecipientID: &to.ID, Content: content})
		require.NoError(t, err)
	}
	send(alice, bob, "a->b")
	send(bob, alice, "b->a")
	send(carol, alice, "c->a")
	send(bob, carol, "b->c")

	all, err := f.messages.DirectMessages(ctx, ident(alice), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	convo, err := f.messages.DirectMessages(ctx, ident(alice), bob.ID)
	require.NoError(t, err)
	require.Len(t, convo, 2)
	assert.Equal(t, "a->b", convo[0].Content)

	_, err = f.messages.DirectMessages(ctx, nil, "")
	assert.ErrorIs(t, err, common.ErrAuthenticationRequired)

	_, err = f.messages.DirectMessages(ctx, ident(alice), "nope")
	assert.ErrorIs(t, err, common.ErrValidation)
}
