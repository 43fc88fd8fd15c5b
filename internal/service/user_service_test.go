package service

import (
	"context"
	"strings"
	"testing"

	"chitchat/internal/models"
	"chitchat/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestUserService_FollowIsSymmetricAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	res, err := f.user.ToggleFollow(ctx, alice, "bob")
	require.NoError(t, err)
	assert.True(t, res.Following)
	assert.Equal(t, int64(1), res.FollowersCount)
	assert.Equal(t, []string{notifications.EventNewFollower}, f.events.types(bob.ID))

	aliceAcc, err := f.user.Me(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceAcc.Following, 1)
	assert.Equal(t, bob.ID, aliceAcc.Following[0].ID)
	assert.Equal(t, int64(1), aliceAcc.Stats.FollowingCount)

	bobAcc, err := f.user.Me(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobAcc.Followers, 1)
	assert.Equal(t, alice.ID, bobAcc.Followers[0].ID)
	assert.Equal(t, int64(1), bobAcc.Stats.FollowersCount)

	res, err = f.user.ToggleFollow(ctx, alice, "bob")
	require.NoError(t, err)
	assert.False(t, res.Following)
	assert.Zero(t, res.FollowersCount)
	assert.Len(t, f.events.types(bob.ID), 1, "unfollow sends nothing")

	aliceAcc, err = f.user.Me(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, aliceAcc.Following)
	bobAcc, err = f.user.Me(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobAcc.Followers)
	assert.Zero(t, bobAcc.Stats.FollowersCount)
}

func TestUserService_FollowErrors(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	_, err := f.user.ToggleFollow(context.Background(), alice, "alice")
	appErr := assertCode(t, err, models.CodeSelfFollow)
	assert.Equal(t, "You cannot follow yourself", appErr.Message)

	_, err = f.user.ToggleFollow(context.Background(), alice, "ghost")
	assertCode(t, err, models.CodeNotFound)
}

func TestUserService_UpdateProfile(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	ctx := context.Background()

	user, err := f.user.UpdateProfile(ctx, alice.ID, UpdateProfileInput{
		DisplayName: strPtr("  Alice A  "),
		Website:     strPtr("https://alice.dev"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice A", user.Profile.DisplayName)
	assert.Equal(t, "https://alice.dev", user.Profile.Website)
	assert.Equal(t, "alice@x.com", user.Email)

	_, err = f.user.UpdateProfile(ctx, alice.ID, UpdateProfileInput{
		Bio:     strPtr(strings.Repeat("b", 161)),
		Website: strPtr("ftp://alice"),
	})
	appErr := assertCode(t, err, models.CodeValidation)
	assert.Len(t, appErr.Fields, 2)
}

func TestUserService_PrivateProfileIsReduced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")

	private := true
	_, err := f.user.UpdateProfile(ctx, alice.ID, UpdateProfileInput{IsPrivate: &private})
	require.NoError(t, err)
	_, err = f.user.ToggleFollow(ctx, bob, "alice")
	require.NoError(t, err)

	view, err := f.user.Profile(ctx, carol.ID, "alice")
	require.NoError(t, err)
	assert.True(t, view.IsPrivate)
	assert.IsType(t, models.PrivateView{}, view.User)

	view, err = f.user.Profile(ctx, bob.ID, "alice")
	require.NoError(t, err)
	assert.False(t, view.IsPrivate)
	full, ok := view.User.(*models.User)
	require.True(t, ok)
	require.NotNil(t, full.IsFollowedByMe)
	assert.True(t, *full.IsFollowedByMe)
	assert.Empty(t, full.Email)

	view, err = f.user.Profile(ctx, alice.ID, "alice")
	require.NoError(t, err)
	own := view.User.(*models.User)
	assert.Nil(t, own.IsFollowedByMe)
	assert.Equal(t, "alice@x.com", own.Email)

	_, _, err = f.user.Followers(ctx, carol.ID, "alice", 20, 0)
	assert.ErrorIs(t, err, models.ErrPrivateAccount)

	followers, total, err := f.user.Followers(ctx, bob.ID, "alice", 20, 0)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, bob.ID, followers[0].ID)
	require.NotNil(t, followers[0].IsFollowedByMe, "viewer's own entry is flagged too")
	assert.False(t, *followers[0].IsFollowedByMe)

	following, total, err := f.user.Following(ctx, alice.ID, "bob", 20, 0)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, int64(1), total)
	require.NotNil(t, following[0].IsFollowedByMe)
	assert.False(t, *following[0].IsFollowedByMe)

	anon, _, err := f.user.Following(ctx, 0, "bob", 20, 0)
	require.NoError(t, err)
	require.Len(t, anon, 1)
	assert.Nil(t, anon[0].IsFollowedByMe)
}

func TestUserService_ConnectionsTotalIsStoredCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := f.register(t, "carol")
	for _, name := range []string{"alice", "bob", "dave"} {
		u := f.register(t, name)
		_, err := f.user.ToggleFollow(ctx, u, "carol")
		require.NoError(t, err)
	}

	page, total, err := f.user.Followers(ctx, carol.ID, "carol", 1, 0)
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Equal(t, int64(3), total)

	page, total, err = f.user.Followers(ctx, 0, "carol", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Equal(t, int64(3), total)

	page, total, err = f.user.Following(ctx, 0, "carol", 1, 0)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Zero(t, total)
}

func TestUserService_FollowUsernameDifferingOnlyInCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lower := f.register(t, "alice")
	upper, _, err := f.auth.Register(ctx, RegisterInput{
		Username: "Alice",
		Email:    "upper-alice@x.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	require.NotEqual(t, lower.ID, upper.ID)

	res, err := f.user.ToggleFollow(ctx, lower, "Alice")
	require.NoError(t, err)
	assert.True(t, res.Following)
	assert.Equal(t, int64(1), res.FollowersCount)
	assert.Equal(t, []string{notifications.EventNewFollower}, f.events.types(upper.ID))

	_, err = f.user.ToggleFollow(ctx, upper, "Alice")
	assertCode(t, err, models.CodeSelfFollow)
}

func TestUserService_Search(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	f.register(t, "alicia")
	_, err := f.user.ToggleFollow(ctx, alice, "alicia")
	require.NoError(t, err)

	_, err = f.user.Search(ctx, 0, "  ", 10)
	assertCode(t, err, models.CodeValidation)

	users, err := f.user.Search(ctx, alice.ID, "ali", 10)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alicia", users[0].Username, "most followed first")
	require.NotNil(t, users[0].IsFollowedByMe)
	assert.True(t, *users[0].IsFollowedByMe)
	assert.Nil(t, users[1].IsFollowedByMe)
	assert.Empty(t, users[0].Email)

	anon, err := f.user.Search(ctx, 0, "ali", 10)
	require.NoError(t, err)
	assert.Nil(t, anon[0].IsFollowedByMe)
}
