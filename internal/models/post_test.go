package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHashtags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"mixed case duplicates collapse", "Hello #World #world", []string{"world"}},
		{"keeps first appearance order", "#go then #Fiber and #GO", []string{"go", "fiber"}},
		{"underscores and digits", "#chit_chat2 rocks", []string{"chit_chat2"}},
		{"no tags", "plain text", []string{}},
		{"lone hash", "# nothing", []string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractHashtags(tt.content))
		})
	}
}

func TestExtractMentions(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"alice", "bob"}, ExtractMentions("hey @alice and @bob, @alice again"))
	assert.Empty(t, ExtractMentions("no one here"))
}

func TestVisibility_Valid(t *testing.T) {
	t.Parallel()
	assert.True(t, VisibilityPublic.Valid())
	assert.True(t, VisibilityFollowers.Valid())
	assert.True(t, VisibilityPrivate.Valid())
	assert.False(t, Visibility("friends").Valid())
}

func TestPost_MarshalJSON(t *testing.T) {
	t.Parallel()

	liked := true
	post := Post{
		ID:       7,
		Content:  "hi #Test @bob",
		AuthorID: 1,
		Author: &User{
			ID:       1,
			Username: "alice",
			Email:    "alice@x.com",
			Password: "hash",
			Profile:  Profile{DisplayName: "Alice"},
		},
		Visibility: VisibilityPublic,
		Hashtags:   []PostHashtag{{PostID: 7, Tag: "test"}},
		Mentions:   []PostMention{{PostID: 7, UserID: 2}},
		IsLiked:    &liked,
	}

	raw, err := json.Marshal(post)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, []any{"test"}, decoded["hashtags"])
	assert.Equal(t, []any{float64(2)}, decoded["mentions"])
	assert.Equal(t, true, decoded["isLiked"])
	assert.NotContains(t, decoded, "isReposted")

	author, ok := decoded["author"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", author["username"])
	assert.NotContains(t, author, "email")
	assert.NotContains(t, string(raw), "hash\"")
}

func TestUser_Views(t *testing.T) {
	t.Parallel()

	u := &User{
		ID:       3,
		Username: "carol",
		Email:    "carol@x.com",
		Password: "secret-hash",
		Profile:  Profile{DisplayName: "Carol", Bio: "hidden", Avatar: "a.png"},
		Stats:    UserStats{PostsCount: 9, FollowersCount: 4, FollowingCount: 2},
	}

	pub := u.PublicProfile()
	assert.Empty(t, pub.Email)
	assert.Empty(t, pub.Password)
	assert.Equal(t, "carol@x.com", u.Email, "original must not be mutated")

	own := u.Sanitized()
	assert.Equal(t, "carol@x.com", own.Email)
	assert.Empty(t, own.Password)

	pv := u.PrivateView()
	assert.True(t, pv.IsPrivate)
	assert.Equal(t, int64(0), pv.Stats.PostsCount)
	assert.Equal(t, int64(4), pv.Stats.FollowersCount)
	assert.Equal(t, "a.png", pv.Profile.Avatar)
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{NewValidationError("bad"), http.StatusBadRequest},
		{ErrSelfFollow, http.StatusBadRequest},
		{NewConflictError("email"), http.StatusConflict},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{&AppError{Code: CodeTokenExpired}, http.StatusUnauthorized},
		{NewForbiddenError("no"), http.StatusForbidden},
		{ErrPrivateAccount, http.StatusForbidden},
		{NewNotFound("gone"), http.StatusNotFound},
		{ErrStorageDisabled, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", NewNotFound("gone")), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestNewConflictError(t *testing.T) {
	t.Parallel()
	err := NewConflictError("username")
	assert.Equal(t, "User with this username already exists", err.Message)
	assert.Equal(t, "username", err.Field)
}
