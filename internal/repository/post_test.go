package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"chitchat/internal/cache"
	"chitchat/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPost(author *models.User, content string, vis models.Visibility) *models.Post {
	tags := make([]models.PostHashtag, 0)
	for _, tag := range models.ExtractHashtags(content) {
		tags = append(tags, models.PostHashtag{Tag: tag})
	}
	return &models.Post{
		AuthorID:   author.ID,
		Content:    content,
		Visibility: vis,
		Hashtags:   tags,
	}
}

func reloadUser(t *testing.T, db *gorm.DB, id uint) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, id).Error)
	return u
}

func TestPostRepository_CreateRefreshesCounters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	root := newPost(alice, "hi #Test", models.VisibilityPublic)
	root.Images = []models.PostImage{
		{Position: 1, URL: "https://img/2.png", Alt: "second"},
		{Position: 0, URL: "https://img/1.png", Alt: "first"},
	}
	root.Mentions = []models.PostMention{{UserID: bob.ID}}
	require.NoError(t, repo.Create(ctx, root))
	assert.Equal(t, int64(1), reloadUser(t, db, alice.ID).Stats.PostsCount)

	reply := newPost(bob, "nice", models.VisibilityPublic)
	reply.ParentPostID = &root.ID
	reply.IsReply = true
	require.NoError(t, repo.Create(ctx, reply))
	assert.Zero(t, reloadUser(t, db, bob.ID).Stats.PostsCount, "replies are not counted as posts")

	got, err := repo.GetByID(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Stats.RepliesCount)
	assert.Equal(t, []string{"test"}, got.Tags())
	assert.Equal(t, []uint{bob.ID}, got.MentionIDs())
	require.NotNil(t, got.Author)
	assert.Equal(t, "alice", got.Author.Username)
	require.Len(t, got.Images, 2)
	assert.Equal(t, "first", got.Images[0].Alt)

	replies, err := repo.Replies(ctx, root.ID, RepliesPreview)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, reply.ID, replies[0].ID)
}

func TestPostRepository_CountersEvictCachedAuthor(t *testing.T) {
	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := cache.NewStore(rdb)
	users := NewUserRepository(db, store)
	repo := NewPostRepository(db, store)
	ctx := context.Background()
	alice := createUser(t, db, "alice")

	cached, err := users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, cached.Stats.PostsCount)
	require.True(t, mr.Exists(cache.UserKey(alice.ID)))

	post := newPost(alice, "first", models.VisibilityPublic)
	require.NoError(t, repo.Create(ctx, post))
	assert.False(t, mr.Exists(cache.UserKey(alice.ID)))

	fresh, err := users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.Stats.PostsCount)
	require.True(t, mr.Exists(cache.UserKey(alice.ID)))

	require.NoError(t, repo.Delete(ctx, post))
	assert.False(t, mr.Exists(cache.UserKey(alice.ID)))

	fresh, err = users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, fresh.Stats.PostsCount)
}

func TestPostRepository_ToggleLikeIsIdempotentPerPair(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	post := newPost(alice, "like me", models.VisibilityPublic)
	require.NoError(t, repo.Create(ctx, post))

	liked, count, err := repo.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), count)

	liked, count, err = repo.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Zero(t, count)

	liked, count, err = repo.ToggleLike(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), count)

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, got.Likes, 1)
	assert.Equal(t, int64(len(got.Likes)), got.Stats.LikesCount)

	reposted, reposts, err := repo.ToggleRepost(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, reposted)
	assert.Equal(t, int64(1), reposts)

	_, _, err = repo.ToggleLike(ctx, 999, bob.ID)
	requireCode(t, err, models.CodeNotFound)
}

func TestPostRepository_UpdateContentKeepsHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	post := newPost(alice, "first #old", models.VisibilityPublic)
	require.NoError(t, repo.Create(ctx, post))

	updated, err := repo.UpdateContent(ctx, post.ID, "second #new @bob", []string{"new"}, []uint{bob.ID})
	require.NoError(t, err)
	assert.Equal(t, "second #new @bob", updated.Content)
	assert.True(t, updated.IsEdited)
	assert.Equal(t, []string{"new"}, updated.Tags())
	assert.Equal(t, []uint{bob.ID}, updated.MentionIDs())
	require.Len(t, updated.EditHistory, 1)
	assert.Equal(t, "first #old", updated.EditHistory[0].Content)

	_, err = repo.UpdateContent(ctx, 999, "x", nil, nil)
	requireCode(t, err, models.CodeNotFound)
}

func TestPostRepository_DeleteRemovesChildren(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	root := newPost(alice, "root", models.VisibilityPublic)
	require.NoError(t, repo.Create(ctx, root))
	reply := newPost(bob, "reply #tag", models.VisibilityPublic)
	reply.ParentPostID = &root.ID
	reply.IsReply = true
	require.NoError(t, repo.Create(ctx, reply))
	_, _, err := repo.ToggleLike(ctx, reply.ID, alice.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, reply))

	_, err = repo.GetByID(ctx, reply.ID)
	requireCode(t, err, models.CodeNotFound)

	var likes, tags int64
	db.Model(&models.PostLike{}).Where("post_id = ?", reply.ID).Count(&likes)
	db.Model(&models.PostHashtag{}).Where("post_id = ?", reply.ID).Count(&tags)
	assert.Zero(t, likes)
	assert.Zero(t, tags)

	parent, err := repo.GetByID(ctx, root.ID)
	require.NoError(t, err)
	assert.Zero(t, parent.Stats.RepliesCount)

	require.NoError(t, repo.Delete(ctx, parent))
	assert.Zero(t, reloadUser(t, db, alice.ID).Stats.PostsCount)
}

func TestPostRepository_Feeds(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	public := newPost(alice, "public #golang", models.VisibilityPublic)
	followers := newPost(alice, "followers only", models.VisibilityFollowers)
	private := newPost(alice, "private golang notes", models.VisibilityPrivate)
	fromBob := newPost(bob, "bob speaks about Golang", models.VisibilityPublic)
	fromCarol := newPost(carol, "carol", models.VisibilityPublic)
	for _, p := range []*models.Post{public, followers, private, fromBob, fromCarol} {
		require.NoError(t, repo.Create(ctx, p))
	}
	reply := newPost(bob, "reply golang", models.VisibilityPublic)
	reply.ParentPostID = &public.ID
	reply.IsReply = true
	require.NoError(t, repo.Create(ctx, reply))

	ids := func(posts []*models.Post) []uint {
		out := make([]uint, 0, len(posts))
		for _, p := range posts {
			out = append(out, p.ID)
		}
		return out
	}

	t.Run("timeline excludes private and replies, newest first", func(t *testing.T) {
		posts, err := repo.Timeline(ctx, []uint{alice.ID, bob.ID}, 20, 0)
		require.NoError(t, err)
		assert.Equal(t, []uint{fromBob.ID, followers.ID, public.ID}, ids(posts))
	})

	t.Run("timeline with no authors", func(t *testing.T) {
		posts, err := repo.Timeline(ctx, nil, 20, 0)
		require.NoError(t, err)
		assert.Empty(t, posts)
	})

	t.Run("public", func(t *testing.T) {
		posts, err := repo.Public(ctx, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, []uint{fromCarol.ID, fromBob.ID}, ids(posts))

		posts, err = repo.Public(ctx, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, []uint{public.ID}, ids(posts))
	})

	t.Run("by author honours visibilities", func(t *testing.T) {
		posts, err := repo.ByAuthor(ctx, alice.ID, []models.Visibility{models.VisibilityPublic}, 20, 0)
		require.NoError(t, err)
		assert.Equal(t, []uint{public.ID}, ids(posts))

		posts, err = repo.ByAuthor(ctx, alice.ID, []models.Visibility{
			models.VisibilityPublic, models.VisibilityFollowers, models.VisibilityPrivate,
		}, 20, 0)
		require.NoError(t, err)
		assert.Len(t, posts, 3)
	})

	t.Run("search matches content or hashtag", func(t *testing.T) {
		posts, err := repo.Search(ctx, "GOLANG", 20)
		require.NoError(t, err)
		assert.Equal(t, []uint{fromBob.ID, public.ID}, ids(posts))

		posts, err = repo.Search(ctx, "#golang", 20)
		require.NoError(t, err)
		assert.Equal(t, []uint{public.ID}, ids(posts))
	})
}

func TestPostRepository_GetByID_DatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "posts"."id" = $1`)).
		WillReturnError(errors.New("connection reset"))

	post, err := repo.GetByID(context.Background(), 7)
	assert.Nil(t, post)
	requireCode(t, err, models.CodeInternal)
	assert.NoError(t, mock.ExpectationsWereMet())
}
