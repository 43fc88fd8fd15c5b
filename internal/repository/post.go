package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"chitchat/internal/cache"
	"chitchat/internal/models"
	"chitchat/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RepliesPreview is how many replies the single-post view loads.
const RepliesPreview = 10

// PostRepository defines persistence operations for posts and engagement.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	UpdateContent(ctx context.Context, id uint, content string, hashtags []string, mentionIDs []uint) (*models.Post, error)
	Delete(ctx context.Context, post *models.Post) error

	ToggleLike(ctx context.Context, postID, userID uint) (bool, int64, error)
	ToggleRepost(ctx context.Context, postID, userID uint) (bool, int64, error)

	Timeline(ctx context.Context, authorIDs []uint, limit, offset int) ([]*models.Post, error)
	Public(ctx context.Context, limit, offset int) ([]*models.Post, error)
	ByAuthor(ctx context.Context, authorID uint, visibilities []models.Visibility, limit, offset int) ([]*models.Post, error)
	Replies(ctx context.Context, parentID uint, limit int) ([]*models.Post, error)
	Search(ctx context.Context, query string, limit int) ([]*models.Post, error)
}

type postRepository struct {
	db    *gorm.DB
	cache *cache.Store
	log   *observability.RepoLogger
}

// NewPostRepository returns a new PostRepository implementation. store may
// be nil or disabled; when set, the author's cached record is dropped
// whenever their post counter moves.
func NewPostRepository(db *gorm.DB, store *cache.Store) PostRepository {
	return &postRepository{db: db, cache: store, log: observability.NewRepoLogger("posts")}
}

// withDetails preloads everything a rendered post needs.
func withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Author").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Likes").
		Preload("Reposts").
		Preload("Hashtags").
		Preload("Mentions").
		Preload("EditHistory", func(db *gorm.DB) *gorm.DB { return db.Order("edited_at ASC") })
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

// Create inserts the post with its images, hashtags and mentions, then
// refreshes the parent's reply counter and the author's post counter in the
// same transaction.
func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery("create", "posts")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		if post.ParentPostID != nil {
			if err := refreshReplyCount(tx, *post.ParentPostID); err != nil {
				return err
			}
		}
		return refreshAuthorPostCount(tx, post.AuthorID)
	})
	if err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.cache.InvalidateUsers(ctx, post.AuthorID)
	r.log.LogCreate(ctx,
		slog.Uint64("post_id", uint64(post.ID)),
		slog.Uint64("author_id", uint64(post.AuthorID)),
		slog.Bool("is_reply", post.IsReply),
	)
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	defer observability.TrackQuery("get_by_id", "posts")()

	var post models.Post
	if err := withDetails(r.db.WithContext(ctx)).First(&post, id).Error; err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

// UpdateContent stores the previous content in the edit history, replaces
// the content and re-derives hashtags and mentions.
func (r *postRepository) UpdateContent(ctx context.Context, id uint, content string, hashtags []string, mentionIDs []uint) (*models.Post, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Post
		if err := tx.Select("id", "content").First(&current, id).Error; err != nil {
			return err
		}
		edit := models.PostEdit{PostID: id, Content: current.Content, EditedAt: time.Now()}
		if err := tx.Create(&edit).Error; err != nil {
			return err
		}
		err := tx.Model(&models.Post{}).Where("id = ?", id).
			Updates(map[string]any{"content": content, "is_edited": true}).Error
		if err != nil {
			return err
		}

		if err := tx.Where("post_id = ?", id).Delete(&models.PostHashtag{}).Error; err != nil {
			return err
		}
		if tags := hashtagRows(id, hashtags); len(tags) > 0 {
			if err := tx.Create(&tags).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.PostMention{}).Error; err != nil {
			return err
		}
		if mentions := mentionRows(id, mentionIDs); len(mentions) > 0 {
			if err := tx.Create(&mentions).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	r.log.LogUpdate(ctx, slog.Uint64("post_id", uint64(id)))
	return r.GetByID(ctx, id)
}

// Delete removes the post and everything hanging off it, then refreshes the
// parent's reply counter and the author's post counter.
func (r *postRepository) Delete(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery("delete", "posts")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, child := range []any{
			&models.PostLike{}, &models.PostRepost{}, &models.PostImage{},
			&models.PostHashtag{}, &models.PostMention{}, &models.PostEdit{},
		} {
			if err := tx.Where("post_id = ?", post.ID).Delete(child).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&models.Post{}, post.ID).Error; err != nil {
			return err
		}
		if post.ParentPostID != nil {
			if err := refreshReplyCount(tx, *post.ParentPostID); err != nil {
				return err
			}
		}
		return refreshAuthorPostCount(tx, post.AuthorID)
	})
	if err != nil {
		r.log.LogError(ctx, err, "delete")
		return models.NewInternalError(err)
	}
	r.cache.InvalidateUsers(ctx, post.AuthorID)
	r.log.LogDelete(ctx, slog.Uint64("post_id", uint64(post.ID)))
	return nil
}

func refreshReplyCount(tx *gorm.DB, parentID uint) error {
	var n int64
	if err := tx.Model(&models.Post{}).Where("parent_post_id = ?", parentID).Count(&n).Error; err != nil {
		return err
	}
	return tx.Model(&models.Post{}).Where("id = ?", parentID).UpdateColumn("replies_count", n).Error
}

// refreshAuthorPostCount counts top-level posts only; replies are not posts
// on the author's profile.
func refreshAuthorPostCount(tx *gorm.DB, authorID uint) error {
	var n int64
	err := tx.Model(&models.Post{}).
		Where("author_id = ? AND is_reply = ?", authorID, false).
		Count(&n).Error
	if err != nil {
		return err
	}
	return tx.Model(&models.User{}).Where("id = ?", authorID).UpdateColumn("stats_posts_count", n).Error
}

func (r *postRepository) ToggleLike(ctx context.Context, postID, userID uint) (bool, int64, error) {
	defer observability.TrackQuery("toggle_like", "post_likes")()
	return toggleEdge(ctx, r.db, &models.PostLike{PostID: postID, UserID: userID}, "likes_count")
}

func (r *postRepository) ToggleRepost(ctx context.Context, postID, userID uint) (bool, int64, error) {
	defer observability.TrackQuery("toggle_repost", "post_reposts")()
	return toggleEdge(ctx, r.db, &models.PostRepost{PostID: postID, UserID: userID}, "reposts_count")
}

type postEdge interface {
	models.PostLike | models.PostRepost
}

// toggleEdge deletes the (post, user) row when present and inserts it
// otherwise, then recomputes counter from the edge table. The composite
// primary key keeps concurrent toggles from producing duplicates.
func toggleEdge[E postEdge](ctx context.Context, db *gorm.DB, edge *E, counter string) (bool, int64, error) {
	var postID, userID uint
	switch e := any(edge).(type) {
	case *models.PostLike:
		postID, userID = e.PostID, e.UserID
	case *models.PostRepost:
		postID, userID = e.PostID, e.UserID
	}

	var on bool
	var count int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return gorm.ErrRecordNotFound
		}

		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(new(E))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(edge).Error; err != nil {
				return err
			}
			on = true
		}

		if err := tx.Model(new(E)).Where("post_id = ?", postID).Count(&count).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn(counter, count).Error
	})
	if err != nil {
		return false, 0, notFoundOr(err, "Post", postID)
	}
	return on, count, nil
}

// Timeline returns top-level posts by authorIDs that are public or
// followers-only, newest first.
func (r *postRepository) Timeline(ctx context.Context, authorIDs []uint, limit, offset int) ([]*models.Post, error) {
	defer observability.TrackQuery("timeline", "posts")()

	if len(authorIDs) == 0 {
		return []*models.Post{}, nil
	}
	var posts []*models.Post
	err := newestFirst(withDetails(r.db.WithContext(ctx))).
		Where("author_id IN ?", authorIDs).
		Where("is_reply = ?", false).
		Where("visibility IN ?", []models.Visibility{models.VisibilityPublic, models.VisibilityFollowers}).
		Limit(clampLimit(limit, 20)).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) Public(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	defer observability.TrackQuery("public", "posts")()

	var posts []*models.Post
	err := newestFirst(withDetails(r.db.WithContext(ctx))).
		Where("visibility = ? AND is_reply = ?", models.VisibilityPublic, false).
		Limit(clampLimit(limit, 20)).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) ByAuthor(ctx context.Context, authorID uint, visibilities []models.Visibility, limit, offset int) ([]*models.Post, error) {
	var posts []*models.Post
	err := newestFirst(withDetails(r.db.WithContext(ctx))).
		Where("author_id = ? AND is_reply = ?", authorID, false).
		Where("visibility IN ?", visibilities).
		Limit(clampLimit(limit, 20)).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) Replies(ctx context.Context, parentID uint, limit int) ([]*models.Post, error) {
	var posts []*models.Post
	err := newestFirst(withDetails(r.db.WithContext(ctx))).
		Where("parent_post_id = ?", parentID).
		Limit(clampLimit(limit, RepliesPreview)).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

// Search matches content case-insensitively or a hashtag exactly. Only
// public top-level posts are returned.
func (r *postRepository) Search(ctx context.Context, query string, limit int) ([]*models.Post, error) {
	defer observability.TrackQuery("search", "posts")()

	tag := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(query), "#"))
	tagged := r.db.Model(&models.PostHashtag{}).Select("post_id").Where("tag = ?", tag)

	var posts []*models.Post
	err := newestFirst(withDetails(r.db.WithContext(ctx))).
		Where(r.db.Where(`LOWER(content) LIKE ? ESCAPE '\'`, containsPattern(query)).Or("id IN (?)", tagged)).
		Where("visibility = ? AND is_reply = ?", models.VisibilityPublic, false).
		Limit(clampLimit(limit, 20)).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func hashtagRows(postID uint, tags []string) []models.PostHashtag {
	rows := make([]models.PostHashtag, 0, len(tags))
	for _, t := range tags {
		rows = append(rows, models.PostHashtag{PostID: postID, Tag: t})
	}
	return rows
}

func mentionRows(postID uint, userIDs []uint) []models.PostMention {
	rows := make([]models.PostMention, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.PostMention{PostID: postID, UserID: id})
	}
	return rows
}
