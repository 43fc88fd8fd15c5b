package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chitchat/internal/models"
	"chitchat/internal/notifications"
	"chitchat/internal/observability"
	"chitchat/internal/repository"
	"chitchat/internal/validation"
)

// PostService implements posting, feeds and engagement.
type PostService struct {
	posts  repository.PostRepository
	users  repository.UserRepository
	events EventPublisher
}

// ImageInput is an already uploaded image attached to a new post.
type ImageInput struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

// CreatePostInput is a new post or, with ParentPostID set, a reply.
type CreatePostInput struct {
	Content      string
	Visibility   string
	ParentPostID *uint
	Images       []ImageInput
}

// ToggleResult is the edge state and the refreshed counter after a like or repost toggle.
type ToggleResult struct {
	On    bool
	Count int64
}

// NewPostService creates a PostService. events may be nil.
func NewPostService(posts repository.PostRepository, users repository.UserRepository, events EventPublisher) *PostService {
	return &PostService{posts: posts, users: users, events: events}
}

// Create validates and stores a post or reply by author. Replies notify the
// parent's author and every mentioned user is notified.
func (s *PostService) Create(ctx context.Context, author *models.User, in CreatePostInput) (*models.Post, error) {
	visibility := models.Visibility(in.Visibility)
	if visibility == "" {
		visibility = models.VisibilityPublic
	}

	var errs validation.Errors
	errs.Add("content", validation.ValidatePostContent(in.Content))
	if !visibility.Valid() {
		errs.Add("visibility", fmt.Errorf("visibility must be one of public, followers, private"))
	}
	if len(in.Images) > validation.MaxImagesPerPost {
		errs.Add("images", fmt.Errorf("a post can have at most %d images", validation.MaxImagesPerPost))
	}
	for i, img := range in.Images {
		field := fmt.Sprintf("images[%d]", i)
		if img.URL == "" {
			errs.Add(field+".url", fmt.Errorf("image url is required"))
		} else {
			errs.Add(field+".url", validation.ValidateURL("Image url", img.URL))
		}
		errs.Add(field+".alt", validation.ValidateMaxLength("Alt text", img.Alt, validation.MaxImageAltLength))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var parent *models.Post
	if in.ParentPostID != nil {
		p, err := s.posts.GetByID(ctx, *in.ParentPostID)
		if err != nil {
			if isCode(err, models.CodeNotFound) {
				return nil, models.NewNotFound("Parent post not found")
			}
			return nil, err
		}
		if ok, err := s.canView(ctx, author.ID, p); err != nil {
			return nil, err
		} else if !ok {
			return nil, models.NewForbiddenError("You cannot reply to this post")
		}
		parent = p
	}

	mentioned, err := s.resolveMentions(ctx, in.Content)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		AuthorID:   author.ID,
		Content:    in.Content,
		Visibility: visibility,
		IsReply:    parent != nil,
		Hashtags:   tagRows(models.ExtractHashtags(in.Content)),
		Mentions:   make([]models.PostMention, 0, len(mentioned)),
		Images:     make([]models.PostImage, 0, len(in.Images)),
	}
	if parent != nil {
		post.ParentPostID = &parent.ID
	}
	for _, id := range mentioned {
		post.Mentions = append(post.Mentions, models.PostMention{UserID: id})
	}
	for i, img := range in.Images {
		post.Images = append(post.Images, models.PostImage{Position: i, URL: img.URL, Alt: img.Alt})
	}

	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}

	kind := "post"
	if post.IsReply {
		kind = "reply"
	}
	observability.PostsCreated.WithLabelValues(kind).Inc()

	if parent != nil && parent.AuthorID != author.ID {
		publish(ctx, s.events, parent.AuthorID,
			notifications.NewEvent(notifications.EventPostReplied, author, parent.ID, post.ID))
	}
	for _, id := range mentioned {
		if id != author.ID {
			publish(ctx, s.events, id, notifications.NewEvent(notifications.EventMentioned, author, post.ID, 0))
		}
	}

	created, err := s.posts.GetByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	annotate(author.ID, created)
	return created, nil
}

// Get returns a single post with its newest visible replies.
func (s *PostService) Get(ctx context.Context, viewerID, postID uint) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.requireView(ctx, viewerID, post); err != nil {
		return nil, err
	}

	replies, err := s.posts.Replies(ctx, post.ID, repository.RepliesPreview)
	if err != nil {
		return nil, err
	}
	post.Replies = make([]*models.Post, 0, len(replies))
	for _, r := range replies {
		ok, err := s.canView(ctx, viewerID, r)
		if err != nil {
			return nil, err
		}
		if ok {
			post.Replies = append(post.Replies, r)
		}
	}
	annotate(viewerID, post)
	annotate(viewerID, post.Replies...)
	return post, nil
}

// Edit replaces the content of the viewer's own post, keeping history.
func (s *PostService) Edit(ctx context.Context, viewerID, postID uint, content string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != viewerID {
		return nil, models.NewForbiddenError("You can only edit your own posts")
	}
	var errs validation.Errors
	errs.Add("content", validation.ValidatePostContent(content))
	if err := errs.Err(); err != nil {
		return nil, err
	}

	mentioned, err := s.resolveMentions(ctx, content)
	if err != nil {
		return nil, err
	}
	updated, err := s.posts.UpdateContent(ctx, postID, content, models.ExtractHashtags(content), mentioned)
	if err != nil {
		return nil, err
	}
	annotate(viewerID, updated)
	return updated, nil
}

// Delete removes the viewer's own post.
func (s *PostService) Delete(ctx context.Context, viewerID, postID uint) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != viewerID {
		return models.NewForbiddenError("You can only delete your own posts")
	}
	return s.posts.Delete(ctx, post)
}

// ToggleLike likes or unlikes postID. A new like notifies the author.
func (s *PostService) ToggleLike(ctx context.Context, actor *models.User, postID uint) (*ToggleResult, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.requireView(ctx, actor.ID, post); err != nil {
		return nil, err
	}
	liked, count, err := s.posts.ToggleLike(ctx, postID, actor.ID)
	if err != nil {
		return nil, err
	}
	observability.Toggles.WithLabelValues("like", observability.ToggleAction(liked)).Inc()

	if liked && post.AuthorID != actor.ID {
		publish(ctx, s.events, post.AuthorID,
			notifications.NewEvent(notifications.EventPostLiked, actor, post.ID, 0))
	}
	return &ToggleResult{On: liked, Count: count}, nil
}

// ToggleRepost reposts or un-reposts postID.
func (s *PostService) ToggleRepost(ctx context.Context, actor *models.User, postID uint) (*ToggleResult, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.requireView(ctx, actor.ID, post); err != nil {
		return nil, err
	}
	reposted, count, err := s.posts.ToggleRepost(ctx, postID, actor.ID)
	if err != nil {
		return nil, err
	}
	observability.Toggles.WithLabelValues("repost", observability.ToggleAction(reposted)).Inc()
	return &ToggleResult{On: reposted, Count: count}, nil
}

// Timeline returns top-level posts by the viewer and everyone they follow.
func (s *PostService) Timeline(ctx context.Context, viewerID uint, limit, offset int) ([]*models.Post, error) {
	following, err := s.users.FollowingIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.Timeline(ctx, append(following, viewerID), limit, offset)
	if err != nil {
		return nil, err
	}
	annotate(viewerID, posts...)
	return posts, nil
}

// Public returns the public feed. Viewer flags are set only for
// authenticated viewers.
func (s *PostService) Public(ctx context.Context, viewerID uint, limit, offset int) ([]*models.Post, error) {
	posts, err := s.posts.Public(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	annotate(viewerID, posts...)
	return posts, nil
}

// ByUser returns username's top-level posts visible to viewerID.
func (s *PostService) ByUser(ctx context.Context, viewerID uint, username string, limit, offset int) ([]*models.Post, error) {
	target, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	rel, err := relationshipOf(ctx, s.users, viewerID, target.ID)
	if err != nil {
		return nil, err
	}
	if target.IsPrivate && !rel.owner && !rel.follower {
		return nil, models.ErrPrivateAccount
	}

	visibilities := []models.Visibility{models.VisibilityPublic}
	switch {
	case rel.owner:
		visibilities = append(visibilities, models.VisibilityFollowers, models.VisibilityPrivate)
	case rel.follower:
		visibilities = append(visibilities, models.VisibilityFollowers)
	}

	posts, err := s.posts.ByAuthor(ctx, target.ID, visibilities, limit, offset)
	if err != nil {
		return nil, err
	}
	annotate(viewerID, posts...)
	return posts, nil
}

// Search finds public posts by content or hashtag.
func (s *PostService) Search(ctx context.Context, viewerID uint, query string, limit int) ([]*models.Post, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	posts, err := s.posts.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	annotate(viewerID, posts...)
	return posts, nil
}

func (s *PostService) requireView(ctx context.Context, viewerID uint, post *models.Post) error {
	ok, err := s.canView(ctx, viewerID, post)
	if err != nil {
		return err
	}
	if !ok {
		if post.Visibility == models.VisibilityPrivate {
			return models.NewForbiddenError("This post is private")
		}
		return models.NewForbiddenError("This post is only visible to followers")
	}
	return nil
}

// canView applies per-post visibility: private posts are author-only and
// followers-only posts need the author's follow.
func (s *PostService) canView(ctx context.Context, viewerID uint, post *models.Post) (bool, error) {
	if post.Visibility == models.VisibilityPublic || viewerID == post.AuthorID {
		return true, nil
	}
	if post.Visibility == models.VisibilityPrivate || viewerID == 0 {
		return false, nil
	}
	return s.users.IsFollowing(ctx, viewerID, post.AuthorID)
}

func (s *PostService) resolveMentions(ctx context.Context, content string) ([]uint, error) {
	names := models.ExtractMentions(content)
	if len(names) == 0 {
		return nil, nil
	}
	users, err := s.users.GetByUsernames(ctx, names)
	if err != nil {
		return nil, err
	}
	return userIDs(users), nil
}

// annotate sets isLiked and isReposted for an authenticated viewer.
func annotate(viewerID uint, posts ...*models.Post) {
	if viewerID == 0 {
		return
	}
	for _, p := range posts {
		liked, reposted := false, false
		for _, l := range p.Likes {
			if l.UserID == viewerID {
				liked = true
				break
			}
		}
		for _, r := range p.Reposts {
			if r.UserID == viewerID {
				reposted = true
				break
			}
		}
		p.IsLiked = boolPtr(liked)
		p.IsReposted = boolPtr(reposted)
	}
}

func tagRows(tags []string) []models.PostHashtag {
	rows := make([]models.PostHashtag, 0, len(tags))
	for _, t := range tags {
		rows = append(rows, models.PostHashtag{Tag: t})
	}
	return rows
}

func isCode(err error, code string) bool {
	var appErr *models.AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
