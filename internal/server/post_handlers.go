package server

import (
	"strings"

	"chitchat/internal/middleware"
	"chitchat/internal/models"
	"chitchat/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePostRequest is the body of POST /posts/create.
type CreatePostRequest struct {
	Content    string               `json:"content"`
	Visibility string               `json:"visibility"`
	ParentPost *uint                `json:"parentPost"`
	Images     []service.ImageInput `json:"images"`
}

// UpdatePostRequest is the body of PATCH /posts/:postId.
type UpdatePostRequest struct {
	Content string `json:"content"`
}

// CreatePost handles POST /api/posts/create
// @Summary Create a post or reply
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreatePostRequest true "Post"
// @Success 201 {object} object{message=string,post=models.Post}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/create [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req CreatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, badBody())
	}

	post, err := s.postService.Create(c.UserContext(), middleware.CurrentUser(c), service.CreatePostInput{
		Content:      req.Content,
		Visibility:   req.Visibility,
		ParentPostID: req.ParentPost,
		Images:       req.Images,
	})
	if err != nil {
		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Post created successfully",
		"post":    post,
	})
}

// GetTimeline handles GET /api/posts/timeline
// @Summary Home timeline
// @Description Posts by the caller and the accounts they follow, newest first
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size"
// @Success 200 {object} object{posts=[]models.Post,page=int,limit=int,total=int}
// @Router /posts/timeline [get]
func (s *Server) GetTimeline(c *fiber.Ctx) error {
	page := parsePagination(c)
	posts, err := s.postService.Timeline(c.UserContext(), viewer(c), page.Limit, page.Offset)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"posts": posts,
		"page":  page.Page,
		"limit": page.Limit,
		"total": len(posts),
	})
}

// GetPublicPosts handles GET /api/posts/public
// @Summary Public feed
// @Tags posts
// @Produce json
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size"
// @Success 200 {object} object{posts=[]models.Post,page=int,limit=int}
// @Router /posts/public [get]
func (s *Server) GetPublicPosts(c *fiber.Ctx) error {
	page := parsePagination(c)
	posts, err := s.postService.Public(c.UserContext(), viewer(c), page.Limit, page.Offset)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"posts": posts,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

// GetPost handles GET /api/posts/:postId
// @Summary Get a post
// @Description Includes the first replies; hidden posts answer 403
// @Tags posts
// @Produce json
// @Param postId path int true "Post ID"
// @Success 200 {object} object{post=models.Post}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{postId} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parsePostID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	post, err := s.postService.Get(c.UserContext(), viewer(c), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"post": post})
}

// UpdatePost handles PATCH /api/posts/:postId
// @Summary Edit a post
// @Description The previous content is kept in the edit history
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Param request body UpdatePostRequest true "New content"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{postId} [patch]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := parsePostID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	var req UpdatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, badBody())
	}

	post, err := s.postService.Edit(c.UserContext(), viewer(c), id, req.Content)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Post updated successfully",
		"post":    post,
	})
}

// DeletePost handles DELETE /api/posts/:postId
// @Summary Delete a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Success 200 {object} object{message=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{postId} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := parsePostID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	if err := s.postService.Delete(c.UserContext(), viewer(c), id); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post deleted successfully"})
}

// ToggleLike handles POST /api/posts/:postId/like
// @Summary Like or unlike a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Success 200 {object} object{message=string,isLiked=bool,likesCount=int}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{postId}/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := parsePostID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	res, err := s.postService.ToggleLike(c.UserContext(), middleware.CurrentUser(c), id)
	if err != nil {
		return s.respondError(c, err)
	}

	message := "Post unliked"
	if res.On {
		message = "Post liked"
	}
	return c.JSON(fiber.Map{
		"message":    message,
		"isLiked":    res.On,
		"likesCount": res.Count,
	})
}

// ToggleRepost handles POST /api/posts/:postId/repost
// @Summary Repost or remove a repost
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Success 200 {object} object{message=string,isReposted=bool,repostsCount=int}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{postId}/repost [post]
func (s *Server) ToggleRepost(c *fiber.Ctx) error {
	id, err := parsePostID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	res, err := s.postService.ToggleRepost(c.UserContext(), middleware.CurrentUser(c), id)
	if err != nil {
		return s.respondError(c, err)
	}

	message := "Repost removed"
	if res.On {
		message = "Post reposted"
	}
	return c.JSON(fiber.Map{
		"message":      message,
		"isReposted":   res.On,
		"repostsCount": res.Count,
	})
}

// SearchPosts handles GET /api/posts/search/:query
// @Summary Search posts
// @Description Matches content or hashtag; only public posts are returned
// @Tags posts
// @Produce json
// @Param query path string true "Search text"
// @Param limit query int false "Max results"
// @Success 200 {object} object{posts=[]models.Post,query=string,total=int}
// @Failure 400 {object} models.ErrorResponse
// @Router /posts/search/{query} [get]
func (s *Server) SearchPosts(c *fiber.Ctx) error {
	query := strings.TrimSpace(paramUnescaped(c, "query"))
	posts, err := s.postService.Search(c.UserContext(), viewer(c), query, parsePagination(c).Limit)
	if err != nil {
		return s.respondError(c, err)
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return c.JSON(fiber.Map{
		"posts": posts,
		"query": query,
		"total": len(posts),
	})
}
