package server

import (
	"strings"

	"chitchat/internal/middleware"
	"chitchat/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SearchUsers handles GET /api/users/search/:query
// @Summary Search users
// @Tags users
// @Produce json
// @Param query path string true "Username or display name fragment"
// @Success 200 {object} object{users=[]models.User,query=string,total=int}
// @Failure 400 {object} models.ErrorResponse
// @Router /users/search/{query} [get]
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	query := strings.TrimSpace(paramUnescaped(c, "query"))
	users, err := s.userService.Search(c.UserContext(), viewer(c), query, parsePagination(c).Limit)
	if err != nil {
		return s.respondError(c, err)
	}
	if users == nil {
		users = []*models.User{}
	}
	return c.JSON(fiber.Map{
		"users": users,
		"query": query,
		"total": len(users),
	})
}

// GetUser handles GET /api/users/:username
// @Summary User profile
// @Description Private accounts return a reduced view to non-followers
// @Tags users
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} service.ProfileView
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{username} [get]
func (s *Server) GetUser(c *fiber.Ctx) error {
	view, err := s.userService.Profile(c.UserContext(), viewer(c), paramUnescaped(c, "username"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(view)
}

// GetUserPosts handles GET /api/users/:username/posts
// @Summary Posts by a user
// @Description Only posts the caller may see are returned
// @Tags users
// @Produce json
// @Param username path string true "Username"
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size"
// @Success 200 {object} object{posts=[]models.Post,page=int,limit=int}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{username}/posts [get]
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	page := parsePagination(c)
	posts, err := s.postService.ByUser(c.UserContext(), viewer(c), paramUnescaped(c, "username"), page.Limit, page.Offset)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"posts": posts,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

// ToggleFollow handles POST /api/users/:username/follow
// @Summary Follow or unfollow a user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param username path string true "Username"
// @Success 200 {object} object{message=string,isFollowing=bool,followersCount=int}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{username}/follow [post]
func (s *Server) ToggleFollow(c *fiber.Ctx) error {
	res, err := s.userService.ToggleFollow(c.UserContext(), middleware.CurrentUser(c), paramUnescaped(c, "username"))
	if err != nil {
		return s.respondError(c, err)
	}

	message := "User unfollowed"
	if res.Following {
		message = "User followed"
	}
	return c.JSON(fiber.Map{
		"message":        message,
		"isFollowing":    res.Following,
		"followersCount": res.FollowersCount,
	})
}

// GetFollowers handles GET /api/users/:username/followers
// @Summary Followers
// @Description total is the account's follower count, not the page size
// @Tags users
// @Produce json
// @Param username path string true "Username"
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size"
// @Success 200 {object} object{followers=[]models.UserSummary,page=int,limit=int,total=int}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{username}/followers [get]
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	page := parsePagination(c)
	list, total, err := s.userService.Followers(c.UserContext(), viewer(c), paramUnescaped(c, "username"), page.Limit, page.Offset)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(connectionsPage("followers", list, total, page))
}

// GetFollowing handles GET /api/users/:username/following
// @Summary Following
// @Description total is the account's following count, not the page size
// @Tags users
// @Produce json
// @Param username path string true "Username"
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size"
// @Success 200 {object} object{following=[]models.UserSummary,page=int,limit=int,total=int}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{username}/following [get]
func (s *Server) GetFollowing(c *fiber.Ctx) error {
	page := parsePagination(c)
	list, total, err := s.userService.Following(c.UserContext(), viewer(c), paramUnescaped(c, "username"), page.Limit, page.Offset)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(connectionsPage("following", list, total, page))
}

func connectionsPage(key string, list []models.UserSummary, total int64, page Pagination) fiber.Map {
	if list == nil {
		list = []models.UserSummary{}
	}
	return fiber.Map{
		key:     list,
		"page":  page.Page,
		"limit": page.Limit,
		"total": total,
	}
}
