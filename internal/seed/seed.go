// Package seed fills a database with demo accounts, follows, posts and likes.
// Everything goes through the services, so counters and hashtags are derived
// exactly as they are for real traffic. Intended for development only.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"chitchat/internal/models"
	"chitchat/internal/observability"
	"chitchat/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

// DefaultPassword is shared by every seeded account.
const DefaultPassword = "password123"

var topics = []string{"golang", "coffee", "music", "travel", "photography", "running", "books", "gaming", "design", "food"}

// Options controls how much data is generated.
type Options struct {
	Users int
	Posts int
	// Seed makes runs reproducible; zero picks a random seed.
	Seed int64
}

// Summary counts what a run created.
type Summary struct {
	Users   int
	Follows int
	Posts   int
	Replies int
	Likes   int
}

// Seeder drives the services with fake data.
type Seeder struct {
	auth  *service.AuthService
	users *service.UserService
	posts *service.PostService
	fake  *gofakeit.Faker
	opts  Options
}

// NewSeeder returns a Seeder. At least two users are always created.
func NewSeeder(auth *service.AuthService, users *service.UserService, posts *service.PostService, opts Options) *Seeder {
	if opts.Users < 2 {
		opts.Users = 2
	}
	return &Seeder{
		auth:  auth,
		users: users,
		posts: posts,
		fake:  gofakeit.New(opts.Seed),
		opts:  opts,
	}
}

// Run creates users, a follow graph, posts with hashtags and mentions,
// replies and likes, in that order.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	var sum Summary

	users, err := s.seedUsers(ctx)
	if err != nil {
		return nil, err
	}
	sum.Users = len(users)

	if sum.Follows, err = s.seedFollows(ctx, users); err != nil {
		return nil, err
	}

	posts, replies, err := s.seedPosts(ctx, users)
	if err != nil {
		return nil, err
	}
	sum.Posts, sum.Replies = len(posts), replies

	if sum.Likes, err = s.seedLikes(ctx, users, posts); err != nil {
		return nil, err
	}

	observability.Logger.Info("seed complete",
		slog.Int("users", sum.Users),
		slog.Int("follows", sum.Follows),
		slog.Int("posts", sum.Posts),
		slog.Int("replies", sum.Replies),
		slog.Int("likes", sum.Likes),
	)
	return &sum, nil
}

func (s *Seeder) seedUsers(ctx context.Context) ([]*models.User, error) {
	out := make([]*models.User, 0, s.opts.Users)
	for i := 0; i < s.opts.Users; i++ {
		username := s.username(i)
		user, _, err := s.auth.Register(ctx, service.RegisterInput{
			Username:    username,
			Email:       username + "@example.com",
			Password:    DefaultPassword,
			DisplayName: truncate(s.fake.Name(), 50),
		})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", username, err)
		}

		bio := truncate(s.fake.Sentence(10), 160)
		location := truncate(s.fake.City(), 50)
		private := s.fake.Number(1, 10) == 1
		user, err = s.users.UpdateProfile(ctx, user.ID, service.UpdateProfileInput{
			Bio:       &bio,
			Location:  &location,
			IsPrivate: &private,
		})
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", username, err)
		}
		out = append(out, user)
	}
	return out, nil
}

// username derives a valid, unique handle from a fake one.
func (s *Seeder) username(i int) string {
	var b strings.Builder
	for _, r := range s.fake.Username() {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			b.WriteRune(r)
		}
	}
	suffix := fmt.Sprintf("_%d", i)
	base := b.String()
	if len(base) < 3 {
		base = "user"
	}
	return strings.ToLower(truncate(base, 30-len(suffix))) + suffix
}

func (s *Seeder) seedFollows(ctx context.Context, users []*models.User) (int, error) {
	count := 0
	for _, u := range users {
		n := s.fake.Number(1, min(5, len(users)-1))
		for _, target := range s.pick(users, n, u.ID) {
			res, err := s.users.ToggleFollow(ctx, u, target.Username)
			if err != nil {
				return count, fmt.Errorf("follow %s -> %s: %w", u.Username, target.Username, err)
			}
			if res.Following {
				count++
			}
		}
	}
	return count, nil
}

func (s *Seeder) seedPosts(ctx context.Context, users []*models.User) ([]*models.Post, int, error) {
	posts := make([]*models.Post, 0, s.opts.Posts)
	var public []*models.Post
	replies := 0

	for i := 0; i < s.opts.Posts; i++ {
		author := users[s.fake.Number(0, len(users)-1)]
		in := service.CreatePostInput{
			Content:    s.content(users, author),
			Visibility: s.visibility(),
		}
		if len(public) > 0 && s.fake.Number(1, 5) == 1 {
			parent := public[s.fake.Number(0, len(public)-1)]
			in.ParentPostID = &parent.ID
			in.Visibility = string(models.VisibilityPublic)
		}

		post, err := s.posts.Create(ctx, author, in)
		if err != nil {
			return nil, 0, fmt.Errorf("post by %s: %w", author.Username, err)
		}
		if post.IsReply {
			replies++
		}
		if post.Visibility == models.VisibilityPublic && !author.IsPrivate {
			public = append(public, post)
		}
		posts = append(posts, post)
	}
	return posts, replies, nil
}

func (s *Seeder) content(users []*models.User, author *models.User) string {
	text := s.fake.Sentence(s.fake.Number(5, 15))
	text += " #" + s.fake.RandomString(topics)
	if s.fake.Bool() {
		if others := s.pick(users, 1, author.ID); len(others) > 0 {
			text += " @" + others[0].Username
		}
	}
	return truncate(text, models.MaxPostLength)
}

func (s *Seeder) visibility() string {
	switch n := s.fake.Number(1, 10); {
	case n <= 7:
		return string(models.VisibilityPublic)
	case n <= 9:
		return string(models.VisibilityFollowers)
	default:
		return string(models.VisibilityPrivate)
	}
}

// seedLikes only likes public posts of public authors so every like passes
// the visibility check regardless of the follow graph.
func (s *Seeder) seedLikes(ctx context.Context, users []*models.User, posts []*models.Post) (int, error) {
	private := make(map[uint]bool, len(users))
	for _, u := range users {
		private[u.ID] = u.IsPrivate
	}

	count := 0
	for _, p := range posts {
		if p.Visibility != models.VisibilityPublic || private[p.AuthorID] {
			continue
		}
		for _, u := range s.pick(users, s.fake.Number(0, min(4, len(users)-1)), p.AuthorID) {
			res, err := s.posts.ToggleLike(ctx, u, p.ID)
			if err != nil {
				return count, fmt.Errorf("like %d by %s: %w", p.ID, u.Username, err)
			}
			if res.On {
				count++
			}
		}
	}
	return count, nil
}

// pick returns up to n distinct users other than exclude.
func (s *Seeder) pick(users []*models.User, n int, exclude uint) []*models.User {
	candidates := make([]*models.User, 0, len(users))
	for _, u := range users {
		if u.ID != exclude {
			candidates = append(candidates, u)
		}
	}
	s.fake.ShuffleAnySlice(candidates)
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}
