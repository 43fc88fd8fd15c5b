package service

import (
	"context"
	"log/slog"
	"strings"

	"chitchat/internal/models"
	"chitchat/internal/notifications"
	"chitchat/internal/observability"
	"chitchat/internal/repository"
	"chitchat/internal/validation"
)

// EventPublisher delivers realtime events to a user.
type EventPublisher interface {
	Notify(ctx context.Context, userID uint, ev notifications.Event) error
}

// maxEmbeddedConnections bounds the follower/following lists on /me.
const maxEmbeddedConnections = 100

// UserService implements profiles, search and the follow graph.
type UserService struct {
	users  repository.UserRepository
	events EventPublisher
}

// Account is the owner's view of their own record.
type Account struct {
	*models.User
	Followers []models.UserSummary `json:"followers"`
	Following []models.UserSummary `json:"following"`
}

// ProfileView is what another viewer gets for GET /users/:username. User is
// either a public profile or the reduced private view.
type ProfileView struct {
	User      any  `json:"user"`
	IsPrivate bool `json:"isPrivate,omitempty"`
}

// UpdateProfileInput lists the profile fields to change. Nil leaves a field as is.
type UpdateProfileInput struct {
	DisplayName *string
	Bio         *string
	Location    *string
	Website     *string
	Avatar      *string
	IsPrivate   *bool
}

// FollowResult reports the follow state after a toggle.
type FollowResult struct {
	Following      bool
	FollowersCount int64
}

// NewUserService creates a UserService. events may be nil.
func NewUserService(users repository.UserRepository, events EventPublisher) *UserService {
	return &UserService{users: users, events: events}
}

// Me returns the caller's account with follower and following summaries.
func (s *UserService) Me(ctx context.Context, userID uint) (*Account, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	followers, err := s.users.ListFollowers(ctx, userID, maxEmbeddedConnections, 0)
	if err != nil {
		return nil, err
	}
	following, err := s.users.ListFollowing(ctx, userID, maxEmbeddedConnections, 0)
	if err != nil {
		return nil, err
	}
	return &Account{
		User:      user.Sanitized(),
		Followers: summaries(followers, nil, 0),
		Following: summaries(following, nil, 0),
	}, nil
}

// UpdateProfile validates and merges the provided fields only.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in UpdateProfileInput) (*models.User, error) {
	var errs validation.Errors
	if in.DisplayName != nil {
		trimmed := strings.TrimSpace(*in.DisplayName)
		in.DisplayName = &trimmed
		errs.Add("displayName", validation.ValidateMaxLength("Display name", trimmed, validation.MaxDisplayNameLength))
	}
	if in.Bio != nil {
		errs.Add("bio", validation.ValidateMaxLength("Bio", *in.Bio, validation.MaxBioLength))
	}
	if in.Location != nil {
		errs.Add("location", validation.ValidateMaxLength("Location", *in.Location, validation.MaxLocationLength))
	}
	if in.Website != nil {
		errs.Add("website", validation.ValidateURL("Website", *in.Website))
	}
	if in.Avatar != nil {
		errs.Add("avatar", validation.ValidateURL("Avatar", *in.Avatar))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	user, err := s.users.UpdateProfile(ctx, userID, repository.ProfileUpdate{
		DisplayName: in.DisplayName,
		Bio:         in.Bio,
		Location:    in.Location,
		Website:     in.Website,
		Avatar:      in.Avatar,
		IsPrivate:   in.IsPrivate,
	})
	if err != nil {
		return nil, err
	}
	return user.Sanitized(), nil
}

// ToggleFollow follows targetUsername if actor does not yet, otherwise
// unfollows. A new follow notifies the target.
func (s *UserService) ToggleFollow(ctx context.Context, actor *models.User, targetUsername string) (*FollowResult, error) {
	target, err := s.users.GetByUsername(ctx, targetUsername)
	if err != nil {
		return nil, err
	}
	if target.ID == actor.ID {
		return nil, models.ErrSelfFollow
	}

	following, followers, err := s.users.ToggleFollow(ctx, actor.ID, target.ID)
	if err != nil {
		return nil, err
	}
	observability.Toggles.WithLabelValues("follow", observability.ToggleAction(following)).Inc()

	if following {
		s.notify(ctx, target.ID, notifications.NewEvent(notifications.EventNewFollower, actor, 0, 0))
	}
	return &FollowResult{Following: following, FollowersCount: followers}, nil
}

// Profile returns username's profile as seen by viewerID (0 for anonymous).
// Private accounts are reduced unless the viewer owns or follows them.
func (s *UserService) Profile(ctx context.Context, viewerID uint, username string) (*ProfileView, error) {
	target, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	rel, err := s.relationship(ctx, viewerID, target)
	if err != nil {
		return nil, err
	}

	if target.IsPrivate && !rel.owner && !rel.follower {
		return &ProfileView{User: target.PrivateView(), IsPrivate: true}, nil
	}

	var user *models.User
	if rel.owner {
		user = target.Sanitized()
	} else {
		user = target.PublicProfile()
		if viewerID != 0 {
			user.IsFollowedByMe = boolPtr(rel.follower)
		}
	}
	return &ProfileView{User: user}, nil
}

// Followers returns one page of who follows username, plus the stored
// follower count of that account.
func (s *UserService) Followers(ctx context.Context, viewerID uint, username string, limit, offset int) ([]models.UserSummary, int64, error) {
	return s.connections(ctx, viewerID, username, limit, offset, s.users.ListFollowers,
		func(stats models.UserStats) int64 { return stats.FollowersCount })
}

// Following returns one page of who username follows, plus the stored
// following count of that account.
func (s *UserService) Following(ctx context.Context, viewerID uint, username string, limit, offset int) ([]models.UserSummary, int64, error) {
	return s.connections(ctx, viewerID, username, limit, offset, s.users.ListFollowing,
		func(stats models.UserStats) int64 { return stats.FollowingCount })
}

type listFn func(ctx context.Context, userID uint, limit, offset int) ([]models.User, error)

func (s *UserService) connections(ctx context.Context, viewerID uint, username string, limit, offset int, list listFn, total func(models.UserStats) int64) ([]models.UserSummary, int64, error) {
	target, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, 0, err
	}
	rel, err := s.relationship(ctx, viewerID, target)
	if err != nil {
		return nil, 0, err
	}
	if target.IsPrivate && !rel.owner && !rel.follower {
		return nil, 0, models.ErrPrivateAccount
	}

	users, err := list(ctx, target.ID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	followed, err := s.users.FollowedAmong(ctx, viewerID, userIDs(users))
	if err != nil {
		return nil, 0, err
	}
	return summaries(users, followed, viewerID), total(target.Stats), nil
}

// Search finds users by username or display name.
func (s *UserService) Search(ctx context.Context, viewerID uint, query string, limit int) ([]*models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	users, err := s.users.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	followed, err := s.users.FollowedAmong(ctx, viewerID, userIDs(users))
	if err != nil {
		return nil, err
	}

	out := make([]*models.User, 0, len(users))
	for i := range users {
		u := users[i].PublicProfile()
		if viewerID != 0 && u.ID != viewerID {
			u.IsFollowedByMe = boolPtr(followed[u.ID])
		}
		out = append(out, u)
	}
	return out, nil
}

type relationship struct {
	owner    bool
	follower bool
}

func (s *UserService) relationship(ctx context.Context, viewerID uint, target *models.User) (relationship, error) {
	return relationshipOf(ctx, s.users, viewerID, target.ID)
}

func relationshipOf(ctx context.Context, users repository.UserRepository, viewerID, targetID uint) (relationship, error) {
	if viewerID == 0 {
		return relationship{}, nil
	}
	if viewerID == targetID {
		return relationship{owner: true}, nil
	}
	following, err := users.IsFollowing(ctx, viewerID, targetID)
	if err != nil {
		return relationship{}, err
	}
	return relationship{follower: following}, nil
}

func (s *UserService) notify(ctx context.Context, userID uint, ev notifications.Event) {
	publish(ctx, s.events, userID, ev)
}

// publish is best effort: a failed notification never fails the request.
func publish(ctx context.Context, events EventPublisher, userID uint, ev notifications.Event) {
	if events == nil {
		return
	}
	if err := events.Notify(ctx, userID, ev); err != nil {
		observability.Logger.WarnContext(ctx, "failed to publish event",
			slog.String("type", ev.Type),
			slog.Uint64("recipient", uint64(userID)),
			slog.String("error", err.Error()),
		)
	}
}

// summaries renders users compactly. When followed is non-nil and the viewer
// is signed in, every entry carries isFollowedByMe, the viewer's own included.
func summaries(users []models.User, followed map[uint]bool, viewerID uint) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		sum := users[i].Summary()
		if followed != nil && viewerID != 0 {
			sum.IsFollowedByMe = boolPtr(followed[sum.ID])
		}
		out = append(out, sum)
	}
	return out
}

func userIDs(users []models.User) []uint {
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func boolPtr(b bool) *bool { return &b }
