package repository

import (
	"context"
	"errors"
	"log/slog"

	"chitchat/internal/cache"
	"chitchat/internal/models"
	"chitchat/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileUpdate carries the whitelisted account fields a user may change.
// Nil pointers leave the column untouched.
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	Location    *string
	Website     *string
	Avatar      *string
	IsPrivate   *bool
}

// UserRepository defines persistence operations for users and the follow graph.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	GetByUsernames(ctx context.Context, usernames []string) ([]models.User, error)
	FindConflict(ctx context.Context, username, email string) (string, error)
	UpdateProfile(ctx context.Context, id uint, update ProfileUpdate) (*models.User, error)
	Search(ctx context.Context, query string, limit int) ([]models.User, error)

	ToggleFollow(ctx context.Context, followerID, followingID uint) (bool, int64, error)
	IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error)
	FollowedAmong(ctx context.Context, followerID uint, candidateIDs []uint) (map[uint]bool, error)
	FollowingIDs(ctx context.Context, userID uint) ([]uint, error)
	ListFollowers(ctx context.Context, userID uint, limit, offset int) ([]models.User, error)
	ListFollowing(ctx context.Context, userID uint, limit, offset int) ([]models.User, error)
}

type userRepository struct {
	db    *gorm.DB
	cache *cache.Store
	log   *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation. store may
// be nil or disabled.
func NewUserRepository(db *gorm.DB, store *cache.Store) UserRepository {
	return &userRepository{db: db, cache: store, log: observability.NewRepoLogger("users")}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			field, lookupErr := r.FindConflict(ctx, user.Username, user.Email)
			if lookupErr != nil || field == "" {
				field = "username"
			}
			return models.NewConflictError(field)
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, slog.Uint64("user_id", uint64(user.ID)))
	return nil
}

// GetByID is served from cache when possible. Cached records never carry the
// password hash; use GetByIdentifier for credential checks.
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	defer observability.TrackQuery("get_by_id", "users")()

	var user models.User
	err := r.cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			return notFoundOr(err, "User", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFound("User not found")
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// GetByIdentifier matches a username exactly or an email case-insensitively.
func (r *userRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("username = ? OR email = LOWER(?)", identifier, identifier).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFound("User not found")
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByUsernames(ctx context.Context, usernames []string) ([]models.User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("username IN ?", usernames).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// FindConflict reports which unique field ("username" or "email") is taken,
// or "" when both are free.
func (r *userRepository) FindConflict(ctx context.Context, username, email string) (string, error) {
	var existing models.User
	err := r.db.WithContext(ctx).
		Select("username", "email").
		Where("username = ? OR email = ?", username, email).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if existing.Username == username {
		return "username", nil
	}
	return "email", nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id uint, update ProfileUpdate) (*models.User, error) {
	changes := map[string]any{}
	if update.DisplayName != nil {
		changes["profile_display_name"] = *update.DisplayName
	}
	if update.Bio != nil {
		changes["profile_bio"] = *update.Bio
	}
	if update.Location != nil {
		changes["profile_location"] = *update.Location
	}
	if update.Website != nil {
		changes["profile_website"] = *update.Website
	}
	if update.Avatar != nil {
		changes["profile_avatar"] = *update.Avatar
	}
	if update.IsPrivate != nil {
		changes["is_private"] = *update.IsPrivate
	}

	if len(changes) > 0 {
		res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(changes)
		if res.Error != nil {
			r.log.LogError(ctx, res.Error, "update")
			return nil, models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, models.NewNotFound("User not found")
		}
		r.cache.InvalidateUsers(ctx, id)
		r.log.LogUpdate(ctx, slog.Uint64("user_id", uint64(id)))
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "User", id)
	}
	return &user, nil
}

// Search matches username or display name case-insensitively, most followed first.
func (r *userRepository) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	defer observability.TrackQuery("search", "users")()

	pattern := containsPattern(query)
	var users []models.User
	err := r.db.WithContext(ctx).
		Where(`LOWER(username) LIKE ? ESCAPE '\' OR LOWER(profile_display_name) LIKE ? ESCAPE '\'`, pattern, pattern).
		Order("stats_followers_count DESC").
		Order("id ASC").
		Limit(clampLimit(limit, 20)).
		Find(&users).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// ToggleFollow adds the edge follower->following when absent and removes it
// when present. Both users' counters are recomputed from the edge table in
// the same transaction, so either both sides change or neither does.
// It returns the new state and the target's follower count.
func (r *userRepository) ToggleFollow(ctx context.Context, followerID, followingID uint) (bool, int64, error) {
	defer observability.TrackQuery("toggle_follow", "follows")()

	var following bool
	var followers int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND following_id = ?", followerID, followingID).
			Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			edge := models.Follow{FollowerID: followerID, FollowingID: followingID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error; err != nil {
				return err
			}
			following = true
		}

		var err error
		if followers, err = refreshFollowerCount(tx, followingID); err != nil {
			return err
		}
		_, err = refreshFollowingCount(tx, followerID)
		return err
	})
	if err != nil {
		r.log.LogError(ctx, err, "toggle_follow")
		return false, 0, models.NewInternalError(err)
	}

	r.cache.InvalidateUsers(ctx, followerID, followingID)
	return following, followers, nil
}

func refreshFollowerCount(tx *gorm.DB, userID uint) (int64, error) {
	var n int64
	if err := tx.Model(&models.Follow{}).Where("following_id = ?", userID).Count(&n).Error; err != nil {
		return 0, err
	}
	err := tx.Model(&models.User{}).Where("id = ?", userID).UpdateColumn("stats_followers_count", n).Error
	return n, err
}

func refreshFollowingCount(tx *gorm.DB, userID uint) (int64, error) {
	var n int64
	if err := tx.Model(&models.Follow{}).Where("follower_id = ?", userID).Count(&n).Error; err != nil {
		return 0, err
	}
	err := tx.Model(&models.User{}).Where("id = ?", userID).UpdateColumn("stats_following_count", n).Error
	return n, err
}

func (r *userRepository) IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&n).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

// FollowedAmong returns which of candidateIDs followerID follows.
func (r *userRepository) FollowedAmong(ctx context.Context, followerID uint, candidateIDs []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(candidateIDs))
	if followerID == 0 || len(candidateIDs) == 0 {
		return out, nil
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND following_id IN ?", followerID, candidateIDs).
		Pluck("following_id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *userRepository) FollowingIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("following_id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *userRepository) ListFollowers(ctx context.Context, userID uint, limit, offset int) ([]models.User, error) {
	return r.listEdges(ctx, "follows.follower_id = users.id AND follows.following_id = ?", userID, limit, offset)
}

func (r *userRepository) ListFollowing(ctx context.Context, userID uint, limit, offset int) ([]models.User, error) {
	return r.listEdges(ctx, "follows.following_id = users.id AND follows.follower_id = ?", userID, limit, offset)
}

func (r *userRepository) listEdges(ctx context.Context, join string, userID uint, limit, offset int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN follows ON "+join, userID).
		Order("follows.created_at DESC").
		Limit(clampLimit(limit, 20)).
		Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}
