package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"chitchat/internal/cache"
	"chitchat/internal/database"
	"chitchat/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "hash",
		Profile:  models.Profile{DisplayName: username},
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func requireCode(t *testing.T, err error, code string) *models.AppError {
	t.Helper()
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}

func TestUserRepository_CreateConflict(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db, nil)
	ctx := context.Background()

	alice := &models.User{Username: "alice", Email: "alice@x.com", Password: "h"}
	require.NoError(t, repo.Create(ctx, alice))
	assert.NotZero(t, alice.ID)

	err := repo.Create(ctx, &models.User{Username: "alice", Email: "other@x.com", Password: "h"})
	appErr := requireCode(t, err, models.CodeConflict)
	assert.Equal(t, "username", appErr.Field)
	assert.Equal(t, "User with this username already exists", appErr.Message)

	err = repo.Create(ctx, &models.User{Username: "alice2", Email: "alice@x.com", Password: "h"})
	appErr = requireCode(t, err, models.CodeConflict)
	assert.Equal(t, "email", appErr.Field)
}

func TestUserRepository_Lookups(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db, nil)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	createUser(t, db, "bob")

	t.Run("by identifier username", func(t *testing.T) {
		u, err := repo.GetByIdentifier(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, u.ID)
		assert.Equal(t, "hash", u.Password)
	})

	t.Run("by identifier email ignores case", func(t *testing.T) {
		u, err := repo.GetByIdentifier(ctx, "ALICE@example.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, u.ID)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := repo.GetByIdentifier(ctx, "nobody")
		requireCode(t, err, models.CodeNotFound)
	})

	t.Run("by usernames skips unknown", func(t *testing.T) {
		users, err := repo.GetByUsernames(ctx, []string{"alice", "bob", "ghost"})
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})

	t.Run("find conflict", func(t *testing.T) {
		field, err := repo.FindConflict(ctx, "carol", "carol@example.com")
		require.NoError(t, err)
		assert.Empty(t, field)

		field, err = repo.FindConflict(ctx, "carol", "bob@example.com")
		require.NoError(t, err)
		assert.Equal(t, "email", field)
	})

	t.Run("by id not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 999)
		requireCode(t, err, models.CodeNotFound)
	})
}

func TestUserRepository_UpdateProfileMergesOnlyGivenFields(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db, nil)
	ctx := context.Background()
	alice := createUser(t, db, "alice")

	bio := "hello there"
	private := true
	updated, err := repo.UpdateProfile(ctx, alice.ID, ProfileUpdate{Bio: &bio, IsPrivate: &private})
	require.NoError(t, err)
	assert.Equal(t, "hello there", updated.Profile.Bio)
	assert.Equal(t, "alice", updated.Profile.DisplayName)
	assert.True(t, updated.IsPrivate)

	_, err = repo.UpdateProfile(ctx, 999, ProfileUpdate{Bio: &bio})
	requireCode(t, err, models.CodeNotFound)
}

func TestUserRepository_ToggleFollowIsSymmetric(t *testing.T) {
	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := NewUserRepository(db, cache.NewStore(rdb))
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	// Prime the cache so the toggle has something to invalidate.
	cached, err := repo.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, cached.Stats.FollowersCount)
	assert.True(t, mr.Exists(cache.UserKey(bob.ID)))

	following, followers, err := repo.ToggleFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, following)
	assert.Equal(t, int64(1), followers)
	assert.False(t, mr.Exists(cache.UserKey(bob.ID)))

	freshBob, err := repo.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), freshBob.Stats.FollowersCount)
	freshAlice, err := repo.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), freshAlice.Stats.FollowingCount)

	ok, err := repo.IsFollowing(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	bobFollowers, err := repo.ListFollowers(ctx, bob.ID, 20, 0)
	require.NoError(t, err)
	require.Len(t, bobFollowers, 1)
	assert.Equal(t, alice.ID, bobFollowers[0].ID)

	aliceFollowing, err := repo.ListFollowing(ctx, alice.ID, 20, 0)
	require.NoError(t, err)
	require.Len(t, aliceFollowing, 1)
	assert.Equal(t, bob.ID, aliceFollowing[0].ID)

	ids, err := repo.FollowingIDs(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{bob.ID}, ids)

	set, err := repo.FollowedAmong(ctx, alice.ID, []uint{bob.ID, 42})
	require.NoError(t, err)
	assert.True(t, set[bob.ID])
	assert.False(t, set[42])

	following, followers, err = repo.ToggleFollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, following)
	assert.Zero(t, followers)

	bobFollowers, err = repo.ListFollowers(ctx, bob.ID, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, bobFollowers)
	aliceFollowing, err = repo.ListFollowing(ctx, alice.ID, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, aliceFollowing)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, alice.ID).Error)
	assert.Zero(t, reloaded.Stats.FollowingCount)
}

func TestUserRepository_SearchRanksByFollowers(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db, nil)
	ctx := context.Background()

	quiet := createUser(t, db, "alice_quiet")
	popular := createUser(t, db, "alice_popular")
	fan := createUser(t, db, "fan")
	createUser(t, db, "bob")
	_, _, err := repo.ToggleFollow(ctx, fan.ID, popular.ID)
	require.NoError(t, err)

	users, err := repo.Search(ctx, "ALICE", 10)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, popular.ID, users[0].ID)
	assert.Equal(t, quiet.ID, users[1].ID)

	users, err = repo.Search(ctx, "_", 10)
	require.NoError(t, err)
	assert.Len(t, users, 2, "underscore is matched literally")
}

func TestUserRepository_GetByID_DatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1`)).
		WithArgs(1, 1).
		WillReturnError(errors.New("connection timeout"))

	user, err := repo.GetByID(context.Background(), 1)
	assert.Nil(t, user)
	requireCode(t, err, models.CodeInternal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ToggleFollowRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "follows"`)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	following, _, err := repo.ToggleFollow(context.Background(), 1, 2)
	assert.False(t, following)
	requireCode(t, err, models.CodeInternal)
	assert.NoError(t, mock.ExpectationsWereMet())
}
