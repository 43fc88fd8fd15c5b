package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chitchat/internal/database"
	"chitchat/internal/models"
	"chitchat/internal/notifications"
	"chitchat/internal/repository"
	"chitchat/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []sentEvent
}

type sentEvent struct {
	to uint
	ev notifications.Event
}

func (p *recordingPublisher) Notify(_ context.Context, userID uint, ev notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sentEvent{to: userID, ev: ev})
	return nil
}

func (p *recordingPublisher) types(to uint) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.to == to {
			out = append(out, e.ev.Type)
		}
	}
	return out
}

type revokerStub struct {
	jti       string
	expiresAt time.Time
	err       error
}

func (r *revokerStub) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	r.jti, r.expiresAt = jti, expiresAt
	return r.err
}

type fixture struct {
	users  repository.UserRepository
	posts  repository.PostRepository
	tokens *token.Service
	events *recordingPublisher
	auth   *AuthService
	user   *UserService
	post   *PostService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	f := &fixture{
		users:  repository.NewUserRepository(db, nil),
		posts:  repository.NewPostRepository(db, nil),
		events: &recordingPublisher{},
		tokens: token.NewService(token.Options{
			Secret:   "test-secret-that-is-long-enough-123",
			TTL:      time.Hour,
			Issuer:   "chitchat-api",
			Audience: "chitchat-users",
		}),
	}
	f.auth = NewAuthService(f.users, f.tokens, nil, bcrypt.MinCost)
	f.user = NewUserService(f.users, f.events)
	f.post = NewPostService(f.posts, f.users, f.events)
	return f
}

func (f *fixture) register(t *testing.T, username string) *models.User {
	t.Helper()
	u, _, err := f.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@x.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	return u
}

func assertCode(t *testing.T, err error, code string) *models.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}
