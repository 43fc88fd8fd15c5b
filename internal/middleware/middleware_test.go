package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chitchat/internal/featureflags"
	"chitchat/internal/models"
	"chitchat/internal/observability"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) }

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := fiber.New()
	app.Post("/login", NewRateLimiter(rdb, "production").Limit("login", 2, time.Minute), ok)

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
	assert.Equal(t, 1, len(mr.Keys()))
	assert.True(t, mr.TTL(mr.Keys()[0]) > 0)
}

func TestRateLimit_DisabledOutsideProduction(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	for _, env := range []string{"", "development", "test"} {
		app := fiber.New()
		app.Get("/", NewRateLimiter(rdb, env).Limit("root", 1, time.Minute), ok)
		for i := 0; i < 3; i++ {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode, env)
		}
	}
	assert.Empty(t, mr.Keys())
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	app := fiber.New()
	app.Get("/", NewRateLimiter(rdb, "production").Limit("root", 1, time.Minute), ok)
	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestRequireFlag(t *testing.T) {
	app := fiber.New()
	flags := featureflags.NewManager("post_editing=on,media_uploads=off")
	app.Get("/edit", RequireFlag(flags, featureflags.PostEditing), ok)
	app.Get("/upload", RequireFlag(flags, featureflags.MediaUploads), ok)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/edit", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/upload", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, models.CodeNotFound, decodeBody(t, resp)["code"])
}

func TestStructuredLogger_IncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := observability.Logger
	observability.Logger = observability.NewLogger("production", &buf)
	t.Cleanup(func() { observability.Logger = prev })

	app := fiber.New()
	app.Use(requestid.New(), ContextMiddleware(), StructuredLogger())
	app.Get("/missing", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-123"`)
	assert.Contains(t, out, `"status":404`)
	assert.Contains(t, out, `"level":"WARN"`)
}

func TestTracingMiddleware_PassesThrough(t *testing.T) {
	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/", ok)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
