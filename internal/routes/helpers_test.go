package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chatsync/internal/handlers"
	"chatsync/internal/media"
	"chatsync/internal/models"
	"chatsync/internal/presence"
	"chatsync/internal/service"
	"chatsync/internal/store"
	"chatsync/internal/utils"
	"chatsync/internal/websocket"
)

type testEnv struct {
	app      *fiber.App
	store    *store.MemoryStore
	registry *presence.MemoryRegistry
	hub      *websocket.Hub
}

type envOptions struct {
	authRateLimit int
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	registry := presence.NewMemoryRegistry()
	hub := websocket.NewHub(registry)
	uploader := media.NewLocalUploader(t.TempDir())
	tokens := utils.NewTokenManager("test-secret", time.Hour)
	svc := service.NewMessageService(st, st.Users(), hub, uploader)

	app := NewApp(Deps{
		Handler: handlers.New(handlers.Options{
			Messages: svc,
			Users:    st.Users(),
			Tokens:   tokens,
			Uploader: uploader,
			Hub:      hub,
		}),
		Tokens:        tokens,
		Users:         st.Users(),
		Logger:        zerolog.Nop(),
		CORSOrigins:   "http://localhost:5173",
		AuthRateLimit: opts.authRateLimit,
	})

	return &testEnv{app: app, store: st, registry: registry, hub: hub}
}

// do sends a JSON request and returns the response and its body.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == utils.CookieName {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", utils.CookieName)
	return nil
}

// signup creates a user and returns it with its session cookie.
func (e *testEnv) signup(t *testing.T, name, email string) (models.User, *http.Cookie) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": name,
		"email":    email,
		"password": "secret123",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var user models.User
	require.NoError(t, json.Unmarshal(body, &user))
	return user, sessionCookie(t, resp)
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	return decode[map[string]string](t, body)["message"]
}
