package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-backend/internal/platform/apierr"
	"rental-backend/internal/platform/clock"
)

type fakeStore struct {
	mu   sync.Mutex
	accs map[string]Account
}

func newFakeStore() *fakeStore { return &fakeStore{accs: map[string]Account{}} }

func (f *fakeStore) GetByID(_ context.Context, id string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accs[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeStore) Create(_ context.Context, a *Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accs[a.ID]; ok {
		return apierr.Conflict("id already exists")
	}
	f.accs[a.ID] = *a
	return nil
}

var testSecret = []byte("test-secret")

func newTestService() (*Service, *fakeStore) {
	st := newFakeStore()
	return NewServiceWith(st, testSecret, time.Hour, clock.Real{}, nil), st
}

func TestRegisterAndLogin(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "alice", "password123", ""))
	assert.Equal(t, RoleUser, st.accs["alice"].Role)
	assert.NotEqual(t, "password123", st.accs["alice"].PasswordHash)

	err := svc.Register(ctx, "alice", "password123", "")
	assert.True(t, apierr.Is(err, apierr.CodeConflict))

	token, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return testSecret, nil })
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, RoleUser, claims["role"])

	_, err = svc.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrAuthFailed)
	_, err = svc.Login(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	assert.True(t, apierr.Is(svc.Register(ctx, " ", "password123", ""), apierr.CodeInvalidArgument))
	assert.True(t, apierr.Is(svc.Register(ctx, "bob", "short", ""), apierr.CodeInvalidArgument))
	assert.True(t, apierr.Is(svc.Register(ctx, "bob", "password123", "root"), apierr.CodeInvalidArgument))
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "admin", "admin-password"))
	require.NoError(t, svc.EnsureAdmin(ctx, "admin", "admin-password"))
	assert.Equal(t, RoleAdmin, st.accs["admin"].Role)
}

func newRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, testSecret, svc)
	r.POST("/protected", RequireAuth(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(CtxUserIDKey)})
	})
	return r
}

func do(r http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r http.Handler, id, pw string) string {
	t.Helper()
	w := do(r, http.MethodPost, "/login", `{"id":"`+id+`","password":"`+pw+`"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Token
}

func TestMiddleware(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	require.NoError(t, svc.EnsureAdmin(ctx, "admin", "admin-password"))
	require.NoError(t, svc.Register(ctx, "staff", "staff-password", RoleUser))
	r := newRouter(svc)

	t.Run("missing header", func(t *testing.T) {
		w := do(r, http.MethodPost, "/protected", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"UNAUTHORIZED"`)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := do(r, http.MethodPost, "/protected", "", "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		old := NewServiceWith(newFakeStore(), testSecret, time.Minute,
			clock.NewFixed(time.Now().Add(-time.Hour)), nil)
		require.NoError(t, old.Register(ctx, "x", "password123", ""))
		tok, err := old.Login(ctx, "x", "password123")
		require.NoError(t, err)
		w := do(r, http.MethodPost, "/protected", "", tok)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		w := do(r, http.MethodPost, "/protected", "", login(t, r, "staff", "staff-password"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"staff"`)
	})

	t.Run("users requires admin", func(t *testing.T) {
		body := `{"id":"new","password":"new-password"}`
		w := do(r, http.MethodPost, "/users", body, login(t, r, "staff", "staff-password"))
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = do(r, http.MethodPost, "/users", body, login(t, r, "admin", "admin-password"))
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("bad credentials", func(t *testing.T) {
		w := do(r, http.MethodPost, "/login", `{"id":"staff","password":"nope"}`, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
