package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haku929/Amiro-sub000/internal/domain"
)

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
	upserts  int
	err      error
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.profiles[userID], nil
}

func (f *fakeProfiles) UpsertProfile(_ context.Context, p *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.profiles[p.UserID] = p
	return nil
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserIDFromContext(r.Context())))
	})
}

func TestMiddlewareIssuesCookieAndProfile(t *testing.T) {
	t.Parallel()

	store := &fakeProfiles{profiles: map[string]*domain.Profile{}}
	h := Middleware(store, true)(echoUser())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	userID := rec.Body.String()
	assert.True(t, isValidAnonID(userID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AnonCookieName, cookies[0].Name)
	assert.Equal(t, userID, cookies[0].Value)
	assert.False(t, cookies[0].Secure)

	p := store.profiles[userID]
	require.NotNil(t, p)
	assert.Equal(t, DefaultDisplayName(userID), p.DisplayName)

	// Returning device keeps its id and does not rewrite the profile.
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: userID})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, userID, rec.Body.String())
	assert.Equal(t, 1, store.upserts)
}

func TestMiddlewareReplacesMalformedCookie(t *testing.T) {
	t.Parallel()

	store := &fakeProfiles{profiles: map[string]*domain.Profile{}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "../../etc/passwd"})
	rec := httptest.NewRecorder()
	Middleware(store, false)(echoUser()).ServeHTTP(rec, req)

	assert.NotEqual(t, "../../etc/passwd", rec.Body.String())
	assert.True(t, isValidAnonID(rec.Body.String()))
	assert.True(t, rec.Result().Cookies()[0].Secure)
}

func TestMiddlewareStoreFailure(t *testing.T) {
	t.Parallel()

	store := &fakeProfiles{profiles: map[string]*domain.Profile{}, err: errors.New("db down")}
	rec := httptest.NewRecorder()
	Middleware(store, true)(echoUser()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to initialize anonymous user"}`, rec.Body.String())
}

func TestRequireUser(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	RequireUser(echoUser()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUserID(req.Context(), "anon_x"))
	rec = httptest.NewRecorder()
	RequireUser(echoUser()).ServeHTTP(rec, req)
	assert.Equal(t, "anon_x", rec.Body.String())
}
