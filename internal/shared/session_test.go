package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "console_session", "session-secret", time.Hour, false), mr
}

// roundTrip commits sess and returns a request carrying the issued cookie.
func roundTrip(t *testing.T, sm *SessionManager, sess *Session) (*http.Request, *http.Cookie) {
	t.Helper()
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rr, sess))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	req := httptest.NewRequest(http.MethodGet, "/console/session", nil)
	req.AddCookie(cookies[0])
	return req, cookies[0]
}

func TestSessionSignInPersists(t *testing.T) {
	sm, mr := newManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	_, ok := sess.Admin()
	assert.False(t, ok)

	sess.SignIn(AdminUser{ID: "adm-1", FirstName: "Ada", LastName: "Obi"}, "tok")
	sess.AddFlash(FlashMessage{Kind: "success", Message: "Vendor approved"})
	req, cookie := roundTrip(t, sm, sess)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.True(t, strings.HasPrefix(cookie.Value, sess.ID+"."))
	assert.True(t, mr.Exists("console:session:"+sess.ID))
	assert.Equal(t, time.Hour, mr.TTL("console:session:"+sess.ID))

	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	admin, ok := loaded.Admin()
	require.True(t, ok)
	assert.Equal(t, "Ada Obi", admin.FullName())
	assert.Equal(t, "tok", loaded.Token())
	assert.Equal(t, []FlashMessage{{Kind: "success", Message: "Vendor approved"}}, loaded.PopFlashes())
	assert.Nil(t, loaded.PopFlashes())
}

func TestSessionRejectsForgedCookie(t *testing.T) {
	sm, _ := newManager(t)
	ctx := context.Background()
	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SignIn(AdminUser{ID: "adm-1"}, "tok")
	_, _ = roundTrip(t, sm, sess)

	for _, value := range []string{sess.ID, sess.ID + ".bogus", "." + sess.ID} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "console_session", Value: value})
		loaded, err := sm.Load(ctx, req)
		require.NoError(t, err)
		assert.NotEqual(t, sess.ID, loaded.ID, value)
		_, ok := loaded.Admin()
		assert.False(t, ok)
	}
}

func TestSessionExpiredStartsFresh(t *testing.T) {
	sm, mr := newManager(t)
	ctx := context.Background()
	sess, _ := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	sess.SignIn(AdminUser{ID: "adm-1"}, "tok")
	req, _ := roundTrip(t, sm, sess)

	mr.FastForward(2 * time.Hour)
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, loaded.ID)
	assert.Empty(t, loaded.Token())
}

func TestSessionDestroy(t *testing.T) {
	sm, mr := newManager(t)
	ctx := context.Background()
	sess, _ := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	sess.SignIn(AdminUser{ID: "adm-1"}, "tok")
	_, _ = roundTrip(t, sm, sess)

	sm.Destroy(sess)
	assert.True(t, sess.Destroyed())
	assert.Empty(t, sess.Token())
	_, ok := sess.Admin()
	assert.False(t, ok)

	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, sess))
	assert.False(t, mr.Exists("console:session:"+sess.ID))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestFlashesAreCapped(t *testing.T) {
	sess := &Session{}
	for i := 0; i < maxFlashes+5; i++ {
		sess.AddFlash(FlashMessage{Kind: "success", Message: string(rune('a' + i%26))})
	}
	flashes := sess.PopFlashes()
	assert.Len(t, flashes, maxFlashes)
	assert.Equal(t, string(rune('a'+5%26)), flashes[0].Message)
}

func TestCSRFTokenLifecycle(t *testing.T) {
	m := NewCSRFManager("csrf-secret")
	ctx := context.Background()
	sess := &Session{ID: "s1"}

	token, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	req := httptest.NewRequest(http.MethodPost, "/console/vendors/reset", nil)
	assert.ErrorIs(t, m.VerifyRequest(req, sess), ErrCSRFTokenMissing)
	req.Header.Set(CSRFHeader, "nope")
	assert.ErrorIs(t, m.VerifyRequest(req, sess), ErrCSRFTokenMismatch)
	req.Header.Set(CSRFHeader, token)
	assert.NoError(t, m.VerifyRequest(req, sess))

	assert.ErrorIs(t, m.VerifyToken(ctx, &Session{ID: "s2"}, token), ErrCSRFTokenMissing)
	_, err = m.EnsureToken(ctx, nil)
	assert.ErrorIs(t, err, ErrCSRFTokenMissing)
}

func TestPageTotalPages(t *testing.T) {
	page := Page[int]{TotalCount: 47, PageNumber: 5, PageSize: 10}
	assert.Equal(t, 5, page.TotalPages())
	assert.Equal(t, Pagination{Page: 5, PerPage: 10, Total: 47, TotalPages: 5}, page.Pagination())
	assert.Equal(t, 0, Page[int]{PageSize: 10}.TotalPages())
}
