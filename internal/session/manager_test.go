package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/karigar/internal/controller"
	"github.com/livetemplate/karigar/internal/generate"
)

type nopGenerator struct{}

func (nopGenerator) Generate(ctx context.Context, p *generate.Payload) (*generate.Result, error) {
	return &generate.Result{}, nil
}

func newTestManager(ttl time.Duration, max int) *Manager {
	return NewManager(func() *controller.Controller {
		return controller.New(nopGenerator{}, nil)
	}, ttl, max)
}

func TestEnsureCreatesSessionAndCookie(t *testing.T) {
	m := newTestManager(time.Minute, 10)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	id, ctrl := m.Ensure(w, r)

	require.NotNil(t, ctrl)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, m.Len())

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, id, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestEnsureReusesKnownSession(t *testing.T) {
	m := newTestManager(time.Minute, 10)
	id, ctrl := m.Create()

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: id})

	gotID, gotCtrl := m.Ensure(w, r)
	assert.Equal(t, id, gotID)
	assert.Same(t, ctrl, gotCtrl)
	assert.Empty(t, w.Result().Cookies(), "no new cookie for a known session")
}

func TestEnsureReplacesUnknownSession(t *testing.T) {
	m := newTestManager(time.Minute, 10)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "stale-id"})

	id, _ := m.Ensure(w, r)
	assert.NotEqual(t, "stale-id", id)
	assert.Equal(t, 1, m.Len())
}

func TestLookup(t *testing.T) {
	m := newTestManager(time.Minute, 10)
	assert.Nil(t, m.Lookup(httptest.NewRequest("GET", "/", nil)))

	id, ctrl := m.Create()
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: id})
	assert.Same(t, ctrl, m.Lookup(r))
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	m := newTestManager(10*time.Minute, 10)
	now := time.Now()
	m.now = func() time.Time { return now }

	oldID, _ := m.Create()
	now = now.Add(8 * time.Minute)
	freshID, _ := m.Create()
	now = now.Add(5 * time.Minute)

	assert.Equal(t, 1, m.Sweep())
	assert.Nil(t, m.Get(oldID))
	assert.NotNil(t, m.Get(freshID))
}

func TestSweepKeepsSubscribedSessions(t *testing.T) {
	m := newTestManager(10*time.Minute, 10)
	now := time.Now()
	m.now = func() time.Time { return now }

	watchedID, watched := m.Create()
	unsubscribe := watched.Subscribe(func(controller.View) {})
	idleID, _ := m.Create()
	now = now.Add(11 * time.Minute)

	assert.Equal(t, 1, m.Sweep())
	assert.Nil(t, m.Get(idleID))
	require.NotNil(t, m.Get(watchedID))

	// Once the page disconnects, the session expires a full TTL later.
	unsubscribe()
	now = now.Add(9 * time.Minute)
	assert.Equal(t, 0, m.Sweep())
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.Nil(t, m.Get(watchedID))
}

func TestRemovedSessionClosesController(t *testing.T) {
	m := newTestManager(time.Hour, 1)

	_, first := m.Create()
	m.Create()

	select {
	case <-first.Done():
	default:
		t.Fatal("evicted controller should be closed")
	}
}

func TestCapacityEvictsLeastRecent(t *testing.T) {
	m := newTestManager(time.Hour, 2)

	first, _ := m.Create()
	second, _ := m.Create()
	// Touch first so second becomes the least recent.
	require.NotNil(t, m.Get(first))

	third, _ := m.Create()
	assert.Equal(t, 2, m.Len())
	assert.NotNil(t, m.Get(first))
	assert.Nil(t, m.Get(second))
	assert.NotNil(t, m.Get(third))
}

func TestRunStopsOnCancel(t *testing.T) {
	m := newTestManager(time.Minute, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := m.Run(ctx, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup goroutine did not stop")
	}
}

func TestClose(t *testing.T) {
	m := newTestManager(time.Minute, 10)
	m.Create()
	m.Create()
	m.Close()
	assert.Equal(t, 0, m.Len())
}
