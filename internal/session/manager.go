// Package session keeps one submission controller per browser.
package session

import (
	"container/list"
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/livetemplate/karigar/internal/controller"
)

// CookieName is the cookie that carries the session ID.
const CookieName = "karigar_session"

// Factory builds the controller for a new session.
type Factory func() *controller.Controller

// entry tracks a session's controller and its position in the LRU list.
type entry struct {
	id         string
	controller *controller.Controller
	lastSeen   time.Time
}

// Manager maps session IDs to controllers with idle expiry and LRU eviction.
type Manager struct {
	factory     Factory
	ttl         time.Duration
	maxSessions int

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = most recent, back = oldest

	now func() time.Time
}

// NewManager creates a manager. Call Run to start idle cleanup.
func NewManager(factory Factory, ttl time.Duration, maxSessions int) *Manager {
	if maxSessions <= 0 {
		maxSessions = 1000
	}
	return &Manager{
		factory:     factory,
		ttl:         ttl,
		maxSessions: maxSessions,
		items:       make(map[string]*list.Element),
		order:       list.New(),
		now:         time.Now,
	}
}

// Run starts the cleanup goroutine; it exits when ctx is cancelled.
// The returned channel is closed when the goroutine exits.
func (m *Manager) Run(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					log.Printf("[Session] Expired %d idle session(s)", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// Sweep removes sessions idle longer than the TTL and returns how many were
// removed. A session with an open subscriber (a connected page) is never idle;
// its lastSeen is refreshed instead.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for e := m.order.Back(); e != nil; {
		ent := e.Value.(*entry)
		prev := e.Prev()
		switch {
		case ent.controller.Subscribed():
			ent.lastSeen = now
			m.order.MoveToFront(e)
		case now.Sub(ent.lastSeen) > m.ttl:
			m.removeLocked(e)
			removed++
		}
		e = prev
	}
	return removed
}

func (m *Manager) removeLocked(e *list.Element) {
	ent := e.Value.(*entry)
	m.order.Remove(e)
	delete(m.items, ent.id)
	_ = ent.controller.Close()
}

// Get returns the controller for id, or nil when the session is unknown.
func (m *Manager) Get(id string) *controller.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[id]
	if !ok {
		return nil
	}
	m.order.MoveToFront(elem)
	ent := elem.Value.(*entry)
	ent.lastSeen = m.now()
	return ent.controller
}

// Create starts a new session and returns its ID and controller.
func (m *Manager) Create() (string, *controller.Controller) {
	id := uuid.NewString()
	ctrl := m.factory()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.order.Len() >= m.maxSessions {
		if back := m.order.Back(); back != nil {
			log.Printf("[Session] At capacity (%d), evicting least recent session", m.maxSessions)
			m.removeLocked(back)
		}
	}
	elem := m.order.PushFront(&entry{id: id, controller: ctrl, lastSeen: m.now()})
	m.items[id] = elem
	return id, ctrl
}

// Ensure returns the request's session controller, creating a session and
// setting the cookie when the request has none or an unknown one.
func (m *Manager) Ensure(w http.ResponseWriter, r *http.Request) (string, *controller.Controller) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if ctrl := m.Get(cookie.Value); ctrl != nil {
			return cookie.Value, ctrl
		}
	}

	id, ctrl := m.Create()
	http.SetCookie(w, Cookie(id))
	return id, ctrl
}

// Cookie builds the session cookie for id.
func Cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Lookup returns the request's session controller without creating one.
func (m *Manager) Lookup(r *http.Request) *controller.Controller {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	return m.Get(cookie.Value)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Close drops every session, cancelling in-flight requests.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for e := m.order.Back(); e != nil; {
		prev := e.Prev()
		m.removeLocked(e)
		e = prev
	}
}
