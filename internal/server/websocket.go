package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livetemplate/karigar/internal/config"
	"github.com/livetemplate/karigar/internal/controller"
	"github.com/livetemplate/karigar/internal/session"
)

// writeWait bounds a single websocket write.
const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || sameHost(origin, r.Host)
	},
}

// MessageEnvelope is the frame exchanged over /ws.
type MessageEnvelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

const (
	actionView   = "view"
	actionReload = "reload"
	actionReset  = "reset"
	actionError  = "error"
	actionTree   = "tree"
)

// wsConn serializes writes to one websocket connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(action string, data any) error {
	env := MessageEnvelope{Action: action}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		env.Data = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}

// sendRaw writes an envelope whose data is already encoded.
func (c *wsConn) sendRaw(action string, data json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(MessageEnvelope{Action: action, Data: data})
}

// handleWebSocket pushes every view change of the session to the browser,
// along with a livetemplate tree for the status fragment. When the session
// is removed the socket is closed, so the page reconnects to a live one.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.Lookup(r)
	var header http.Header
	if ctrl == nil {
		var id string
		id, ctrl = s.sessions.Create()
		header = http.Header{}
		header.Add("Set-Cookie", session.Cookie(id).String())
	}

	status, err := newStatusRenderer(s.statusPath)
	if err != nil {
		log.Printf("[WS] %v", err)
		http.Error(w, "Failed to prepare status", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}
	c := &wsConn{conn: conn}
	s.RegisterConnection(c)
	defer func() {
		s.UnregisterConnection(conn)
		conn.Close()
	}()

	// push keeps view and tree in order for this connection.
	var pushMu sync.Mutex
	push := func(v controller.View) error {
		pushMu.Lock()
		defer pushMu.Unlock()
		if err := c.send(actionView, v); err != nil {
			return err
		}
		tree, err := status.Tree(v)
		if err != nil {
			log.Printf("[WS] Failed to render status: %v", err)
			return nil
		}
		return c.sendRaw(actionTree, tree)
	}

	unsubscribe := ctrl.Subscribe(func(v controller.View) {
		if err := push(v); err != nil && config.IsDebug() {
			log.Printf("[WS] Failed to push view: %v", err)
		}
	})
	defer unsubscribe()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctrl.Done():
			if config.IsDebug() {
				log.Printf("[WS] Session closed, disconnecting")
			}
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session expired")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			conn.Close()
		case <-stop:
		}
	}()

	if err := push(ctrl.View()); err != nil {
		log.Printf("[WS] Failed to send initial view: %v", err)
		return
	}

	actions := &sessionActions{ctrl: ctrl, conn: c}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error: %v", err)
			}
			return
		}

		var env MessageEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.send(actionError, map[string]string{"error": "invalid message"})
			continue
		}
		var fields map[string]interface{}
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &fields); err != nil {
				c.send(actionError, map[string]string{"error": "invalid message data"})
				continue
			}
		}

		if err := dispatchAction(r.Context(), actions, env.Action, fields); err != nil {
			c.send(actionError, map[string]string{"error": err.Error()})
		}
	}
}

// RegisterConnection adds a websocket connection to the tracked connections.
func (s *Server) RegisterConnection(c *wsConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.connections[c.conn] = c
	if config.IsDebug() {
		log.Printf("[WS] Connection registered: %d active connections", len(s.connections))
	}
}

// UnregisterConnection removes a websocket connection from the tracked connections.
func (s *Server) UnregisterConnection(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.connections, conn)
	if config.IsDebug() {
		log.Printf("[WS] Connection unregistered: %d active connections", len(s.connections))
	}
}

// BroadcastReload tells every connected page to reload itself.
func (s *Server) BroadcastReload(filePath string) {
	s.connMu.RLock()
	conns := make([]*wsConn, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.connMu.RUnlock()

	if len(conns) == 0 {
		return
	}
	log.Printf("[WS] Broadcasting reload for %s to %d connections", filePath, len(conns))
	for _, c := range conns {
		if err := c.send(actionReload, nil); err != nil {
			log.Printf("[WS] Failed to send reload: %v", err)
		}
	}
}

// ConnectionCount returns the number of open websocket connections.
func (s *Server) ConnectionCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.connections)
}
