//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package broadcast

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/semgraph/log"
)

const (
	// DefaultPath is the WebSocket route.
	DefaultPath = "/ws"

	// shutdownDrain is how long the server waits after fanning out the
	// shutdown message before closing sockets.
	shutdownDrain = 300 * time.Millisecond

	defaultPoolSize = 64
)

// ServerOption configures the server.
type ServerOption func(*Server)

// WithPoolSize sets the size of the send worker pool.
func WithPoolSize(size int) ServerOption {
	return func(s *Server) {
		s.poolSize = size
	}
}

// WithPath overrides the WebSocket route.
func WithPath(path string) ServerOption {
	return func(s *Server) {
		s.path = path
	}
}

// client is one connected socket. Writes are serialized per client.
type client struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
	subMu   sync.RWMutex
	sub     *Subscription
}

func (c *client) send(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *client) subscription() *Subscription {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.sub
}

func (c *client) setSubscription(sub *Subscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.sub = sub
}

// Server fans updates out to subscribed clients.
type Server struct {
	upgrader websocket.Upgrader
	pool     *ants.Pool
	path     string
	poolSize int

	mu      sync.RWMutex
	clients map[string]*client

	httpServer *http.Server
}

// NewServer creates a broadcast server with its send worker pool.
func NewServer(opts ...ServerOption) (*Server, error) {
	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		path:     DefaultPath,
		poolSize: defaultPoolSize,
		clients:  make(map[string]*client),
	}
	for _, opt := range opts {
		opt(s)
	}
	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		return nil, err
	}
	s.pool = pool
	return s, nil
}

// Handler returns the HTTP handler serving the WebSocket route.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(s.path, s.handleSocket)
	return r
}

// Start begins serving on addr. It does not block; use Shutdown to stop.
func (s *Server) Start(addr string) {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("broadcast: server stopped: %v", err)
		}
	}()
	log.Infof("broadcast: listening on %s%s", addr, s.path)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("broadcast: upgrade failed: %v", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	if err := c.send(&Message{Type: TypeConnected, ClientID: c.id, Timestamp: time.Now().UTC()}); err != nil {
		s.drop(c)
		return
	}
	go s.readLoop(c)
}

// readLoop processes one client's inbound messages until the socket fails.
func (s *Server) readLoop(c *client) {
	defer s.drop(c)
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("broadcast: client %s read failed: %v", c.id, err)
			}
			return
		}
		if msg.isUpdate() {
			s.Broadcast(&msg, c.id)
			continue
		}
		switch msg.Type {
		case TypeSubscribe:
			sub := &Subscription{WorkspaceID: msg.WorkspaceID, SystemID: msg.SystemID, UserID: msg.UserID}
			c.setSubscription(sub)
			if err := c.send(&Message{Type: TypeSubscribed, Subscription: sub, Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		case TypeUnsubscribe:
			c.setSubscription(nil)
		case TypePing:
			if err := c.send(&Message{Type: TypePong, Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		default:
			log.Debugf("broadcast: ignoring message type %q from %s", msg.Type, c.id)
		}
	}
}

// Broadcast fans an update out to every client whose subscription matches the
// update's workspace and system, skipping only the originating socket. Other
// sessions of the same user are notified so multiple terminals stay coherent.
func (s *Server) Broadcast(msg *Message, originClientID string) {
	target := Subscription{WorkspaceID: msg.WorkspaceID, SystemID: msg.SystemID}
	msg.Timestamp = time.Now().UTC()

	s.mu.RLock()
	recipients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.id == originClientID {
			continue
		}
		sub := c.subscription()
		if sub == nil || !sub.Matches(target) {
			continue
		}
		recipients = append(recipients, c)
	}
	s.mu.RUnlock()

	for _, c := range recipients {
		recipient := c
		if err := s.pool.Submit(func() { s.deliver(recipient, msg) }); err != nil {
			// Pool exhausted or released; deliver inline rather than lose it.
			s.deliver(recipient, msg)
		}
	}
}

// deliver sends one message; a failing client is logged and dropped while the
// broadcast continues.
func (s *Server) deliver(c *client, msg *Message) {
	if err := c.send(msg); err != nil {
		log.Warnf("broadcast: dropping client %s: %v", c.id, err)
		s.drop(c)
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, present := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()
	if present {
		_ = c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown fans the shutdown message out to every client regardless of
// subscription, waits for the drain interval, then closes every socket and
// the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	all := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		all = append(all, c)
	}
	s.mu.RUnlock()

	shutdown := &Message{Type: TypeShutdown, Timestamp: time.Now().UTC()}
	for _, c := range all {
		if err := c.send(shutdown); err != nil {
			log.Debugf("broadcast: shutdown notify %s failed: %v", c.id, err)
		}
	}

	select {
	case <-time.After(shutdownDrain):
	case <-ctx.Done():
	}

	for _, c := range all {
		s.drop(c)
	}
	s.pool.Release()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
