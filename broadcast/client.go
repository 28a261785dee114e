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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trpc.group/trpc-go/semgraph/log"
)

const (
	// maxReconnectAttempts bounds the reconnect loop after a dropped socket.
	maxReconnectAttempts = 5

	defaultReconnectBase = time.Second
	handshakeTimeout     = 10 * time.Second
)

// Handler receives graph and chat updates delivered to the client.
type Handler func(*Message)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithReconnectBase sets the reconnect backoff base. The delay before attempt
// n is base times n.
func WithReconnectBase(base time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectBase = base
	}
}

// WithHandler registers the update handler.
func WithHandler(handler Handler) ClientOption {
	return func(c *Client) {
		c.handler = handler
	}
}

// Client connects a session to the broadcast server and keeps the
// subscription alive across reconnects. Delivery across a disconnect is not
// guaranteed; after a reconnect the owning session must reload from the
// authoritative store to re-converge.
type Client struct {
	url           string
	sub           Subscription
	handler       Handler
	reconnectBase time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	clientID string
	closed   bool
}

// NewClient creates a broadcast client for one subscription.
func NewClient(url string, sub Subscription, opts ...ClientOption) *Client {
	c := &Client{url: url, sub: sub, reconnectBase: defaultReconnectBase}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the server, completes the connected/subscribe handshake, and
// starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.readLoop()
	return nil
}

// dial establishes the socket and performs the handshake: wait for the
// server's connected message, then subscribe.
func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial broadcast server: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var connected Message
	if err := conn.ReadJSON(&connected); err != nil {
		_ = conn.Close()
		return fmt.Errorf("await connected: %w", err)
	}
	if connected.Type != TypeConnected {
		_ = conn.Close()
		return fmt.Errorf("unexpected handshake message: %q", connected.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	subscribe := &Message{
		Type:        TypeSubscribe,
		WorkspaceID: c.sub.WorkspaceID,
		SystemID:    c.sub.SystemID,
		UserID:      c.sub.UserID,
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		_ = conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.clientID = connected.ClientID
	c.mu.Unlock()
	return nil
}

// readLoop dispatches incoming updates and reconnects on failure.
func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn, closed := c.conn, c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			return
		}

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if c.isClosed() {
				return
			}
			log.Warnf("broadcast: connection lost: %v", err)
			if !c.reconnect() {
				return
			}
			continue
		}

		if msg.isUpdate() {
			if c.handler != nil {
				c.handler(&msg)
			}
			continue
		}
		switch msg.Type {
		case TypeShutdown:
			log.Infof("broadcast: server shutting down")
			_ = c.Close()
			return
		case TypePing:
			_ = c.Send(&Message{Type: TypePong})
		}
	}
}

// reconnect retries the dial with a growing delay, re-subscribing on
// success. It gives up after maxReconnectAttempts.
func (c *Client) reconnect() bool {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		if c.isClosed() {
			return false
		}
		time.Sleep(c.reconnectBase * time.Duration(attempt))
		if err := c.dial(context.Background()); err != nil {
			log.Warnf("broadcast: reconnect attempt %d/%d failed: %v", attempt, maxReconnectAttempts, err)
			continue
		}
		log.Infof("broadcast: reconnected on attempt %d", attempt)
		return true
	}
	log.Errorf("broadcast: giving up after %d reconnect attempts", maxReconnectAttempts)
	return false
}

// Send publishes a message over the socket.
func (c *Client) Send(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return errors.New("broadcast client is closed")
	}
	return c.conn.WriteJSON(msg)
}

// Publish sends an update for the client's subscription.
func (c *Client) Publish(msgType, diff string, source *Source) error {
	return c.Send(&Message{
		Type:        msgType,
		WorkspaceID: c.sub.WorkspaceID,
		SystemID:    c.sub.SystemID,
		Diff:        diff,
		Source:      source,
		Timestamp:   time.Now().UTC(),
	})
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears the connection down and stops the reconnect loop.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
