// Package client mirrors the server state locally, applies edits optimistically and keeps edits made while
// disconnected in a persisted queue that is replayed when the connection comes back.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/astromechza/syncity/pkg/localstore"
	"github.com/astromechza/syncity/pkg/protocol"
)

type Options struct {
	// URL is the websocket endpoint, for example ws://localhost:3000/ws.
	URL     string
	Storage localstore.Storage
	// Output receives the rendered state after every change.
	Output io.Writer

	// ReconnectInitial and ReconnectMax bound the exponential backoff between connection attempts.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	Dialer *websocket.Dialer
	Now    func() time.Time
	Logger *slog.Logger
}

type Client struct {
	url     string
	mirror  *Mirror
	queue   *Queue
	dialer  *websocket.Dialer
	backoff *backoff.ExponentialBackOff
	now     func() time.Time
	logger  *slog.Logger

	// mu guards conn and online and serializes writes to conn.
	mu     sync.Mutex
	conn   *websocket.Conn
	online bool
}

const writeWait = 10 * time.Second

func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("url is required")
	}
	if opts.Storage == nil {
		opts.Storage = localstore.NewMemory()
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = 3 * time.Second
	}
	if opts.ReconnectMax < opts.ReconnectInitial {
		opts.ReconnectMax = opts.ReconnectInitial * 20
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("client", uuid.NewString())

	queue, err := NewQueue(opts.Storage, logger)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.ReconnectInitial
	b.MaxInterval = opts.ReconnectMax
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	return &Client{
		url:     opts.URL,
		mirror:  NewMirror(opts.Output, logger),
		queue:   queue,
		dialer:  opts.Dialer,
		backoff: b,
		now:     opts.Now,
		logger:  logger,
		online:  true,
	}, nil
}

// Run keeps a connection to the server open until ctx is cancelled, reconnecting after each failure.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.connectAndSync(ctx); err != nil {
			c.logger.Error("disconnected from server", "err", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := c.backoff.NextBackOff()
		c.logger.Info("reconnecting", "in", wait)
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

func (c *Client) connectAndSync(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()
	c.backoff.Reset()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.mu.Lock()
	c.conn = conn
	c.logger.Info("connected to server", "url", c.url)
	c.flushLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	for {
		f, err := protocol.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				c.logger.Warn("error parsing message", "err", err)
				continue
			}
			return err
		}
		c.mirror.Apply(f)
	}
}

// Edit applies payload to the local state and sends it to the server. While offline or disconnected, or while older
// edits are still queued, the edit is queued instead so the server sees edits in the order they were made.
func (c *Client) Edit(payload map[string]interface{}) protocol.Frame {
	f := c.mirror.Edit(payload, c.now().UnixMilli())

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.online || c.conn == nil || c.queue.Len() > 0 {
		c.enqueueLocked(f)
		if c.online && c.conn != nil {
			c.flushLocked()
		}
		return f
	}
	if err := c.writeLocked(f); err != nil {
		c.logger.Error("failed to send update", "err", err)
		c.enqueueLocked(f)
		_ = c.conn.Close()
	}
	return f
}

// SetOnline records whether the host has network connectivity. Coming back online flushes the queue if the
// connection is open.
func (c *Client) SetOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
	c.logger.Info("connectivity changed", "online", online)
	if online && c.conn != nil {
		c.flushLocked()
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) State() map[string]interface{} {
	return c.mirror.State()
}

// Render writes the current state to the output again.
func (c *Client) Render() {
	c.mirror.Render()
}

func (c *Client) Pending() int {
	return c.queue.Len()
}

func (c *Client) enqueueLocked(f protocol.Frame) {
	c.logger.Info("queuing update", "timestamp", f.Timestamp, "online", c.online, "connected", c.conn != nil)
	if err := c.queue.Push(f); err != nil {
		c.logger.Error("failed to persist offline queue", "err", err)
	}
}

func (c *Client) flushLocked() {
	if !c.online || c.conn == nil || c.queue.Len() == 0 {
		return
	}
	c.logger.Info("flushing offline updates", "items", c.queue.Len())
	sent, err := c.queue.Flush(c.writeLocked)
	if err != nil {
		c.logger.Error("failed to flush offline updates", "sent", sent, "remaining", c.queue.Len(), "err", err)
		_ = c.conn.Close()
	}
}

func (c *Client) writeLocked(f protocol.Frame) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return protocol.WriteFrame(c.conn, f)
}
