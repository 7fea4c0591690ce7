package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hardwire/internal/hardwire"
	"hardwire/internal/progress"
)

const (
	feedClientBuffer = 256
	feedWriteTimeout = 10 * time.Second
)

// LiveFeed fans progress events out to websocket clients. A client that
// cannot keep up misses events rather than slowing the feed down.
type LiveFeed struct {
	upgrader websocket.Upgrader
	logger   hardwire.Logger

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	send    chan hardwire.ProgressEvent
	skipped uint64
}

// NewLiveFeed creates an empty feed.
func NewLiveFeed(logger hardwire.Logger) *LiveFeed {
	return &LiveFeed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// Run forwards events from sub to all clients until ctx is done or the
// subscription is closed. Connected clients are disconnected on return.
func (f *LiveFeed) Run(ctx context.Context, sub *progress.Subscription) error {
	defer f.closeAll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if n := sub.TakeDropped(); n > 0 {
				f.logger.Warn("live feed lagging behind the event bus", "skipped", n)
			}
			f.broadcast(ev)
		}
	}
}

func (f *LiveFeed) broadcast(ev hardwire.ProgressEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- ev:
		default:
			c.skipped++
		}
	}
}

// Clients returns the number of connected clients.
func (f *LiveFeed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// ServeHTTP upgrades the request and streams events as JSON text frames.
func (f *LiveFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &feedClient{send: make(chan hardwire.ProgressEvent, feedClientBuffer)}
	f.register(c)
	defer f.unregister(c)

	// The read loop only notices the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-c.send:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(time.Second))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (f *LiveFeed) register(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[c] = struct{}{}
}

func (f *LiveFeed) unregister(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; !ok {
		return
	}
	delete(f.clients, c)
	close(c.send)
	if c.skipped > 0 {
		f.logger.Debug("live feed client skipped events", "skipped", c.skipped)
	}
}

func (f *LiveFeed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		delete(f.clients, c)
		close(c.send)
	}
}
