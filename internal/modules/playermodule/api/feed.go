package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
	"github.com/mantonx/reelplay/internal/utils"
)

const (
	clientQueueSize = 64
	writeWait       = 10 * time.Second
)

// Message is one event sent to feed clients
type Message struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventFeed forwards listener events to websocket clients. Every callback
// returns without waiting on a client: messages for a client whose queue
// is full are dropped. Frame displayed events are thinned by a rate
// limiter.
type EventFeed struct {
	logger   hclog.Logger
	upgrader websocket.Upgrader
	frames   *utils.RateLimiter

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	closed  bool

	dropped atomic.Int64
}

// NewEventFeed creates a feed passing at most framesPerSecond frame events;
// zero drops them all.
func NewEventFeed(framesPerSecond int, logger hclog.Logger) *EventFeed {
	f := &EventFeed{
		logger: logger.Named("feed"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // read-only feed
			},
		},
		clients: make(map[*feedClient]struct{}),
	}
	if framesPerSecond > 0 {
		f.frames = utils.NewRateLimiter(framesPerSecond, time.Second)
	}
	return f
}

// Start begins refilling the frame event allowance.
func (f *EventFeed) Start() {
	if f.frames != nil {
		f.frames.Start()
	}
}

// Close disconnects every client.
func (f *EventFeed) Close() {
	f.mu.Lock()
	f.closed = true
	for c := range f.clients {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()

	if f.frames != nil {
		f.frames.Stop()
	}
}

// Clients returns the number of connected clients.
func (f *EventFeed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Dropped returns the number of messages not queued for a slow client.
func (f *EventFeed) Dropped() int64 {
	return f.dropped.Load()
}

// HandleWebSocket upgrades the request and streams events until the client
// goes away.
func (f *EventFeed) HandleWebSocket(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &feedClient{conn: conn, send: make(chan []byte, clientQueueSize)}
	if !f.add(client) {
		conn.Close()
		return
	}
	f.logger.Debug("feed client connected", "remote", conn.RemoteAddr().String())

	go f.writeLoop(client)

	// clients only send keep-alives
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	f.remove(client)
	conn.Close()
	f.logger.Debug("feed client disconnected", "remote", conn.RemoteAddr().String())
}

func (f *EventFeed) add(c *feedClient) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.clients[c] = struct{}{}
	return true
}

func (f *EventFeed) remove(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
}

func (f *EventFeed) writeLoop(c *feedClient) {
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.conn.Close()
}

func (f *EventFeed) broadcast(msgType string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, Timestamp: time.Now().UnixMilli(), Data: data})
	if err != nil {
		f.logger.Warn("failed to encode event", "type", msgType, "error", err)
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for c := range f.clients {
		select {
		case c.send <- payload:
		default:
			f.dropped.Add(1)
		}
	}
}

func (f *EventFeed) FrameDisplayed(info *types.FrameInfo) {
	if f.frames == nil || !f.frames.TryWait() {
		return
	}
	f.broadcast("frame_displayed", info)
}

func (f *EventFeed) FrameDropped(last *types.FrameInfo) {
	f.broadcast("frame_dropped", last)
}

func (f *EventFeed) StateChanged(event *types.StateEvent) {
	f.broadcast("state_changed", event)
}

func (f *EventFeed) StartOfSource(info *types.FrameInfo) {
	f.broadcast("start_of_source", info)
}

func (f *EventFeed) EndOfSource(info *types.FrameInfo) {
	f.broadcast("end_of_source", info)
}

func (f *EventFeed) PlayerClosed() {
	f.broadcast("player_closed", nil)
}

func (f *EventFeed) CloseRequested() {
	f.broadcast("close_requested", nil)
}

func (f *EventFeed) KeyPressed(key, modifier int) {
	f.broadcast("key_pressed", gin.H{"key": key, "modifier": modifier})
}

func (f *EventFeed) KeyReleased(key, modifier int) {
	f.broadcast("key_released", gin.H{"key": key, "modifier": modifier})
}

func (f *EventFeed) ProgressBarPositionSet(percent float64) {
	f.broadcast("progress_bar_position", gin.H{"percent": percent})
}

func (f *EventFeed) MouseClicked(imageWidth, imageHeight, x, y int) {
	f.broadcast("mouse_clicked", gin.H{"image_width": imageWidth, "image_height": imageHeight, "x": x, "y": y})
}

func (f *EventFeed) SourceNameChanged(index int, name string) {
	f.broadcast("source_name", gin.H{"index": index, "name": name})
}
