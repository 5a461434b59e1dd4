package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/listener"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// the feed is registered with the player's listener registry
var _ listener.Listener = (*EventFeed)(nil)

func dialFeed(t *testing.T, feed *EventFeed) *websocket.Conn {
	t.Helper()
	h := NewHandler(&fakePlayer{}, nil, feed, hclog.NewNullLogger())
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/player/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return feed.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestEventFeed_ForwardsEvents(t *testing.T) {
	feed := NewEventFeed(5, hclog.NewNullLogger())
	defer feed.Close()
	conn := dialFeed(t, feed)

	feed.StateChanged(&types.StateEvent{PlayChanged: true, Play: true})
	feed.SourceNameChanged(2, "camera 2")

	msg := readMessage(t, conn)
	assert.Equal(t, "state_changed", msg.Type)
	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["play"])

	msg = readMessage(t, conn)
	assert.Equal(t, "source_name", msg.Type)
	data, ok = msg.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), data["index"])
	assert.Equal(t, "camera 2", data["name"])
}

func TestEventFeed_ThrottlesFrames(t *testing.T) {
	// one token and no refill: only the first frame gets through
	feed := NewEventFeed(1, hclog.NewNullLogger())
	defer feed.Close()
	conn := dialFeed(t, feed)

	feed.FrameDisplayed(&types.FrameInfo{Position: 1})
	feed.FrameDisplayed(&types.FrameInfo{Position: 2})
	feed.EndOfSource(&types.FrameInfo{Position: 3})

	msg := readMessage(t, conn)
	assert.Equal(t, "frame_displayed", msg.Type)
	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["position"])

	msg = readMessage(t, conn)
	assert.Equal(t, "end_of_source", msg.Type)
}

func TestEventFeed_FramesDisabled(t *testing.T) {
	feed := NewEventFeed(0, hclog.NewNullLogger())
	defer feed.Close()
	conn := dialFeed(t, feed)

	feed.FrameDisplayed(&types.FrameInfo{Position: 1})
	feed.PlayerClosed()

	msg := readMessage(t, conn)
	assert.Equal(t, "player_closed", msg.Type)
}

func TestEventFeed_CloseDisconnects(t *testing.T) {
	feed := NewEventFeed(1, hclog.NewNullLogger())
	conn := dialFeed(t, feed)

	feed.Close()
	assert.Equal(t, 0, feed.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// events after close go nowhere
	feed.CloseRequested()
}
