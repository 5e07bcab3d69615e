package player

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newHubServer(t *testing.T) (*Hub, *Player, string) {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	p := New(WithPublisher(hub))
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		hub.Register(client)
		go client.WritePump()
		client.ReadPump(context.Background(), p)
	}))
	t.Cleanup(srv.Close)
	return hub, p, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(WSMessage) bool) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func TestHubBroadcastsActionResult(t *testing.T) {
	_, _, url := newHubServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	action := map[string]interface{}{
		"type": MsgTypeAction,
		"data": Command{Action: ActionPlayPlaylist, Songs: songs("a", "b")},
	}
	if err := conn.WriteJSON(action); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readUntil(t, conn, func(m WSMessage) bool { return m.Type == MsgTypeState })
	var state State
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !state.IsPlaying || len(state.Queue) != 2 || state.CurrentSong.ID != "a" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestHubSendsLastSnapshotOnConnect(t *testing.T) {
	hub, p, url := newHubServer(t)
	p.SetVolume(12)

	// 等待广播进入 last
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		ready := hub.last != nil
		hub.mu.RUnlock()
		if ready {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msg := readUntil(t, conn, func(m WSMessage) bool { return m.Type == MsgTypeState })
	var state State
	json.Unmarshal(msg.Data, &state)
	if state.Volume != 12 {
		t.Fatalf("expected last snapshot with volume 12, got %d", state.Volume)
	}
}

func TestHubReportsBadActions(t *testing.T) {
	_, _, url := newHubServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(map[string]interface{}{"type": MsgTypeAction, "data": Command{Action: ActionNext}})
	msg := readUntil(t, conn, func(m WSMessage) bool { return m.Type == MsgTypeError })
	if !strings.Contains(msg.Error, "queue is empty") {
		t.Fatalf("unexpected error text: %q", msg.Error)
	}

	conn.WriteJSON(map[string]interface{}{"type": MsgTypePing})
	readUntil(t, conn, func(m WSMessage) bool { return m.Type == MsgTypePong })
}
