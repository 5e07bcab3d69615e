package player

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"soundwaves/logger"

	"github.com/gorilla/websocket"
)

// MessageType WebSocket 消息类型
type MessageType string

const (
	MsgTypeState  MessageType = "state"  // 状态快照（服务端 -> 客户端）
	MsgTypeAction MessageType = "action" // 播放控制（客户端 -> 服务端）
	MsgTypeError  MessageType = "error"
	MsgTypePing   MessageType = "ping"
	MsgTypePong   MessageType = "pong"
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

const (
	sendBufferSize = 32
	readLimit      = 64 * 1024 // 整个队列可能随 queue-set 一起发过来
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// Client WebSocket 客户端
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

// NewClient 创建客户端，注册前不会收到消息
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{Hub: hub, Conn: conn, Send: make(chan []byte, sendBufferSize)}
}

// Hub 把播放器状态快照广播给所有订阅者
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	// 最近一次快照，新连接注册后立即收到
	last []byte

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastAll(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub，可重复调用
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Publish 实现 Publisher；缓冲区满时丢弃并记录日志
func (h *Hub) Publish(state State) {
	data, err := json.Marshal(&WSMessage{
		Type:      MsgTypeState,
		Data:      mustRaw(state),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		logger.Error("[PlayerHub] 序列化状态失败", logger.ErrorField(err))
		return
	}

	h.mu.Lock()
	h.last = data
	h.mu.Unlock()

	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		logger.Warn("[PlayerHub] 广播队列已满，丢弃快照")
	}
}

func mustRaw(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if h.last != nil {
		select {
		case client.Send <- h.last:
		default:
		}
	}
	logger.Info("[PlayerHub] client registered", logger.Int("clients", len(h.clients)))
}

// removeClient 需要持有锁
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	logger.Info("[PlayerHub] client unregistered", logger.Int("clients", len(h.clients)))
}

func (h *Hub) broadcastAll(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.Send <- msg:
		default:
			// 发送缓冲区满，移除客户端
			h.removeClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]bool)
}

// ========== Client 方法 ==========

// ReadPump 读取客户端的播放控制消息，交给 player 执行
func (c *Client) ReadPump(ctx context.Context, p *Player) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(readLimit)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("[PlayerHub] websocket read error", logger.ErrorField(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}

		switch msg.Type {
		case MsgTypePing:
			c.send(&WSMessage{Type: MsgTypePong})
		case MsgTypeAction:
			var cmd Command
			if err := json.Unmarshal(msg.Data, &cmd); err != nil {
				c.sendError("invalid action payload")
				continue
			}
			// 成功的变更通过 Hub 广播，这里只回报错误
			if _, err := p.Dispatch(cmd); err != nil {
				c.sendError(err.Error())
			}
		default:
			c.sendError("unsupported message type: " + string(msg.Type))
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(text string) {
	c.send(&WSMessage{Type: MsgTypeError, Error: text})
}

// send 缓冲区满时丢弃
func (c *Client) send(msg *WSMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	// 注销后 Send 已被关闭，持锁判断
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if !c.Hub.clients[c] {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}
