// Package live pushes track events to the WebSocket connections of their owner.
package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"RapLab/core/metrics"
	"RapLab/logger"
	"RapLab/model"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// controlMessage 客户端发来的控制消息，目前只处理 ping
type controlMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Client WebSocket 客户端
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID int64

	closed bool // Send 已关闭，受 Hub.mu 保护
}

// NewClient creates a client bound to hub. conn may be nil in tests.
func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		UserID: userID,
	}
}

// delivery 一次投递：发给某个用户的全部连接
type delivery struct {
	userID  int64
	payload []byte
}

// Hub 按用户聚合 WebSocket 连接
type Hub struct {
	// 用户 -> 连接集合（同一用户可多端在线）
	users map[int64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		users:      make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
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

		case d := <-h.deliver:
			h.deliverToUser(d)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.users[client.UserID] == nil {
		h.users[client.UserID] = make(map[*Client]bool)
	}
	h.users[client.UserID][client] = true
	metrics.LiveConnections.Inc()

	logger.Debug("[Live] client registered",
		logger.UserID(client.UserID),
		logger.Int("connections", len(h.users[client.UserID])))
}

// removeClient 需要持有写锁
func (h *Hub) removeClient(client *Client) {
	clients, ok := h.users[client.UserID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	client.closed = true
	close(client.Send)
	metrics.LiveConnections.Dec()
	if len(clients) == 0 {
		delete(h.users, client.UserID)
	}

	logger.Debug("[Live] client unregistered", logger.UserID(client.UserID))
}

func (h *Hub) deliverToUser(d delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.users[d.userID] {
		select {
		case client.Send <- d.payload:
		default:
			// 发送缓冲区满，断开慢客户端
			h.removeClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.users {
		for client := range clients {
			client.closed = true
			close(client.Send)
			metrics.LiveConnections.Dec()
		}
	}
	h.users = make(map[int64]map[*Client]bool)
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		h.mu.Lock()
		if !client.closed {
			client.closed = true
			close(client.Send)
		}
		h.mu.Unlock()
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Deliver queues a raw payload for every connection of userID.
func (h *Hub) Deliver(userID int64, payload []byte) {
	select {
	case h.deliver <- delivery{userID: userID, payload: payload}:
	case <-h.done:
	}
}

// Publish encodes the event and delivers it to its owner on this instance.
func (h *Hub) Publish(_ context.Context, event *model.TrackEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.Deliver(event.UserID, data)
	return nil
}

// ConnectionCount 返回用户当前的连接数
func (h *Hub) ConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// ========== Client 方法 ==========

// ReadPump 读取消息循环；订阅是单向的，只响应心跳
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("[Live] websocket read error",
					logger.ErrorField(err),
					logger.UserID(c.UserID))
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "ping" {
			continue
		}
		pong, _ := json.Marshal(controlMessage{Type: "pong", Timestamp: time.Now().UnixMilli()})
		c.trySend(pong)
	}
}

// trySend 缓冲区满或连接已注销时丢弃
func (c *Client) trySend(data []byte) bool {
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// WritePump 写入消息循环，每条事件单独成帧
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
