// Package websocket 提供主体事件链的实时推送
// 客户端按主体订阅,新事件提交后即刻收到推送
package websocket

import (
	"encoding/json"
	"sync"

	"github.com/HSPiira/timeline-sub000/internal/model"
)

// EventMessage 推送给客户端的事件消息
type EventMessage struct {
	Type  string            `json:"type"` // event
	Event *model.EventModel `json:"event"`
}

// Hub 管理所有 WebSocket 连接
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	// 待广播的事件
	events chan *model.EventModel

	// 互斥锁，保护 clients map
	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		events:     make(chan *model.EventModel, 256),
	}
}

// Run 运行 Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()

		case event := <-h.events:
			h.dispatch(event)
		}
	}
}

// BroadcastEvent 把已提交事件推给订阅者
// 队列满时丢弃,实时流是尽力而为,账本才是事实来源
func (h *Hub) BroadcastEvent(event *model.EventModel) {
	select {
	case h.events <- event:
	default:
	}
}

// dispatch 把事件分发给订阅了对应主体的客户端
func (h *Hub) dispatch(event *model.EventModel) {
	message, err := json.Marshal(EventMessage{Type: "event", Event: event})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.TenantID != event.TenantID || client.SubjectID != event.SubjectID {
			continue
		}
		select {
		case client.Send <- message:
		default:
			// 慢消费者直接断开,避免拖垮分发循环
			delete(h.clients, client)
			close(client.Send)
		}
	}
}

// HasClient 检查客户端是否存在
func (h *Hub) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.ID == clientID {
			return true
		}
	}
	return false
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
