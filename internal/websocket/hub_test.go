package websocket_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSPiira/timeline-sub000/internal/model"
	"github.com/HSPiira/timeline-sub000/internal/websocket"
)

// newSubscriber 注册一个订阅指定主体的客户端
func newSubscriber(t *testing.T, hub *websocket.Hub, id, tenantID, subjectID string) *websocket.Client {
	t.Helper()
	client := websocket.NewClient(id, "user-1", tenantID, subjectID, hub, nil)
	hub.Register <- client
	require.Eventually(t, func() bool {
		return hub.HasClient(id)
	}, time.Second, 5*time.Millisecond)
	return client
}

func newChainEvent(tenantID, subjectID string) *model.EventModel {
	return &model.EventModel{
		ID:        "evt-1",
		TenantID:  tenantID,
		SubjectID: subjectID,
		EventType: "visit.recorded",
		Hash:      "abc123",
	}
}

// TestHub_DispatchToSubjectSubscribers 只推给订阅了对应主体的连接
func TestHub_DispatchToSubjectSubscribers(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()

	matched := newSubscriber(t, hub, "c1", "tenant-a", "subj-1")
	otherSubject := newSubscriber(t, hub, "c2", "tenant-a", "subj-2")
	otherTenant := newSubscriber(t, hub, "c3", "tenant-b", "subj-1")
	assert.Equal(t, 3, hub.GetClientCount())

	hub.BroadcastEvent(newChainEvent("tenant-a", "subj-1"))

	select {
	case raw := <-matched.Send:
		var msg websocket.EventMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "event", msg.Type)
		assert.Equal(t, "subj-1", msg.Event.SubjectID)
		assert.Equal(t, "abc123", msg.Event.Hash)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	// 其他主体和租户的连接不应收到消息
	select {
	case <-otherSubject.Send:
		t.Fatal("subscriber of another subject received event")
	case <-otherTenant.Send:
		t.Fatal("subscriber of another tenant received event")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestHub_Unregister 注销后不再计数也不再接收
func TestHub_Unregister(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()

	client := newSubscriber(t, hub, "c1", "tenant-a", "subj-1")
	hub.Unregister <- client
	require.Eventually(t, func() bool {
		return !hub.HasClient("c1")
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, hub.GetClientCount())

	// 注销时 Hub 会关闭 Send channel
	_, open := <-client.Send
	assert.False(t, open)
}

// TestHub_SlowConsumerDropped 发送缓冲占满的连接被直接断开
func TestHub_SlowConsumerDropped(t *testing.T) {
	hub := websocket.NewHub()
	go hub.Run()

	slow := newSubscriber(t, hub, "c1", "tenant-a", "subj-1")
	// 填满发送缓冲,模拟不消费的客户端
	for i := 0; i < cap(slow.Send); i++ {
		slow.Send <- []byte("x")
	}

	hub.BroadcastEvent(newChainEvent("tenant-a", "subj-1"))
	require.Eventually(t, func() bool {
		return !hub.HasClient("c1")
	}, time.Second, 5*time.Millisecond)
}
