package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/presence"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func (c *fakeConn) Deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.frames = append(c.frames, data)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) messages(t *testing.T) []WSMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]WSMessage, len(c.frames))
	for i, f := range c.frames {
		require.NoError(t, json.Unmarshal(f, &out[i]))
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func lastOfType(msgs []WSMessage, event EventType) (WSMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == event {
			return msgs[i], true
		}
	}
	return WSMessage{}, false
}

func TestHub_ConnectBroadcastsOnlineUsers(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(presence.NewMemoryRegistry())
	alice, bob := &fakeConn{}, &fakeConn{}

	require.NoError(t, hub.Connect(ctx, "alice", alice))
	require.NoError(t, hub.Connect(ctx, "bob", bob))

	msg, ok := lastOfType(alice.messages(t), EventOnlineUsers)
	require.True(t, ok)
	assert.Equal(t, []interface{}{"alice", "bob"}, msg.Payload)

	hub.Disconnect(ctx, "bob", bob)

	msg, ok = lastOfType(alice.messages(t), EventOnlineUsers)
	require.True(t, ok)
	assert.Equal(t, []interface{}{"alice"}, msg.Payload)
}

func TestHub_PushToIdentity(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(presence.NewMemoryRegistry())
	bob := &fakeConn{}
	require.NoError(t, hub.Connect(ctx, "bob", bob))

	assert.True(t, hub.PushToIdentity(ctx, "bob", EventMessageDeleted, "m1"))
	assert.False(t, hub.PushToIdentity(ctx, "carol", EventMessageDeleted, "m1"), "offline identity")

	msg, ok := lastOfType(bob.messages(t), EventMessageDeleted)
	require.True(t, ok)
	assert.Equal(t, "m1", msg.Payload)
	assert.False(t, msg.Timestamp.IsZero())

	bob.mu.Lock()
	bob.full = true
	bob.mu.Unlock()
	assert.False(t, hub.PushToIdentity(ctx, "bob", EventMessageDeleted, "m2"), "full buffer drops")
}

func TestHub_ReconnectClosesPreviousHandle(t *testing.T) {
	ctx := context.Background()
	registry := presence.NewMemoryRegistry()
	hub := NewHub(registry)
	first, second := &fakeConn{}, &fakeConn{}

	require.NoError(t, hub.Connect(ctx, "alice", first))
	require.NoError(t, hub.Connect(ctx, "alice", second))
	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())

	// The old handle's disconnect arrives late and must not evict the new one
	hub.Disconnect(ctx, "alice", first)
	got, ok := registry.Lookup(ctx, "alice")
	require.True(t, ok)
	assert.Same(t, second, got)

	assert.True(t, hub.PushToIdentity(ctx, "alice", EventNewMessage, map[string]string{"_id": "m1"}))
	_, ok = lastOfType(second.messages(t), EventNewMessage)
	assert.True(t, ok)
}

func TestHub_BroadcastAll(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(presence.NewMemoryRegistry())
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.Connect(ctx, "a", a)
	hub.Connect(ctx, "b", b)
	hub.Connect(ctx, "c", c)

	c.mu.Lock()
	c.full = true
	c.mu.Unlock()

	assert.Equal(t, 2, hub.BroadcastAll(ctx, EventOnlineUsers, []string{"a", "b", "c"}))

	online, err := hub.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, online)
}
