package websocket

import (
	"context"
	"encoding/json"
	"time"

	"chatsync/internal/logger"
	"chatsync/internal/metrics"
	"chatsync/internal/presence"
)

// Hub delivers pushed events to live connections looked up through the
// presence registry. Delivery is best-effort: offline identities and full
// buffers drop the event, and the caller learns about it from the result.
type Hub struct {
	registry presence.Registry
	now      func() time.Time
}

// NewHub creates a hub on top of a presence registry
func NewHub(registry presence.Registry) *Hub {
	return &Hub{
		registry: registry,
		now:      time.Now,
	}
}

// Connect registers conn as the live connection for identity. A previous
// connection for the same identity is closed (last connect wins).
func (h *Hub) Connect(ctx context.Context, identity string, conn presence.Conn) error {
	prev, err := h.registry.Register(ctx, identity, conn)
	if prev != nil {
		prev.Close()
	} else {
		metrics.OnlineConnections.Inc()
	}

	l := logger.Ctx(ctx)
	if err != nil {
		l.Error().Err(err).Str(logger.FieldUserID, identity).Msg("presence register failed")
	}
	l.Info().Str(logger.FieldUserID, identity).Bool("replaced", prev != nil).Msg("client connected")

	h.broadcastOnline(ctx)
	return err
}

// Disconnect removes conn if it is still the live connection for identity.
// Calling it for a handle that was already replaced is a no-op.
func (h *Hub) Disconnect(ctx context.Context, identity string, conn presence.Conn) {
	removed, err := h.registry.Unregister(ctx, identity, conn)
	l := logger.Ctx(ctx)
	if err != nil {
		l.Error().Err(err).Str(logger.FieldUserID, identity).Msg("presence unregister failed")
	}
	if !removed {
		return
	}

	metrics.OnlineConnections.Dec()
	l.Info().Str(logger.FieldUserID, identity).Msg("client disconnected")
	h.broadcastOnline(ctx)
}

func (h *Hub) broadcastOnline(ctx context.Context) {
	online, err := h.registry.ListOnline(ctx)
	if err != nil {
		l := logger.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list online users")
		return
	}
	h.BroadcastAll(ctx, EventOnlineUsers, online)
}

func (h *Hub) encode(event EventType, payload interface{}) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      event,
		Payload:   payload,
		Timestamp: h.now(),
	})
}

// PushToIdentity sends an event to the live connection of identity. It
// returns false when the identity is offline or the event was dropped.
func (h *Hub) PushToIdentity(ctx context.Context, identity string, event EventType, payload interface{}) bool {
	l := logger.Ctx(ctx)

	conn, ok := h.registry.Lookup(ctx, identity)
	if !ok {
		metrics.PushEvents.WithLabelValues(string(event), "offline").Inc()
		l.Debug().Str(logger.FieldUserID, identity).Str(logger.FieldEvent, string(event)).Msg("push skipped, identity offline")
		return false
	}

	data, err := h.encode(event, payload)
	if err != nil {
		metrics.PushEvents.WithLabelValues(string(event), "dropped").Inc()
		l.Error().Err(err).Str(logger.FieldEvent, string(event)).Msg("failed to marshal event")
		return false
	}

	if !conn.Deliver(data) {
		metrics.PushEvents.WithLabelValues(string(event), "dropped").Inc()
		l.Warn().Str(logger.FieldUserID, identity).Str(logger.FieldEvent, string(event)).Msg("push dropped, send buffer full")
		return false
	}

	metrics.PushEvents.WithLabelValues(string(event), "delivered").Inc()
	return true
}

// BroadcastAll sends an event to every live connection on this instance
// and returns the number of deliveries.
func (h *Hub) BroadcastAll(ctx context.Context, event EventType, payload interface{}) int {
	online, err := h.registry.ListOnline(ctx)
	if err != nil {
		l := logger.Ctx(ctx)
		l.Error().Err(err).Str(logger.FieldEvent, string(event)).Msg("broadcast aborted")
		return 0
	}

	data, err := h.encode(event, payload)
	if err != nil {
		l := logger.Ctx(ctx)
		l.Error().Err(err).Str(logger.FieldEvent, string(event)).Msg("failed to marshal event")
		return 0
	}

	delivered := 0
	for _, identity := range online {
		conn, ok := h.registry.Lookup(ctx, identity)
		if !ok {
			continue
		}
		if conn.Deliver(data) {
			delivered++
		} else {
			metrics.PushEvents.WithLabelValues(string(event), "dropped").Inc()
		}
	}
	metrics.PushEvents.WithLabelValues(string(event), "delivered").Add(float64(delivered))
	return delivered
}

// OnlineUsers returns the identities currently online
func (h *Hub) OnlineUsers(ctx context.Context) ([]string, error) {
	return h.registry.ListOnline(ctx)
}
