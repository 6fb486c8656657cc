// Package hmr defines the hot-update channel contract observed by
// DevEnvironment: a narrow on/send/close subscription surface, a required
// no-op fallback, and two concrete transports (websocket, Redis pub/sub).
// The container never defines the wire format; it only depends on Channel.
package hmr

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"loomdev/logx"
)

// Payload is the envelope every hmr event carries: an event name plus an
// arbitrary, transport-serializable body (e.g. {path, message} for
// hmr-invalidate).
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Channel is the hot-update channel contract: subscribe to named events,
// broadcast a payload, and shut down.
type Channel interface {
	On(event string, handler func(Payload))
	Send(payload Payload)
	Close() error
}

// NoopChannel is the disabled-HMR fallback: every operation silently
// succeeds and no handler is ever invoked.
type NoopChannel struct{}

func (NoopChannel) On(string, func(Payload)) {}
func (NoopChannel) Send(Payload)             {}
func (NoopChannel) Close() error             { return nil }

// handlerSet is the shared event-dispatch table used by both concrete
// transports below.
type handlerSet struct {
	mu       sync.RWMutex
	handlers map[string][]func(Payload)
}

func newHandlerSet() *handlerSet {
	return &handlerSet{handlers: map[string][]func(Payload){}}
}

func (h *handlerSet) on(event string, fn func(Payload)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = append(h.handlers[event], fn)
}

func (h *handlerSet) dispatch(p Payload) {
	h.mu.RLock()
	fns := append([]func(Payload){}, h.handlers[p.Event]...)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(p)
	}
}

// WSChannel carries hmr-invalidate/full-reload/update frames over a single
// websocket connection. The caller owns connection setup (accepting an
// inbound upgrade, or dialing out) and hands the resulting *websocket.Conn
// to NewWSChannel; this package only owns the read loop and frame codec.
type WSChannel struct {
	conn *websocket.Conn
	log  logx.Logger
	hs   *handlerSet

	closeOnce sync.Once
}

// NewWSChannel starts a read loop over conn, dispatching decoded frames to
// registered handlers, until the connection closes or Close is called.
func NewWSChannel(conn *websocket.Conn, log logx.Logger) *WSChannel {
	c := &WSChannel{conn: conn, log: logx.OrNop(log), hs: newHandlerSet()}
	go c.readLoop()
	return c
}

func (c *WSChannel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debugf("hmr ws channel closed: %v", err)
			return
		}
		var p Payload
		if err := json.Unmarshal(data, &p); err != nil {
			c.log.Warnf("hmr ws channel: malformed frame: %v", err)
			continue
		}
		c.hs.dispatch(p)
	}
}

func (c *WSChannel) On(event string, handler func(Payload)) { c.hs.on(event, handler) }

func (c *WSChannel) Send(payload Payload) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Errorf("hmr ws channel: marshal frame: %v", err)
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Warnf("hmr ws channel: send failed: %v", err)
	}
}

func (c *WSChannel) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}

// RedisChannel fans hmr events out across a Redis pub/sub topic so several
// DevEnvironments sharing one module-graph backing store observe each
// other's hmr-invalidate notices. This is a SPEC_FULL addition: the
// container itself stays single-process, but invalidation notices can cross
// processes through this channel.
type RedisChannel struct {
	client *redis.Client
	topic  string
	log    logx.Logger
	hs     *handlerSet

	cancel context.CancelFunc
}

// NewRedisChannel subscribes to topic on client and starts the dispatch
// loop. Callers should call Close when the environment shuts down.
func NewRedisChannel(client *redis.Client, topic string, log logx.Logger) *RedisChannel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &RedisChannel{client: client, topic: topic, log: logx.OrNop(log), hs: newHandlerSet(), cancel: cancel}

	sub := client.Subscribe(ctx, topic)
	go c.readLoop(ctx, sub)
	return c
}

func (c *RedisChannel) readLoop(ctx context.Context, sub *redis.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var p Payload
			if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
				c.log.Warnf("hmr redis channel: malformed frame: %v", err)
				continue
			}
			c.hs.dispatch(p)
		}
	}
}

func (c *RedisChannel) On(event string, handler func(Payload)) { c.hs.on(event, handler) }

func (c *RedisChannel) Send(payload Payload) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Errorf("hmr redis channel: marshal frame: %v", err)
		return
	}
	if err := c.client.Publish(context.Background(), c.topic, data).Err(); err != nil {
		c.log.Warnf("hmr redis channel: publish failed: %v", err)
	}
}

func (c *RedisChannel) Close() error {
	c.cancel()
	return c.client.Close()
}
