package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/controlnet-core/internal/infrastructure/config"
)

// MessageHandler receives a message. Handlers run on paho goroutines and
// must not block. A returned error is counted and logged.
type MessageHandler func(topic string, payload []byte) error

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Stats counts traffic through the client since Connect.
type Stats struct {
	Published     int64 `json:"published"`
	Received      int64 `json:"received"`
	HandlerErrors int64 `json:"handler_errors"`
	Reconnects    int64 `json:"reconnects"`
}

// Client is the broker link for the control network. It carries signal
// ingress, event export and remote-site frames, and satisfies
// remote.Transport. All methods are safe for concurrent use.
type Client struct {
	paho     pahomqtt.Client
	cfg      config.MQTTConfig
	settings settings
	id       string

	connected atomic.Bool

	subMu sync.RWMutex
	subs  map[string]subscription

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(error)
	logger       Logger

	published     atomic.Int64
	received      atomic.Int64
	handlerErrors atomic.Int64
	connects      atomic.Int64
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Connect dials the broker and waits for the first CONNACK. It returns
// ErrDisabled when cfg.Enabled is false.
func Connect(cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	c := newClient(cfg, s)
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrTimeout, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The on-connect handler runs asynchronously.
	c.connected.Store(true)
	return c, nil
}

// newClient wires paho callbacks without dialling.
func newClient(cfg config.MQTTConfig, s settings) *Client {
	c := &Client{
		cfg:      cfg,
		settings: s,
		id:       clientID(cfg, s),
		subs:     make(map[string]subscription),
	}

	po := pahoOptions(cfg, s)
	po.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })
	po.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logWarn("MQTT reconnecting", "broker", brokerURL(cfg.Broker))
	})
	c.paho = pahomqtt.NewClient(po)
	return c
}

// ID returns the client ID presented to the broker.
func (c *Client) ID() string { return c.id }

func (c *Client) connectionUp() {
	c.connected.Store(true)
	c.connects.Add(1)

	c.subMu.RLock()
	for topic, sub := range c.subs {
		c.paho.Subscribe(topic, sub.qos, c.dispatch(sub.handler))
	}
	c.subMu.RUnlock()

	c.publishStatus(StateOnline, "")

	c.hookMu.RLock()
	fn := c.onConnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) connectionDown(err error) {
	c.connected.Store(false)

	c.hookMu.RLock()
	fn := c.onDisconnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// publishStatus sends the retained presence message. It does not wait for
// an acknowledgement.
func (c *Client) publishStatus(state, reason string) pahomqtt.Token {
	st := Status{State: state, ClientID: c.id, Site: c.settings.site, Reason: reason}
	return c.paho.Publish(Topics{}.SystemStatus(), willQoS, true, st.encode(time.Now()))
}

// Close replaces the retained status with a graceful offline message and
// disconnects. Safe on a nil client.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus(StateOffline, ReasonShutdown).WaitTimeout(c.settings.ackTimeout)
	}
	c.paho.Disconnect(disconnectQuiet)
	c.connected.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known link state.
func (c *Client) IsConnected() bool {
	if c == nil || c.paho == nil {
		return false
	}
	return c.connected.Load() && c.paho.IsConnected()
}

// Stats returns traffic counters. Reconnects excludes the first connect.
func (c *Client) Stats() Stats {
	reconnects := c.connects.Load() - 1
	if reconnects < 0 {
		reconnects = 0
	}
	return Stats{
		Published:     c.published.Load(),
		Received:      c.received.Load(),
		HandlerErrors: c.handlerErrors.Load(),
		Reconnects:    reconnects,
	}
}

// SetOnConnect registers a callback for the first connect and every
// reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.hookMu.Lock()
	c.onConnect = fn
	c.hookMu.Unlock()
}

// SetOnDisconnect registers a callback for lost connections.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hookMu.Lock()
	c.onDisconnect = fn
	c.hookMu.Unlock()
}

// SetLogger enables logging of handler failures and reconnects.
func (c *Client) SetLogger(l Logger) {
	c.hookMu.Lock()
	c.logger = l
	c.hookMu.Unlock()
}

func (c *Client) logWarn(msg string, args ...any) {
	c.hookMu.RLock()
	l := c.logger
	c.hookMu.RUnlock()
	if l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	c.hookMu.RLock()
	l := c.logger
	c.hookMu.RUnlock()
	if l != nil {
		l.Error(msg, args...)
	}
}

// dispatch adapts a MessageHandler to paho, containing panics so one bad
// handler cannot take down the paho router.
func (c *Client) dispatch(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.received.Add(1)
		defer func() {
			if r := recover(); r != nil {
				c.handlerErrors.Add(1)
				c.logError("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := h(msg.Topic(), msg.Payload()); err != nil {
			c.handlerErrors.Add(1)
			c.logWarn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
