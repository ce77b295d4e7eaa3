package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/controlnet-core/internal/infrastructure/config"
)

const (
	connectTimeout  = 10 * time.Second
	ackTimeout      = 5 * time.Second
	keepAlive       = 60 * time.Second
	disconnectQuiet = 1000 // ms

	maxQoS         = 2
	maxPayloadSize = 1 << 20

	// willQoS is fixed so the broker always retains the offline status.
	willQoS = 1
)

// Option adjusts a client before it connects.
type Option func(*settings)

type settings struct {
	site       string
	ackTimeout time.Duration
}

func defaultSettings() settings {
	return settings{ackTimeout: ackTimeout}
}

// WithSite stamps the site ID on status messages. When the broker client ID
// is empty it becomes controlnet-{site}.
func WithSite(id string) Option {
	return func(s *settings) { s.site = id }
}

// WithAckTimeout bounds how long Publish, Subscribe and Unsubscribe wait for
// the broker.
func WithAckTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.ackTimeout = d
		}
	}
}

// brokerURL renders host and port with ssl:// when TLS is on.
func brokerURL(b config.MQTTBrokerConfig) string {
	if b.TLS {
		return fmt.Sprintf("ssl://%s:%d", b.Host, b.Port)
	}
	return fmt.Sprintf("tcp://%s:%d", b.Host, b.Port)
}

func clientID(cfg config.MQTTConfig, s settings) string {
	switch {
	case cfg.Broker.ClientID != "":
		return cfg.Broker.ClientID
	case s.site != "":
		return "controlnet-" + s.site
	default:
		return "controlnet-core"
	}
}

// pahoOptions maps the config onto paho. Sessions are clean: the client
// replays its own subscriptions after every reconnect.
func pahoOptions(cfg config.MQTTConfig, s settings) *pahomqtt.ClientOptions {
	id := clientID(cfg, s)

	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(id).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	will := Status{State: StateOffline, ClientID: id, Site: s.site, Reason: ReasonUnexpected}
	opts.SetBinaryWill(Topics{}.SystemStatus(), will.encode(time.Now()), willQoS, true)

	return opts
}
