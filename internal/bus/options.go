package bus

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/carewatch/uwb-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultSubscribeTimeout is the maximum time to wait for subscription acknowledgment.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Maximum payload size for published messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20

// brokerURL builds the connection URL from config. WebSocket schemes
// carry the broker's HTTP path; raw TCP and TLS schemes do not.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := cfg.Broker.Protocol
	if scheme == "" {
		scheme = "ws"
	}
	url := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
	if scheme == "ws" || scheme == "wss" {
		url += cfg.Broker.Path
	}
	return url
}

// buildClientOptions creates paho MQTT options from bus config.
//
// This configures:
//   - Broker URL (ws://host:port/mqtt by default, tcp/ssl/wss supported)
//   - Unique client ID (configured prefix plus random suffix, so a stale
//     session on the broker never kicks a fresh connection)
//   - Authentication credentials (if provided)
//   - Auto-reconnect at a fixed retry period
//   - TLS configuration for wss/ssl schemes
//   - Clean session mode
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg))

	// Client identification. The broker disconnects the older of two
	// clients sharing an ID, so every session gets a fresh suffix.
	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = "uwbcore"
	}
	opts.SetClientID(fmt.Sprintf("%s-%s", clientID, uuid.New().String()[:8]))

	// Authentication (if credentials provided)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(cfg.CleanSession)

	// Auto-reconnect at the configured period. The period doubles as the
	// retry interval for the initial connection.
	reconnect := time.Duration(cfg.ReconnectPeriodMS) * time.Millisecond
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnect)
	opts.SetMaxReconnectInterval(reconnect)

	opts.SetConnectTimeout(time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond)

	// Keepalive - broker sends PINGs to detect dead connections
	opts.SetKeepAlive(time.Duration(cfg.KeepaliveSec) * time.Second)

	// TLS configuration for secure schemes
	if cfg.Broker.Protocol == "wss" || cfg.Broker.Protocol == "ssl" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}
