// Package mqtt publishes session lifecycle transitions to an MQTT broker
// so downstream systems (booking platforms, dashboards) can react to
// sessions pairing, becoming ready, or being destroyed without polling the
// HTTP API. Publishing is optional and fire-and-forget.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/maddy52/whatsappweb/internal/infrastructure/config"
)

// Connection constants.
const (
	// connectTimeout is the maximum time to wait for the initial connection.
	connectTimeout = 10 * time.Second

	// publishTimeout is the maximum time to wait for publish acknowledgment.
	publishTimeout = 5 * time.Second

	// disconnectQuiesce is the time, in milliseconds, to wait for pending
	// operations on disconnect.
	disconnectQuiesce = 1000

	// keepAlive is the connection keepalive interval.
	keepAlive = 60 * time.Second
)

// Sentinel errors.
var (
	// ErrConnectionFailed indicates the initial broker connection failed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected indicates the client is not currently connected.
	ErrNotConnected = errors.New("mqtt: not connected")
)

// Publisher wraps paho.mqtt.golang for lifecycle-event publishing. All
// methods are safe for concurrent use; reconnection is automatic with
// exponential backoff, and subscribers learn about unexpected exits
// through the Last Will message.
type Publisher struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connMu    sync.RWMutex
	connected bool
}

// sessionPayload is the JSON body published on session state topics.
type sessionPayload struct {
	TenantID  string `json:"tenantId"`
	Phase     string `json:"phase"`
	Event     string `json:"event"`
	LastError string `json:"lastError,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Connect establishes the broker connection, configures the Last Will on
// the system status topic, and publishes the online status.
func Connect(cfg config.MQTTConfig) (*Publisher, error) {
	opts := buildClientOptions(cfg)
	opts.SetWill(systemStatusTopic, statusPayload("offline", cfg.Broker.ClientID, "unexpected_disconnect"), 1, true)

	p := &Publisher{cfg: cfg}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		p.connMu.Lock()
		p.connected = true
		p.connMu.Unlock()
		p.publishStatus("online", "")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, _ error) {
		p.connMu.Lock()
		p.connected = false
		p.connMu.Unlock()
	})

	p.client = pahomqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark connected here so
	// callers observe the true state immediately.
	p.connMu.Lock()
	p.connected = true
	p.connMu.Unlock()

	return p, nil
}

// buildClientOptions creates paho options from gateway config.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

// PublishTransition publishes one lifecycle transition on the tenant's
// state topic. Retained, so late subscribers see the current state.
func (p *Publisher) PublishTransition(tenantID, phase, event, lastError string) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	body, err := json.Marshal(sessionPayload{
		TenantID:  tenantID,
		Phase:     phase,
		Event:     event,
		LastError: lastError,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshalling transition payload: %w", err)
	}

	token := p.client.Publish(SessionStateTopic(tenantID), byte(p.cfg.QoS), true, body)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing transition: timeout after %v", publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing transition: %w", err)
	}
	return nil
}

// publishStatus publishes the gateway's own status on the system topic.
func (p *Publisher) publishStatus(status, reason string) {
	token := p.client.Publish(systemStatusTopic, byte(p.cfg.QoS), true,
		statusPayload(status, p.cfg.Broker.ClientID, reason))
	token.WaitTimeout(publishTimeout)
}

// statusPayload builds the system status JSON body.
func statusPayload(status, clientID, reason string) string {
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`,
			status, clientID, time.Now().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`,
		status, clientID, reason, time.Now().UTC().Format(time.RFC3339))
}

// IsConnected returns the last known connection state.
func (p *Publisher) IsConnected() bool {
	p.connMu.RLock()
	defer p.connMu.RUnlock()
	return p.connected && p.client.IsConnected()
}

// HealthCheck verifies the broker connection is alive.
func (p *Publisher) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}
	if !p.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close publishes the graceful offline status and disconnects.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	if p.IsConnected() {
		p.publishStatus("offline", "graceful_shutdown")
	}
	p.client.Disconnect(disconnectQuiesce)

	p.connMu.Lock()
	p.connected = false
	p.connMu.Unlock()
	return nil
}
