package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremqtt "github.com/kilianp07/fleetsim/core/mqtt"
	"github.com/kilianp07/fleetsim/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ClientIDPrefix string        `json:"client_id_prefix"`
	Username       string        `json:"username"`
	Password       string        `json:"password"`
	KeepAlive      time.Duration `json:"keepalive"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	PublishTimeout time.Duration `json:"publish_timeout"`
	QoS            byte          `json:"qos"`
	Retain         bool          `json:"retain"`
	UseTLS         bool          `json:"use_tls"`
	ClientCert     string        `json:"client_cert"`
	ClientKey      string        `json:"client_key"`
	CABundle       string        `json:"ca_bundle"`

	// Set per session by the caller, never loaded from files.
	ClientID   string      `json:"-"`
	LWTTopic   string      `json:"-"`
	LWTPayload []byte      `json:"-"`
	TLSConfig  *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 1883
	}
	if c.ClientIDPrefix == "" {
		c.ClientIDPrefix = "fleetsim"
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = 5 * time.Second
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("mqtt host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("mqtt port %d out of range", c.Port)
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if c.UseTLS && c.TLSConfig == nil && c.CABundle == "" {
		return fmt.Errorf("tls requires ca_bundle")
	}
	return nil
}

// BrokerURL returns the paho broker address for the configured host and port.
func (c Config) BrokerURL() string {
	scheme := "tcp"
	if c.UseTLS {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ClientIDFor derives a unique client identifier for one vehicle session.
// Brokers drop the older session on client id collisions, so a random suffix
// keeps parallel simulator runs apart.
func ClientIDFor(prefix, vehicleID string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, vehicleID, uuid.NewString()[:8])
}

var errConnectTimeout = errors.New("timeout waiting for connack")

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoPublisher implements core/mqtt.Publisher using Eclipse Paho.
type PahoPublisher struct {
	cfg    Config
	logger logger.Logger

	mu  sync.Mutex
	cli pahoClient
}

// NewPahoPublisher creates an unconnected publisher.
func NewPahoPublisher(cfg Config, log logger.Logger) *PahoPublisher {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &PahoPublisher{cfg: cfg, logger: log}
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.BrokerURL()).SetClientID(cfg.ClientID)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetBinaryWill(cfg.LWTTopic, cfg.LWTPayload, cfg.QoS, cfg.Retain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
// The client certificate pair is optional; the CA bundle is not.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires ca_bundle")
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no certificates found in %s", c.CABundle)
	}
	cfg := &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	if c.ClientCert != "" || c.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// Connect dials the broker and waits for the CONNACK. Paho keeps its network
// goroutines running until Disconnect.
func (p *PahoPublisher) Connect(ctx context.Context) error {
	opts, err := NewClientOptions(p.cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", coremqtt.ErrConnect, err)
	}
	broker := p.cfg.BrokerURL()
	opts.OnConnect = func(paho.Client) {
		p.logger.Infof("Connected to MQTT broker %s", broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		p.logger.Warnf("Disconnected from broker: %v", err)
	}
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) {
		p.logger.Debugf("reconnecting to %s", broker)
	}

	cli := newMQTTClient(opts)
	if err := waitToken(ctx, cli.Connect(), p.cfg.ConnectTimeout, errConnectTimeout); err != nil {
		cli.Disconnect(0)
		p.logger.Errorf("Connection error: %v", err)
		return fmt.Errorf("%w: %s: %v", coremqtt.ErrConnect, broker, err)
	}

	p.mu.Lock()
	p.cli = cli
	p.mu.Unlock()
	return nil
}

// Publish sends payload with the configured QoS and retain flag.
func (p *PahoPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	cli := p.cli
	p.mu.Unlock()
	if cli == nil {
		return coremqtt.ErrNotConnected
	}
	token := cli.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
	if err := waitToken(ctx, token, p.cfg.PublishTimeout, coremqtt.ErrPublishTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoPublisher) Disconnect() {
	p.mu.Lock()
	cli := p.cli
	p.cli = nil
	p.mu.Unlock()
	if cli == nil {
		return
	}
	if cli.IsConnected() {
		cli.Disconnect(250)
		p.logger.Infof("Disconnected from broker")
		return
	}
	// Stop the auto-reconnect loop of a session that is currently down.
	cli.Disconnect(0)
}

// IsConnected reports whether the underlying client holds a live connection.
func (p *PahoPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cli != nil && p.cli.IsConnected()
}

func waitToken(ctx context.Context, token paho.Token, timeout time.Duration, timeoutErr error) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-expired:
		return timeoutErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
