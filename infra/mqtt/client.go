package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	coremon "github.com/kilianp07/loadguard/core/monitoring"
	coremqtt "github.com/kilianp07/loadguard/core/mqtt"
	"github.com/kilianp07/loadguard/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker       string          `json:"broker"`
	ClientID     string          `json:"client_id"`
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	TopicPrefix  string          `json:"topic_prefix"`
	UseTLS       bool            `json:"use_tls"`
	ClientCert   string          `json:"client_cert"`
	ClientKey    string          `json:"client_key"`
	CABundle     string          `json:"ca_bundle"`
	AuthMethod   string          `json:"auth_method"`
	QoS          map[string]byte `json:"qos"`
	LWTTopic     string          `json:"lwt_topic"`
	LWTPayload   string          `json:"lwt_payload"`
	LWTQoS       byte            `json:"lwt_qos"`
	LWTRetain    bool            `json:"lwt_retain"`
	MaxRetries   int             `json:"max_retries"`
	BackoffMS    int             `json:"backoff_ms"`
	AckTimeoutMS int             `json:"ack_timeout_ms"` // negative disables ack waiting
	DryRun       bool            `json:"dry_run"`
	NoStatus     bool            `json:"no_status"` // skip the online/offline status topic
	TLSConfig    *tls.Config     `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "loadguard"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = coremqtt.DefaultPrefix
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.AckTimeoutMS == 0 {
		c.AckTimeoutMS = 5000
	}
	if c.NoStatus {
		c.LWTTopic = ""
	} else if c.LWTTopic == "" && c.Broker != "" {
		c.LWTTopic = coremqtt.Topics{Prefix: c.TopicPrefix}.Status()
		c.LWTPayload = "offline"
		c.LWTRetain = true
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	for k, q := range c.QoS {
		if q > 2 {
			return fmt.Errorf("mqtt.qos.%s: invalid qos %d", k, q)
		}
	}
	if c.LWTQoS > 2 {
		return fmt.Errorf("mqtt.lwt_qos: invalid qos %d", c.LWTQoS)
	}
	if c.UseTLS && c.TLSConfig == nil && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") {
		return fmt.Errorf("mqtt: tls requires client_cert, client_key and ca_bundle")
	}
	switch c.AuthMethod {
	case "", "username_password", "certificate", "both":
	default:
		return fmt.Errorf("mqtt.auth_method: unknown method %q", c.AuthMethod)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

type subscription struct {
	qos     byte
	handler paho.MessageHandler
}

// PahoClient is the shared broker connection. It publishes device commands
// and tracks their acknowledgments, and re-establishes subscriptions after
// a reconnect.
type PahoClient struct {
	cli    pahoClient
	topics coremqtt.Topics
	qos    map[string]byte

	mu       sync.Mutex
	ackChans map[string]chan coremqtt.Ack
	subs     map[string]subscription

	logger     logger.Logger
	lwtTopic   string
	lwtRetain  bool
	maxRetries int
	backoff    time.Duration
	ackTimeout time.Duration
	dryRun     bool
	now        func() time.Time
}

// NewPahoClient connects to the MQTT broker and subscribes to the ACK topic.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		topics:     coremqtt.Topics{Prefix: cfg.TopicPrefix},
		qos:        cfg.QoS,
		ackChans:   make(map[string]chan coremqtt.Ack),
		subs:       make(map[string]subscription),
		logger:     log,
		lwtTopic:   cfg.LWTTopic,
		lwtRetain:  cfg.LWTRetain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		ackTimeout: time.Duration(cfg.AckTimeoutMS) * time.Millisecond,
		dryRun:     cfg.DryRun,
		now:        time.Now,
	}
	pc.subs[pc.topics.Ack()] = subscription{qos: pc.qosFor("ack"), handler: pc.onAck}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		pc.resubscribe(c)
		if pc.lwtTopic != "" {
			c.Publish(pc.lwtTopic, 1, pc.lwtRetain, "online")
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	pc.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("ca bundle %s: no certificates found", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Topics returns the topic layout used by this client.
func (p *PahoClient) Topics() coremqtt.Topics { return p.topics }

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

// Subscribe registers handler for topic. The subscription is restored on
// every reconnect.
func (p *PahoClient) Subscribe(topic, qosKind string, handler paho.MessageHandler) error {
	sub := subscription{qos: p.qosFor(qosKind), handler: handler}
	p.mu.Lock()
	p.subs[topic] = sub
	p.mu.Unlock()
	if !p.cli.IsConnected() {
		return nil
	}
	if token := p.cli.Subscribe(topic, sub.qos, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

func (p *PahoClient) resubscribe(c paho.Client) {
	p.mu.Lock()
	subs := make(map[string]subscription, len(p.subs))
	for t, s := range p.subs {
		subs[t] = s
	}
	p.mu.Unlock()
	for topic, s := range subs {
		if token := c.Subscribe(topic, s.qos, s.handler); token.Wait() && token.Error() != nil {
			p.logger.Errorf("subscribe %s error: %v", topic, token.Error())
		}
	}
}

// PublishJSON encodes v and publishes it with retry and exponential backoff.
func (p *PahoClient) PublishJSON(ctx context.Context, topic, qosKind string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return p.publish(ctx, topic, p.qosFor(qosKind), retained, payload)
}

func (p *PahoClient) publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish %s attempt %d failed: %v", topic, attempt+1, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var ack coremqtt.Ack
	if err := json.Unmarshal(msg.Payload(), &ack); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.ackChans[ack.CommandID]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- ack:
	default:
	}
	p.logger.Debugf("received ack %s", ack.CommandID)
}

// SendCommand publishes cmd to its device topic and returns the command id
// used for acknowledgment tracking.
func (p *PahoClient) SendCommand(ctx context.Context, cmd coremqtt.Command) (string, error) {
	if cmd.CommandID == "" {
		cmd.CommandID = uuid.NewString()
	}
	cmd.Timestamp = p.now().UnixMilli()

	p.mu.Lock()
	p.ackChans[cmd.CommandID] = make(chan coremqtt.Ack, 1)
	p.mu.Unlock()

	topic := p.topics.Command(cmd.DeviceID)
	if err := p.PublishJSON(ctx, topic, "command", false, cmd); err != nil {
		p.forget(cmd.CommandID)
		coremon.CaptureException(err, map[string]string{"device_id": cmd.DeviceID, "module": "mqtt"})
		return "", err
	}
	p.logger.Infof("sent %s %s to %s", cmd.Action, cmd.CommandID, topic)
	return cmd.CommandID, nil
}

// WaitForAck blocks until an ACK for the given command ID is received, the
// timeout expires or ctx is done.
func (p *PahoClient) WaitForAck(ctx context.Context, commandID string, timeout time.Duration) error {
	p.mu.Lock()
	ch := p.ackChans[commandID]
	p.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("%w: %s", coremqtt.ErrUnknownCommand, commandID)
	}
	defer p.forget(commandID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ack := <-ch:
		if !ack.Accepted() {
			return fmt.Errorf("%w: %s", coremqtt.ErrNack, ack.Error)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("command %s: %w", commandID, coremqtt.ErrAckTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PahoClient) forget(commandID string) {
	p.mu.Lock()
	delete(p.ackChans, commandID)
	p.mu.Unlock()
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli == nil || !p.cli.IsConnected() {
		return
	}
	if p.lwtTopic != "" {
		p.cli.Publish(p.lwtTopic, 1, p.lwtRetain, "offline").Wait()
	}
	p.cli.Disconnect(250)
}
