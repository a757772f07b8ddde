package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Config configures one Paho-backed Transport.
type Config struct {
	// BrokerURI is the full broker address, e.g. "ssl://platform.example.com:8883"
	// or "tcp://127.0.0.1:1883".
	BrokerURI string

	// ClientID identifies this connection to the broker. If empty, a
	// random suffix is generated so two gateways never collide.
	ClientID string

	Username string
	Password string

	// TrustStorePath, if set, is a PEM file of CA certificates used in
	// place of the system root pool for TLS broker connections.
	TrustStorePath string

	// KeepAlive is the MQTT keep-alive interval; zero uses the client
	// library default.
	KeepAlive time.Duration

	// CleanSession controls whether the broker discards prior
	// subscriptions/queued messages on connect.
	CleanSession bool

	ConnectTimeout   time.Duration
	PublishTimeout   time.Duration
	SubscribeTimeout time.Duration
}

// Paho is a Transport backed by github.com/eclipse/paho.mqtt.golang.
type Paho struct {
	cfg  Config
	opts *paho.ClientOptions
	c    paho.Client

	onConnect func()
	onLost    func(error)

	log *slog.Logger
}

// NewPaho builds a Paho transport from cfg. Connect must be called before
// Publish/Subscribe will do anything useful.
func NewPaho(cfg Config, log *slog.Logger) (*Paho, error) {
	if cfg.BrokerURI == "" {
		return nil, errors.New("transport: BrokerURI is required")
	}
	if log == nil {
		log = slog.Default()
	}

	id := cfg.ClientID
	if id == "" {
		id = "gwd-" + randSuffix()
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.SubscribeTimeout == 0 {
		cfg.SubscribeTimeout = 10 * time.Second
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURI).
		SetClientID(id).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetCleanSession(cfg.CleanSession)

	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}

	if cfg.TrustStorePath != "" {
		tlsCfg, err := loadTrustStore(cfg.TrustStorePath)
		if err != nil {
			return nil, fmt.Errorf("transport: loading trust store: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
	}

	p := &Paho{cfg: cfg, opts: opts, log: log.With("component", "transport", "broker", cfg.BrokerURI)}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.log.Warn("broker connection lost", "error", err)
		if p.onLost != nil {
			p.onLost(err)
		}
	})

	opts.OnConnect = func(_ paho.Client) {
		p.log.Info("broker connected")
		if p.onConnect != nil {
			p.onConnect()
		}
	}

	return p, nil
}

func loadTrustStore(path string) (*tls.Config, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return &tls.Config{RootCAs: pool}, nil
}

func randSuffix() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

func (p *Paho) SetOnConnect(fn func())                  { p.onConnect = fn }
func (p *Paho) SetConnectionLostHandler(fn func(error)) { p.onLost = fn }

func (p *Paho) Connect(ctx context.Context) error {
	if p.c == nil {
		p.c = paho.NewClient(p.opts)
	}
	tok := p.c.Connect()
	if !waitToken(ctx, tok, p.cfg.ConnectTimeout) {
		return errors.New("transport: connect timed out")
	}
	return tok.Error()
}

func (p *Paho) Disconnect(ctx context.Context) {
	if p.c == nil {
		return
	}
	grace := uint(250)
	if dl, ok := ctx.Deadline(); ok {
		if ms := time.Until(dl).Milliseconds(); ms > 0 {
			grace = uint(ms)
		}
	}
	p.c.Disconnect(grace)
}

func (p *Paho) IsConnected() bool {
	return p.c != nil && p.c.IsConnected()
}

func (p *Paho) SetWill(topic string, payload []byte, retain bool, qos byte) error {
	if p.opts == nil {
		return errors.New("transport: client options not initialized")
	}
	p.opts.SetWill(topic, string(payload), qos, retain)
	return nil
}

func (p *Paho) Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error {
	if p.c == nil {
		return errors.New("transport: not connected")
	}
	tok := p.c.Publish(topic, qos, retain, payload)
	if qos > 0 {
		if !waitToken(ctx, tok, p.cfg.PublishTimeout) {
			return fmt.Errorf("transport: publish to %s timed out", topic)
		}
	}
	return tok.Error()
}

func (p *Paho) Subscribe(ctx context.Context, topic string, qos byte, handler Handler) (Unsubscribe, error) {
	if p.c == nil {
		return nil, errors.New("transport: not connected")
	}
	tok := p.c.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		handler(Message{
			Topic:   msg.Topic(),
			Payload: msg.Payload(),
			Retain:  msg.Retained(),
			QoS:     msg.Qos(),
		})
	})
	if !waitToken(ctx, tok, p.cfg.SubscribeTimeout) {
		return nil, fmt.Errorf("transport: subscribe to %s timed out", topic)
	}
	if tok.Error() != nil {
		return nil, tok.Error()
	}

	return func() error {
		ut := p.c.Unsubscribe(topic)
		if !ut.WaitTimeout(p.cfg.SubscribeTimeout) {
			return fmt.Errorf("transport: unsubscribe from %s timed out", topic)
		}
		return ut.Error()
	}, nil
}

func waitToken(ctx context.Context, tok paho.Token, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		tok.WaitTimeout(timeout)
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
