package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-query-bridge/internal/broker"
)

// Dial implements broker.Transport. It returns once the broker has answered
// the CONNECT or the context is done.
func (t *Transport) Dial(ctx context.Context, opts broker.DialOptions) (broker.Session, error) {
	s := &session{
		logger:           t.logger.With("clientId", opts.ClientID),
		subscribeTimeout: t.config.SubscribeTimeout,
	}

	clientOpts, err := t.clientOptions(opts, s)
	if err != nil {
		return nil, &broker.TransportError{Op: "connect", Err: err}
	}

	s.client = t.newClient(clientOpts)

	t.logger.Debug("connecting to mqtt broker",
		"broker", t.config.Address,
		"clientId", opts.ClientID)

	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		s.Close()
		return nil, &broker.TransportError{Op: "connect", Err: ctx.Err()}
	}

	if err := token.Error(); err != nil {
		s.Close()
		return nil, &broker.TransportError{Op: "connect", Err: err}
	}

	t.logger.Info("mqtt client connected",
		"broker", t.config.Address,
		"clientId", opts.ClientID)

	return s, nil
}

func (t *Transport) clientOptions(opts broker.DialOptions, s *session) (*mqtt.ClientOptions, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(t.config.Address).
		SetClientID(opts.ClientID).
		SetUsername(t.config.Username).
		SetPassword(t.config.Password).
		SetCleanSession(opts.CleanSession).
		SetProtocolVersion(4).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(opts.ConnectTimeout)

	if t.config.KeepAlive > 0 {
		clientOpts.SetKeepAlive(t.config.KeepAlive)
	}

	// Subscriptions pass a nil callback so every message lands here
	clientOpts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		if opts.OnMessage != nil {
			opts.OnMessage(msg.Topic(), msg.Payload())
		}
	})

	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if s.closed.Load() {
			return
		}
		s.logger.Error("mqtt connection lost", "error", err)
		if opts.OnConnectionLost != nil {
			opts.OnConnectionLost(err)
		}
	})

	if t.config.TLS.Enable {
		tlsConfig, err := newTLSConfig(
			t.config.TLS.CertFile,
			t.config.TLS.KeyFile,
			t.config.TLS.CAFile,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		clientOpts.SetTLSConfig(tlsConfig)
	}

	return clientOpts, nil
}

// newTLSConfig creates a new TLS configuration
func newTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
