package nats

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"mqtt-query-bridge/internal/broker"
)

// Dial implements broker.Transport
func (t *Transport) Dial(ctx context.Context, opts broker.DialOptions) (broker.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &broker.TransportError{Op: "connect", Err: err}
	}

	s := &session{
		logger:  t.logger.With("clientId", opts.ClientID),
		timeout: t.config.SubscribeTimeout,
		handler: opts.OnMessage,
		subs:    make(map[string]*nats.Subscription),
	}

	natsOpts := t.options(ctx, opts, s)

	t.logger.Debug("connecting to NATS server",
		"url", t.config.Address,
		"clientId", opts.ClientID)

	conn, err := nats.Connect(t.config.Address, natsOpts...)
	if err != nil {
		return nil, &broker.TransportError{Op: "connect", Err: err}
	}
	s.conn = conn

	t.logger.Info("connected to NATS server",
		"url", conn.ConnectedUrl(),
		"clientId", opts.ClientID)

	return s, nil
}

func (t *Transport) options(ctx context.Context, opts broker.DialOptions, s *session) []nats.Option {
	timeout := opts.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	natsOpts := []nats.Option{
		nats.Name(opts.ClientID),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if s.closed.Load() {
				return
			}
			if err == nil {
				err = nats.ErrConnectionClosed
			}
			s.logger.Error("disconnected from NATS server", "error", err)
			if opts.OnConnectionLost != nil {
				opts.OnConnectionLost(err)
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			s.logger.Warn("NATS async error", "error", err)
		}),
	}

	if timeout > 0 {
		natsOpts = append(natsOpts, nats.Timeout(timeout))
	}

	if t.config.Username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(t.config.Username, t.config.Password))
	}

	if t.config.TLS.Enable {
		natsOpts = append(natsOpts, nats.ClientCert(t.config.TLS.CertFile, t.config.TLS.KeyFile))
		if t.config.TLS.CAFile != "" {
			natsOpts = append(natsOpts, nats.RootCAs(t.config.TLS.CAFile))
		}
	}

	return natsOpts
}
