package smtpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

const defaultTimeout = 30 * time.Second

// New creates a client that dials over the network.
func New(cfg Config) *Client {
	return NewWithDialer(cfg, nil)
}

// NewWithDialer creates a client with a custom dial function.
func NewWithDialer(cfg Config, dial DialFunc) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HeloDomain == "" {
		cfg.HeloDomain = "localhost"
	}
	if dial == nil {
		dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: cfg.Timeout}
			return d.DialContext(ctx, network, addr)
		}
	}
	return &Client{cfg: cfg, dial: dial}
}

// Probe verifies that the relay accepts a full login handshake. It opens a
// connection, negotiates TLS, authenticates, and quits without sending mail.
func (c *Client) Probe(ctx context.Context) error {
	client, err := c.session(ctx)
	if err != nil {
		return err
	}
	return client.Quit()
}

// Send submits a single raw RFC 5322 message.
func (c *Client) Send(ctx context.Context, from, to string, raw []byte) error {
	client, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing message body failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing message body failed: %w", err)
	}

	return client.Quit()
}

// session dials the relay and runs the handshake up to a ready,
// authenticated client.
func (c *Client) session(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s failed: %w", addr, err)
	}

	if err := conn.SetDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("setting connection deadline failed: %w", err)
	}

	if c.cfg.UseTLS {
		conn = tls.Client(conn, &tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12})
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("SMTP greeting failed: %w", err)
	}

	if err := client.Hello(c.cfg.HeloDomain); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("HELO failed: %w", err)
	}

	if !c.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12}
			if err := client.StartTLS(tlsConfig); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	if c.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			_ = client.Close()
			return nil, fmt.Errorf("server does not advertise AUTH")
		}
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
	}

	return client, nil
}
