package smtpclient

import (
	"context"
	"net"
	"time"
)

// Config describes an SMTP submission endpoint.
type Config struct {
	Host       string
	Port       int
	UseTLS     bool // implicit TLS on connect; otherwise STARTTLS is used when offered
	Username   string
	Password   string
	HeloDomain string
	Timeout    time.Duration
}

// DialFunc opens the underlying TCP connection. Injectable for tests.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Client is a minimal SMTP submission client used for connection probes
// and single-message sends.
type Client struct {
	cfg  Config
	dial DialFunc
}
