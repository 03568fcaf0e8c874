package imapclient

import (
	"context"
	"net"
	"time"
)

// Config describes an IMAP mailbox endpoint.
type Config struct {
	Host     string
	Port     int
	UseSSL   bool // implicit TLS on connect
	Username string
	Password string
	Timeout  time.Duration
}

// DialFunc opens the underlying TCP connection. Injectable for tests.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)
