package imapclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const defaultTimeout = 30 * time.Second

// Session is an authenticated IMAP connection scoped to a single bounce
// scan. It is not safe for concurrent use.
type Session struct {
	client *imapclient.Client
}

// Connect dials the mailbox and logs in.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	return ConnectWithDialer(ctx, cfg, nil)
}

// ConnectWithDialer dials the mailbox using a custom dial function.
func ConnectWithDialer(ctx context.Context, cfg Config, dial DialFunc) (*Session, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if dial == nil {
		dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: cfg.Timeout}
			return d.DialContext(ctx, network, addr)
		}
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s failed: %w", addr, err)
	}

	if err := conn.SetDeadline(time.Now().Add(cfg.Timeout)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("setting connection deadline failed: %w", err)
	}

	if cfg.UseSSL {
		conn = tls.Client(conn, &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12})
	}

	client := imapclient.New(conn, &imapclient.Options{})

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}

	return &Session{client: client}, nil
}

// SelectInbox opens INBOX read-only and returns the message count.
func (s *Session) SelectInbox() (uint32, error) {
	data, err := s.client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return 0, fmt.Errorf("selecting INBOX failed: %w", err)
	}
	return data.NumMessages, nil
}

// FetchRange fetches the full raw bodies of messages lo through hi by
// sequence number. Both bounds are inclusive.
func (s *Session) FetchRange(lo, hi uint32) ([][]byte, error) {
	var seqSet imap.SeqSet
	seqSet.AddRange(lo, hi)

	section := &imap.FetchItemBodySection{}
	fetchOptions := &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{section},
	}

	messages, err := s.client.Fetch(seqSet, fetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching messages %d:%d failed: %w", lo, hi, err)
	}

	bodies := make([][]byte, 0, len(messages))
	for _, msg := range messages {
		if body := msg.FindBodySection(section); body != nil {
			bodies = append(bodies, body)
		}
	}
	return bodies, nil
}

// Close logs out and tears down the connection.
func (s *Session) Close() error {
	logoutErr := s.client.Logout().Wait()
	closeErr := s.client.Close()
	if logoutErr != nil {
		return logoutErr
	}
	return closeErr
}
