package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"mailprobe/internal/metrics"
	"mailprobe/internal/models"
	"mailprobe/internal/privacy"
	"mailprobe/internal/tracing"
	"mailprobe/pkg/imapclient"

	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// BounceDetector scans a relay's inbox for bounce evidence and records
// the verdict. Invoked only through the scheduled path.
type BounceDetector interface {
	Detect(ctx context.Context, relayID int64, recipient string)
}

// mailSession is the slice of the IMAP client the detector needs.
// Satisfied by imapclient.Session.
type mailSession interface {
	SelectInbox() (uint32, error)
	FetchRange(lo, hi uint32) ([][]byte, error)
	Close() error
}

type sessionOpener func(ctx context.Context, relay *models.RelayConfig) (mailSession, error)

type bounceDetector struct {
	store        Storage
	logger       *logrus.Logger
	recentWindow int
	scanTimeout  time.Duration

	openSession sessionOpener
}

// NewBounceDetector creates a detector that opens real IMAP sessions.
func NewBounceDetector(store Storage, recentWindow int, scanTimeout time.Duration, imapTimeout time.Duration, logger *logrus.Logger) BounceDetector {
	return &bounceDetector{
		store:        store,
		logger:       logger,
		recentWindow: recentWindow,
		scanTimeout:  scanTimeout,
		openSession: func(ctx context.Context, relay *models.RelayConfig) (mailSession, error) {
			return imapclient.Connect(ctx, imapclient.Config{
				Host:     relay.IMAPHost,
				Port:     relay.IMAPPort,
				UseSSL:   relay.IMAPUseSSL,
				Username: relay.Username,
				Password: relay.Password,
				Timeout:  imapTimeout,
			})
		},
	}
}

// newBounceDetectorWithOpener is used by tests to stub the IMAP session.
func newBounceDetectorWithOpener(store Storage, recentWindow int, scanTimeout time.Duration, logger *logrus.Logger, open sessionOpener) BounceDetector {
	return &bounceDetector{
		store:        store,
		logger:       logger,
		recentWindow: recentWindow,
		scanTimeout:  scanTimeout,
		openSession:  open,
	}
}

// Detect scans the relay inbox for the recipient address and upserts the
// verdict. Scan failures fail soft: the verdict defaults to valid with
// the error recorded, so a verdict always exists once the check has run.
// The detection itself is a substring heuristic over text/plain parts,
// not a guarantee.
func (d *bounceDetector) Detect(ctx context.Context, relayID int64, recipient string) {
	spanCtx, span := tracing.StartSpan(ctx, "bounce_detect",
		attribute.Int64("relay_id", relayID),
	)
	defer span.End()

	start := time.Now()
	bounced, scanErr := d.scan(spanCtx, relayID, recipient)
	metrics.RecordTimer("bounce_scan_duration", time.Since(start), nil, "Bounce scan duration")

	status := models.VerificationValid
	if bounced {
		status = models.VerificationInvalid
	}

	record := &models.VerificationRecord{
		RelayID:   relayID,
		Recipient: recipient,
		Status:    status,
		CheckedAt: time.Now().UTC(),
	}
	if scanErr != nil {
		detail := scanErr.Error()
		record.ErrorMessage = &detail
		tracing.RecordError(spanCtx, scanErr)
		d.logger.WithError(scanErr).WithFields(logrus.Fields{
			"relay_id":  relayID,
			"recipient": privacy.MaskEmail(recipient),
		}).Warn("Bounce scan failed, recording verdict as valid")
	}

	// The scan context may already be expired; the verdict write uses the
	// worker context so it still lands.
	if err := d.store.UpsertVerification(ctx, record); err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"relay_id": relayID,
		}).Error("Failed to record verification verdict")
		return
	}

	metrics.IncrementCounter("verdicts_recorded_total", map[string]string{
		"status": string(status),
	}, "Verdicts recorded by status")

	d.logger.WithFields(logrus.Fields{
		"relay_id":  relayID,
		"recipient": privacy.MaskEmail(recipient),
		"status":    status,
	}).Info("Verification verdict recorded")
}

// scan opens the inbox and looks for the recipient in the newest messages.
func (d *bounceDetector) scan(ctx context.Context, relayID int64, recipient string) (bool, error) {
	scanCtx, cancel := context.WithTimeout(ctx, d.scanTimeout)
	defer cancel()

	relay, err := d.store.GetRelay(scanCtx, relayID)
	if err != nil {
		return false, err
	}
	if relay == nil {
		return false, fmt.Errorf("relay %d no longer exists", relayID)
	}

	session, err := d.openSession(scanCtx, relay)
	if err != nil {
		return false, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			d.logger.WithError(closeErr).WithField("relay_id", relayID).Debug("Closing IMAP session failed")
		}
	}()

	count, err := session.SelectInbox()
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}

	// Only the newest recentWindow messages are inspected. Older mail is
	// never scanned; bounded cost is the contract here.
	lo := uint32(1)
	if count > uint32(d.recentWindow) {
		lo = count - uint32(d.recentWindow) + 1
	}

	bodies, err := session.FetchRange(lo, count)
	if err != nil {
		return false, err
	}

	needle := strings.ToLower(recipient)
	// Newest first, short-circuit on first hit.
	for i := len(bodies) - 1; i >= 0; i-- {
		if messageReferences(bodies[i], needle) {
			return true, nil
		}
	}
	return false, nil
}

// messageReferences reports whether any text/plain part of the raw
// message contains the needle, case-insensitively.
func messageReferences(raw []byte, needle string) bool {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return false
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return false
		}
		if err != nil {
			return false
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, err := header.ContentType()
		if err != nil || contentType != "text/plain" {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(string(body)), needle) {
			return true
		}
	}
}
