package service

import (
	"context"
	"time"

	"mailprobe/internal/models"
	"mailprobe/internal/privacy"
	"mailprobe/pkg/imapclient"
	"mailprobe/pkg/smtpclient"

	"github.com/sirupsen/logrus"
)

// HealthChecker probes a relay's outbound and inbound endpoints.
type HealthChecker interface {
	CheckConnection(ctx context.Context, relay *models.RelayConfig) models.HealthStatus
}

type probeFunc func(ctx context.Context, relay *models.RelayConfig) error

type healthChecker struct {
	heloDomain string
	timeout    time.Duration
	logger     *logrus.Logger

	probeSMTP probeFunc
	probeIMAP probeFunc
}

// NewHealthChecker creates a checker that performs real network probes.
func NewHealthChecker(heloDomain string, timeout time.Duration, logger *logrus.Logger) HealthChecker {
	hc := &healthChecker{
		heloDomain: heloDomain,
		timeout:    timeout,
		logger:     logger,
	}
	hc.probeSMTP = hc.smtpProbe
	hc.probeIMAP = hc.imapProbe
	return hc
}

// newHealthCheckerWithProbes is used by tests to stub the network legs.
func newHealthCheckerWithProbes(timeout time.Duration, logger *logrus.Logger, smtp, imap probeFunc) HealthChecker {
	return &healthChecker{
		timeout:   timeout,
		logger:    logger,
		probeSMTP: smtp,
		probeIMAP: imap,
	}
}

// CheckConnection probes both legs independently. A failure on either leg
// is recorded, never retried. Credentials live only for the duration of
// the call.
func (hc *healthChecker) CheckConnection(ctx context.Context, relay *models.RelayConfig) models.HealthStatus {
	var status models.HealthStatus

	smtpCtx, cancelSMTP := context.WithTimeout(ctx, hc.timeout)
	if err := hc.probeSMTP(smtpCtx, relay); err != nil {
		hc.logger.WithError(err).WithFields(logrus.Fields{
			"relay_id": relay.ID,
			"host":     privacy.MaskHost(relay.SMTPHost),
		}).Warn("SMTP health probe failed")
	} else {
		status.SMTPOK = true
	}
	cancelSMTP()

	imapCtx, cancelIMAP := context.WithTimeout(ctx, hc.timeout)
	if err := hc.probeIMAP(imapCtx, relay); err != nil {
		hc.logger.WithError(err).WithFields(logrus.Fields{
			"relay_id": relay.ID,
			"host":     privacy.MaskHost(relay.IMAPHost),
		}).Warn("IMAP health probe failed")
	} else {
		status.IMAPOK = true
	}
	cancelIMAP()

	return status
}

func (hc *healthChecker) smtpProbe(ctx context.Context, relay *models.RelayConfig) error {
	client := smtpclient.New(smtpclient.Config{
		Host:       relay.SMTPHost,
		Port:       relay.SMTPPort,
		UseTLS:     relay.SMTPUseTLS,
		Username:   relay.Username,
		Password:   relay.Password,
		HeloDomain: hc.heloDomain,
		Timeout:    hc.timeout,
	})
	return client.Probe(ctx)
}

func (hc *healthChecker) imapProbe(ctx context.Context, relay *models.RelayConfig) error {
	session, err := imapclient.Connect(ctx, imapclient.Config{
		Host:     relay.IMAPHost,
		Port:     relay.IMAPPort,
		UseSSL:   relay.IMAPUseSSL,
		Username: relay.Username,
		Password: relay.Password,
		Timeout:  hc.timeout,
	})
	if err != nil {
		return err
	}
	return session.Close()
}
