package service

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"mailprobe/internal/errors"
	"mailprobe/internal/metrics"
	"mailprobe/internal/models"
	"mailprobe/internal/privacy"
	"mailprobe/internal/tracing"
	"mailprobe/internal/validation"
	"mailprobe/pkg/smtpclient"

	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatcher is the request entry point: it deduplicates by recipient,
// obtains a relay and template, sends the probe, and schedules the bounce
// check.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipient string) DispatchResult
	GetVerdict(ctx context.Context, recipient string) (*models.VerificationRecord, error)
}

type sendFunc func(ctx context.Context, relay *models.RelayConfig, recipient string, raw []byte) error

// DispatcherOptions carries the tunables for the dispatch path.
type DispatcherOptions struct {
	HeloDomain  string
	SendTimeout time.Duration
	DelayMin    time.Duration
	DelayMax    time.Duration
}

type dispatcher struct {
	store     Storage
	pool      RelayPool
	templates TemplateStore
	detector  BounceDetector
	workers   *WorkerPool
	logger    *logrus.Logger
	opts      DispatcherOptions

	send sendFunc

	// injectable for deterministic delays in tests
	randInt func(n int) int

	// inFlight tracks recipients whose probe has been sent but whose
	// verdict has not been recorded yet, closing the dedup gap before
	// the bounce detector writes the record.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewDispatcher(store Storage, pool RelayPool, templates TemplateStore, detector BounceDetector, workers *WorkerPool, opts DispatcherOptions, logger *logrus.Logger) Dispatcher {
	d := &dispatcher{
		store:     store,
		pool:      pool,
		templates: templates,
		detector:  detector,
		workers:   workers,
		logger:    logger,
		opts:      opts,
		randInt:   rand.Intn,
		inFlight:  make(map[string]struct{}),
	}
	d.send = d.smtpSend
	return d
}

// Dispatch runs the synchronous half of a verification. Precondition
// failures carry no side effects; after a successful send the relay
// counter is incremented and a bounce check is scheduled.
func (d *dispatcher) Dispatch(ctx context.Context, recipient string) DispatchResult {
	spanCtx, span := tracing.StartSpan(ctx, "dispatch")
	defer span.End()

	recipient = strings.TrimSpace(recipient)

	if err := validation.ValidateRecipient(recipient); err != nil {
		metrics.IncrementCounter("dispatch_total", map[string]string{"outcome": string(OutcomeInvalidInput)}, "Dispatch outcomes")
		return DispatchResult{Outcome: OutcomeInvalidInput, Reason: errors.GetUserMessage(err)}
	}

	if !d.markInFlight(recipient) {
		metrics.IncrementCounter("dispatch_total", map[string]string{"outcome": string(OutcomeAlreadyProcessed)}, "Dispatch outcomes")
		return DispatchResult{Outcome: OutcomeAlreadyProcessed}
	}

	result := d.process(spanCtx, recipient)

	// The in-flight mark survives only a successful send; on any other
	// outcome the recipient may be retried.
	if result.Outcome != OutcomeSent {
		d.clearInFlight(recipient)
	}

	metrics.IncrementCounter("dispatch_total", map[string]string{"outcome": string(result.Outcome)}, "Dispatch outcomes")
	return result
}

func (d *dispatcher) process(ctx context.Context, recipient string) DispatchResult {
	record, err := d.store.GetVerificationByRecipient(ctx, recipient)
	if err != nil {
		d.logger.WithError(err).Error("Dedup lookup failed")
		return DispatchResult{Outcome: OutcomeSendFailed, Reason: "verification lookup failed"}
	}
	if record != nil {
		return DispatchResult{Outcome: OutcomeAlreadyProcessed}
	}

	relay, err := d.pool.SelectRelay(ctx)
	if err != nil {
		d.logger.WithError(err).Error("Relay selection failed")
		return DispatchResult{Outcome: OutcomeSendFailed, Reason: "relay selection failed"}
	}
	if relay == nil {
		return DispatchResult{Outcome: OutcomeNoRelayAvailable}
	}

	template, err := d.templates.SelectTemplate(ctx)
	if err != nil {
		d.logger.WithError(err).Error("Template selection failed")
		return DispatchResult{Outcome: OutcomeSendFailed, Reason: "template selection failed"}
	}
	if template == nil {
		return DispatchResult{Outcome: OutcomeNoTemplateAvailable}
	}

	tracing.AddSpanAttributes(ctx, attribute.Int64("relay_id", relay.ID))

	raw, err := buildProbeMessage(relay.EmailAddress, recipient, template)
	if err != nil {
		d.logger.WithError(err).Error("Probe message construction failed")
		return DispatchResult{Outcome: OutcomeSendFailed, RelayID: relay.ID, Reason: "message construction failed"}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	err = d.send(sendCtx, relay, recipient, raw)
	cancel()
	if err != nil {
		tracing.RecordError(ctx, err)
		d.logger.WithError(err).WithFields(logrus.Fields{
			"relay_id":  relay.ID,
			"recipient": privacy.MaskEmail(recipient),
		}).Warn("Probe send failed")
		return DispatchResult{Outcome: OutcomeSendFailed, RelayID: relay.ID, Reason: err.Error()}
	}

	// The eligible filter makes hitting the limit here a race loser only;
	// the message already went out, so log and carry on.
	incremented, err := d.store.IncrementDailySent(ctx, relay.ID)
	if err != nil {
		d.logger.WithError(err).WithField("relay_id", relay.ID).Error("Quota increment failed after send")
	} else if !incremented {
		d.logger.WithField("relay_id", relay.ID).Warn("Relay reached daily limit concurrently with this send")
	}

	delay := d.bounceDelay()
	relayID := relay.ID
	job := Job{
		Delay: delay,
		Run: func(jobCtx context.Context) {
			defer d.clearInFlight(recipient)
			d.detector.Detect(jobCtx, relayID, recipient)
		},
	}
	if err := d.workers.Submit(job); err != nil {
		// Without the scheduled check no verdict will ever be recorded,
		// so the dispatch as a whole is reported failed.
		d.logger.WithError(err).WithField("relay_id", relay.ID).Error("Scheduling bounce check failed")
		return DispatchResult{Outcome: OutcomeSendFailed, RelayID: relay.ID, Reason: fmt.Sprintf("scheduling bounce check failed: %v", err)}
	}

	d.logger.WithFields(logrus.Fields{
		"relay_id":  relay.ID,
		"recipient": privacy.MaskEmail(recipient),
		"delay":     delay.String(),
	}).Info("Probe sent, bounce check scheduled")

	return DispatchResult{Outcome: OutcomeSent, RelayID: relay.ID}
}

// GetVerdict returns the recorded verification for a recipient, or nil
// when none exists yet. A dispatched-but-unchecked recipient reads as
// nil; that pending gap is expected behavior.
func (d *dispatcher) GetVerdict(ctx context.Context, recipient string) (*models.VerificationRecord, error) {
	return d.store.GetVerificationByRecipient(ctx, recipient)
}

func (d *dispatcher) bounceDelay() time.Duration {
	min := d.opts.DelayMin
	max := d.opts.DelayMax
	if max <= min {
		return min
	}
	spread := int(max-min) + 1
	return min + time.Duration(d.randInt(spread))
}

func (d *dispatcher) markInFlight(recipient string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.inFlight[recipient]; exists {
		return false
	}
	d.inFlight[recipient] = struct{}{}
	return true
}

func (d *dispatcher) clearInFlight(recipient string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, recipient)
}

func (d *dispatcher) smtpSend(ctx context.Context, relay *models.RelayConfig, recipient string, raw []byte) error {
	client := smtpclient.New(smtpclient.Config{
		Host:       relay.SMTPHost,
		Port:       relay.SMTPPort,
		UseTLS:     relay.SMTPUseTLS,
		Username:   relay.Username,
		Password:   relay.Password,
		HeloDomain: d.opts.HeloDomain,
		Timeout:    d.opts.SendTimeout,
	})
	if err := client.Send(ctx, relay.EmailAddress, recipient, raw); err != nil {
		return errors.NewSMTPError(relay.SMTPHost, err)
	}
	return nil
}

// buildProbeMessage assembles the probe as a single-part text/plain
// message with the relay's address as origin.
func buildProbeMessage(from, to string, template *models.MessageTemplate) ([]byte, error) {
	var buf bytes.Buffer

	var header mail.Header
	header.SetDate(time.Now())
	header.SetAddressList("From", []*mail.Address{{Address: from}})
	header.SetAddressList("To", []*mail.Address{{Address: to}})
	header.SetSubject(template.Subject)
	header.Set("Content-Type", "text/plain; charset=utf-8")

	writer, err := mail.CreateSingleInlineWriter(&buf, header)
	if err != nil {
		return nil, fmt.Errorf("creating message writer failed: %w", err)
	}
	if _, err := writer.Write([]byte(template.Body)); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("writing message body failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finishing message failed: %w", err)
	}

	return buf.Bytes(), nil
}
