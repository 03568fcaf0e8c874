package service

import (
	"context"

	"mailprobe/internal/models"
)

// Storage is the persistence surface the services depend on. Implemented
// by internal/database.Database.
type Storage interface {
	GetRelay(ctx context.Context, id int64) (*models.RelayConfig, error)
	ListEligibleRelays(ctx context.Context) ([]*models.RelayConfig, error)
	IncrementDailySent(ctx context.Context, id int64) (bool, error)
	ResetDailyCounters(ctx context.Context) error

	ListTemplates(ctx context.Context) ([]*models.MessageTemplate, error)

	UpsertVerification(ctx context.Context, record *models.VerificationRecord) error
	GetVerificationByRecipient(ctx context.Context, recipient string) (*models.VerificationRecord, error)
	CleanupOldVerifications(ctx context.Context, retentionDays int) error
}

// DispatchOutcome classifies the synchronous result of a dispatch call.
type DispatchOutcome string

const (
	OutcomeSent                DispatchOutcome = "sent"
	OutcomeAlreadyProcessed    DispatchOutcome = "already_processed"
	OutcomeInvalidInput        DispatchOutcome = "invalid_input"
	OutcomeNoRelayAvailable    DispatchOutcome = "no_relay_available"
	OutcomeNoTemplateAvailable DispatchOutcome = "no_template_available"
	OutcomeSendFailed          DispatchOutcome = "send_failed"
)

// DispatchResult is what a verify request gets back immediately. The
// verdict itself arrives later through the bounce detector.
type DispatchResult struct {
	Outcome DispatchOutcome `json:"outcome"`
	RelayID int64           `json:"relay_id,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}
