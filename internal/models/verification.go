package models

import "time"

type VerificationStatus string

const (
	VerificationPending VerificationStatus = "pending"
	VerificationValid   VerificationStatus = "valid"
	VerificationInvalid VerificationStatus = "invalid"
)

// VerificationRecord is the recorded verdict for one recipient address.
// At most one record exists per recipient; the bounce detector upserts it
// once the inbox scan completes. Between send and scan completion no record
// exists, which is the documented pending gap.
type VerificationRecord struct {
	ID           int64              `json:"id"`
	RelayID      int64              `json:"relayId"`
	Recipient    string             `json:"recipient"`
	Status       VerificationStatus `json:"status"`
	CheckedAt    time.Time          `json:"checkedAt"`
	ErrorMessage *string            `json:"errorMessage,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}
