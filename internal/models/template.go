package models

import "time"

// MessageTemplate holds the subject and body used for a probe message.
// Templates are immutable after creation; dispatch only ever selects one.
type MessageTemplate struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
