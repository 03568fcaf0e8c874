package models

import "time"

// RelayConfig describes one configured mail relay: an SMTP submission
// endpoint and an IMAP retrieval endpoint sharing a single credential pair.
type RelayConfig struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	EmailAddress string    `json:"emailAddress"`
	Username     string    `json:"username"`
	Password     string    `json:"-"`
	SMTPHost     string    `json:"smtpHost"`
	SMTPPort     int       `json:"smtpPort"`
	SMTPUseTLS   bool      `json:"smtpUseTls"`
	IMAPHost     string    `json:"imapHost"`
	IMAPPort     int       `json:"imapPort"`
	IMAPUseSSL   bool      `json:"imapUseSsl"`
	Active       bool      `json:"active"`
	DailyLimit   int       `json:"dailyLimit"`
	DailySent    int       `json:"dailySent"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// QuotaExhausted reports whether the relay has used up its daily send quota.
func (r *RelayConfig) QuotaExhausted() bool {
	return r.DailySent >= r.DailyLimit
}

// HealthStatus is the outcome of probing both legs of a relay.
type HealthStatus struct {
	SMTPOK bool `json:"smtp_ok"`
	IMAPOK bool `json:"imap_ok"`
}

// OK reports whether both the outbound and inbound legs are usable.
func (h HealthStatus) OK() bool {
	return h.SMTPOK && h.IMAPOK
}
