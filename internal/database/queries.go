package database

// Relay queries
const (
	insertRelayQuery = `
		INSERT INTO relays (
			name, email_address, username, password,
			smtp_host, smtp_port, smtp_use_tls,
			imap_host, imap_port, imap_use_ssl,
			active, daily_limit, daily_sent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectRelayColumns = `
		id, name, email_address, username, password,
		smtp_host, smtp_port, smtp_use_tls,
		imap_host, imap_port, imap_use_ssl,
		active, daily_limit, daily_sent,
		created_at, updated_at
	`

	selectRelayByIDQuery = `
		SELECT ` + selectRelayColumns + `
		FROM relays
		WHERE id = ?
	`

	selectAllRelaysQuery = `
		SELECT ` + selectRelayColumns + `
		FROM relays
		ORDER BY id
	`

	selectEligibleRelaysQuery = `
		SELECT ` + selectRelayColumns + `
		FROM relays
		WHERE active = 1 AND daily_sent < daily_limit
		ORDER BY id
	`

	updateRelayQuery = `
		UPDATE relays
		SET name = ?, email_address = ?, username = ?, password = ?,
		    smtp_host = ?, smtp_port = ?, smtp_use_tls = ?,
		    imap_host = ?, imap_port = ?, imap_use_ssl = ?,
		    active = ?, daily_limit = ?
		WHERE id = ?
	`

	deleteRelayQuery = `DELETE FROM relays WHERE id = ?`

	// The quota check and the increment are a single statement so concurrent
	// dispatches cannot lose updates or push a relay past its daily limit.
	incrementDailySentQuery = `
		UPDATE relays
		SET daily_sent = daily_sent + 1
		WHERE id = ? AND daily_sent < daily_limit
	`

	resetDailyCountersQuery = `UPDATE relays SET daily_sent = 0 WHERE daily_sent > 0`
)

// Template queries
const (
	insertTemplateQuery = `INSERT INTO templates (subject, body) VALUES (?, ?)`

	selectTemplateByIDQuery = `
		SELECT id, subject, body, created_at, updated_at
		FROM templates
		WHERE id = ?
	`

	selectAllTemplatesQuery = `
		SELECT id, subject, body, created_at, updated_at
		FROM templates
		ORDER BY id
	`

	deleteTemplateQuery = `DELETE FROM templates WHERE id = ?`
)

// Verification queries
const (
	upsertVerificationQuery = `
		INSERT INTO verifications (relay_id, recipient, status, checked_at, error_message)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(recipient) DO UPDATE SET
			relay_id = excluded.relay_id,
			status = excluded.status,
			checked_at = excluded.checked_at,
			error_message = excluded.error_message
	`

	selectVerificationByRecipientQuery = `
		SELECT id, relay_id, recipient, status, checked_at, error_message,
		       created_at, updated_at
		FROM verifications
		WHERE recipient = ?
	`

	selectVerificationsQuery = `
		SELECT id, relay_id, recipient, status, checked_at, error_message,
		       created_at, updated_at
		FROM verifications
		ORDER BY checked_at DESC
		LIMIT ?
	`

	deleteOldVerificationsQuery = `
		DELETE FROM verifications
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`
)
