package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"mailprobe/internal/migrations"
	"mailprobe/internal/models"
	"mailprobe/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	// Validate database path to prevent directory traversal
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Relay operations

func (d *Database) CreateRelay(ctx context.Context, relay *models.RelayConfig) error {
	encryptedUsername, err := d.encryptor.EncryptIfEnabled(relay.Username)
	if err != nil {
		return fmt.Errorf("failed to encrypt username: %w", err)
	}
	encryptedPassword, err := d.encryptor.EncryptIfEnabled(relay.Password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}

	var result sql.Result
	err = retryableDBOperation(ctx, func() error {
		var execErr error
		result, execErr = d.db.ExecContext(ctx, insertRelayQuery,
			relay.Name, relay.EmailAddress, encryptedUsername, encryptedPassword,
			relay.SMTPHost, relay.SMTPPort, relay.SMTPUseTLS,
			relay.IMAPHost, relay.IMAPPort, relay.IMAPUseSSL,
			relay.Active, relay.DailyLimit, relay.DailySent,
		)
		return execErr
	}, "create relay")
	if err != nil {
		return err
	}

	relay.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get relay ID: %w", err)
	}
	return nil
}

func (d *Database) UpdateRelay(ctx context.Context, relay *models.RelayConfig) error {
	encryptedUsername, err := d.encryptor.EncryptIfEnabled(relay.Username)
	if err != nil {
		return fmt.Errorf("failed to encrypt username: %w", err)
	}
	encryptedPassword, err := d.encryptor.EncryptIfEnabled(relay.Password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}

	result, err := d.db.ExecContext(ctx, updateRelayQuery,
		relay.Name, relay.EmailAddress, encryptedUsername, encryptedPassword,
		relay.SMTPHost, relay.SMTPPort, relay.SMTPUseTLS,
		relay.IMAPHost, relay.IMAPPort, relay.IMAPUseSSL,
		relay.Active, relay.DailyLimit,
		relay.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update relay: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no relay found with ID: %d", relay.ID)
	}
	return nil
}

func (d *Database) GetRelay(ctx context.Context, id int64) (*models.RelayConfig, error) {
	row := d.db.QueryRowContext(ctx, selectRelayByIDQuery, id)
	relay, err := d.scanRelay(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relay: %w", err)
	}
	return relay, nil
}

func (d *Database) ListRelays(ctx context.Context) ([]*models.RelayConfig, error) {
	return d.queryRelays(ctx, selectAllRelaysQuery)
}

// ListEligibleRelays returns relays that are active and still under their
// daily quota. Health is probed separately by the relay pool.
func (d *Database) ListEligibleRelays(ctx context.Context) ([]*models.RelayConfig, error) {
	return d.queryRelays(ctx, selectEligibleRelaysQuery)
}

func (d *Database) DeleteRelay(ctx context.Context, id int64) error {
	result, err := d.db.ExecContext(ctx, deleteRelayQuery, id)
	if err != nil {
		return fmt.Errorf("failed to delete relay: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no relay found with ID: %d", id)
	}
	return nil
}

// IncrementDailySent atomically bumps a relay's usage counter. It returns
// false without error when the relay is already at its daily limit.
func (d *Database) IncrementDailySent(ctx context.Context, id int64) (bool, error) {
	var result sql.Result
	err := retryableDBOperation(ctx, func() error {
		var execErr error
		result, execErr = d.db.ExecContext(ctx, incrementDailySentQuery, id)
		return execErr
	}, "increment daily sent")
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// ResetDailyCounters zeroes every relay's daily usage counter.
func (d *Database) ResetDailyCounters(ctx context.Context) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, resetDailyCountersQuery)
		return err
	}, "reset daily counters")
}

func (d *Database) queryRelays(ctx context.Context, query string) ([]*models.RelayConfig, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query relays: %w", err)
	}
	defer rows.Close()

	var relays []*models.RelayConfig
	for rows.Next() {
		relay, err := d.scanRelay(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relay: %w", err)
		}
		relays = append(relays, relay)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate relays: %w", err)
	}
	return relays, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanRelay(row rowScanner) (*models.RelayConfig, error) {
	relay := &models.RelayConfig{}
	var encryptedUsername, encryptedPassword string

	err := row.Scan(
		&relay.ID, &relay.Name, &relay.EmailAddress,
		&encryptedUsername, &encryptedPassword,
		&relay.SMTPHost, &relay.SMTPPort, &relay.SMTPUseTLS,
		&relay.IMAPHost, &relay.IMAPPort, &relay.IMAPUseSSL,
		&relay.Active, &relay.DailyLimit, &relay.DailySent,
		&relay.CreatedAt, &relay.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	relay.Username, err = d.encryptor.DecryptIfEnabled(encryptedUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt username: %w", err)
	}
	relay.Password, err = d.encryptor.DecryptIfEnabled(encryptedPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password: %w", err)
	}

	return relay, nil
}

// Template operations

func (d *Database) CreateTemplate(ctx context.Context, template *models.MessageTemplate) error {
	result, err := d.db.ExecContext(ctx, insertTemplateQuery, template.Subject, template.Body)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	template.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get template ID: %w", err)
	}
	return nil
}

func (d *Database) GetTemplate(ctx context.Context, id int64) (*models.MessageTemplate, error) {
	template := &models.MessageTemplate{}
	err := d.db.QueryRowContext(ctx, selectTemplateByIDQuery, id).Scan(
		&template.ID, &template.Subject, &template.Body,
		&template.CreatedAt, &template.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return template, nil
}

func (d *Database) ListTemplates(ctx context.Context) ([]*models.MessageTemplate, error) {
	rows, err := d.db.QueryContext(ctx, selectAllTemplatesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.MessageTemplate
	for rows.Next() {
		template := &models.MessageTemplate{}
		if err := rows.Scan(
			&template.ID, &template.Subject, &template.Body,
			&template.CreatedAt, &template.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, template)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}
	return templates, nil
}

func (d *Database) DeleteTemplate(ctx context.Context, id int64) error {
	result, err := d.db.ExecContext(ctx, deleteTemplateQuery, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no template found with ID: %d", id)
	}
	return nil
}

// Verification operations

// UpsertVerification writes a verdict keyed on the recipient address. A
// repeat write for the same recipient overwrites the previous verdict, so
// retries of the same bounce check are harmless.
func (d *Database) UpsertVerification(ctx context.Context, record *models.VerificationRecord) error {
	encryptedRecipient, err := d.encryptor.EncryptForLookupIfEnabled(record.Recipient)
	if err != nil {
		return fmt.Errorf("failed to encrypt recipient: %w", err)
	}

	return retryableDBOperation(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, upsertVerificationQuery,
			record.RelayID, encryptedRecipient, record.Status,
			record.CheckedAt, record.ErrorMessage,
		)
		return execErr
	}, "upsert verification")
}

func (d *Database) GetVerificationByRecipient(ctx context.Context, recipient string) (*models.VerificationRecord, error) {
	encryptedRecipient, err := d.encryptor.EncryptForLookupIfEnabled(recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt recipient: %w", err)
	}

	record := &models.VerificationRecord{}
	var storedRecipient string
	err = d.db.QueryRowContext(ctx, selectVerificationByRecipientQuery, encryptedRecipient).Scan(
		&record.ID, &record.RelayID, &storedRecipient, &record.Status,
		&record.CheckedAt, &record.ErrorMessage,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification: %w", err)
	}

	record.Recipient, err = d.encryptor.DecryptIfEnabled(storedRecipient)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt recipient: %w", err)
	}
	return record, nil
}

func (d *Database) ListVerifications(ctx context.Context, limit int) ([]*models.VerificationRecord, error) {
	rows, err := d.db.QueryContext(ctx, selectVerificationsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query verifications: %w", err)
	}
	defer rows.Close()

	var records []*models.VerificationRecord
	for rows.Next() {
		record := &models.VerificationRecord{}
		var storedRecipient string
		if err := rows.Scan(
			&record.ID, &record.RelayID, &storedRecipient, &record.Status,
			&record.CheckedAt, &record.ErrorMessage,
			&record.CreatedAt, &record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		record.Recipient, err = d.encryptor.DecryptIfEnabled(storedRecipient)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt recipient: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate verifications: %w", err)
	}
	return records, nil
}

func (d *Database) CleanupOldVerifications(ctx context.Context, retentionDays int) error {
	_, err := d.db.ExecContext(ctx, deleteOldVerificationsQuery, retentionDays)
	if err != nil {
		return fmt.Errorf("failed to cleanup old verifications: %w", err)
	}
	return nil
}
