package validation

import (
	"fmt"
	"net/mail"
	"strings"

	"mailprobe/internal/constants"
	"mailprobe/internal/errors"
	"mailprobe/internal/models"
)

// ValidateRecipient validates an email address for use as a probe target.
// The address must be a bare RFC 5322 addr-spec without a display name.
func ValidateRecipient(address string) error {
	if address == "" {
		return errors.New(errors.ErrCodeInvalidInput, "recipient address cannot be empty")
	}

	if len(address) > constants.MaxAddressLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("recipient address too long (max %d characters)", constants.MaxAddressLength))
	}

	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "recipient address is not valid")
	}

	// Reject display names; "Bob <bob@example.com>" is not a bare address
	if parsed.Address != address {
		return errors.New(errors.ErrCodeInvalidInput, "recipient address must be a bare address")
	}

	at := strings.LastIndex(address, "@")
	localPart := address[:at]
	domain := address[at+1:]

	if len(localPart) > constants.MaxLocalPartLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("recipient local part too long (max %d characters)", constants.MaxLocalPartLength))
	}

	if !strings.Contains(domain, ".") {
		return errors.New(errors.ErrCodeInvalidInput, "recipient domain must be fully qualified")
	}

	return nil
}

// ValidateRelayConfig checks a relay configuration before it is persisted.
func ValidateRelayConfig(relay *models.RelayConfig) error {
	if relay == nil {
		return errors.New(errors.ErrCodeInvalidInput, "relay configuration cannot be nil")
	}

	if strings.TrimSpace(relay.Name) == "" {
		return errors.New(errors.ErrCodeValidationFailed, "relay name cannot be empty")
	}

	if err := ValidateRecipient(relay.EmailAddress); err != nil {
		return errors.New(errors.ErrCodeValidationFailed, "relay email address is not valid")
	}

	if strings.TrimSpace(relay.SMTPHost) == "" {
		return errors.New(errors.ErrCodeValidationFailed, "relay SMTP host cannot be empty")
	}

	if relay.SMTPPort < 1 || relay.SMTPPort > 65535 {
		return errors.New(errors.ErrCodeValidationFailed,
			fmt.Sprintf("relay SMTP port out of range: %d", relay.SMTPPort))
	}

	if strings.TrimSpace(relay.IMAPHost) == "" {
		return errors.New(errors.ErrCodeValidationFailed, "relay IMAP host cannot be empty")
	}

	if relay.IMAPPort < 1 || relay.IMAPPort > 65535 {
		return errors.New(errors.ErrCodeValidationFailed,
			fmt.Sprintf("relay IMAP port out of range: %d", relay.IMAPPort))
	}

	if relay.DailyLimit < 1 {
		return errors.New(errors.ErrCodeValidationFailed, "relay daily limit must be positive")
	}

	if relay.Username == "" {
		return errors.New(errors.ErrCodeValidationFailed, "relay username cannot be empty")
	}

	if relay.Password == "" {
		return errors.New(errors.ErrCodeValidationFailed, "relay password cannot be empty")
	}

	return nil
}

// ValidateTemplate checks a message template before it is persisted.
func ValidateTemplate(template *models.MessageTemplate) error {
	if template == nil {
		return errors.New(errors.ErrCodeInvalidInput, "template cannot be nil")
	}

	if strings.TrimSpace(template.Subject) == "" {
		return errors.New(errors.ErrCodeValidationFailed, "template subject cannot be empty")
	}

	if strings.TrimSpace(template.Body) == "" {
		return errors.New(errors.ErrCodeValidationFailed, "template body cannot be empty")
	}

	// Raw newlines in the subject would break the generated message headers
	if strings.ContainsAny(template.Subject, "\r\n") {
		return errors.New(errors.ErrCodeValidationFailed, "template subject cannot contain line breaks")
	}

	return nil
}
