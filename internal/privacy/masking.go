package privacy

import (
	"strings"
)

// MaskEmail masks the local part of an address, keeping the first
// character and the full domain so log lines stay correlatable.
// Example: "target@example.com" -> "t*****@example.com"
func MaskEmail(address string) string {
	if address == "" {
		return ""
	}

	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return maskString(address, 0)
	}

	local := address[:at]
	domain := address[at:]

	if len(local) == 1 {
		return "*" + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + domain
}

// MaskHost masks a hostname keeping its last two labels.
// Example: "smtp.eu-west.relay.example.com" -> "****.example.com"
func MaskHost(host string) string {
	if host == "" {
		return ""
	}

	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return "****." + strings.Join(labels[len(labels)-2:], ".")
}

// MaskCredential hides a credential entirely, reporting only whether one
// was set.
func MaskCredential(credential string) string {
	if credential == "" {
		return ""
	}
	return "[redacted]"
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{})
	for k, v := range fields {
		switch k {
		case "recipient", "email", "email_address", "from", "to":
			if s, ok := v.(string); ok {
				masked[k] = MaskEmail(s)
			} else {
				masked[k] = v
			}
		case "smtp_host", "imap_host", "host":
			if s, ok := v.(string); ok {
				masked[k] = MaskHost(s)
			} else {
				masked[k] = v
			}
		case "password", "username", "secret", "api_key":
			if s, ok := v.(string); ok {
				masked[k] = MaskCredential(s)
			} else {
				masked[k] = v
			}
		default:
			masked[k] = v
		}
	}

	return masked
}
