package utils

import (
	"strings"
)

// SplitAndTrim splits a comma separated list, dropping blank entries.
func SplitAndTrim(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

// MaskEmail keeps recipient addresses out of logs in readable form.
func MaskEmail(email string) string {
	if len(email) < 5 {
		return email
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}

	username := parts[0]
	domain := parts[1]

	if len(username) > 2 {
		maskedUsername := string(username[0]) + "***" + string(username[len(username)-1])
		return maskedUsername + "@" + domain
	}

	return username + "@" + domain
}
