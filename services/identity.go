package services

import (
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const maxIdentityLength = 254

// NormalizeIdentity returns the canonical leaderboard key for raw: a
// lower-cased bare email address or account UUID.
func NormalizeIdentity(raw string) (string, error) {
	// Casers keep state, so one per call.
	id := cases.Lower(language.Und).String(norm.NFC.String(strings.TrimSpace(raw)))
	if id == "" {
		return "", validationf("identity is required")
	}
	if len(id) > maxIdentityLength {
		return "", validationf("identity is too long")
	}
	if u, err := uuid.Parse(id); err == nil {
		return u.String(), nil
	}
	addr, err := mail.ParseAddress(id)
	if err != nil || addr.Address != id || addr.Name != "" {
		return "", validationf("identity %q is not an email address or account id", raw)
	}
	at := strings.LastIndex(id, "@")
	if at <= 0 || !strings.Contains(id[at+1:], ".") {
		return "", validationf("identity %q is not an email address or account id", raw)
	}
	return id, nil
}

// normalizeIdentities normalises and de-duplicates, keeping first-seen order.
func normalizeIdentities(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		id, err := NormalizeIdentity(r)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}
