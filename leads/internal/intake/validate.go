package intake

import (
	"net/mail"
	"strings"

	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// validEmail accepts a single bare address whose domain contains a dot.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// phoneDigits strips the separators a visitor may type. ok is false when
// anything else remains.
func phoneDigits(s string) (digits string, ok bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+', r == '(', r == ')', r == '-', r == '.', r == ' ':
		default:
			return "", false
		}
	}
	return b.String(), true
}

func validPhone(s string) bool {
	d, ok := phoneDigits(s)
	return ok && len(d) >= 10 && len(d) <= 15
}

func normalizeContact(c models.Contact) models.Contact {
	return models.Contact{
		FirstName: strings.TrimSpace(c.FirstName),
		LastName:  strings.TrimSpace(c.LastName),
		Email:     strings.TrimSpace(c.Email),
		Phone:     strings.TrimSpace(c.Phone),
	}
}

func validateContact(c models.Contact, verr *models.ValidationError) {
	required := []struct{ field, value string }{
		{"contact.firstName", c.FirstName},
		{"contact.lastName", c.LastName},
		{"contact.email", c.Email},
		{"contact.phone", c.Phone},
	}
	for _, r := range required {
		if r.value == "" {
			verr.Add(r.field, "is required")
		}
	}
	if c.Email != "" && !validEmail(c.Email) {
		verr.Add("contact.email", "invalid email address")
	}
	if c.Phone != "" && !validPhone(c.Phone) {
		verr.Add("contact.phone", "must contain 10 to 15 digits")
	}
}
