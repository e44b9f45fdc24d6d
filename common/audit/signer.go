// Package audit signs audit log entries and outbound payloads with HMAC-SHA256.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Signer computes tamper-evidence signatures. The zero secret still signs, but
// deployments must configure auth.audit_secret.
type Signer struct {
	secretKey []byte
}

func NewSigner(secretKey string) *Signer {
	return &Signer{secretKey: []byte(secretKey)}
}

// SignEntry signs the immutable fields of an audit entry.
func (s *Signer) SignEntry(entryID, clientID, event string, createdAt time.Time, payload []byte) string {
	h := hmac.New(sha256.New, s.secretKey)
	for _, part := range []string{entryID, clientID, event, createdAt.UTC().Format(time.RFC3339Nano)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyEntry reports whether signature matches the entry fields.
func (s *Signer) VerifyEntry(entryID, clientID, event string, createdAt time.Time, payload []byte, signature string) bool {
	expected := s.SignEntry(entryID, clientID, event, createdAt, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignBody signs a raw request body with key. Webhook connections use their own key.
func SignBody(key string, body []byte) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
