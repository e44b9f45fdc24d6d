package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSigner_SignEntry(t *testing.T) {
	signer := NewSigner("test-secret")
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"status":"received"}`)

	sig := signer.SignEntry("entry-1", "client-1", "submission_created", ts, payload)
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, signer.SignEntry("entry-1", "client-1", "submission_created", ts, payload))

	assert.True(t, signer.VerifyEntry("entry-1", "client-1", "submission_created", ts, payload, sig))
	assert.True(t, signer.VerifyEntry("entry-1", "client-1", "submission_created", ts.In(time.FixedZone("x", 3600)), payload, sig))
	assert.False(t, signer.VerifyEntry("entry-1", "client-2", "submission_created", ts, payload, sig))
	assert.False(t, signer.VerifyEntry("entry-1", "client-1", "delivery_failed", ts, payload, sig))
	assert.False(t, signer.VerifyEntry("entry-1", "client-1", "submission_created", ts, []byte(`{}`), sig))
	assert.False(t, NewSigner("other").VerifyEntry("entry-1", "client-1", "submission_created", ts, payload, sig))
}

func TestSigner_FieldBoundaries(t *testing.T) {
	signer := NewSigner("k")
	ts := time.Unix(0, 0)
	assert.NotEqual(t,
		signer.SignEntry("ab", "c", "e", ts, nil),
		signer.SignEntry("a", "bc", "e", ts, nil))
}

func TestSignBody(t *testing.T) {
	assert.Equal(t, SignBody("key", []byte(`{"a":1}`)), SignBody("key", []byte(`{"a":1}`)))
	assert.NotEqual(t, SignBody("key", []byte(`{"a":1}`)), SignBody("key2", []byte(`{"a":1}`)))
}
