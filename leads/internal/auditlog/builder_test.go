package auditlog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschelli/lead-lander-sub001/common/audit"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

func TestBuilder_Entry(t *testing.T) {
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	b := NewBuilder(audit.NewSigner("s3cret")).WithClock(func() time.Time { return fixed })
	subID := "sub-1"

	entry, err := b.Entry("client-1", &subID, models.EventSubmissionCreated, SubmissionCreated{
		Status:         models.StatusReceived,
		AccountID:      "acct-1",
		ProgramID:      "prog-1",
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, fixed, entry.CreatedAt)
	assert.Equal(t, "sub-1", *entry.SubmissionID)
	assert.True(t, b.Verify(entry))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(entry.Payload, &payload))
	assert.Equal(t, "received", payload["status"])
	assert.Equal(t, "k1", payload["idempotencyKey"])

	entry.Payload = []byte(`{"status":"delivered"}`)
	assert.False(t, b.Verify(entry), "tampered payload must not verify")
}

func TestBuilder_EntryRejectsUnmarshalable(t *testing.T) {
	b := NewBuilder(audit.NewSigner("s"))
	_, err := b.Entry("c", nil, models.EventRequeued, map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}
