package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		attr slog.Attr
		key  string
		want string
	}{
		{Service("leads"), FieldService, "leads"},
		{ClientID("c1"), FieldClientID, "c1"},
		{AccountID("a1"), FieldAccountID, "a1"},
		{SubmissionID("s1"), FieldSubmissionID, "s1"},
		{SessionID("q1"), FieldSessionID, "q1"},
		{JobKey("delivery:s1"), FieldJobKey, "delivery:s1"},
		{Outcome("success"), FieldOutcome, "success"},
		{IP("10.0.0.1"), FieldIP, "10.0.0.1"},
		{Method("POST"), FieldMethod, "POST"},
		{Path("/v1/submissions"), FieldPath, "/v1/submissions"},
		{Error(errors.New("boom")), FieldError, "boom"},
		{Error(nil), FieldError, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.key, tt.attr.Key)
		assert.Equal(t, tt.want, tt.attr.Value.String())
	}
}

func TestNumericFields(t *testing.T) {
	assert.Equal(t, int64(3), Attempt(3).Value.Int64())
	assert.Equal(t, int64(503), Status(503).Value.Int64())
	assert.Equal(t, int64(1500), Duration(1500*time.Millisecond).Value.Int64())
}
