package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "medledger/pkg/domain-errors"
)

// TestParseRecordID_Invariants validates the parsing invariant:
// "ids are positive decimal integers"
func TestParseRecordID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseRecordID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects zero", func(t *testing.T) {
		_, err := ParseRecordID("0")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts positive id with surrounding whitespace", func(t *testing.T) {
		id, err := ParseRecordID(" 42 ")
		require.NoError(t, err)
		assert.Equal(t, RecordID(42), id)
	})
}

// TestParseID_TrustBoundary validates rejection of hostile input at API entry points.
func TestParseID_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "1; DROP TABLE records;--", true},
		{"Negative", "-1", true},
		{"Signed positive", "+1", true},
		{"Hex", "0x10", true},
		{"Null byte", "1\x00", true},
		{"Oversized input", strings.Repeat("9", 1000), true},
		{"Overflow", "18446744073709551616", true},
		{"Whitespace only", "   ", true},
		{"Max uint64", "18446744073709551615", false},
		{"Leading zeros", "007", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errRecord := ParseRecordID(tt.input)
			_, errRequest := ParseAccessRequestID(tt.input)
			if tt.wantErr {
				require.Error(t, errRecord)
				require.Error(t, errRequest)
				assert.True(t, dErrors.HasCode(errRecord, dErrors.CodeInvalidInput))
				assert.True(t, dErrors.HasCode(errRequest, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, errRecord)
				require.NoError(t, errRequest)
			}
		})
	}
}

func TestIDStrings(t *testing.T) {
	assert.Equal(t, "12", RecordID(12).String())
	assert.Equal(t, "7", AccessRequestID(7).String())
	assert.True(t, ParticipantID("").IsZero())
	assert.False(t, ParticipantID("0xabc").IsZero())
}
