package validation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEvent(t *testing.T) {
	v := NewValidatorWithLimits(32, true)

	tests := []struct {
		name     string
		data     []byte
		wantCode errors.ErrorCode
	}{
		{"valid", []byte(`{"message":"ok"}`), errors.ErrCodeOK},
		{"empty", nil, errors.ErrCodeInvalidEvent},
		{"too large", []byte(`{"message":"` + strings.Repeat("x", 40) + `"}`), errors.ErrCodeEventTooLarge},
		{"not json", []byte(`{"message":`), errors.ErrCodeInvalidEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateEvent(tt.data)
			if tt.wantCode == errors.ErrCodeOK {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
		})
	}
}

func TestValidateEvent_OpaquePayloads(t *testing.T) {
	v := NewValidatorWithLimits(MaxItemSize, false)
	assert.NoError(t, v.ValidateEvent([]byte("not json at all")))
}

func TestValidateFeatureName(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateFeatureName("logs"))
	assert.NoError(t, v.ValidateFeatureName("session-replay_2"))
	assert.Error(t, v.ValidateFeatureName(""))
	assert.Error(t, v.ValidateFeatureName("../etc"))
	assert.Error(t, v.ValidateFeatureName(strings.Repeat("a", MaxFeatureNameSize+1)))
}

func TestValidateTags(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTags([]string{"env:prod", "version:1.2"}))
	assert.Error(t, v.ValidateTags([]string{"env:prod", " "}))
	assert.Error(t, v.ValidateTags([]string{"a\x00b"}))
	assert.Error(t, v.ValidateTags(make([]string, MaxTagCount+1)))
}

func TestSanitizeTag(t *testing.T) {
	assert.Equal(t, "env:my_prod", SanitizeTag("  Env:My Prod\n"))
	assert.Len(t, SanitizeTag(strings.Repeat("a", 300)), MaxTagSize)
}

func TestSanitizeTag_TruncatesOnRuneBoundary(t *testing.T) {
	tag := SanitizeTag("a" + strings.Repeat("é", 150))

	assert.True(t, utf8.ValidString(tag))
	assert.Len(t, tag, MaxTagSize-1)
	assert.Equal(t, "a"+strings.Repeat("é", 99), tag)
}

func TestEstimateWriteSize(t *testing.T) {
	data := make([]byte, 100)
	assert.Equal(t, uint64(110), EstimateWriteSize(data, false))
	assert.Greater(t, EstimateWriteSize(data, true), EstimateWriteSize(data, false))
}
