package atmerr

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      New(KindValidation, "empty input", nil),
			expected: "empty input",
		},
		{
			name: "details are sorted",
			err: New(KindInvalidNoiseLevel, "invalid noise level", Details{
				"valid_levels": []int{0, 10},
				"noise_level":  15,
			}),
			expected: "invalid noise level (noise_level=15, valid_levels=[0 10])",
		},
		{
			name:     "with cause",
			err:      Wrap(fmt.Errorf("boom"), KindAPI, "translation call failed", Details{"stage": 2}),
			expected: "translation call failed (stage=2): boom",
		},
		{
			name:     "kind as fallback message",
			err:      &Error{Kind: KindAnalysis},
			expected: "analysis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	err := errors.Wrap(New(KindSkillNotFound, "skill not found", Details{"path": "/x"}), "loading chain")

	assert.True(t, errors.Is(err, ErrSkillNotFound))
	assert.False(t, errors.Is(err, ErrAPI))
	assert.Equal(t, KindSkillNotFound, KindOf(err))
	assert.Equal(t, "/x", DetailsOf(err)["path"])
}

func TestError_Unwrap(t *testing.T) {
	err := Wrap(context.Canceled, KindAPI, "call failed", nil)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, ErrAPI))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(fmt.Errorf("plain")))
	assert.Nil(t, DetailsOf(nil))
}
