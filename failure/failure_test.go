package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	cause := errors.New("moov atom not found")
	err := fmt.Errorf("analyze: %w", New(Decode, "ffprobe", cause))

	assert.Equal(t, Decode, KindOf(err))
	assert.True(t, Is(err, Decode))
	assert.False(t, Is(err, Analysis))
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTranscriptionUnavailable)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("boom")))
	assert.Equal(t, Unknown, KindOf(nil))
	assert.False(t, Is(nil, Unknown))
}

func TestErrorMessage(t *testing.T) {
	err := Newf(InvalidRequest, "analyze", "unsupported mode %q", "slow")
	assert.Equal(t, `invalid_request: analyze: unsupported mode "slow"`, err.Error())
	assert.Equal(t, "transcription_unavailable", New(TranscriptionUnavailable, "", nil).Error())
}
