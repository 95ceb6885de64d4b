package ierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	t.Run("direct error", func(t *testing.T) {
		err := New(ErrorCodeFailedPrecondition, errors.New("base url is not configured"))

		assert.Equal(t, ErrorCodeFailedPrecondition, CodeOf(err))
		assert.Equal(t, "FailedPrecondition: base url is not configured", err.Error())
	})

	t.Run("wrapped error", func(t *testing.T) {
		err := fmt.Errorf("activate: %w", New(ErrorCodeInvalidArgument, errors.New("bad subject")))

		assert.Equal(t, ErrorCodeInvalidArgument, CodeOf(err))
		assert.True(t, HasCode(err, ErrorCodeInvalidArgument))
	})

	t.Run("foreign error", func(t *testing.T) {
		assert.Equal(t, ErrorCodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, HasCode(nil, ErrorCodeInternal))
	})

	t.Run("unwrap keeps cause", func(t *testing.T) {
		cause := errors.New("cause")
		err := New(ErrorCodeUnavailable, cause)

		assert.ErrorIs(t, err, cause)
	})
}

func TestError_Is(t *testing.T) {
	sentinel := New(ErrorCodeFailedPrecondition, errors.New("not active"))

	assert.ErrorIs(t, fmt.Errorf("force reconnect: %w", sentinel), sentinel)
	assert.NotErrorIs(t, New(ErrorCodeFailedPrecondition, errors.New("other")), sentinel)
	assert.NotErrorIs(t, New(ErrorCodeInternal, errors.New("not active")), sentinel)
}
