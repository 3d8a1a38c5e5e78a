package delivery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Validate(t *testing.T) {
	assert.NoError(t, Message{To: "a@b.c", Text: "hi"}.Validate("test"))
	assert.NoError(t, Message{To: "anything-opaque", HTML: "<p>hi</p>"}.Validate("test"))

	err := Message{Text: "hi"}.Validate("test")
	var deliveryErr *Error
	require.ErrorAs(t, err, &deliveryErr)
	assert.False(t, deliveryErr.IsRetryable())
	assert.ErrorIs(t, err, ErrNoRecipient)

	assert.Error(t, Message{To: "a@b.c"}.Validate("test"))
}

func TestError_Error(t *testing.T) {
	cause := errors.New("boom")

	withStatus := &Error{Provider: "resend", StatusCode: 503, Retryable: true, Err: cause}
	assert.Equal(t, "resend delivery failed with status 503: boom", withStatus.Error())
	assert.True(t, withStatus.IsRetryable())
	assert.ErrorIs(t, withStatus, cause)

	noStatus := &Error{Provider: "smtp", Err: cause}
	assert.Equal(t, "smtp delivery failed: boom", noStatus.Error())
}
