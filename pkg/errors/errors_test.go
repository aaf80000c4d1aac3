package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageFormat(t *testing.T) {
	err := New(KindCaptchaRejected, "portal rejected the captcha answer").WithAccount("00012345")
	assert.Contains(t, err.Error(), "captcha_rejected")
	assert.Contains(t, err.Error(), "00012345")
	assert.Contains(t, err.Error(), "portal rejected the captcha answer")
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindPortalUnavailable, "failed to fetch login page", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithAccountDoesNotMutate(t *testing.T) {
	base := New(KindDownloadFailed, "export failed")
	annotated := base.WithAccount("00012345").WithTask("逐日", "2024-01-03")

	assert.Empty(t, base.Account)
	assert.Equal(t, "00012345", annotated.Account)
	assert.Equal(t, "逐日", annotated.Report)
	assert.Equal(t, "2024-01-03", annotated.Period)
}

func TestKindOfThroughWrapping(t *testing.T) {
	inner := New(KindInvalidCredentials, "portal rejected the credentials")
	outer := fmt.Errorf("login: %w", inner)

	assert.Equal(t, KindInvalidCredentials, KindOf(outer))
	assert.True(t, IsKind(outer, KindInvalidCredentials))
	assert.False(t, IsKind(outer, KindCaptchaRejected))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(KindPortalUnavailable))
	assert.True(t, IsRetryable(KindCaptchaRejected))
	assert.False(t, IsRetryable(KindInvalidCredentials))
	assert.False(t, IsRetryable(KindDownloadFailed))
}

func TestErrorWithoutAccount(t *testing.T) {
	err := New(KindPortalUnavailable, "timeout")
	require.NotContains(t, err.Error(), "account")
}
