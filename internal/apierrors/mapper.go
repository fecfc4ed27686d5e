package apierrors

import (
	"errors"

	"call-relay/internal/voicecall/processor"
)

// MapError converts processor errors to APIErrors. Unknown errors become a
// sanitized 500.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, processor.ErrInvalidPhoneNumber):
		return BadRequest(CodeInvalidPhoneNumber, "Phone number must be in E.164 format, e.g. +18885551212")

	case errors.Is(err, processor.ErrCallFailed):
		return ServiceUnavailable(CodeTelephonyError,
			"Telephony provider is temporarily unavailable. Please try again later.", err)

	default:
		return InternalError(err)
	}
}
