package anthropic

import (
	"net/http"
	"strings"

	"github.com/storyloom/storyloom/internal/domain"
)

// Classify maps a raw HTTP failure from the Anthropic messages API to the
// canonical error taxonomy. Pure function; the error envelope's type field
// is preferred over the status line when present.
func Classify(status int, body []byte) domain.ErrorKind {
	if apiErr := parseAPIError(body); apiErr != nil {
		switch apiErr.Type {
		case "invalid_request_error":
			return domain.ErrorKindMalformedRequest
		case "authentication_error":
			return domain.ErrorKindAuthInvalid
		case "permission_error":
			return domain.ErrorKindContentRejected
		case "not_found_error":
			return domain.ErrorKindMalformedRequest
		case "rate_limit_error":
			if strings.Contains(strings.ToLower(apiErr.Message), "credit") {
				return domain.ErrorKindQuotaExceeded
			}
			return domain.ErrorKindRateLimited
		case "overloaded_error":
			return domain.ErrorKindServerUnavailable
		case "api_error":
			return domain.ErrorKindServerUnavailable
		case "timeout_error":
			return domain.ErrorKindTimeout
		}
	}

	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		return domain.ErrorKindMalformedRequest
	case http.StatusUnauthorized:
		return domain.ErrorKindAuthInvalid
	case http.StatusForbidden:
		return domain.ErrorKindContentRejected
	case http.StatusTooManyRequests:
		return domain.ErrorKindRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, 529:
		return domain.ErrorKindServerUnavailable
	default:
		return domain.ErrorKindUnknown
	}
}

func errorMessage(body []byte) string {
	if apiErr := parseAPIError(body); apiErr != nil && apiErr.Message != "" {
		return apiErr.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}
