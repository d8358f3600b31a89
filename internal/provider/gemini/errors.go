package gemini

import (
	"net/http"
	"strings"

	"github.com/storyloom/storyloom/internal/domain"
)

// Classify maps a raw HTTP failure from the Gemini API to the canonical
// error taxonomy. Pure function; the error envelope's gRPC-style status
// string is preferred over the HTTP status line when present.
func Classify(status int, body []byte) domain.ErrorKind {
	if apiErr := parseAPIError(body); apiErr != nil {
		switch apiErr.Status {
		case "INVALID_ARGUMENT", "NOT_FOUND", "FAILED_PRECONDITION":
			return domain.ErrorKindMalformedRequest
		case "UNAUTHENTICATED":
			return domain.ErrorKindAuthInvalid
		case "PERMISSION_DENIED":
			if strings.Contains(strings.ToLower(apiErr.Message), "api key") {
				return domain.ErrorKindAuthInvalid
			}
			return domain.ErrorKindContentRejected
		case "RESOURCE_EXHAUSTED":
			if strings.Contains(strings.ToLower(apiErr.Message), "quota") {
				return domain.ErrorKindQuotaExceeded
			}
			return domain.ErrorKindRateLimited
		case "DEADLINE_EXCEEDED":
			return domain.ErrorKindTimeout
		case "UNAVAILABLE", "INTERNAL":
			return domain.ErrorKindServerUnavailable
		}
	}

	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		return domain.ErrorKindMalformedRequest
	case http.StatusUnauthorized:
		return domain.ErrorKindAuthInvalid
	case http.StatusForbidden:
		return domain.ErrorKindContentRejected
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return domain.ErrorKindTimeout
	case http.StatusTooManyRequests:
		return domain.ErrorKindRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable:
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
