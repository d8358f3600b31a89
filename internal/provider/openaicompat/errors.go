package openaicompat

import (
	"net/http"
	"strings"

	"github.com/storyloom/storyloom/internal/domain"
)

// Classify maps a raw HTTP failure from an OpenAI-compatible backend to the
// canonical error taxonomy. It is a pure function over the status code and
// response payload; unrecognized failures resolve to ErrorKindUnknown.
func Classify(status int, body []byte) domain.ErrorKind {
	if kind, ok := classifyBody(body); ok {
		return kind
	}

	switch status {
	case http.StatusBadRequest, http.StatusNotFound,
		http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return domain.ErrorKindMalformedRequest
	case http.StatusUnauthorized:
		return domain.ErrorKindAuthInvalid
	case http.StatusPaymentRequired:
		return domain.ErrorKindQuotaExceeded
	case http.StatusForbidden:
		return domain.ErrorKindContentRejected
	case http.StatusRequestTimeout:
		return domain.ErrorKindTimeout
	case http.StatusTooManyRequests:
		return domain.ErrorKindRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout, 529:
		return domain.ErrorKindServerUnavailable
	default:
		return domain.ErrorKindUnknown
	}
}

// classifyBody inspects the error envelope for provider-specific codes that
// override the status-line mapping. A 429 carrying insufficient_quota is a
// billing problem, not a transient rate limit.
func classifyBody(body []byte) (domain.ErrorKind, bool) {
	apiErr := parseAPIError(body)
	if apiErr == nil {
		return "", false
	}

	code := strings.ToLower(apiErr.codeString())
	typ := strings.ToLower(apiErr.Type)

	switch {
	case code == "insufficient_quota" || typ == "insufficient_quota":
		return domain.ErrorKindQuotaExceeded, true
	case code == "invalid_api_key" || typ == "authentication_error":
		return domain.ErrorKindAuthInvalid, true
	case code == "content_filter" || code == "content_policy_violation" ||
		strings.Contains(typ, "content_policy"):
		return domain.ErrorKindContentRejected, true
	case code == "context_length_exceeded":
		return domain.ErrorKindMalformedRequest, true
	}
	return "", false
}

// errorMessage extracts the human-readable cause from an error payload,
// falling back to the raw body.
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
