package anthropic

import (
	"testing"

	"github.com/storyloom/storyloom/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.ErrorKind
	}{
		{
			name:   "invalid request",
			status: 400,
			body:   `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens required"}}`,
			want:   domain.ErrorKindMalformedRequest,
		},
		{
			name:   "authentication error",
			status: 401,
			body:   `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			want:   domain.ErrorKindAuthInvalid,
		},
		{
			name:   "permission error",
			status: 403,
			body:   `{"type":"error","error":{"type":"permission_error","message":"not allowed"}}`,
			want:   domain.ErrorKindContentRejected,
		},
		{
			name:   "rate limit",
			status: 429,
			body:   `{"type":"error","error":{"type":"rate_limit_error","message":"rate limit exceeded"}}`,
			want:   domain.ErrorKindRateLimited,
		},
		{
			name:   "credit exhaustion behind rate limit",
			status: 429,
			body:   `{"type":"error","error":{"type":"rate_limit_error","message":"Your credit balance is too low"}}`,
			want:   domain.ErrorKindQuotaExceeded,
		},
		{
			name:   "overloaded",
			status: 529,
			body:   `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			want:   domain.ErrorKindServerUnavailable,
		},
		{
			name:   "api error",
			status: 500,
			body:   `{"type":"error","error":{"type":"api_error","message":"internal server error"}}`,
			want:   domain.ErrorKindServerUnavailable,
		},
		{
			name:   "empty body falls back to status",
			status: 529,
			body:   ``,
			want:   domain.ErrorKindServerUnavailable,
		},
		{
			name:   "unclassifiable",
			status: 418,
			body:   ``,
			want:   domain.ErrorKindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.status, []byte(tt.body))
			if got != tt.want {
				t.Errorf("Classify(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
			}
		})
	}
}
