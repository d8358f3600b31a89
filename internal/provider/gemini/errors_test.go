package gemini

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
			name:   "invalid argument",
			status: 400,
			body:   `{"error":{"code":400,"message":"Invalid JSON payload","status":"INVALID_ARGUMENT"}}`,
			want:   domain.ErrorKindMalformedRequest,
		},
		{
			name:   "bad api key",
			status: 400,
			body:   `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`,
			want:   domain.ErrorKindMalformedRequest,
		},
		{
			name:   "unauthenticated",
			status: 401,
			body:   `{"error":{"code":401,"message":"Request had invalid authentication credentials","status":"UNAUTHENTICATED"}}`,
			want:   domain.ErrorKindAuthInvalid,
		},
		{
			name:   "permission denied for api key",
			status: 403,
			body:   `{"error":{"code":403,"message":"The API key is missing required permissions","status":"PERMISSION_DENIED"}}`,
			want:   domain.ErrorKindAuthInvalid,
		},
		{
			name:   "permission denied for content",
			status: 403,
			body:   `{"error":{"code":403,"message":"Request blocked","status":"PERMISSION_DENIED"}}`,
			want:   domain.ErrorKindContentRejected,
		},
		{
			name:   "rate limited",
			status: 429,
			body:   `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check rate limits)","status":"RESOURCE_EXHAUSTED"}}`,
			want:   domain.ErrorKindRateLimited,
		},
		{
			name:   "quota exhausted",
			status: 429,
			body:   `{"error":{"code":429,"message":"Quota exceeded for quota metric","status":"RESOURCE_EXHAUSTED"}}`,
			want:   domain.ErrorKindQuotaExceeded,
		},
		{
			name:   "deadline exceeded",
			status: 504,
			body:   `{"error":{"code":504,"message":"Deadline expired","status":"DEADLINE_EXCEEDED"}}`,
			want:   domain.ErrorKindTimeout,
		},
		{
			name:   "unavailable",
			status: 503,
			body:   `{"error":{"code":503,"message":"The service is currently unavailable","status":"UNAVAILABLE"}}`,
			want:   domain.ErrorKindServerUnavailable,
		},
		{
			name:   "empty body falls back to status",
			status: 500,
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
