package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseOpenAIRateLimitHeaders extracts rate limit info from OpenAI-compatible
// API headers.
func ParseOpenAIRateLimitHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}

	if retryAfter := headers.Get("retry-after"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	if reset := headers.Get("x-ratelimit-reset-requests"); reset != "" {
		if d, err := time.ParseDuration(reset); err == nil {
			info.RetryAfter = d
		}
	}

	if remaining := headers.Get("x-ratelimit-remaining-requests"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.RequestsRemaining = n
		}
	}
	if remaining := headers.Get("x-ratelimit-remaining-tokens"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.TokensRemaining = n
		}
	}

	return info
}
