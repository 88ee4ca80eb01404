// Package ratelimit throttles abuse-prone endpoints such as login and
// password-reset requests.
package ratelimit

import (
	"context"
	"strings"
)

// Limiter reports whether one more request for key fits its quota.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}
