package ratelimit

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// SetHeaders writes the decision onto the response. Retry-After is only set on rejection.
func SetHeaders(c *gin.Context, d Decision) {
	c.Header(HeaderLimit, strconv.Itoa(d.Limit))
	c.Header(HeaderRemaining, strconv.Itoa(d.Remaining))
	c.Header(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		c.Header(HeaderRetryAfter, strconv.Itoa(d.RetryAfterSeconds()))
	}
}

// ClientKey picks the caller identity: the configured header when present, else the client IP
// as resolved by gin's trusted proxy settings.
func ClientKey(c *gin.Context, header string) string {
	if header != "" {
		if v := c.GetHeader(header); v != "" {
			return v
		}
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}
