package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/clockwise/internal/ratelimit"
	"go.uber.org/zap"
)

// admit reports whether the request may proceed. Limiter failures let the
// request through.
func (s *Server) admit(c *gin.Context, endpoint string, res ratelimit.Result, err error) bool {
	ctx := c.Request.Context()
	if err != nil {
		s.log.Warn("rate limiter unavailable", zap.String("endpoint", endpoint), zap.Error(err))
		s.metrics.RecordThrottle(ctx, endpoint, "unavailable")
		return true
	}
	if res.Allowed {
		s.metrics.RecordThrottle(ctx, endpoint, "allowed")
		return true
	}
	s.metrics.RecordThrottle(ctx, endpoint, "denied")
	c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
	AbortWithError(c, ratelimit.ErrRateLimited)
	return false
}

func (s *Server) admitHealthCheck(c *gin.Context) bool {
	if s.throttle == nil {
		return true
	}
	res, err := s.throttle.AllowHealthCheck(c.Request.Context())
	return s.admit(c, "health_check", res, err)
}

func (s *Server) admitManualEvent(c *gin.Context, caller string) bool {
	if s.throttle == nil {
		return true
	}
	res, err := s.throttle.AllowManualEvent(c.Request.Context(), caller)
	return s.admit(c, "manual_event", res, err)
}
