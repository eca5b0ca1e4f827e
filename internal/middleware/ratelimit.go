package middleware

import (
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"repolaunch-server/internal/config"
	"repolaunch-server/internal/store"
	"repolaunch-server/pkg/response"
)

// LaunchRateLimit caps session creations per client IP with a rolling
// TTL'd counter in the durable store. The window's TTL doubles as the leak
// safety net: a counter nobody decrements simply expires.
func LaunchRateLimit(st store.Store, cfg *config.Config, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := store.RateLimitKey("ip", c.ClientIP())
		count, err := st.IncrCounter(c.Request.Context(), key, cfg.Limits.SessionsPerIPWindow)
		if err != nil {
			// Degrade open on a store hiccup; launches still hit the
			// per-repo limits in the coordinator.
			logger.Warn("rate limit counter unavailable", "err", err)
			c.Next()
			return
		}
		if count > int64(cfg.Limits.SessionsPerIP) {
			response.RateLimited(c, "too many launches from this address, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}
