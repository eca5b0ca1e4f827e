package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"repolaunch-server/internal/config"
	"repolaunch-server/internal/store"
)

func TestLaunchRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Limits: config.LimitsConfig{SessionsPerIP: 2, SessionsPerIPWindow: 3600},
	}
	st := store.NewMemoryStore(time.Hour, time.Hour)
	logger := log.New(io.Discard)

	router := gin.New()
	router.GET("/launch", LaunchRateLimit(st, cfg, logger), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/launch", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/launch", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
