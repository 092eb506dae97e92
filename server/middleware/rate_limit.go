package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/models"
)

// RateLimiter is a per-client token bucket limiter.
type RateLimiter struct {
	clients    map[string]*ClientBucket
	mutex      sync.RWMutex
	cleanup    *time.Ticker
	stopCh     chan struct{}
	once       sync.Once
	logger     *zap.Logger
	defaultRPS int
	burst      int
}

type ClientBucket struct {
	tokens     float64
	lastUpdate time.Time
	mutex      sync.Mutex
}

func NewRateLimiter(defaultRPS, burst int, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		clients:    make(map[string]*ClientBucket),
		stopCh:     make(chan struct{}),
		defaultRPS: defaultRPS,
		burst:      burst,
		logger:     logger,
	}

	rl.cleanup = time.NewTicker(5 * time.Minute)
	go rl.cleanupExpiredClients()

	return rl
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return rl.RateLimitWithConfig(rl.defaultRPS, rl.burst)
}

// RateLimitWithConfig limits a route group with its own rate. Buckets are keyed by
// client and rate so a stricter group does not drain the default bucket.
func (rl *RateLimiter) RateLimitWithConfig(rps int, burst int) gin.HandlerFunc {
	scope := strconv.Itoa(rps) + "/" + strconv.Itoa(burst)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !rl.allowRequest(scope+"|"+clientIP, rps, burst) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("client_ip", clientIP),
				zap.String("path", c.Request.URL.Path),
				zap.Int("rps", rps))

			retryAfter := int(math.Ceil(1 / math.Max(float64(rps), 1e-3)))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			abortWithError(c, http.StatusTooManyRequests, models.CodeRateLimitExceeded, "Rate limit exceeded",
				map[string]any{"retry_after": retryAfter})
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) allowRequest(key string, rps, burst int) bool {
	rl.mutex.Lock()
	bucket, exists := rl.clients[key]
	if !exists {
		bucket = &ClientBucket{
			tokens:     float64(burst),
			lastUpdate: time.Now(),
		}
		rl.clients[key] = bucket
	}
	rl.mutex.Unlock()

	return bucket.allowRequest(rps, burst)
}

func (cb *ClientBucket) allowRequest(rps, burst int) bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	cb.tokens = math.Min(float64(burst), cb.tokens+now.Sub(cb.lastUpdate).Seconds()*float64(rps))
	cb.lastUpdate = now

	if cb.tokens >= 1 {
		cb.tokens--
		return true
	}

	return false
}

func (rl *RateLimiter) cleanupExpiredClients() {
	for {
		select {
		case <-rl.cleanup.C:
			rl.mutex.Lock()
			now := time.Now()
			for key, bucket := range rl.clients {
				bucket.mutex.Lock()
				if now.Sub(bucket.lastUpdate) > 10*time.Minute {
					delete(rl.clients, key)
				}
				bucket.mutex.Unlock()
			}
			rl.mutex.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) GetGlobalStats() map[string]any {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	return map[string]any{
		"active_buckets": len(rl.clients),
		"default_rps":    rl.defaultRPS,
		"burst_capacity": rl.burst,
	}
}

func (rl *RateLimiter) Shutdown() {
	rl.once.Do(func() {
		rl.cleanup.Stop()
		close(rl.stopCh)
	})
}
