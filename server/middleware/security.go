package middleware

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/models"
)

// allowedContentTypes are the request body types the API accepts.
var allowedContentTypes = []string{"application/json", "multipart/form-data", "text/csv"}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "no-referrer")

		c.Next()
	}
}

func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		wildcard := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
		switch {
		case wildcard:
			c.Header("Access-Control-Allow-Origin", "*")
		case slices.Contains(allowedOrigins, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		default:
			c.Header("Access-Control-Allow-Origin", "null")
		}

		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestSizeLimit rejects declared oversize bodies and caps the rest while reading.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			abortWithError(c, http.StatusRequestEntityTooLarge, models.CodeInvalidRequest, "Request too large",
				map[string]any{"max_size": maxSize})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

func IPWhitelist(allowedIPs []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !slices.Contains(allowedIPs, clientIP) && !slices.Contains(allowedIPs, "*") {
			abortWithError(c, http.StatusForbidden, models.CodeUnauthorized, "Access denied", nil)
			return
		}

		c.Next()
	}
}

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		fields := []zap.Field{
			zap.String("method", param.Method),
			zap.String("path", param.Path),
			zap.Int("status", param.StatusCode),
			zap.Duration("latency", param.Latency),
			zap.String("client_ip", param.ClientIP),
			zap.String("user_agent", param.Request.UserAgent()),
			zap.Int("body_size", param.BodySize),
		}
		if param.ErrorMessage != "" {
			fields = append(fields, zap.String("error", param.ErrorMessage))
		}

		switch {
		case param.StatusCode >= http.StatusInternalServerError:
			logger.Error("HTTP Request", fields...)
		case param.StatusCode >= http.StatusBadRequest:
			logger.Warn("HTTP Request", fields...)
		default:
			logger.Info("HTTP Request", fields...)
		}
		return ""
	})
}

// TimeoutHandler bounds the request context. Handlers that run past the deadline
// without writing get a 408.
func TimeoutHandler(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			abortWithError(c, http.StatusRequestTimeout, models.CodeRequestTimeout, "Request timeout", nil)
		}
	}
}

// InputValidation rejects POST bodies of unsupported media types and escapes query
// parameter values.
func InputValidation() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost {
			mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
			if err != nil || !slices.Contains(allowedContentTypes, mediaType) {
				abortWithError(c, http.StatusUnsupportedMediaType, models.CodeUnsupportedContentType, "Invalid content type",
					map[string]any{"allowed": allowedContentTypes})
				return
			}
		}

		query := c.Request.URL.Query()
		for _, values := range query {
			for i, value := range values {
				sanitized := strings.ReplaceAll(value, "&", "&amp;")
				sanitized = strings.ReplaceAll(sanitized, "<", "&lt;")
				sanitized = strings.ReplaceAll(sanitized, ">", "&gt;")
				sanitized = strings.ReplaceAll(sanitized, "\"", "&quot;")
				sanitized = strings.ReplaceAll(sanitized, "'", "&#x27;")
				values[i] = sanitized
			}
		}
		c.Request.URL.RawQuery = query.Encode()

		c.Next()
	}
}

// Probe reports the health of one dependency.
type Probe struct {
	Name    string
	Healthy func() bool
}

// HealthCheck reports the service as degraded when any probe fails. The status code
// stays 200 so the API remains routable while the pose service is down.
func HealthCheck(version string, probes ...Probe) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		checks := make(map[string]string, len(probes))
		for _, p := range probes {
			if p.Healthy() {
				checks[p.Name] = "up"
				continue
			}
			checks[p.Name] = "down"
			status = "degraded"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    status,
			"timestamp": time.Now().Unix(),
			"service":   "probowler",
			"version":   version,
			"checks":    checks,
		})
	}
}

func abortWithError(c *gin.Context, status int, code, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, models.APIResponse{
		Success: false,
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
