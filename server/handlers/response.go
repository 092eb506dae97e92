package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/san-kum/probowler/server/models"
	"github.com/san-kum/probowler/server/processor"
)

// statusByCode maps API error codes to HTTP status codes.
var statusByCode = map[string]int{
	models.CodeInvalidRequest:         http.StatusBadRequest,
	models.CodeNoFeatures:             http.StatusUnprocessableEntity,
	models.CodePoseUnavailable:        http.StatusServiceUnavailable,
	models.CodeNotFound:               http.StatusNotFound,
	models.CodeQueueFull:              http.StatusServiceUnavailable,
	models.CodeRequestTimeout:         http.StatusRequestTimeout,
	models.CodeRateLimitExceeded:      http.StatusTooManyRequests,
	models.CodeUnauthorized:           http.StatusUnauthorized,
	models.CodeUnsupportedContentType: http.StatusUnsupportedMediaType,
	models.CodeProcessingFailed:       http.StatusInternalServerError,
}

func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func newMeta(start time.Time, version string) *models.ResponseMeta {
	return &models.ResponseMeta{
		RequestID:      uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		ProcessingTime: float64(time.Since(start).Microseconds()) / 1000,
		Version:        version,
	}
}

func respondOK(c *gin.Context, status int, data any, meta *models.ResponseMeta) {
	c.JSON(status, models.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// respondError writes err with the status matching its code. Internal errors are not
// echoed to the client.
func respondError(c *gin.Context, err error, meta *models.ResponseMeta) {
	code := processor.ErrorCode(err)
	message := err.Error()
	if code == models.CodeProcessingFailed {
		message = "Processing failed"
	}
	respondCode(c, code, message, meta)
}

func respondCode(c *gin.Context, code, message string, meta *models.ResponseMeta) {
	status := statusFor(code)
	if code == models.CodeQueueFull {
		c.Header("Retry-After", "30")
	}
	c.AbortWithStatusJSON(status, models.APIResponse{
		Success: false,
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
		Meta: meta,
	})
}
