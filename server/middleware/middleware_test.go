package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.GET("/", ok)
	r.POST("/", ok)
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *models.APIError {
	t.Helper()

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestInputValidation(t *testing.T) {
	r := newRouter(InputValidation())

	tests := []struct {
		contentType string
		want        int
	}{
		{"application/json", http.StatusOK},
		{"application/json; charset=utf-8", http.StatusOK},
		{"multipart/form-data; boundary=xyz", http.StatusOK},
		{"text/csv", http.StatusOK},
		{"text/plain", http.StatusUnsupportedMediaType},
		{"", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := serve(r, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want != http.StatusOK {
				assert.Equal(t, models.CodeUnsupportedContentType, decodeError(t, w).Code)
			}
		})
	}

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInputValidation_EscapesQuery(t *testing.T) {
	r := gin.New()
	r.Use(InputValidation())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.Query("q")) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/?q=%3Cb%3E", nil))
	assert.Equal(t, "&lt;b&gt;", w.Body.String())
}

func TestRequestSizeLimit(t *testing.T) {
	r := newRouter(RequestSizeLimit(4))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too large"))
	w := serve(r, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.EqualValues(t, 4, decodeError(t, w).Details["max_size"])
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS([]string{"https://coach.example"}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://coach.example")
	w := serve(r, req)
	assert.Equal(t, "https://coach.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://other.example")
	w = serve(r, req)
	assert.Equal(t, "null", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestIPWhitelist(t *testing.T) {
	r := newRouter(IPWhitelist([]string{"10.0.0.1"}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)
}

func TestTimeoutHandler(t *testing.T) {
	r := gin.New()
	r.Use(TimeoutHandler(10 * time.Millisecond))
	r.GET("/", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusRequestTimeout, w.Code)
	assert.Equal(t, models.CodeRequestTimeout, decodeError(t, w).Code)
}

func TestHealthCheck(t *testing.T) {
	up := true
	r := gin.New()
	r.GET("/health", HealthCheck("test", Probe{Name: "pose", Healthy: func() bool { return up }}))

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}

	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)

	up = false
	w = serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "down", body.Checks["pose"])
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, zap.NewNop())
	defer rl.Shutdown()

	r := newRouter(rl.RateLimit())
	codes := make([]int, 3)
	for i := range codes {
		codes[i] = serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, models.CodeRateLimitExceeded, decodeError(t, w).Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.Equal(t, 1, rl.GetGlobalStats()["active_buckets"])
	rl.Shutdown()
}

func TestRateLimiter_ScopesAreIndependent(t *testing.T) {
	rl := NewRateLimiter(100, 100, zap.NewNop())
	defer rl.Shutdown()

	strict := newRouter(rl.RateLimitWithConfig(1, 1))
	loose := newRouter(rl.RateLimit())

	assert.Equal(t, http.StatusOK, serve(strict, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(strict, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(loose, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuthMiddleware("secret", zap.NewNop())
	r := newRouter(auth.RequireAuth(), auth.RequireRole(RoleAdmin))

	get := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return serve(r, req).Code
	}

	admin, err := auth.GenerateToken("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(admin))

	viewer, err := auth.GenerateToken("coach", "viewer", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(viewer))

	expired, err := auth.GenerateToken("ops", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(expired))

	other, err := NewAuthMiddleware("other", zap.NewNop()).GenerateToken("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(other))

	assert.Equal(t, http.StatusUnauthorized, get(""))
	assert.Equal(t, http.StatusUnauthorized, get("a.b"))
}

func TestValidateToken(t *testing.T) {
	auth := NewAuthMiddleware("secret", zap.NewNop())

	token, err := auth.GenerateToken("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = auth.ValidateToken(token + "x")
	assert.ErrorIs(t, err, errTokenSignature)
}
