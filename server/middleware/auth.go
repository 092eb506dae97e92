package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/models"
)

// RoleAdmin grants access to the admin API group.
const RoleAdmin = "admin"

var (
	errTokenFormat    = errors.New("invalid token format")
	errTokenSignature = errors.New("invalid signature")
	errTokenExpired   = errors.New("token expired")
)

type Claims struct {
	Subject   string    `json:"sub"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`
}

// AuthMiddleware issues and checks HMAC-SHA256 signed bearer tokens.
type AuthMiddleware struct {
	secretKey []byte
	logger    *zap.Logger
}

// NewAuthMiddleware signs with secretKey. An empty key is replaced by a random one, so
// tokens issued before a restart stop validating.
func NewAuthMiddleware(secretKey string, logger *zap.Logger) *AuthMiddleware {
	key := []byte(secretKey)
	if secretKey == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			logger.Fatal("Failed to generate signing key", zap.Error(err))
		}
		logger.Warn("No JWT_SECRET_KEY provided, admin tokens are valid until restart")
	}

	return &AuthMiddleware{
		secretKey: key,
		logger:    logger,
	}
}

func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, models.CodeUnauthorized, "Authorization token required", nil)
			return
		}

		claims, err := a.ValidateToken(token)
		if err != nil {
			a.logger.Warn("Invalid token", zap.Error(err), zap.String("client_ip", c.ClientIP()))
			abortWithError(c, http.StatusUnauthorized, models.CodeUnauthorized, "Invalid or expired token", nil)
			return
		}

		c.Set("subject", claims.Subject)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func (a *AuthMiddleware) RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != requiredRole {
			abortWithError(c, http.StatusForbidden, models.CodeUnauthorized, "Insufficient permissions", nil)
			return
		}

		c.Next()
	}
}

// GenerateToken issues a token for subject with role, valid for duration.
func (a *AuthMiddleware) GenerateToken(subject, role string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Subject:   subject,
		Role:      role,
		ExpiresAt: now.Add(duration),
		IssuedAt:  now,
	}

	headerJSON, err := json.Marshal(map[string]string{"typ": "JWT", "alg": "HS256"})
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	message := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(claimsJSON)
	return message + "." + a.createSignature(message), nil
}

// ValidateToken checks the signature and expiry of token and returns its claims.
func (a *AuthMiddleware) ValidateToken(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errTokenFormat
	}

	message := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(a.createSignature(message))) {
		return nil, errTokenSignature
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errTokenFormat
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, errTokenFormat
	}

	if time.Now().After(claims.ExpiresAt) {
		return nil, errTokenExpired
	}

	return &claims, nil
}

func extractToken(c *gin.Context) string {
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || scheme != "Bearer" {
		return ""
	}
	return token
}

func (a *AuthMiddleware) createSignature(message string) string {
	h := hmac.New(sha256.New, a.secretKey)
	h.Write([]byte(message))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
