package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/docsight/docsight/internal/domain"
)

// localsUserKey is where the middleware stashes the UserContext.
const localsUserKey = "user"

var (
	errTokenMalformed = errors.New("malformed token")
	errTokenSignature = errors.New("invalid token signature")
	errTokenExpired   = errors.New("token expired")
	errTokenIssuer    = errors.New("invalid token issuer")
)

// JWTConfig holds the signing secret, expected issuer and token lifetime.
type JWTConfig struct {
	Secret    string
	Issuer    string
	ExpiresIn time.Duration
}

// Claims is the signed JWT payload.
type Claims struct {
	Subject   string `json:"sub"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Issuer    string `json:"iss"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (c *Claims) valid(issuer string, now time.Time) error {
	if now.Unix() > c.ExpiresAt {
		return errTokenExpired
	}
	if c.Issuer != issuer {
		return errTokenIssuer
	}
	return nil
}

// JWTMiddleware rejects requests without a valid token and makes the
// authenticated user available through GetUserContext.
func JWTMiddleware(cfg JWTConfig) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := tokenFromRequest(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization",
			})
		}

		claims, err := parseToken(token, cfg)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Locals(localsUserKey, &domain.UserContext{
			UserID: claims.Subject,
			Email:  claims.Email,
			Name:   claims.Name,
		})
		return c.Next()
	}
}

// tokenFromRequest reads the bearer token, falling back to ?token= for
// EventSource clients, which cannot set request headers.
func tokenFromRequest(c fiber.Ctx) string {
	if header := c.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return token
		}
	}
	return c.Query("token")
}

// GetUserContext returns the authenticated user, or nil when the request
// never passed the middleware.
func GetUserContext(c fiber.Ctx) *domain.UserContext {
	user, _ := c.Locals(localsUserKey).(*domain.UserContext)
	return user
}

// GenerateJWT signs an HS256 token for the identity.
func GenerateJWT(identity *domain.Identity, cfg JWTConfig) (string, error) {
	now := time.Now()
	claims := Claims{
		Subject:   identity.UID,
		Email:     identity.Email,
		Name:      identity.DisplayName,
		Issuer:    cfg.Issuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(cfg.ExpiresIn).Unix(),
	}

	headerJSON, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	claimsJSON, _ := json.Marshal(claims)

	unsigned := encodeSegment(headerJSON) + "." + encodeSegment(claimsJSON)
	return unsigned + "." + sign(unsigned, cfg.Secret), nil
}

// parseToken verifies the signature before touching the payload, then checks
// expiry and issuer.
func parseToken(token string, cfg JWTConfig) (*Claims, error) {
	unsigned, signature, ok := splitToken(token)
	if !ok {
		return nil, errTokenMalformed
	}
	if !hmac.Equal([]byte(signature), []byte(sign(unsigned, cfg.Secret))) {
		return nil, errTokenSignature
	}

	_, payload, _ := strings.Cut(unsigned, ".")
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, errTokenMalformed
	}
	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, errTokenMalformed
	}
	if err := claims.valid(cfg.Issuer, time.Now()); err != nil {
		return nil, err
	}
	return &claims, nil
}

// splitToken separates header.payload from the signature.
func splitToken(token string) (unsigned, signature string, ok bool) {
	i := strings.LastIndexByte(token, '.')
	if i < 0 || strings.Count(token, ".") != 2 {
		return "", "", false
	}
	return token[:i], token[i+1:], true
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func sign(unsigned, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unsigned))
	return encodeSegment(mac.Sum(nil))
}
