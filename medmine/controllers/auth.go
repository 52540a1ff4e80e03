package controllers

import (
	"errors"
	"time"

	"medmine/medmine/config"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSecret = errors.New("JWT_SECRET is not set")

// AuthController mints the bearer tokens accepted by the API.
type AuthController struct {
	cfg config.Config
	now func() time.Time
}

func NewAuthController(cfg config.Config) *AuthController {
	return &AuthController{cfg: cfg, now: time.Now}
}

// IssueToken signs an HS256 token for subject valid for ttl.
func (c *AuthController) IssueToken(subject string, ttl time.Duration) (string, error) {
	if c.cfg.JWTSecret == "" {
		return "", ErrNoSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := c.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.cfg.JWTSecret))
}
