package controllers

import (
	"testing"
	"time"

	"medmine/medmine/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueToken(t *testing.T) {
	ctrl := NewAuthController(config.Config{JWTSecret: "secret"})
	tok, err := ctrl.IssueToken("cli", time.Hour)
	require.NoError(t, err)

	parsed, err := jwt.Parse(tok, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	sub, err := parsed.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "cli", sub)
}

func TestIssueToken_NoSecret(t *testing.T) {
	_, err := NewAuthController(config.Config{}).IssueToken("cli", 0)
	assert.ErrorIs(t, err, ErrNoSecret)
}
