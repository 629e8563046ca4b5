package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shared-canvas/backend/internal/model"
)

func TestIssueAndVerify(t *testing.T) {
	issuer, err := NewIssuer("s3cret", time.Minute)
	require.NoError(t, err)

	token, err := issuer.Issue("alice")
	require.NoError(t, err)

	clientID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", clientID)
}

func TestVerifyRejects(t *testing.T) {
	issuer, _ := NewIssuer("s3cret", time.Minute)
	other, _ := NewIssuer("another", time.Minute)
	expired, _ := NewIssuer("s3cret", -time.Minute)

	foreign, _ := other.Issue("alice")
	stale, _ := expired.Issue("alice")
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"wrong secret": foreign,
		"expired":      stale,
		"unsigned":     none,
		"garbage":      "not-a-token",
	} {
		_, err := issuer.Verify(token)
		assert.ErrorIs(t, err, model.ErrInvalidToken, name)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("", 0)
	assert.Error(t, err)

	issuer, _ := NewIssuer("x", 0)
	_, err = issuer.Issue("")
	assert.Error(t, err)
}
