package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifyCredential_RoundTrip(t *testing.T) {
	v := NewVerifier("test-secret", "realtime-docs")
	token, err := v.IssueToken("user-1", time.Minute)
	require.NoError(t, err)

	userID, err := v.VerifyCredential(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestVerifyCredential_RejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret", "realtime-docs")
	token, err := v.IssueToken("user-1", -time.Minute)
	require.NoError(t, err)

	_, err = v.VerifyCredential(token)
	require.Error(t, err)
}

func TestVerifyCredential_RejectsWrongSecret(t *testing.T) {
	issuer := NewVerifier("secret-a", "realtime-docs")
	verifier := NewVerifier("secret-b", "realtime-docs")

	token, err := issuer.IssueToken("user-1", time.Minute)
	require.NoError(t, err)

	_, err = verifier.VerifyCredential(token)
	require.Error(t, err)
}

func TestVerifyCredential_RejectsWrongIssuer(t *testing.T) {
	issuer := NewVerifier("test-secret", "other-issuer")
	verifier := NewVerifier("test-secret", "realtime-docs")

	token, err := issuer.IssueToken("user-1", time.Minute)
	require.NoError(t, err)

	_, err = verifier.VerifyCredential(token)
	require.Error(t, err)
}
