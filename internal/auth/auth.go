// Package auth implements the Auth collaborator (spec.md §6):
// VerifyCredential maps an inbound token to a userID. Grounded on
// yousefabdallah171-POSS/backend/internal/auth/jwt_manager.go's HMAC claims
// validation, trimmed to the single credential the session handshake needs,
// plus an IssueToken helper symmetric with that teacher's GenerateAccessToken
// for local/dev token minting.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/collabtext/realtime-docs/internal/apperr"
)

// Claims is the JWT claim set this service issues and accepts. Subject
// carries the userID.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates bearer credentials presented at session handshake.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// VerifyCredential validates token and returns the userID it asserts.
func (v *Verifier) VerifyCredential(token string) (userID string, err error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.New(apperr.KindAuth, "unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		return "", apperr.Wrap(apperr.KindAuth, "invalid credential", err)
	}
	if !parsed.Valid {
		return "", apperr.New(apperr.KindAuth, "invalid credential")
	}
	if claims.Subject == "" {
		return "", apperr.New(apperr.KindAuth, "credential missing subject")
	}
	return claims.Subject, nil
}

// IssueToken mints a token for userID, valid for expiresIn. Used by local
// tooling and tests; production deployments typically front this service with
// an existing identity provider that issues compatible tokens.
func (v *Verifier) IssueToken(userID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
