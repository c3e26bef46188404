package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "medledger/pkg/domain-errors"
)

// Claims are the claims the identity provider puts in a wallet session token.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 session tokens minted by the wallet/identity
// provider and extracts the asserted wallet address.
type TokenVerifier struct {
	signingKey []byte
	issuer     string
}

// NewTokenVerifier builds a verifier for tokens signed with signingKey by issuer.
func NewTokenVerifier(signingKey, issuer string) *TokenVerifier {
	return &TokenVerifier{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// Issue mints a token for address. Used by development tooling and tests that
// stand in for the identity provider.
func (v *TokenVerifier) Issue(address string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(v.signingKey)
}

// Verify validates signature, issuer and expiry and returns the credential the
// token carries. The credential is not normalized here; pass it to Resolver.
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return v.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Address != "" {
		return claims.Address, nil
	}
	return claims.Subject, nil
}
