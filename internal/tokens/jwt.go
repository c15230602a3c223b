// Package tokens implements the two token families from spec.md §4.2:
// signed, stateless bearer access tokens and opaque high-entropy tokens
// (refresh, invite, password-reset) whose raw material is never persisted.
package tokens

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vactrail/backend/internal/apperr"
)

// Scope distinguishes an ordinary access token from the short-lived
// pre-authentication token issued mid-login-flow.
type Scope string

const (
	ScopeAccess  Scope = "access"
	ScopePreAuth Scope = "pre_auth"
)

// Claims is the custom JWT payload. Role is carried as a hint only —
// AuthzKernel always re-reads the current role from IdentityStore.
type Claims struct {
	UserID    uuid.UUID `json:"sub"`
	CompanyID uuid.UUID `json:"cid,omitempty"`
	Role      string    `json:"role,omitempty"`
	Scope     Scope     `json:"scope"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access/pre-auth bearer tokens with a
// process-wide RSA key loaded once at startup.
type Codec struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	accessTTL  time.Duration
	issuer     string
}

// NewCodec parses a PEM-encoded RSA private key (PKCS1 or PKCS8) and builds
// a Codec that issues access tokens with the given lifetime.
func NewCodec(privateKeyPEM string, accessTTL time.Duration, issuer string) (*Codec, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, errors.New("tokens: invalid PEM block for signing key")
	}

	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		key, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("tokens: parsing signing key: %w / %w", err, err2)
		}
		var ok bool
		priv, ok = key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("tokens: signing key is not RSA")
		}
	}

	return &Codec{
		privateKey: priv,
		publicKey:  &priv.PublicKey,
		accessTTL:  accessTTL,
		issuer:     issuer,
	}, nil
}

// IssueAccessToken signs a 15-minute (by default) access token carrying the
// subject, company, and a role hint.
func (c *Codec) IssueAccessToken(userID, companyID uuid.UUID, role string) (string, error) {
	return c.sign(Claims{
		UserID:    userID,
		CompanyID: companyID,
		Role:      role,
		Scope:     ScopeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(c.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    c.issuer,
		},
	})
}

// IssuePreAuthToken signs a 2-minute token used only to carry a verified
// identity through a multi-step login flow (e.g. MFA) without yet trusting
// the caller with a full session.
func (c *Codec) IssuePreAuthToken(userID uuid.UUID) (string, error) {
	return c.sign(Claims{
		UserID: userID,
		Scope:  ScopePreAuth,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    c.issuer,
		},
	})
}

func (c *Codec) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(c.privateKey)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "signing token", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token, returning one of
// KindExpired, KindBadSignature, KindNotAuthenticated (malformed), or the
// claims on success.
func (c *Codec) Verify(tokenString string, wantScope Scope) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.publicKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.New(apperr.KindExpired, "access token expired")
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, apperr.New(apperr.KindBadSignature, "access token signature invalid")
		}
		return nil, apperr.New(apperr.KindNotAuthenticated, "malformed token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, apperr.New(apperr.KindNotAuthenticated, "malformed token")
	}
	if claims.Scope != wantScope {
		return nil, apperr.New(apperr.KindWrongType, "wrong token type")
	}

	return claims, nil
}
