package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, signed with the wrong key, or carries the wrong claims.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a well-formed token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrKeyReuse is returned when access and refresh tokens would share signing material.
	ErrKeyReuse = errors.New("access and refresh tokens must use distinct signing keys")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims holds the JWT claims for both token kinds. Typ keeps an access token
// from being accepted as a refresh token even if keys were misconfigured.
type Claims struct {
	jwt.RegisteredClaims
	Typ string `json:"typ"`
}

// TokenIssuer mints and verifies access and refresh JWTs. Access and refresh
// tokens are signed with different keys.
type TokenIssuer struct {
	accessKey  *SigningKey
	refreshKey *SigningKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer returns a TokenIssuer. issuer and audience are set on claims and validated on verify.
func NewTokenIssuer(accessKey, refreshKey *SigningKey, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if accessKey == nil || refreshKey == nil {
		return nil, ErrInvalidKey
	}
	if accessKey.fingerprint == refreshKey.fingerprint {
		return nil, ErrKeyReuse
	}
	return &TokenIssuer{
		accessKey:  accessKey,
		refreshKey: refreshKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// SetClock overrides the time source. Used by tests.
func (p *TokenIssuer) SetClock(now func() time.Time) {
	p.now = now
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenIssuer) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (p *TokenIssuer) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT for userID.
func (p *TokenIssuer) IssueAccess(userID string) (token string, expiresAt time.Time, err error) {
	token, _, expiresAt, err = p.issue(p.accessKey, tokenTypeAccess, userID, p.accessTTL)
	return token, expiresAt, err
}

// IssueRefresh issues a long-lived refresh JWT and returns the token, its jti
// (the ledger row id), and expiration time. The caller persists it.
func (p *TokenIssuer) IssueRefresh(userID string) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(p.refreshKey, tokenTypeRefresh, userID, p.refreshTTL)
}

func (p *TokenIssuer) issue(key *SigningKey, typ, userID string, ttl time.Duration) (string, string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Typ: typ,
	}
	token, err := jwt.NewWithClaims(key.method, claims).SignedString(key.signKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

// VerifyAccess checks signature, expiry, issuer, audience and type of an access token.
// Returns the user id, ErrTokenExpired, or ErrInvalidToken.
func (p *TokenIssuer) VerifyAccess(tokenString string) (userID string, err error) {
	claims, err := p.verify(p.accessKey, tokenTypeAccess, tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// VerifyRefresh checks a refresh token cryptographically. It does not consult
// the ledger; callers must still confirm the token is live and unrevoked.
func (p *TokenIssuer) VerifyRefresh(tokenString string) (userID, jti string, err error) {
	claims, err := p.verify(p.refreshKey, tokenTypeRefresh, tokenString)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.ID, nil
}

func (p *TokenIssuer) verify(key *SigningKey, typ, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return key.verifyKey, nil
	},
		jwt.WithValidMethods([]string{key.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Typ != typ || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
