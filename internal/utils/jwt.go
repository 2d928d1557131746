package utils // package utils provides token signing, reset tokens and password hashing

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenErrorKind classifies why a bearer token was rejected.
type TokenErrorKind string

const (
	TokenBadSignature  TokenErrorKind = "bad_signature"
	TokenExpired       TokenErrorKind = "expired"
	TokenWrongIssuer   TokenErrorKind = "wrong_issuer"
	TokenWrongAudience TokenErrorKind = "wrong_audience"
	TokenMalformed     TokenErrorKind = "malformed"
)

// TokenError is the only error Verify returns.  Callers collapse every kind
// into a 401; the kind is kept for logs and tests.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return "token: " + string(e.Kind)
	}
	return fmt.Sprintf("token: %s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// Claims is the claim set carried by access tokens.
type Claims struct {
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Roles      []string `json:"roles"`
	jwt.RegisteredClaims
}

// AccessToken represents a signed JWT access token along with its expiry and
// unique id (jti).
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
	ID    string    // the jti claim
}

// Identity is what the signer needs to know about an account.
type Identity struct {
	ID         string
	Email      string
	GivenName  string
	FamilyName string
}

// TokenSigner issues and verifies HS256 bearer tokens.  It is safe for
// concurrent use; verification performs no I/O.
type TokenSigner struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenSigner builds a signer.  An empty secret is rejected so that a
// misconfigured process cannot mint tokens with a guessable key.
func NewTokenSigner(secret, issuer, audience string, ttl time.Duration) (*TokenSigner, error) {
	if secret == "" {
		return nil, errors.New("token signer: empty secret")
	}
	if ttl <= 0 {
		return nil, errors.New("token signer: non-positive ttl")
	}
	return &TokenSigner{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// WithClock replaces the time source, for tests.
func (s *TokenSigner) WithClock(now func() time.Time) *TokenSigner {
	s.now = now
	return s
}

// TTL is the lifetime of issued tokens.
func (s *TokenSigner) TTL() time.Duration { return s.ttl }

// Issue signs a token for the identity with the given roles.  Each token gets
// a fresh random jti.
func (s *TokenSigner) Issue(id Identity, roles []string) (AccessToken, error) {
	iat := s.now().UTC().Truncate(time.Second)
	exp := iat.Add(s.ttl)
	if roles == nil {
		roles = []string{}
	}
	claims := Claims{
		Email:      id.Email,
		Name:       displayName(id),
		GivenName:  id.GivenName,
		FamilyName: id.FamilyName,
		Roles:      roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(iat),
			NotBefore: jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp, ID: claims.ID}, nil
}

// Verify checks signature, algorithm, issuer, audience and the [iat, exp)
// window with zero leeway.  Failures are always *TokenError.
func (s *TokenSigner) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if claims.Subject == "" {
		return nil, &TokenError{Kind: TokenMalformed, Err: errors.New("missing subject")}
	}
	return claims, nil
}

func classify(err error) *TokenError {
	kind := TokenMalformed
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		kind = TokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		kind = TokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		kind = TokenWrongIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		kind = TokenWrongAudience
	}
	return &TokenError{Kind: kind, Err: err}
}

func displayName(id Identity) string {
	switch {
	case id.GivenName == "":
		return id.FamilyName
	case id.FamilyName == "":
		return id.GivenName
	}
	return id.GivenName + " " + id.FamilyName
}
