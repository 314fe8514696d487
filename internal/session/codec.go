package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aelexs/edge-session-gateway/internal/domain"
)

// minCodecKeyBytes is the minimum signing key length. Shorter keys make the
// HMAC trivially brute-forceable.
const minCodecKeyBytes = 32

// artifactClaims is the JWT claim set carried in the session cookie.
// RegisteredClaims.Subject holds the subject ID and ExpiresAt holds the
// access token expiry, so standard tooling can inspect the cookie.
type artifactClaims struct {
	jwt.RegisteredClaims
	AccessToken  string `json:"at"`
	RefreshToken string `json:"rt,omitempty"`
	Seq          uint64 `json:"seq"`
}

// Codec converts session artifacts to and from the signed cookie value.
// It is pure: no clock, no network, no config reads. Expiry is data here,
// not a validity judgement; that belongs to the refresher. Decode fails
// closed: any unverifiable or malformed value is ErrCookieInvalid and the
// caller treats the request as having no session (ADR-021 §3).
type Codec struct {
	key domain.SecretBytes
}

// NewCodec creates a codec signing with the given HS256 key.
func NewCodec(key domain.SecretBytes) (*Codec, error) {
	if len(key.Expose()) < minCodecKeyBytes {
		return nil, fmt.Errorf("%w: cookie signing key shorter than %d bytes", domain.ErrInvalidInput, minCodecKeyBytes)
	}
	return &Codec{key: key}, nil
}

// Encode serializes and signs an artifact into a cookie value.
// Encoding is deterministic: the same artifact always yields the same value.
func (c *Codec) Encode(a *Artifact) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}

	claims := artifactClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.Subject,
			ExpiresAt: jwt.NewNumericDate(domain.FromSeconds(a.ExpiresAt)),
		},
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		Seq:          a.Seq,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(c.key.Expose())
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	if len(signed) > domain.MaxCookieValueLength {
		return "", fmt.Errorf("%w: encoded session exceeds %d bytes", domain.ErrInvalidInput, domain.MaxCookieValueLength)
	}
	return signed, nil
}

// Decode verifies a cookie value and returns the artifact it carries.
// Claims validation is waived: an artifact whose access token already
// expired must still decode so its refresh token can be exchanged.
func (c *Codec) Decode(value string) (*Artifact, error) {
	var claims artifactClaims

	_, err := jwt.ParseWithClaims(value, &claims, c.keyFunc,
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrCookieInvalid, err)
	}

	if claims.Subject == "" || claims.AccessToken == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: incomplete claims", domain.ErrCookieInvalid)
	}

	return &Artifact{
		AccessToken:  claims.AccessToken,
		RefreshToken: claims.RefreshToken,
		ExpiresAt:    claims.ExpiresAt.Unix(),
		Subject:      claims.Subject,
		Seq:          claims.Seq,
	}, nil
}

func (c *Codec) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return c.key.Expose(), nil
}
