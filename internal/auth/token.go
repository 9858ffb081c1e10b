package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/toko-checkout/internal/common"
)

const (
	claimEmail = "email"
	claimRoles = "roles"
)

// Claims are the caller attributes carried by an access token.
type Claims struct {
	Subject string
	Email   string
	Roles   []string
}

// Config configures access-token verification. Tokens are issued by an external
// identity service sharing the HMAC secret.
type Config struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Verifier validates HS256 access tokens.
type Verifier struct {
	secret    []byte
	issuer    string
	audience  string
	clockSkew time.Duration
	algorithm jwa.SignatureAlgorithm
	now       func() time.Time
}

// NewVerifier builds a Verifier from cfg.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	skew := cfg.ClockSkew
	if skew < 0 {
		skew = 0
	}
	return &Verifier{
		secret:    []byte(secret),
		issuer:    strings.TrimSpace(cfg.Issuer),
		audience:  strings.TrimSpace(cfg.Audience),
		clockSkew: skew,
		algorithm: jwa.HS256,
		now:       time.Now,
	}, nil
}

// WithNow allows tests to override the time provider.
func (v *Verifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

func unauthorized(err error) error {
	return common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
}

// ParseAccessToken validates a token and returns its claims.
func (v *Verifier) ParseAccessToken(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, unauthorized(err)
	}
	if algorithm != v.algorithm {
		return Claims{}, unauthorized(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, unauthorized(err)
	}
	if err := v.validate(parsed); err != nil {
		return Claims{}, unauthorized(err)
	}
	claims := Claims{Subject: parsed.Subject()}
	if claims.Subject == "" {
		return Claims{}, unauthorized(errors.New("token missing subject"))
	}
	if raw, ok := parsed.Get(claimEmail); ok {
		claims.Email, _ = raw.(string)
	}
	if raw, ok := parsed.Get(claimRoles); ok {
		claims.Roles = stringList(raw)
	}
	return claims, nil
}

func (v *Verifier) validate(tok jwt.Token) error {
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(v.now)),
	}
	if v.clockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.clockSkew))
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}
	return jwt.Validate(tok, options...)
}

func stringList(raw any) []string {
	switch vals := raw.(type) {
	case []string:
		return append([]string(nil), vals...)
	case []any:
		out := make([]string, 0, len(vals))
		for _, r := range vals {
			if s, ok := r.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(vals)
	}
	return nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("auth: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("auth: token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", errors.New("auth: token missing algorithm")
	}
	return alg, nil
}

// Sign issues a token for claims. It is used by local tooling and tests; the
// production issuer is the identity service.
func (v *Verifier) Sign(c Claims, ttl time.Duration) (string, error) {
	now := v.now()
	b := jwt.NewBuilder().
		Subject(c.Subject).
		IssuedAt(now).
		NotBefore(now.Add(-v.clockSkew)).
		Expiration(now.Add(ttl))
	if v.issuer != "" {
		b = b.Issuer(v.issuer)
	}
	if v.audience != "" {
		b = b.Audience([]string{v.audience})
	}
	if c.Email != "" {
		b = b.Claim(claimEmail, c.Email)
	}
	if len(c.Roles) > 0 {
		b = b.Claim(claimRoles, c.Roles)
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(v.algorithm, v.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}
