package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience 网关签发的 token 只给网关自己用。
const Audience = "seostats-api"

var (
	ErrEmptySubject = errors.New("empty subject")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims 网关调用方身份。
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

type jwtClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type TokenService interface {
	Issue(subject, role string) (string, error)
	Verify(token string) (Claims, error)
}

type hs256Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewHS256Service(secret, issuer string, ttl time.Duration) (TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if issuer == "" {
		return nil, errors.New("jwt issuer is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be > 0")
	}
	return &hs256Service{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (h *hs256Service) Issue(subject, role string) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	now := h.now()
	claims := jwtClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    h.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

func (h *hs256Service) Verify(token string) (Claims, error) {
	var parsed jwtClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(h.issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(h.now),
	)
	if _, err := parser.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return h.secret, nil
	}); err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	if parsed.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	claims := Claims{Subject: parsed.Subject, Role: parsed.Role}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}
