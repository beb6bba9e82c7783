package storage

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer issues and verifies the HS256 tokens carried by Local signed URLs.
// A token binds one object path and one HTTP method.
type Signer struct {
	secret []byte
	issuer string
}

type objectClaims struct {
	jwt.RegisteredClaims

	Path   string `json:"path"`
	Method string `json:"method"`
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("STORAGE_SIGNING_SECRET is required")
	}
	return &Signer{secret: []byte(secret), issuer: "callqa-storage"}, nil
}

func (s *Signer) Issue(now time.Time, objectPath, method string, ttl time.Duration) (string, error) {
	claims := objectClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Path:   objectPath,
		Method: method,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks the token against path and method at now. An expired but
// otherwise valid token yields ErrUploadExpired.
func (s *Signer) Verify(token, objectPath, method string, now time.Time) error {
	var claims objectClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrUploadExpired
	}
	if err != nil {
		return ErrInvalidToken
	}
	if claims.Path != objectPath || claims.Method != method {
		return ErrInvalidToken
	}
	return nil
}
