package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/dom/faq-chat-web/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is the lifetime of every issued token, anonymous or not.
const TokenTTL = 7 * 24 * time.Hour

type TokenClaims struct {
	UserID      string `json:"id,omitempty"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	LastName    string `json:"lastName,omitempty"`
	IsAnonymous bool   `json:"isAnonymous"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), now: time.Now}
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	return &TokenIssuer{secret: i.secret, now: now}
}

func (i *TokenIssuer) Configured() bool {
	return len(i.secret) > 0
}

func (i *TokenIssuer) Issue(identity domain.Identity) (string, error) {
	if len(i.secret) == 0 {
		return "", domain.ErrConfiguration
	}

	issuedAt := i.now()
	claims := TokenClaims{
		UserID:      identity.UserID.String(),
		Email:       identity.Email,
		Name:        identity.Name,
		LastName:    identity.LastName,
		IsAnonymous: identity.IsAnonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func (i *TokenIssuer) Verify(tokenString string) (*domain.Identity, error) {
	if len(i.secret) == 0 {
		return nil, domain.ErrConfiguration
	}

	var claims TokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", domain.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	rawID := claims.UserID
	if rawID == "" {
		rawID = claims.Subject
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: missing or malformed user id", domain.ErrInvalidToken)
	}

	return &domain.Identity{
		UserID:      userID,
		Email:       claims.Email,
		Name:        claims.Name,
		LastName:    claims.LastName,
		IsAnonymous: claims.IsAnonymous,
	}, nil
}
