package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingPlayer = errors.New("player id is required")
)

// Claims identifies the player a token was issued to
type Claims struct {
	PlayerID string `json:"player_id"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// Service issues and checks player tokens. The identity provider that
// decides who a player is lives elsewhere; this service only signs.
type Service struct {
	jwtSecret     []byte
	tokenDuration time.Duration
	issuer        string
}

// NewService creates a new auth service
func NewService(jwtSecret string, tokenDuration time.Duration) *Service {
	if tokenDuration == 0 {
		tokenDuration = 24 * time.Hour
	}
	return &Service{
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: tokenDuration,
		issuer:        "arenaq",
	}
}

// GenerateToken creates a JWT for playerID
func (s *Service) GenerateToken(playerID string, isAdmin bool) (string, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return "", ErrMissingPlayer
	}
	now := time.Now()
	claims := Claims{
		PlayerID: playerID,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a JWT and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.issuer))

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.PlayerID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
