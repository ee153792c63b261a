package auth

import (
	"errors"
	"strconv"
	"time"

	"bazari/config"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the access-token payload. Role travels in the token so the admin
// middleware needs no user lookup per request.
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateAccessToken(cfg *config.JWTConfig, userID uint, email, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.AccessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    cfg.Issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.AccessSecret))
}

// GenerateRefreshToken issues a long-lived token carrying only the user id;
// everything else is re-read from the store on refresh.
func GenerateRefreshToken(cfg *config.JWTConfig, userID uint) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ExpiresAt: jwt.NewNumericDate(now.Add(cfg.RefreshExpiry)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    cfg.Issuer,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.RefreshSecret))
}

func ParseAccessToken(cfg *config.JWTConfig, tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (interface{}, error) {
		return []byte(cfg.AccessSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(cfg.Issuer))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// ParseRefreshToken validates a refresh token and returns the user id it was
// issued for.
func ParseRefreshToken(cfg *config.JWTConfig, tokenString string) (uint, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (interface{}, error) {
		return []byte(cfg.RefreshSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(cfg.Issuer))
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return 0, ErrInvalidToken
	}
	return uint(userID), nil
}
