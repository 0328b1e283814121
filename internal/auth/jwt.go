package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AccessTokenDuration  = 15 * time.Minute
	RefreshTokenDuration = 30 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrMissingToken  = errors.New("authorization header required")
	ErrMalformedAuth = errors.New("invalid authorization header format")
	ErrWrongTokenUse = errors.New("invalid token type")
)

type Claims struct {
	UserID    string `json:"userId"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

func GenerateAccessToken(secret, userID string) (string, error) {
	return signToken(secret, userID, tokenTypeAccess, AccessTokenDuration, "")
}

// GenerateRefreshToken signs a refresh token whose jti is the refresh_tokens row key.
func GenerateRefreshToken(secret, userID, tokenID string) (string, error) {
	return signToken(secret, userID, tokenTypeRefresh, RefreshTokenDuration, tokenID)
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ResolveViewer maps an Authorization header to the user id of a valid
// access token. An empty header yields ErrMissingToken.
func ResolveViewer(secret, authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingToken
	}
	tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || tokenStr == "" {
		return "", ErrMalformedAuth
	}
	claims, err := ValidateToken(secret, tokenStr)
	if err != nil {
		return "", err
	}
	if claims.TokenType != tokenTypeAccess {
		return "", ErrWrongTokenUse
	}
	return claims.UserID, nil
}

func signToken(secret, userID, tokenType string, ttl time.Duration, tokenID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        tokenID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
