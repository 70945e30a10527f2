package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	userIdClaim   = "user-id"
	usernameClaim = "username"
	expClaim      = "exp"
)

var defaultExp = time.Hour * 24

// Identity is the authenticated user attached to a chat session. It is
// carried as connection-time handshake metadata and stamped onto
// optimistic messages.
type Identity struct {
	UserId   int
	Username string
}

func SignToken(signingKey []byte, identity Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim:   identity.UserId,
		usernameClaim: identity.Username,
		expClaim:      time.Now().Add(defaultExp).Unix(),
	})

	return token.SignedString(signingKey)
}

func ParseToken(signingKey []byte, tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return Identity{}, fmt.Errorf("invalid user id claim")
	}

	username, _ := claims[usernameClaim].(string)

	return Identity{
		UserId:   int(userId),
		Username: username,
	}, nil
}
