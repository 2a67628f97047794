package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to shoppers by the auth module.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// ShareTokenClaims addresses a read-only wishlist snapshot.
type ShareTokenClaims struct {
	ShareID string `json:"share_id"`
	jwt.RegisteredClaims
}
