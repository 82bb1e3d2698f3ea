package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	PrincipalID uuid.UUID
	Email       string
	// JTI ties the token to its server-side session; a random id is used when empty.
	JTI string
}

// AccessTokenClaims represents the typed JWT issued to console clients.
type AccessTokenClaims struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	Email       string    `json:"email"`
	jwt.RegisteredClaims
}
