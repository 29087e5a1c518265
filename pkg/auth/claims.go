package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting an operator JWT.
type AccessTokenPayload struct {
	Subject string
	Role    enums.ActorRole
	JTI     string
}

// AccessTokenClaims represents the typed JWT presented by operators.
type AccessTokenClaims struct {
	Role enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
