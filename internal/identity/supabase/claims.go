package supabase

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
)

// accessClaims are the GoTrue access token claims the gallery reads.
// The token is not verified here; GoTrue's /user endpoint is the authority.
type accessClaims struct {
	Subject   string `mapstructure:"sub"`
	Email     string `mapstructure:"email"`
	Role      string `mapstructure:"role"`
	SessionID string `mapstructure:"session_id"`
	ExpiresAt int64  `mapstructure:"exp"`
}

func parseAccessClaims(token string) (*accessClaims, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	var claims accessClaims
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &claims,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create claims decoder: %w", err)
	}
	if err := decoder.Decode(map[string]interface{}(mapClaims)); err != nil {
		return nil, fmt.Errorf("decode access token claims: %w", err)
	}
	return &claims, nil
}
