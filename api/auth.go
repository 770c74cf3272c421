package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// PlayerClaims ties a token to one seat in one room. Host authority is never
// baked into the token; it is checked against the room row at use time, so a
// migrated-away host cannot replay host operations.
type PlayerClaims struct {
	PlayerID sharedtypes.PlayerID `json:"player_id"`
	RoomID   sharedtypes.RoomID   `json:"room_id"`
	jwt.RegisteredClaims
}

// tokenTTL is generous because a token is only good for one room's lifetime
// anyway.
const tokenTTL = 12 * time.Hour

// IssueToken mints the player token returned on create/join.
func IssueToken(secret []byte, playerID sharedtypes.PlayerID, roomID sharedtypes.RoomID) (string, error) {
	now := time.Now()
	claims := PlayerClaims{
		PlayerID: playerID,
		RoomID:   roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign player token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a player token and returns its claims.
func ParseToken(secret []byte, tokenString string) (*PlayerClaims, error) {
	claims := &PlayerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse player token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid player token")
	}
	return claims, nil
}

type claimsContextKey struct{}

// ClaimsFromContext returns the authenticated player claims, if any.
func ClaimsFromContext(ctx context.Context) (*PlayerClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*PlayerClaims)
	return claims, ok
}

// requireAuth rejects requests without a valid Bearer token and stashes the
// claims in the request context.
func requireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := ParseToken(secret, tokenString)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
