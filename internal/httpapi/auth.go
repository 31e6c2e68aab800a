package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Context key for session identity
type contextKey string

const sessionContextKey contextKey = "session"

// SessionClaims represents the claims in the session token issued at session
// start. The token is scoped to a single interview session.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
}

// SessionIdentity represents the authenticated session in request context.
type SessionIdentity struct {
	SessionID     string
	ParticipantID string
}

// withSessionAuth is middleware that requires a valid session token whose
// session ID matches the {id} path segment. A token minted for one session
// grants nothing on another.
func (r *Router) withSessionAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		authHeader := req.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error": "missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, `{"error": "invalid authorization format"}`, http.StatusUnauthorized)
			return
		}

		tokenString := parts[1]

		token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(r.cfg.JWTSecret), nil
		})

		if err != nil || !token.Valid {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(*SessionClaims)
		if !ok {
			http.Error(w, `{"error": "invalid token claims"}`, http.StatusUnauthorized)
			return
		}

		if id := req.PathValue("id"); id != claims.SessionID {
			http.Error(w, `{"error": "token not valid for this session"}`, http.StatusForbidden)
			return
		}

		identity := &SessionIdentity{
			SessionID:     claims.SessionID,
			ParticipantID: claims.ParticipantID,
		}
		ctx := context.WithValue(req.Context(), sessionContextKey, identity)
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

// getSessionIdentity extracts the authenticated session from context.
func getSessionIdentity(ctx context.Context) *SessionIdentity {
	identity, _ := ctx.Value(sessionContextKey).(*SessionIdentity)
	return identity
}

// generateSessionToken creates a new session-scoped JWT.
func (r *Router) generateSessionToken(sessionID, participantID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(r.cfg.JWTExpiry)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		SessionID:     sessionID,
		ParticipantID: participantID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(r.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}
