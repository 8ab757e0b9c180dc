package auth

import (
	"context"
	"net/http"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
)

// Me returns the currently authenticated user's profile
// GET /auth/me
func Me(c echo.Context) error {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return httperr.Unauthorized(c, "missing Authorization header")
	}

	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return httperr.Unauthorized(c, "invalid Authorization format")
	}
	tokenStr := authHeader[len(prefix):]

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		return httperr.Unauthorized(c, "invalid or expired token")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return httperr.Unauthorized(c, "invalid token claims")
	}

	var id, name, email, bio, avatarURL string
	err = db.Conn.QueryRow(context.Background(),
		`SELECT id, name, email, bio, avatar_url FROM users WHERE id=$1`, userID).
		Scan(&id, &name, &email, &bio, &avatarURL)
	if err != nil {
		return httperr.NotFound(c, "user not found")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":         id,
		"name":       name,
		"email":      email,
		"bio":        bio,
		"avatar_url": avatarURL,
	})
}
