package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// Login checks credentials and returns a fresh token.
// POST /auth/login
func Login(c echo.Context) error {
	req := new(LoginRequest)
	if err := c.Bind(req); err != nil {
		return httperr.BadRequest(c, "invalid request")
	}
	if err := validate.Struct(req); err != nil {
		return httperr.BadRequest(c, "missing or malformed fields")
	}

	ctx := context.Background()
	var (
		userID   string
		password string
		isActive bool
	)
	err := db.Conn.QueryRow(ctx, `
        SELECT id, password, is_active FROM users WHERE email = $1
    `, req.Email).Scan(&userID, &password, &isActive)
	if err != nil {
		return httperr.Unauthorized(c, "invalid credentials")
	}
	if !isActive {
		return httperr.Forbidden(c, "account suspended")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(password), []byte(req.Password)); err != nil {
		return httperr.Unauthorized(c, "invalid credentials")
	}

	signed, err := issueToken(userID)
	if err != nil {
		return httperr.Internal(c, "token generation failed")
	}

	return c.JSON(http.StatusOK, LoginResponse{Token: signed})
}
