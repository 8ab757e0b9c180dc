package auth

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/mygrant-hub/mygrant-api/internal/actor"
	"github.com/mygrant-hub/mygrant-api/internal/alerts"
	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
	"github.com/mygrant-hub/mygrant-api/internal/wallet"
)

var validate = validator.New()

type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type SignupResponse struct {
	Token string `json:"token"`
}

// signupBonusHours is how many mygrant hours a new user starts with.
func signupBonusHours() int64 {
	if v := os.Getenv("SIGNUP_BONUS_HOURS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return 10
}

// Signup registers a user and opens their wallet with the signup bonus in
// one transaction.
// POST /auth/signup
func Signup(c echo.Context) error {
	req := new(SignupRequest)
	if err := c.Bind(req); err != nil {
		return httperr.BadRequest(c, "invalid request")
	}
	if err := validate.Struct(req); err != nil {
		return httperr.BadRequest(c, "missing or malformed fields")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return httperr.Internal(c, "server error")
	}

	ctx := context.Background()
	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return httperr.Internal(c, "db transaction error")
	}
	defer tx.Rollback(ctx)

	var userID string
	err = tx.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, uuid.New().String(), req.Name, req.Email, string(hashed)).Scan(&userID)
	if err != nil {
		return httperr.Conflict(c, "email already registered")
	}

	owner := actor.Actor{Kind: actor.KindUser, ID: userID}
	if _, err := wallet.CreateTx(ctx, tx, owner, signupBonusHours()); err != nil {
		return httperr.Internal(c, "wallet creation failed")
	}

	if err := tx.Commit(ctx); err != nil {
		return httperr.Internal(c, "transaction failed")
	}

	_ = alerts.EnqueueWelcomeEmail(userID, req.Email, req.Name)

	signed, err := issueToken(userID)
	if err != nil {
		return httperr.Internal(c, "token generation failed")
	}

	return c.JSON(http.StatusOK, SignupResponse{Token: signed})
}

func issueToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(72 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}
