package user

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
)

type UpdateProfileRequest struct {
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

// UpdateProfile applies a sparse update to the caller's profile; empty
// fields keep their prior values.
// PATCH /user/profile
func UpdateProfile(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	req := new(UpdateProfileRequest)
	if err := c.Bind(req); err != nil {
		return httperr.BadRequest(c, "invalid request")
	}

	_, err := db.Conn.Exec(context.Background(), `
		UPDATE users
		SET
			name = COALESCE(NULLIF($1, ''), name),
			bio = COALESCE(NULLIF($2, ''), bio),
			avatar_url = COALESCE(NULLIF($3, ''), avatar_url)
		WHERE id = $4
	`, req.Name, req.Bio, req.AvatarURL, userID)
	if err != nil {
		return httperr.Internal(c, "failed to update profile")
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Profile updated successfully"})
}
