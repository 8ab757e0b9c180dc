package user

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
)

// GetPublicProfile returns a user's public profile with their exchange
// reputation: the average rating received on either side of an instance and
// how many exchanges they completed.
// GET /user/:id/profile
func GetPublicProfile(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return httperr.BadRequest(c, "missing user id")
	}

	var (
		id        string
		name      string
		bio       string
		avatarURL string
		createdAt time.Time
	)
	err := db.Conn.QueryRow(context.Background(), `
		SELECT id, name, bio, avatar_url, created_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&id, &name, &bio, &avatarURL, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "user not found")
		}
		return httperr.Internal(c, "failed to fetch user")
	}

	// Ratings received: candidate_rating when they created the service,
	// creator_rating when they were the candidate.
	var avgRating *float64
	var exchanges int
	_ = db.Conn.QueryRow(context.Background(), `
		SELECT AVG(r.rating)::float8, COUNT(*)
		FROM (
			SELECT i.candidate_rating AS rating
			FROM service_instances i
			JOIN services s ON s.id = i.service_id
			WHERE s.creator_id = $1 AND i.candidate_rating IS NOT NULL
			UNION ALL
			SELECT i.creator_rating
			FROM service_instances i
			WHERE i.candidate_user_id = $1 AND i.creator_rating IS NOT NULL
		) r
	`, userID).Scan(&avgRating, &exchanges)

	profile := echo.Map{
		"id":         id,
		"name":       name,
		"bio":        bio,
		"avatar_url": avatarURL,
		"created_at": createdAt.Format(time.RFC3339),
		"exchanges":  exchanges,
	}
	if avgRating != nil {
		profile["rating"] = *avgRating
	}

	return c.JSON(http.StatusOK, profile)
}
