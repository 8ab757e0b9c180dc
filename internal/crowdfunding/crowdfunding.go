package crowdfunding

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/actor"
	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
	"github.com/mygrant-hub/mygrant-api/internal/marketplace"
	"github.com/mygrant-hub/mygrant-api/internal/wallet"
)

var validate = validator.New()

// Crowdfunding statuses.
const (
	StatusCollecting = "COLLECTING"
	StatusRecruiting = "RECRUITING"
	StatusFinished   = "FINISHED"
)

// Crowdfunding is the full projection with the creator's name joined in.
type Crowdfunding struct {
	ID            string     `json:"id"`
	CreatorID     string     `json:"creator_id"`
	CreatorName   string     `json:"creator_name"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	Location      string     `json:"location,omitempty"`
	MygrantTarget int64      `json:"mygrant_target"`
	Status        string     `json:"status"`
	DateCreated   time.Time  `json:"date_created"`
	DateFinished  *time.Time `json:"date_finished,omitempty"`
}

type CreateRequest struct {
	Title         string `json:"title" validate:"required,max=200"`
	Description   string `json:"description" validate:"max=2000"`
	Category      string `json:"category" validate:"required"`
	Location      string `json:"location"`
	MygrantTarget int64  `json:"mygrant_target" validate:"required,gt=0"`
}

type UpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Category    *string `json:"category"`
	Location    *string `json:"location"`
	Status      *string `json:"status"`
}

const crowdfundingQuery = `
    SELECT cf.id, cf.creator_id, u.name, cf.title, cf.description, cf.category,
           cf.location, cf.mygrant_target, cf.status, cf.date_created, cf.date_finished
    FROM crowdfundings cf
    JOIN users u ON u.id = cf.creator_id
`

func scanCrowdfunding(row pgx.Row) (*Crowdfunding, error) {
	var cf Crowdfunding
	err := row.Scan(&cf.ID, &cf.CreatorID, &cf.CreatorName, &cf.Title, &cf.Description,
		&cf.Category, &cf.Location, &cf.MygrantTarget, &cf.Status, &cf.DateCreated, &cf.DateFinished)
	if err != nil {
		return nil, err
	}
	return &cf, nil
}

// Create opens a crowdfunding project and its wallet in one transaction. The
// project then acts in the marketplace through its creator.
// POST /crowdfundings
func Create(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request")
	}
	if err := validate.Struct(&req); err != nil {
		return httperr.BadRequest(c, "missing or malformed fields")
	}
	if !marketplace.ValidCategory(req.Category) {
		return httperr.BadRequest(c, "unknown category")
	}

	ctx := c.Request().Context()
	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return httperr.Internal(c, "transaction start failed")
	}
	defer tx.Rollback(ctx)

	crowdfundingID := uuid.New().String()
	_, err = tx.Exec(ctx,
		`INSERT INTO crowdfundings (id, creator_id, title, description, category, location, mygrant_target)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		crowdfundingID, uid, req.Title, req.Description, req.Category, req.Location, req.MygrantTarget,
	)
	if err != nil {
		return httperr.Internal(c, "could not create crowdfunding")
	}

	owner := actor.Actor{Kind: actor.KindCrowdfunding, ID: crowdfundingID}
	if _, err := wallet.CreateTx(ctx, tx, owner, 0); err != nil {
		return httperr.Internal(c, "wallet creation failed")
	}

	if err := tx.Commit(ctx); err != nil {
		return httperr.Internal(c, "commit failed")
	}

	return c.JSON(http.StatusOK, echo.Map{"crowdfunding_id": crowdfundingID})
}

// Get returns one crowdfunding by id.
// GET /crowdfundings/:id
func Get(c echo.Context) error {
	crowdfundingID := c.Param("id")
	if _, err := uuid.Parse(crowdfundingID); err != nil {
		return httperr.BadRequest(c, "invalid crowdfunding id")
	}

	cf, err := scanCrowdfunding(db.Conn.QueryRow(c.Request().Context(),
		crowdfundingQuery+`WHERE cf.id = $1`, crowdfundingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "crowdfunding not found")
		}
		return httperr.Internal(c, "failed to fetch crowdfunding")
	}

	return c.JSON(http.StatusOK, cf)
}

// List returns a page of crowdfundings, newest first.
// GET /crowdfundings?page=N&items=M
func List(c echo.Context) error {
	page := 1
	if p := c.QueryParam("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	items := marketplace.MaxPageItems
	if i := c.QueryParam("items"); i != "" {
		if v, err := strconv.Atoi(i); err == nil {
			items = marketplace.ClampItems(v)
		}
	}
	offset := (page - 1) * items

	rows, err := db.Conn.Query(c.Request().Context(),
		crowdfundingQuery+`ORDER BY cf.date_created DESC LIMIT $1 OFFSET $2`,
		items, offset,
	)
	if err != nil {
		return httperr.Internal(c, "could not fetch crowdfundings")
	}
	defer rows.Close()

	list := []*Crowdfunding{}
	for rows.Next() {
		cf, err := scanCrowdfunding(rows)
		if err != nil {
			return httperr.Internal(c, "failed to parse crowdfunding record")
		}
		list = append(list, cf)
	}

	return c.JSON(http.StatusOK, echo.Map{"crowdfundings": list, "page": page, "items": items})
}

// Rating returns the average rating a crowdfunding has received across its
// service exchanges: ratings left by candidates on its services, plus ratings
// left by creators where the crowdfunding was the candidate.
// GET /crowdfundings/:id/rating
func Rating(c echo.Context) error {
	crowdfundingID := c.Param("id")
	if _, err := uuid.Parse(crowdfundingID); err != nil {
		return httperr.BadRequest(c, "invalid crowdfunding id")
	}

	ctx := c.Request().Context()
	var exists bool
	if err := db.Conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM crowdfundings WHERE id = $1)`, crowdfundingID,
	).Scan(&exists); err != nil {
		return httperr.Internal(c, "failed to fetch crowdfunding")
	}
	if !exists {
		return httperr.NotFound(c, "crowdfunding not found")
	}

	var avgRating *float64
	var exchanges int
	err := db.Conn.QueryRow(ctx, `
		SELECT AVG(r.rating)::float8, COUNT(*)
		FROM (
			SELECT i.candidate_rating AS rating
			FROM service_instances i
			JOIN services s ON s.id = i.service_id
			WHERE s.crowdfunding_id = $1 AND i.candidate_rating IS NOT NULL
			UNION ALL
			SELECT i.creator_rating
			FROM service_instances i
			WHERE i.candidate_crowdfunding_id = $1 AND i.creator_rating IS NOT NULL
		) r`, crowdfundingID).Scan(&avgRating, &exchanges)
	if err != nil {
		return httperr.Internal(c, "failed to compute rating")
	}

	resp := echo.Map{"crowdfunding_id": crowdfundingID, "rated_exchanges": exchanges}
	if avgRating != nil {
		resp["average_rating"] = *avgRating
	}
	return c.JSON(http.StatusOK, resp)
}

// requireCreator loads the crowdfunding and checks the caller created it. A
// false return means the error response has already been written and the
// handler must return nil.
func requireCreator(c echo.Context) (string, bool) {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		httperr.Unauthorized(c, "unauthorized")
		return "", false
	}
	crowdfundingID := c.Param("id")
	if _, err := uuid.Parse(crowdfundingID); err != nil {
		httperr.BadRequest(c, "invalid crowdfunding id")
		return "", false
	}

	var creatorID string
	err := db.Conn.QueryRow(c.Request().Context(),
		`SELECT creator_id FROM crowdfundings WHERE id = $1`, crowdfundingID,
	).Scan(&creatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httperr.NotFound(c, "crowdfunding not found")
		} else {
			httperr.Internal(c, "failed to fetch crowdfunding")
		}
		return "", false
	}
	if creatorID != uid {
		httperr.Forbidden(c, "only the creator can manage this crowdfunding")
		return "", false
	}
	return crowdfundingID, true
}

// Update applies a sparse update. Moving to FINISHED stamps date_finished.
// PUT /crowdfundings/:id
func Update(c echo.Context) error {
	crowdfundingID, ok := requireCreator(c)
	if !ok {
		return nil
	}

	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request")
	}
	if err := validate.Struct(&req); err != nil {
		return httperr.BadRequest(c, "malformed fields")
	}
	if req.Category != nil && !marketplace.ValidCategory(*req.Category) {
		return httperr.BadRequest(c, "unknown category")
	}
	if req.Status != nil {
		switch *req.Status {
		case StatusCollecting, StatusRecruiting, StatusFinished:
		default:
			return httperr.BadRequest(c, "unknown status")
		}
	}

	finished := req.Status != nil && *req.Status == StatusFinished
	_, err := db.Conn.Exec(c.Request().Context(),
		`UPDATE crowdfundings SET
            title = COALESCE($2, title),
            description = COALESCE($3, description),
            category = COALESCE($4, category),
            location = COALESCE($5, location),
            status = COALESCE($6, status),
            date_finished = CASE WHEN $7 THEN NOW() ELSE date_finished END
         WHERE id = $1`,
		crowdfundingID, req.Title, req.Description, req.Category, req.Location, req.Status, finished,
	)
	if err != nil {
		return httperr.Internal(c, "could not update crowdfunding")
	}

	return c.JSON(http.StatusOK, echo.Map{"crowdfunding_id": crowdfundingID})
}

// Delete removes a crowdfunding. Its wallet and services go with it via
// foreign keys.
// DELETE /crowdfundings/:id
func Delete(c echo.Context) error {
	crowdfundingID, ok := requireCreator(c)
	if !ok {
		return nil
	}

	if _, err := db.Conn.Exec(c.Request().Context(),
		`DELETE FROM crowdfundings WHERE id = $1`, crowdfundingID); err != nil {
		return httperr.Internal(c, "could not delete crowdfunding")
	}

	return c.JSON(http.StatusOK, echo.Map{"crowdfunding_id": crowdfundingID})
}
