package marketplace

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/mygrant-hub/mygrant-api/internal/actor"
	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/httperr"
)

const serviceColumns = `
    s.id, s.title, s.description, s.category, s.location, s.acceptable_radius,
    s.mygrant_value, s.service_type, s.repeatable, s.deleted, s.date_created,
    s.creator_id, u.name, s.crowdfunding_id, cf.title
`

const serviceJoins = `
    FROM services s
    LEFT JOIN users u ON u.id = s.creator_id
    LEFT JOIN crowdfundings cf ON cf.id = s.crowdfunding_id
`

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	err := row.Scan(
		&s.ID, &s.Title, &s.Description, &s.Category, &s.Location, &s.AcceptableRadius,
		&s.MygrantValue, &s.ServiceType, &s.Repeatable, &s.Deleted, &s.DateCreated,
		&s.CreatorID, &s.ProviderName, &s.CrowdfundingID, &s.CrowdfundingTitle,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func fetchService(ctx context.Context, id string) (*Service, error) {
	row := db.Conn.QueryRow(ctx,
		`SELECT`+serviceColumns+serviceJoins+`WHERE s.id = $1`, id)
	return scanService(row)
}

// ownerActor returns the actor that created the service.
func ownerActor(s *Service) actor.Actor {
	if s.CreatorID != nil {
		return actor.Actor{Kind: actor.KindUser, ID: *s.CreatorID}
	}
	return actor.Actor{Kind: actor.KindCrowdfunding, ID: *s.CrowdfundingID}
}

// ownerUserID resolves the human allowed to act for the service: the creator
// user, or the creator of the owning crowdfunding.
func ownerUserID(ctx context.Context, s *Service) (string, error) {
	if s.CreatorID != nil {
		return *s.CreatorID, nil
	}
	var creatorID string
	err := db.Conn.QueryRow(ctx,
		`SELECT creator_id FROM crowdfundings WHERE id = $1`, *s.CrowdfundingID,
	).Scan(&creatorID)
	return creatorID, err
}

// CreateService registers a new service posting for the acting user or, with
// crowdfunding_id set, for a crowdfunding the user runs.
// PUT /services
func CreateService(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	var req CreateServiceRequest
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request")
	}
	if err := validate.Struct(&req); err != nil {
		return httperr.BadRequest(c, "missing or malformed fields")
	}
	if !ValidCategory(req.Category) {
		return httperr.BadRequest(c, "unknown category")
	}
	if !ValidServiceType(req.ServiceType) {
		return httperr.BadRequest(c, "service_type must be PROVIDE or REQUEST")
	}

	act, err := actor.Resolve(c.Request().Context(), uid, req.CrowdfundingID)
	if err != nil {
		switch {
		case errors.Is(err, actor.ErrNotFound):
			return httperr.NotFound(c, "crowdfunding not found")
		case errors.Is(err, actor.ErrForbidden):
			return httperr.Forbidden(c, "not the crowdfunding's creator")
		default:
			return httperr.Internal(c, "could not resolve actor")
		}
	}

	creatorID, crowdfundingID := act.Columns()
	serviceID := uuid.New().String()
	_, err = db.Conn.Exec(c.Request().Context(),
		`INSERT INTO services (id, creator_id, crowdfunding_id, title, description, category,
                               location, acceptable_radius, mygrant_value, service_type, repeatable, date_created)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		serviceID, creatorID, crowdfundingID, req.Title, req.Description, req.Category,
		req.Location, req.AcceptableRadius, req.MygrantValue, req.ServiceType, req.Repeatable, time.Now(),
	)
	if err != nil {
		return httperr.Internal(c, "could not create service")
	}

	return c.JSON(http.StatusOK, echo.Map{"service_id": serviceID})
}

// EditService applies a sparse update to a service. Only the creator actor
// may edit; unset fields keep their prior values.
// PUT /services/:id
func EditService(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	serviceID := c.Param("id")
	if _, err := uuid.Parse(serviceID); err != nil {
		return httperr.BadRequest(c, "invalid service id")
	}

	var req EditServiceRequest
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest(c, "invalid request")
	}
	if err := validate.Struct(&req); err != nil {
		return httperr.BadRequest(c, "malformed fields")
	}
	if req.Category != nil && !ValidCategory(*req.Category) {
		return httperr.BadRequest(c, "unknown category")
	}
	if req.ServiceType != nil && !ValidServiceType(*req.ServiceType) {
		return httperr.BadRequest(c, "service_type must be PROVIDE or REQUEST")
	}

	ctx := c.Request().Context()
	svc, err := fetchService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "service not found")
		}
		return httperr.Internal(c, "failed to fetch service")
	}
	if svc.Deleted {
		return httperr.NotFound(c, "service not found")
	}

	owner, err := ownerUserID(ctx, svc)
	if err != nil {
		return httperr.Internal(c, "failed to resolve service owner")
	}
	if owner != uid {
		return httperr.Forbidden(c, "only the service creator can edit it")
	}

	_, err = db.Conn.Exec(ctx,
		`UPDATE services SET
            title = COALESCE($2, title),
            description = COALESCE($3, description),
            category = COALESCE($4, category),
            location = COALESCE($5, location),
            acceptable_radius = COALESCE($6, acceptable_radius),
            mygrant_value = COALESCE($7, mygrant_value),
            service_type = COALESCE($8, service_type),
            repeatable = COALESCE($9, repeatable)
         WHERE id = $1`,
		serviceID, req.Title, req.Description, req.Category, req.Location,
		req.AcceptableRadius, req.MygrantValue, req.ServiceType, req.Repeatable,
	)
	if err != nil {
		return httperr.Internal(c, "could not update service")
	}

	return c.JSON(http.StatusOK, echo.Map{"service_id": serviceID})
}

// DeleteService soft-deletes a service. Offers, instances and comments stay
// in place but the service disappears from listings and rejects new offers.
// DELETE /services/:id
func DeleteService(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return httperr.Unauthorized(c, "unauthorized")
	}

	serviceID := c.Param("id")
	if _, err := uuid.Parse(serviceID); err != nil {
		return httperr.BadRequest(c, "invalid service id")
	}

	ctx := c.Request().Context()
	svc, err := fetchService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "service not found")
		}
		return httperr.Internal(c, "failed to fetch service")
	}
	if svc.Deleted {
		return httperr.NotFound(c, "service not found")
	}

	owner, err := ownerUserID(ctx, svc)
	if err != nil {
		return httperr.Internal(c, "failed to resolve service owner")
	}
	if owner != uid {
		return httperr.Forbidden(c, "only the service creator can delete it")
	}

	if _, err := db.Conn.Exec(ctx,
		`UPDATE services SET deleted = TRUE WHERE id = $1`, serviceID); err != nil {
		return httperr.Internal(c, "could not delete service")
	}

	return c.JSON(http.StatusOK, echo.Map{"service_id": serviceID})
}

// GetService returns one service by id. Soft-deleted services stay fetchable
// here even though listings and search exclude them.
// GET /services/:id
func GetService(c echo.Context) error {
	serviceID := c.Param("id")
	if _, err := uuid.Parse(serviceID); err != nil {
		return httperr.BadRequest(c, "invalid service id")
	}

	svc, err := fetchService(c.Request().Context(), serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return httperr.NotFound(c, "service not found")
		}
		return httperr.Internal(c, "failed to fetch service")
	}

	return c.JSON(http.StatusOK, svc)
}

// ListServices returns a page of active services, newest first.
// GET /services?page=N&items=M
func ListServices(c echo.Context) error {
	page := 1
	if p := c.QueryParam("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	items := MaxPageItems
	if i := c.QueryParam("items"); i != "" {
		if v, err := strconv.Atoi(i); err == nil {
			items = ClampItems(v)
		}
	}
	offset := (page - 1) * items

	rows, err := db.Conn.Query(c.Request().Context(),
		`SELECT`+serviceColumns+serviceJoins+
			`WHERE s.deleted = FALSE ORDER BY s.date_created DESC LIMIT $1 OFFSET $2`,
		items, offset,
	)
	if err != nil {
		return httperr.Internal(c, "could not fetch services")
	}
	defer rows.Close()

	services := []*Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return httperr.Internal(c, "failed to parse service record")
		}
		services = append(services, s)
	}

	return c.JSON(http.StatusOK, echo.Map{"services": services, "page": page, "items": items})
}

// NumPagesHandler returns the page count of active services as a bare integer.
// GET /services/num-pages?items=M
func NumPagesHandler(c echo.Context) error {
	items := MaxPageItems
	if i := c.QueryParam("items"); i != "" {
		if v, err := strconv.Atoi(i); err == nil {
			items = ClampItems(v)
		}
	}

	var count int
	err := db.Conn.QueryRow(c.Request().Context(),
		`SELECT COUNT(*) FROM services WHERE deleted = FALSE`).Scan(&count)
	if err != nil {
		return httperr.Internal(c, "could not count services")
	}

	return c.JSON(http.StatusOK, NumPages(count, items))
}
